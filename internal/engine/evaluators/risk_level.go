package evaluators

import (
	"github.com/triage-ai/palisade/services/tool_gateway/internal/engine"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/registry"
)

// RiskLevelEvaluator requires confirmation for HIGH and CRITICAL tools.
type RiskLevelEvaluator struct{}

func NewRiskLevelEvaluator() *RiskLevelEvaluator {
	return &RiskLevelEvaluator{}
}

func (e *RiskLevelEvaluator) Name() string {
	return "risk_level"
}

func (e *RiskLevelEvaluator) Evaluate(req *engine.Request) *engine.EvalResult {
	if req.Tool == nil {
		return &engine.EvalResult{Triggered: false}
	}
	switch req.Tool.RiskLevel {
	case registry.RiskHigh, registry.RiskCritical:
		return &engine.EvalResult{Triggered: true, Decision: registry.DecisionRequireConfirm}
	}
	return &engine.EvalResult{Triggered: false}
}
