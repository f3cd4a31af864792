package evaluators

import (
	"math"

	"github.com/triage-ai/palisade/services/tool_gateway/internal/engine"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/registry"
)

// ConfidenceEvaluator requires confirmation when the caller reports a numeric
// overall_confidence below the threshold. Absent or non-numeric confidence never triggers.
type ConfidenceEvaluator struct {
	threshold float64
}

// NewConfidenceEvaluator creates the rule. A threshold of 0 disables it; one
// outside [0,1] falls back to the default.
func NewConfidenceEvaluator(threshold float64) *ConfidenceEvaluator {
	if threshold < 0 || threshold > 1 || math.IsNaN(threshold) {
		threshold = engine.DefaultConfidenceThreshold
	}
	return &ConfidenceEvaluator{threshold: threshold}
}

func (e *ConfidenceEvaluator) Name() string {
	return "low_confidence"
}

func (e *ConfidenceEvaluator) Evaluate(req *engine.Request) *engine.EvalResult {
	confidence, ok := req.Signals.OverallConfidence()
	if !ok || e.threshold == 0 || confidence >= e.threshold {
		return &engine.EvalResult{Triggered: false}
	}
	return &engine.EvalResult{Triggered: true, Decision: registry.DecisionRequireConfirm}
}
