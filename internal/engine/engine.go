package engine

import (
	"context"

	"github.com/triage-ai/palisade/services/tool_gateway/internal/registry"
	"go.uber.org/zap"
)

// PolicyEngine maps a call to ALLOW, REQUIRE_CONFIRM or DENY.
// The gateway's engine can be replaced wholesale with any implementation.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req *Request) Result
}

// PolicyEngineFunc adapts a function to PolicyEngine.
type PolicyEngineFunc func(ctx context.Context, req *Request) Result

func (f PolicyEngineFunc) Evaluate(ctx context.Context, req *Request) Result { return f(ctx, req) }

// DefaultEngine runs the ordered rule set, then the tool's own override.
type DefaultEngine struct {
	evaluators []Evaluator
	logger     *zap.Logger
}

// NewDefaultEngine creates an engine over the given rules. Order matters only for reasons.
func NewDefaultEngine(evaluators []Evaluator, logger *zap.Logger) *DefaultEngine {
	return &DefaultEngine{
		evaluators: evaluators,
		logger:     logger,
	}
}

// Evaluate applies the rules, then lets the tool's PolicyOverride replace the
// accumulated decision. The override is the only path to DENY and the only
// way back down from REQUIRE_CONFIRM.
func (e *DefaultEngine) Evaluate(_ context.Context, req *Request) Result {
	outcomes := make([]Outcome, 0, len(e.evaluators))
	for _, ev := range e.evaluators {
		outcomes = append(outcomes, Outcome{Name: ev.Name(), Result: ev.Evaluate(req)})
	}
	res := Aggregate(outcomes)

	if req.Tool == nil || req.Tool.Policy == nil {
		return res
	}

	override, ok := req.Tool.Policy.Override(registry.OverrideInput{
		Params:   req.Params,
		Signals:  req.Signals,
		Actor:    req.Actor,
		Decision: res.Decision,
	})
	if !ok || override.Decision == "" {
		return res
	}
	if severity(override.Decision) == 0 && override.Decision != registry.DecisionAllow {
		e.logger.Warn("ignoring unknown policy override decision",
			zap.String("tool_name", req.Tool.Name),
			zap.String("decision", string(override.Decision)),
		)
		return res
	}

	res.Decision = override.Decision
	if override.Reason != "" {
		res.Reasons = append(res.Reasons, override.Reason)
	}
	return res
}
