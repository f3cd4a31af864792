package engine

import (
	"github.com/triage-ai/palisade/services/tool_gateway/internal/registry"
)

// Evaluator is one default policy rule. Rules are evaluated in order and may
// only escalate the accumulated decision; Name is recorded as the reason.
type Evaluator interface {
	// Name returns the rule's reason identifier, e.g. "risk_level".
	Name() string

	// Evaluate inspects the call. It must be pure and must not block.
	Evaluate(req *Request) *EvalResult
}

// Request contains everything a policy decision may depend on.
type Request struct {
	Tool    *registry.ToolDefinition
	Params  map[string]any
	Signals registry.Signals
	Actor   registry.Actor
}

// EvalResult is the outcome of a single rule.
type EvalResult struct {
	Triggered bool
	Decision  registry.Decision // decision to escalate to when triggered
}
