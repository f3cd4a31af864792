package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/triage-ai/palisade/services/tool_gateway/internal/params"
)

// DefaultTimeout applies to tools registered without a timeout.
const DefaultTimeout = 8 * time.Second

// RiskLevel is the coarse classification driving policy caution.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Valid reports whether r is one of the four known levels.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// Decision is the policy verdict for one call.
type Decision string

const (
	DecisionAllow          Decision = "ALLOW"
	DecisionRequireConfirm Decision = "REQUIRE_CONFIRM"
	DecisionDeny           Decision = "DENY"
)

// Actor is the opaque, already-authenticated caller descriptor.
type Actor map[string]any

// Signals carries trust metadata supplied with a call.
type Signals map[string]any

// OverallConfidence returns signals["overall_confidence"] when it is a number.
func (s Signals) OverallConfidence() (float64, bool) {
	switch v := s["overall_confidence"].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// Invocation is the per-execution context handed to a handler alongside its params.
type Invocation struct {
	ToolName       string
	TraceID        string
	IntentID       string
	Actor          Actor
	Signals        Signals
	IdempotencyKey string
	DryRun         bool
}

// Handler performs a tool's side effect. ctx is cancelled when the tool's
// timeout fires; handlers that ignore it keep running but their result is discarded.
type Handler func(ctx context.Context, p map[string]any, inv Invocation) (any, error)

// SummaryFunc renders a human-readable description of a call.
type SummaryFunc func(p map[string]any) string

// OverrideInput is what a PolicyOverride sees: the call plus the decision
// accumulated by the default rules.
type OverrideInput struct {
	Params   map[string]any
	Signals  Signals
	Actor    Actor
	Decision Decision
}

// OverrideResult replaces the accumulated decision when returned with ok=true.
type OverrideResult struct {
	Decision Decision
	Reason   string
}

// PolicyOverride is a tool-supplied policy strategy. It is the only way to
// reach DENY under the default engine, and may also lower REQUIRE_CONFIRM to ALLOW.
type PolicyOverride interface {
	Override(in OverrideInput) (OverrideResult, bool)
}

// PolicyOverrideFunc adapts a function to PolicyOverride.
type PolicyOverrideFunc func(in OverrideInput) (OverrideResult, bool)

func (f PolicyOverrideFunc) Override(in OverrideInput) (OverrideResult, bool) { return f(in) }

// ToolDefinition is the identity and contract of one tool.
// The registry stores a normalized copy; definitions are not mutated after registration.
type ToolDefinition struct {
	Name         string
	Description  string
	Capabilities []string
	RiskLevel    RiskLevel
	ParamsSchema *params.Schema
	Timeout      time.Duration
	Handler      Handler
	Policy       PolicyOverride // nil = default rules only
	Summary      SummaryFunc    // nil = "<name> executed"

	compiled *params.Compiled
}

// CompiledSchema returns the schema prepared at registration (nil = no validation).
func (d *ToolDefinition) CompiledSchema() *params.Compiled {
	return d.compiled
}

// HumanSummary renders the call description via the tool's formatter.
// A formatter that panics or returns "" yields the default.
func (d *ToolDefinition) HumanSummary(p map[string]any) (summary string) {
	fallback := d.Name + " executed"
	if d.Summary == nil {
		return fallback
	}
	defer func() {
		if recover() != nil || summary == "" {
			summary = fallback
		}
	}()
	if p == nil {
		p = map[string]any{}
	}
	return d.Summary(p)
}

// ToolSummary is the redacted view of a tool returned to callers. Handlers never leave the gateway.
type ToolSummary struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Capabilities []string       `json:"capabilities"`
	RiskLevel    RiskLevel      `json:"risk_level"`
	ParamsSchema *params.Schema `json:"params_schema"`
}
