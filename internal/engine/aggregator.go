package engine

import (
	"github.com/triage-ai/palisade/services/tool_gateway/internal/registry"
)

// Result is the policy decision for one call.
type Result struct {
	Decision registry.Decision `json:"decision"`
	Reasons  []string          `json:"reasons"`
}

// severity orders decisions for escalation.
func severity(d registry.Decision) int {
	switch d {
	case registry.DecisionDeny:
		return 2
	case registry.DecisionRequireConfirm:
		return 1
	default:
		return 0
	}
}

// Escalate returns the stricter of two decisions.
func Escalate(current, next registry.Decision) registry.Decision {
	if severity(next) > severity(current) {
		return next
	}
	return current
}

// Outcome pairs a rule name with its result.
type Outcome struct {
	Name   string
	Result *EvalResult
}

// Aggregate folds rule outcomes into a decision.
//
// Rules (applied in order):
//  1. Start at ALLOW.
//  2. Each triggered rule escalates to its decision and appends its name to reasons.
//  3. A rule can never lower the decision.
func Aggregate(outcomes []Outcome) Result {
	res := Result{Decision: registry.DecisionAllow, Reasons: []string{}}
	for _, o := range outcomes {
		if o.Result == nil || !o.Result.Triggered {
			continue
		}
		res.Decision = Escalate(res.Decision, o.Result.Decision)
		res.Reasons = append(res.Reasons, o.Name)
	}
	return res
}
