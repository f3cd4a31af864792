package evaluators

import "github.com/triage-ai/palisade/services/tool_gateway/internal/engine"

// Defaults returns the standard rule set in evaluation order.
func Defaults(confidenceThreshold float64) []engine.Evaluator {
	return []engine.Evaluator{
		NewRiskLevelEvaluator(),
		NewConfidenceEvaluator(confidenceThreshold),
	}
}
