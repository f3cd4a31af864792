package engine

// DefaultConfidenceThreshold is the overall_confidence below which a call needs confirmation.
const DefaultConfidenceThreshold = 0.7
