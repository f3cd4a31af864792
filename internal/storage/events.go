package storage

import "github.com/triage-ai/palisade/services/tool_gateway/internal/audit"

// EventWriter persists audit entries outside the process.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(e *audit.Entry)
	Close()
}
