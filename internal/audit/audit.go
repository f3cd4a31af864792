package audit

import (
	"maps"
	"sync"
	"time"

	"github.com/triage-ai/palisade/services/tool_gateway/internal/registry"
	"go.uber.org/zap"
)

// DefaultListLimit is the number of entries List returns when no limit is given.
const DefaultListLimit = 20

// Entry records one terminal outcome. Params appear only as their hash.
type Entry struct {
	Timestamp  time.Time         `json:"timestamp"`
	ToolName   string            `json:"tool_name"`
	Actor      registry.Actor    `json:"actor"`
	ParamsHash string            `json:"params_hash"`
	Status     string            `json:"status"`
	Decision   registry.Decision `json:"decision,omitempty"`
	Reasons    []string          `json:"reasons,omitempty"`
	Error      string            `json:"error,omitempty"`
	ProposalID string            `json:"proposal_id,omitempty"`
	TraceID    string            `json:"trace_id,omitempty"`
	IntentID   string            `json:"intent_id,omitempty"`
	Replayed   bool              `json:"replayed,omitempty"`
}

// Sink receives every appended entry. Write must not block.
type Sink interface {
	Write(e *Entry)
}

// Log is the append-only, in-process audit trail.
type Log struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	sink     Sink
	now      func() time.Time
	logger   *zap.Logger
}

// Config configures a Log.
type Config struct {
	// Capacity bounds retained entries; the oldest are dropped first. 0 keeps everything.
	Capacity int
	Sink     Sink
	Now      func() time.Time
	Logger   *zap.Logger
}

// NewLog creates an empty Log.
func NewLog(cfg Config) *Log {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{
		capacity: cfg.Capacity,
		sink:     cfg.Sink,
		now:      now,
		logger:   logger,
	}
}

// Append stamps e (when its timestamp is unset), stores a private copy and
// forwards it to the sink. The stored entry is returned.
func (l *Log) Append(e Entry) Entry {
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	e = clone(e)

	l.mu.Lock()
	l.entries = append(l.entries, e)
	if l.capacity > 0 && len(l.entries) > l.capacity {
		drop := len(l.entries) - l.capacity
		l.entries = append(l.entries[:0:0], l.entries[drop:]...)
	}
	l.mu.Unlock()

	if l.sink != nil {
		out := clone(e)
		l.sink.Write(&out)
	}
	l.logger.Debug("audit entry appended",
		zap.String("tool_name", e.ToolName),
		zap.String("status", e.Status),
		zap.String("params_hash", e.ParamsHash),
		zap.String("proposal_id", e.ProposalID),
		zap.String("trace_id", e.TraceID),
	)
	return e
}

// List returns up to limit of the most recent entries, oldest first.
// A non-positive limit means DefaultListLimit.
func (l *Log) List(limit int) []Entry {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	start := len(l.entries) - limit
	if start < 0 {
		start = 0
	}
	out := make([]Entry, 0, len(l.entries)-start)
	for _, e := range l.entries[start:] {
		out = append(out, clone(e))
	}
	return out
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func clone(e Entry) Entry {
	e.Actor = maps.Clone(e.Actor)
	if e.Reasons != nil {
		e.Reasons = append(make([]string, 0, len(e.Reasons)), e.Reasons...)
	}
	return e
}
