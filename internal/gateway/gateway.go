package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/triage-ai/palisade/services/tool_gateway/internal/audit"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/engine"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/engine/evaluators"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/executor"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/metrics"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/proposal"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/registry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrUnknownTool     = errors.New("UNKNOWN_TOOL")
	ErrNilPolicyEngine = errors.New("policy engine must not be nil")
)

// Gateway mediates every tool call: registry lookup, validation, policy,
// then execution or a proposal, with an audit entry for each outcome.
// All methods are safe for concurrent use.
type Gateway struct {
	registry  *registry.Registry
	proposals proposal.Store
	audit     *audit.Log
	executor  *executor.Executor

	engineMu sync.RWMutex
	engine   engine.PolicyEngine

	now     func() time.Time
	ids     executor.IDGenerator
	metrics *metrics.Metrics
	logger  *zap.Logger
}

type options struct {
	now                 func() time.Time
	ids                 executor.IDGenerator
	engine              engine.PolicyEngine
	confidenceThreshold float64
	defaultTimeout      time.Duration
	proposals           proposal.Store
	auditSink           audit.Sink
	auditCapacity       int
	idempotencyTTL      time.Duration
	metrics             *metrics.Metrics
	tracer              trace.Tracer
	builtins            bool
}

// Option customizes a Gateway.
type Option func(*options)

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator replaces the uuid-based generator for proposal, trace and intent ids.
func WithIDGenerator(ids executor.IDGenerator) Option {
	return func(o *options) { o.ids = ids }
}

// WithPolicyEngine replaces the default rule set.
func WithPolicyEngine(e engine.PolicyEngine) Option {
	return func(o *options) { o.engine = e }
}

// WithConfidenceThreshold sets the low_confidence threshold of the default engine.
func WithConfidenceThreshold(threshold float64) Option {
	return func(o *options) { o.confidenceThreshold = threshold }
}

// WithDefaultTimeout sets the timeout given to tools registered without one.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *options) { o.defaultTimeout = d }
}

// WithProposalStore replaces the in-memory proposal store.
func WithProposalStore(s proposal.Store) Option {
	return func(o *options) { o.proposals = s }
}

// WithAuditSink forwards every audit entry to s.
func WithAuditSink(s audit.Sink) Option {
	return func(o *options) { o.auditSink = s }
}

// WithAuditCapacity bounds the in-memory audit log. 0 keeps everything.
func WithAuditCapacity(n int) Option {
	return func(o *options) { o.auditCapacity = n }
}

// WithIdempotencyTTL expires cached results after d. 0 keeps them for the process lifetime.
func WithIdempotencyTTL(d time.Duration) Option {
	return func(o *options) { o.idempotencyTTL = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithoutBuiltins skips registering the built-in tools.
func WithoutBuiltins() Option {
	return func(o *options) { o.builtins = false }
}

// New creates a Gateway. Unless disabled, built-in tools are registered.
func New(logger *zap.Logger, opts ...Option) *Gateway {
	o := options{
		now:                 time.Now,
		ids:                 executor.UUIDGenerator,
		confidenceThreshold: engine.DefaultConfidenceThreshold,
		defaultTimeout:      registry.DefaultTimeout,
		builtins:            true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if o.engine == nil {
		o.engine = engine.NewDefaultEngine(evaluators.Defaults(o.confidenceThreshold), logger)
	}
	if o.proposals == nil {
		o.proposals = proposal.NewMemoryStore()
	}

	log := audit.NewLog(audit.Config{
		Capacity: o.auditCapacity,
		Sink:     o.auditSink,
		Now:      o.now,
		Logger:   logger,
	})

	g := &Gateway{
		registry:  registry.New(o.defaultTimeout, logger),
		proposals: o.proposals,
		audit:     log,
		executor: executor.New(executor.Config{
			Cache:   executor.NewResultCache(o.idempotencyTTL, o.now),
			Audit:   log,
			IDs:     o.ids,
			Tracer:  o.tracer,
			Metrics: o.metrics,
			Logger:  logger,
		}),
		engine:  o.engine,
		now:     o.now,
		ids:     o.ids,
		metrics: o.metrics,
		logger:  logger,
	}

	if o.builtins {
		g.registerBuiltins()
	}
	return g
}

// RegisterTool validates and stores def, replacing any tool of the same name.
func (g *Gateway) RegisterTool(def registry.ToolDefinition) (*registry.ToolDefinition, error) {
	return g.registry.Register(def)
}

// UnregisterTool removes a tool. Removing an absent tool is a no-op.
func (g *Gateway) UnregisterTool(name string) {
	g.registry.Unregister(name)
}

// ListTools returns the redacted view of every registered tool.
func (g *Gateway) ListTools() []registry.ToolSummary {
	return g.registry.List()
}

// SetPolicyEngine swaps the policy engine for subsequent calls.
func (g *Gateway) SetPolicyEngine(e engine.PolicyEngine) error {
	if e == nil {
		return ErrNilPolicyEngine
	}
	g.engineMu.Lock()
	g.engine = e
	g.engineMu.Unlock()
	g.logger.Info("policy engine replaced")
	return nil
}

func (g *Gateway) policyEngine() engine.PolicyEngine {
	g.engineMu.RLock()
	defer g.engineMu.RUnlock()
	return g.engine
}

// AuditList returns up to limit of the most recent audit entries, oldest first.
func (g *Gateway) AuditList(limit int) []audit.Entry {
	return g.audit.List(limit)
}

// SweepIdempotencyCache drops expired idempotency results.
func (g *Gateway) SweepIdempotencyCache() int {
	cache := g.executor.Cache()
	removed := cache.Sweep()
	g.metrics.SetCachedResults(cache.Len())
	return removed
}
