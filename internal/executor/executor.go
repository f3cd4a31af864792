package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/triage-ai/palisade/services/tool_gateway/internal/audit"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/metrics"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/params"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/registry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrToolTimeout is reported when a handler outlives its tool's timeout.
var ErrToolTimeout = errors.New("TOOL_TIMEOUT")

const tracerName = "github.com/triage-ai/palisade/services/tool_gateway/internal/executor"

// Request is one validated, policy-approved call.
type Request struct {
	Tool           *registry.ToolDefinition
	Params         map[string]any
	Actor          registry.Actor
	Signals        registry.Signals
	IdempotencyKey string
	DryRun         bool

	// Audit linkage.
	Decision   registry.Decision
	Reasons    []string
	ProposalID string
}

// Config configures an Executor. Audit is required.
type Config struct {
	Cache   *ResultCache
	Audit   *audit.Log
	IDs     IDGenerator
	Tracer  trace.Tracer
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Executor runs handlers under a timeout, normalizes their results,
// deduplicates by idempotency key and audits every run.
type Executor struct {
	cache   *ResultCache
	group   singleflight.Group
	audit   *audit.Log
	ids     IDGenerator
	tracer  trace.Tracer
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New creates an Executor, filling unset collaborators with defaults.
func New(cfg Config) *Executor {
	e := &Executor{
		cache:   cfg.Cache,
		audit:   cfg.Audit,
		ids:     cfg.IDs,
		tracer:  cfg.Tracer,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
	if e.cache == nil {
		e.cache = NewResultCache(0, nil)
	}
	if e.ids == nil {
		e.ids = UUIDGenerator
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// Cache exposes the idempotency cache for sweeping.
func (e *Executor) Cache() *ResultCache {
	return e.cache
}

// Execute runs req and always returns a result; failures come back as ERROR.
// With an idempotency key, a completed result is returned unchanged and
// concurrent callers sharing the key wait for the one in-flight run.
func (e *Executor) Execute(ctx context.Context, req Request) *ExecutionResult {
	paramsHash := params.Hash(req.Params)
	if req.IdempotencyKey == "" {
		res, _ := e.run(ctx, req, paramsHash)
		return res
	}

	toolName := req.Tool.Name
	if cached, ok := e.cache.Get(toolName, req.IdempotencyKey); ok {
		e.replay(req, paramsHash, cached)
		return cached
	}

	ran := false
	v, _, _ := e.group.Do(cacheKey(toolName, req.IdempotencyKey), func() (any, error) {
		if cached, ok := e.cache.Get(toolName, req.IdempotencyKey); ok {
			return cached, nil
		}
		ran = true
		// The run is shared, so one caller going away must not cancel it for the others.
		res, completed := e.run(context.WithoutCancel(ctx), req, paramsHash)
		if completed {
			e.cache.Set(toolName, req.IdempotencyKey, res)
			e.metrics.SetCachedResults(e.cache.Len())
		}
		return res, nil
	})
	res := v.(*ExecutionResult)
	if !ran {
		e.replay(req, paramsHash, res)
	}
	return res
}

// run invokes the handler once. completed is false when the handler failed,
// panicked or timed out.
func (e *Executor) run(ctx context.Context, req Request, paramsHash string) (*ExecutionResult, bool) {
	tool := req.Tool
	p := req.Params
	if p == nil {
		p = map[string]any{}
	}
	inv := registry.Invocation{
		ToolName:       tool.Name,
		TraceID:        e.ids("trace"),
		IntentID:       e.ids("intent"),
		Actor:          req.Actor,
		Signals:        req.Signals,
		IdempotencyKey: req.IdempotencyKey,
		DryRun:         req.DryRun,
	}

	ctx, span := e.tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		attribute.String("tool.name", tool.Name),
		attribute.String("tool.trace_id", inv.TraceID),
		attribute.String("tool.intent_id", inv.IntentID),
		attribute.Bool("tool.dry_run", req.DryRun),
	))
	defer span.End()

	timeout := tool.Timeout
	if timeout <= 0 {
		timeout = registry.DefaultTimeout
	}

	start := time.Now()
	v, err := invoke(ctx, tool.Handler, timeout, p, inv)
	elapsed := time.Since(start)
	timedOut := errors.Is(err, ErrToolTimeout)
	e.metrics.ObserveExecution(tool.Name, elapsed, timedOut)

	summary := tool.HumanSummary(p)
	var res *ExecutionResult
	if err != nil {
		res = ErrorResult(err.Error())
		res.HumanSummary = summary
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		res = Normalize(v, summary)
	}
	span.SetAttributes(attribute.String("tool.status", string(res.Status)))

	e.audit.Append(audit.Entry{
		ToolName:   tool.Name,
		Actor:      req.Actor,
		ParamsHash: paramsHash,
		Status:     string(res.Status),
		Decision:   req.Decision,
		Reasons:    req.Reasons,
		Error:      res.Error,
		ProposalID: req.ProposalID,
		TraceID:    inv.TraceID,
		IntentID:   inv.IntentID,
	})

	fields := []zap.Field{
		zap.String("tool_name", tool.Name),
		zap.String("status", string(res.Status)),
		zap.String("trace_id", inv.TraceID),
		zap.String("intent_id", inv.IntentID),
		zap.Duration("elapsed", elapsed),
	}
	switch {
	case timedOut:
		e.logger.Warn("tool execution timed out", append(fields, zap.Duration("timeout", timeout))...)
	case err != nil:
		e.logger.Warn("tool execution failed", append(fields, zap.Error(err))...)
	default:
		e.logger.Debug("tool executed", fields...)
	}

	return res, err == nil
}

func (e *Executor) replay(req Request, paramsHash string, res *ExecutionResult) {
	e.metrics.ObserveReplay(req.Tool.Name)
	e.audit.Append(audit.Entry{
		ToolName:   req.Tool.Name,
		Actor:      req.Actor,
		ParamsHash: paramsHash,
		Status:     string(res.Status),
		Decision:   req.Decision,
		Reasons:    req.Reasons,
		Error:      res.Error,
		ProposalID: req.ProposalID,
		Replayed:   true,
	})
}

type outcome struct {
	value any
	err   error
}

// invoke races the handler against timeout. On timeout the handler's context
// is cancelled and its eventual outcome is discarded.
func invoke(ctx context.Context, h registry.Handler, timeout time.Duration, p map[string]any, inv registry.Invocation) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool handler panic: %v", r)}
			}
		}()
		v, err := h(ctx, p, inv)
		done <- outcome{value: v, err: err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrToolTimeout
		}
		return nil, ctx.Err()
	}
}
