package executor

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/audit"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/metrics"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/registry"
	"go.uber.org/zap"
)

func sequentialIDs() IDGenerator {
	var n atomic.Int64
	return func(prefix string) string {
		return prefix + "_" + strconv.FormatInt(n.Add(1), 10)
	}
}

func newTestExecutor(t *testing.T) (*Executor, *audit.Log) {
	t.Helper()
	log := audit.NewLog(audit.Config{})
	return New(Config{Audit: log, IDs: sequentialIDs(), Logger: zap.NewNop()}), log
}

func toolWith(name string, timeout time.Duration, h registry.Handler) *registry.ToolDefinition {
	return &registry.ToolDefinition{Name: name, Timeout: timeout, Handler: h}
}

func TestExecute_WrapsRawValue(t *testing.T) {
	e, log := newTestExecutor(t)
	tool := toolWith("echo", time.Second, func(_ context.Context, p map[string]any, _ registry.Invocation) (any, error) {
		return p["msg"], nil
	})

	res := e.Execute(context.Background(), Request{Tool: tool, Params: map[string]any{"msg": "hi"}, Actor: registry.Actor{"user_id": "u1"}})
	if res.Status != StatusOK || res.Result != "hi" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.HumanSummary != "echo executed" {
		t.Fatalf("unexpected summary %q", res.HumanSummary)
	}
	if res.MachineEvents == nil || len(res.MachineEvents) != 0 {
		t.Fatalf("expected empty machine events, got %v", res.MachineEvents)
	}

	entries := log.List(10)
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries))
	}
	got := entries[0]
	if got.Status != "OK" || got.ToolName != "echo" || got.Actor["user_id"] != "u1" {
		t.Fatalf("unexpected audit entry %+v", got)
	}
	if got.TraceID == "" || got.IntentID == "" || got.TraceID == got.IntentID {
		t.Fatalf("expected distinct trace and intent ids, got %q %q", got.TraceID, got.IntentID)
	}
	if !strings.HasPrefix(got.ParamsHash, "sha256:") {
		t.Fatalf("unexpected params hash %q", got.ParamsHash)
	}
}

func TestExecute_InvocationContext(t *testing.T) {
	e, _ := newTestExecutor(t)
	var seen registry.Invocation
	tool := toolWith("ctx", time.Second, func(_ context.Context, _ map[string]any, inv registry.Invocation) (any, error) {
		seen = inv
		return nil, nil
	})

	e.Execute(context.Background(), Request{
		Tool:           tool,
		Actor:          registry.Actor{"user_id": "u1"},
		Signals:        registry.Signals{"overall_confidence": 0.9},
		IdempotencyKey: "k1",
		DryRun:         true,
	})
	if seen.ToolName != "ctx" || seen.IdempotencyKey != "k1" || !seen.DryRun {
		t.Fatalf("unexpected invocation %+v", seen)
	}
	if !strings.HasPrefix(seen.TraceID, "trace_") || !strings.HasPrefix(seen.IntentID, "intent_") {
		t.Fatalf("unexpected ids %q %q", seen.TraceID, seen.IntentID)
	}
	if seen.Actor["user_id"] != "u1" || seen.Signals["overall_confidence"] != 0.9 {
		t.Fatalf("actor/signals not passed through: %+v", seen)
	}
}

func TestExecute_HandlerError(t *testing.T) {
	e, log := newTestExecutor(t)
	tool := toolWith("fail", time.Second, func(context.Context, map[string]any, registry.Invocation) (any, error) {
		return nil, errors.New("record locked")
	})

	res := e.Execute(context.Background(), Request{Tool: tool})
	if res.Status != StatusError || res.Error != "record locked" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.HumanSummary == "" || res.Result != nil {
		t.Fatalf("expected summary and no result, got %+v", res)
	}
	if entries := log.List(1); entries[0].Error != "record locked" || entries[0].Status != "ERROR" {
		t.Fatalf("unexpected audit entry %+v", entries[0])
	}
}

func TestExecute_HandlerPanic(t *testing.T) {
	e, _ := newTestExecutor(t)
	tool := toolWith("boom", time.Second, func(context.Context, map[string]any, registry.Invocation) (any, error) {
		panic("nil map")
	})

	res := e.Execute(context.Background(), Request{Tool: tool})
	if res.Status != StatusError || !strings.Contains(res.Error, "nil map") {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestExecute_Timeout(t *testing.T) {
	e, log := newTestExecutor(t)
	cancelled := make(chan struct{})
	tool := toolWith("hang", 50*time.Millisecond, func(ctx context.Context, _ map[string]any, _ registry.Invocation) (any, error) {
		<-ctx.Done()
		close(cancelled)
		select {} // never resolves
	})

	start := time.Now()
	res := e.Execute(context.Background(), Request{Tool: tool})
	elapsed := time.Since(start)

	if res.Status != StatusError || res.Error != "TOOL_TIMEOUT" {
		t.Fatalf("expected TOOL_TIMEOUT, got %+v", res)
	}
	if elapsed > time.Second {
		t.Fatalf("timeout took %v", elapsed)
	}
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("handler context was not cancelled on timeout")
	}
	if entries := log.List(1); entries[0].Error != "TOOL_TIMEOUT" {
		t.Fatalf("timeout not audited: %+v", entries[0])
	}
}

func TestExecute_PassthroughShapes(t *testing.T) {
	e, _ := newTestExecutor(t)
	tests := []struct {
		name    string
		value   any
		status  Status
		summary string
	}{
		{
			name:    "typed result",
			value:   &ExecutionResult{Status: StatusDenied, Error: "quota", HumanSummary: "over quota"},
			status:  StatusDenied,
			summary: "over quota",
		},
		{
			name:    "map with status",
			value:   map[string]any{"status": "OK", "result": 3, "machine_events": []any{map[string]any{"type": "record.updated"}}},
			status:  StatusOK,
			summary: "shape executed",
		},
		{
			name:    "map without recognized status",
			value:   map[string]any{"status": "DONE"},
			status:  StatusOK,
			summary: "shape executed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := toolWith("shape", time.Second, func(context.Context, map[string]any, registry.Invocation) (any, error) {
				return tt.value, nil
			})
			res := e.Execute(context.Background(), Request{Tool: tool})
			if res.Status != tt.status || res.HumanSummary != tt.summary {
				t.Fatalf("unexpected result %+v", res)
			}
		})
	}
}

func TestExecute_IdempotentHandlerOnce(t *testing.T) {
	e, log := newTestExecutor(t)
	var calls atomic.Int32
	tool := toolWith("create", time.Second, func(context.Context, map[string]any, registry.Invocation) (any, error) {
		calls.Add(1)
		return map[string]any{"id": "rec_1"}, nil
	})

	first := e.Execute(context.Background(), Request{Tool: tool, IdempotencyKey: "k1"})
	second := e.Execute(context.Background(), Request{Tool: tool, IdempotencyKey: "k1"})

	if calls.Load() != 1 {
		t.Fatalf("expected handler once, got %d", calls.Load())
	}
	if first != second {
		t.Fatal("expected the exact same result object")
	}
	entries := log.List(10)
	if len(entries) != 2 || entries[0].Replayed || !entries[1].Replayed {
		t.Fatalf("expected one run and one replay audited, got %+v", entries)
	}
}

func TestExecute_IdempotencyScopedByTool(t *testing.T) {
	e, _ := newTestExecutor(t)
	var calls atomic.Int32
	h := func(context.Context, map[string]any, registry.Invocation) (any, error) {
		calls.Add(1)
		return "ok", nil
	}
	e.Execute(context.Background(), Request{Tool: toolWith("a", time.Second, h), IdempotencyKey: "k"})
	e.Execute(context.Background(), Request{Tool: toolWith("b", time.Second, h), IdempotencyKey: "k"})
	if calls.Load() != 2 {
		t.Fatalf("expected key scoped per tool, got %d calls", calls.Load())
	}
}

func TestExecute_FailureNotCached(t *testing.T) {
	e, _ := newTestExecutor(t)
	var calls atomic.Int32
	tool := toolWith("flaky", time.Second, func(context.Context, map[string]any, registry.Invocation) (any, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	})

	first := e.Execute(context.Background(), Request{Tool: tool, IdempotencyKey: "k1"})
	second := e.Execute(context.Background(), Request{Tool: tool, IdempotencyKey: "k1"})
	if first.Status != StatusError || second.Status != StatusOK {
		t.Fatalf("expected retry after failure, got %s then %s", first.Status, second.Status)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 handler calls, got %d", calls.Load())
	}
}

func TestExecute_ConcurrentSameKeyDeduplicated(t *testing.T) {
	e, log := newTestExecutor(t)
	var calls atomic.Int32
	release := make(chan struct{})
	tool := toolWith("slow", 5*time.Second, func(context.Context, map[string]any, registry.Invocation) (any, error) {
		calls.Add(1)
		<-release
		return "done", nil
	})

	const callers = 20
	results := make([]*ExecutionResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.Execute(context.Background(), Request{Tool: tool, IdempotencyKey: "same"})
		}(i)
	}
	// Let the callers pile up on the in-flight run before it completes.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected handler once, got %d", calls.Load())
	}
	for i, r := range results {
		if r != results[0] {
			t.Fatalf("caller %d got a different result object", i)
		}
	}
	if log.Len() != callers {
		t.Fatalf("expected %d audit entries, got %d", callers, log.Len())
	}
}

func TestExecute_NilParamsHandedAsEmptyMap(t *testing.T) {
	e, _ := newTestExecutor(t)
	tool := toolWith("nil", time.Second, func(_ context.Context, p map[string]any, _ registry.Invocation) (any, error) {
		if p == nil {
			return nil, errors.New("nil params")
		}
		return len(p), nil
	})
	if res := e.Execute(context.Background(), Request{Tool: tool}); res.Status != StatusOK {
		t.Fatalf("unexpected result %+v", res)
	}
}

func BenchmarkExecute_Cached(b *testing.B) {
	e := New(Config{Audit: audit.NewLog(audit.Config{Capacity: 100}), Logger: zap.NewNop()})
	tool := toolWith("echo", time.Second, func(context.Context, map[string]any, registry.Invocation) (any, error) {
		return "hi", nil
	})
	req := Request{Tool: tool, IdempotencyKey: "bench"}
	e.Execute(context.Background(), req)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		e.Execute(context.Background(), req)
	}
}

func TestExecute_CachedResultsGaugeTracksSet(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	e := New(Config{Audit: audit.NewLog(audit.Config{}), IDs: sequentialIDs(), Metrics: m, Logger: zap.NewNop()})
	tool := toolWith("echo", time.Second, func(context.Context, map[string]any, registry.Invocation) (any, error) {
		return "ok", nil
	})

	for _, key := range []string{"k1", "k2", "k1"} {
		e.Execute(context.Background(), Request{Tool: tool, IdempotencyKey: key})
	}
	if got := testutil.ToFloat64(m.CachedResults); got != 2 {
		t.Fatalf("expected gauge 2 without a sweep, got %v", got)
	}
}
