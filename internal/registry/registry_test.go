package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/triage-ai/palisade/services/tool_gateway/internal/params"
	"go.uber.org/zap"
)

func noopHandler(_ context.Context, _ map[string]any, _ Invocation) (any, error) {
	return nil, nil
}

func TestRegister_FillsDefaults(t *testing.T) {
	r := New(0, zap.NewNop())
	td, err := r.Register(ToolDefinition{Name: "echo", Handler: noopHandler})
	if err != nil {
		t.Fatal(err)
	}
	if td.RiskLevel != RiskLow {
		t.Fatalf("expected LOW risk, got %s", td.RiskLevel)
	}
	if td.Timeout != DefaultTimeout {
		t.Fatalf("expected default timeout, got %v", td.Timeout)
	}
	if td.Capabilities == nil || len(td.Capabilities) != 0 {
		t.Fatalf("expected empty capability set, got %v", td.Capabilities)
	}
	if td.CompiledSchema() != nil {
		t.Fatal("expected no compiled schema when none declared")
	}
	if got := td.HumanSummary(nil); got != "echo executed" {
		t.Fatalf("expected default summary, got %q", got)
	}
}

func TestRegister_CustomDefaultTimeout(t *testing.T) {
	r := New(2*time.Second, zap.NewNop())
	td, err := r.Register(ToolDefinition{Name: "t", Handler: noopHandler})
	if err != nil {
		t.Fatal(err)
	}
	if td.Timeout != 2*time.Second {
		t.Fatalf("expected 2s, got %v", td.Timeout)
	}
}

func TestRegister_Invalid(t *testing.T) {
	r := New(0, zap.NewNop())
	tests := []struct {
		name string
		def  ToolDefinition
	}{
		{name: "empty name", def: ToolDefinition{Handler: noopHandler}},
		{name: "nil handler", def: ToolDefinition{Name: "x"}},
		{name: "unknown risk", def: ToolDefinition{Name: "x", Handler: noopHandler, RiskLevel: "EXTREME"}},
		{
			name: "bad schema type",
			def: ToolDefinition{
				Name:         "x",
				Handler:      noopHandler,
				ParamsSchema: &params.Schema{Properties: map[string]params.Property{"a": {Type: "int"}}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Register(tt.def)
			if !errors.Is(err, ErrInvalidToolDefinition) {
				t.Fatalf("expected ErrInvalidToolDefinition, got %v", err)
			}
		})
	}
	if r.Len() != 0 {
		t.Fatalf("invalid definitions must not be stored, have %d", r.Len())
	}
}

func TestRegister_LastWriteWins(t *testing.T) {
	r := New(0, zap.NewNop())
	if _, err := r.Register(ToolDefinition{Name: "t", Description: "first", Handler: noopHandler}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Register(ToolDefinition{Name: "t", Description: "second", RiskLevel: RiskHigh, Handler: noopHandler}); err != nil {
		t.Fatal(err)
	}
	td := r.Get("t")
	if td.Description != "second" || td.RiskLevel != RiskHigh {
		t.Fatalf("expected replacement, got %+v", td)
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 tool, got %d", r.Len())
	}
}

func TestRegister_CopiesCapabilities(t *testing.T) {
	r := New(0, zap.NewNop())
	caps := []string{"atome.read"}
	if _, err := r.Register(ToolDefinition{Name: "t", Capabilities: caps, Handler: noopHandler}); err != nil {
		t.Fatal(err)
	}
	caps[0] = "mutated"
	if got := r.Get("t").Capabilities[0]; got != "atome.read" {
		t.Fatalf("stored definition was mutated through caller slice: %s", got)
	}
}

func TestRegister_SchemaImmutable(t *testing.T) {
	r := New(0, zap.NewNop())
	schema := &params.Schema{
		Required: []string{"msg"},
		Properties: map[string]params.Property{
			"msg":  {Type: params.TypeString},
			"mode": {Type: params.TypeString, Enum: []any{"fast", "slow"}},
		},
	}
	td, err := r.Register(ToolDefinition{Name: "echo", ParamsSchema: schema, Handler: noopHandler})
	if err != nil {
		t.Fatal(err)
	}

	// Caller mutates the schema it registered with.
	schema.Required = nil
	schema.Properties["mode"].Enum[0] = "turbo"
	schema.Properties["extra"] = params.Property{Type: params.TypeNumber}

	// Caller mutates the returned definition and a listed summary.
	td.ParamsSchema.Required = append(td.ParamsSchema.Required, "injected")
	listed := r.List()[0].ParamsSchema
	listed.Required = []string{"msg", "injected"}
	delete(listed.Properties, "msg")

	stored := r.Get("echo")
	if got := stored.ParamsSchema.Required; len(got) != 1 || got[0] != "msg" {
		t.Fatalf("stored required changed: %v", got)
	}
	if _, ok := stored.ParamsSchema.Properties["extra"]; ok {
		t.Fatal("stored properties changed through caller map")
	}
	if got := stored.ParamsSchema.Properties["mode"].Enum[0]; got != "fast" {
		t.Fatalf("stored enum changed: %v", got)
	}

	c := stored.CompiledSchema()
	var ve *params.ValidationError
	if err := params.Validate(c, map[string]any{"msg": "hi"}); err != nil {
		t.Fatalf("valid params rejected: %v", err)
	}
	err = params.Validate(c, map[string]any{})
	if !errors.As(err, &ve) || !errors.Is(ve.Kind, params.ErrMissingRequiredParam) || ve.Param != "msg" {
		t.Fatalf("expected missing msg, got %v", err)
	}
	err = params.Validate(c, map[string]any{"msg": "hi", "mode": "turbo"})
	if !errors.As(err, &ve) || !errors.Is(ve.Kind, params.ErrInvalidEnumValue) {
		t.Fatalf("expected invalid enum, got %v", err)
	}
}

func TestUnregister_Idempotent(t *testing.T) {
	r := New(0, zap.NewNop())
	if _, err := r.Register(ToolDefinition{Name: "t", Handler: noopHandler}); err != nil {
		t.Fatal(err)
	}
	r.Unregister("t")
	r.Unregister("t")
	r.Unregister("never-registered")
	if r.Get("t") != nil {
		t.Fatal("expected tool removed")
	}
}

func TestList_RedactedAndSorted(t *testing.T) {
	r := New(0, zap.NewNop())
	schema := &params.Schema{Required: []string{"id"}}
	for _, name := range []string{"b.tool", "a.tool"} {
		if _, err := r.Register(ToolDefinition{
			Name:         name,
			Description:  "desc " + name,
			Capabilities: []string{"cap"},
			RiskLevel:    RiskMedium,
			ParamsSchema: schema,
			Handler:      noopHandler,
		}); err != nil {
			t.Fatal(err)
		}
	}

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(list))
	}
	if list[0].Name != "a.tool" || list[1].Name != "b.tool" {
		t.Fatalf("expected sorted names, got %s, %s", list[0].Name, list[1].Name)
	}
	if list[0].RiskLevel != RiskMedium || list[0].ParamsSchema != schema || list[0].Capabilities[0] != "cap" {
		t.Fatalf("unexpected summary: %+v", list[0])
	}
}

func TestSignals_OverallConfidence(t *testing.T) {
	tests := []struct {
		signals Signals
		want    float64
		ok      bool
	}{
		{Signals{"overall_confidence": 0.4}, 0.4, true},
		{Signals{"overall_confidence": float32(0.5)}, 0.5, true},
		{Signals{"overall_confidence": 1}, 1, true},
		{Signals{"overall_confidence": "0.2"}, 0, false},
		{Signals{}, 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := tt.signals.OverallConfidence()
		if ok != tt.ok || got != tt.want {
			t.Fatalf("%v: expected (%v,%v), got (%v,%v)", tt.signals, tt.want, tt.ok, got, ok)
		}
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := New(0, zap.NewNop())
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Register(ToolDefinition{Name: "tool", Handler: noopHandler})
			r.Get("tool")
			r.List()
			r.Unregister("tool")
		}()
	}
	wg.Wait()
}

func BenchmarkRegistry_Get(b *testing.B) {
	r := New(0, zap.NewNop())
	_, _ = r.Register(ToolDefinition{Name: "send_email", Handler: noopHandler})

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		r.Get("send_email")
	}
}

func TestHumanSummary_Formatter(t *testing.T) {
	td := &ToolDefinition{Name: "echo", Summary: func(p map[string]any) string {
		return "echo " + p["msg"].(string)
	}}
	if got := td.HumanSummary(map[string]any{"msg": "hi"}); got != "echo hi" {
		t.Fatalf("unexpected summary %q", got)
	}
	// Formatter panics on a missing key; the default takes over.
	if got := td.HumanSummary(nil); got != "echo executed" {
		t.Fatalf("expected fallback summary, got %q", got)
	}

	empty := &ToolDefinition{Name: "quiet", Summary: func(map[string]any) string { return "" }}
	if got := empty.HumanSummary(nil); got != "quiet executed" {
		t.Fatalf("expected fallback for empty summary, got %q", got)
	}
}
