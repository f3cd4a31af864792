package params

import (
	"errors"
	"strings"
	"testing"
)

func TestCanonical_SortsKeysAtEveryDepth(t *testing.T) {
	a := map[string]any{"b": 1, "a": map[string]any{"y": true, "x": "v"}}
	b := map[string]any{"a": map[string]any{"x": "v", "y": true}, "b": 1}

	ca, err := Canonical(a)
	if err != nil {
		t.Fatal(err)
	}
	cb, err := Canonical(b)
	if err != nil {
		t.Fatal(err)
	}
	if string(ca) != string(cb) {
		t.Fatalf("expected identical encodings, got %s and %s", ca, cb)
	}
	if string(ca) != `{"a":{"x":"v","y":true},"b":1}` {
		t.Fatalf("unexpected canonical form: %s", ca)
	}
}

func TestCanonical_PreservesArrayOrder(t *testing.T) {
	ca, _ := Canonical(map[string]any{"ids": []any{"b", "a"}})
	cb, _ := Canonical(map[string]any{"ids": []any{"a", "b"}})
	if string(ca) == string(cb) {
		t.Fatal("array order must be significant")
	}
}

func TestCanonical_NilIsEmptyObject(t *testing.T) {
	c, err := Canonical(nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(c) != "{}" {
		t.Fatalf("expected {}, got %s", c)
	}
	if Hash(nil) != Hash(map[string]any{}) {
		t.Fatal("nil and empty params must hash the same")
	}
}

func TestHash_StableAndFixedWidth(t *testing.T) {
	h1 := Hash(map[string]any{"msg": "hi", "n": 2})
	h2 := Hash(map[string]any{"n": 2, "msg": "hi"})
	if h1 != h2 {
		t.Fatalf("expected equal hashes, got %s and %s", h1, h2)
	}
	if !strings.HasPrefix(h1, HashPrefix) {
		t.Fatalf("expected %s prefix, got %s", HashPrefix, h1)
	}
	if len(h1) != len(HashPrefix)+64 {
		t.Fatalf("expected 64 hex chars, got %d", len(h1)-len(HashPrefix))
	}
	if Hash(map[string]any{"msg": "ho"}) == Hash(map[string]any{"msg": "hi"}) {
		t.Fatal("different params must hash differently")
	}
}

func TestHash_DoesNotContainRawValues(t *testing.T) {
	h := Hash(map[string]any{"password": "hunter2"})
	if strings.Contains(h, "hunter2") {
		t.Fatal("hash leaked raw value")
	}
}

func TestCompile_NilSchema(t *testing.T) {
	c, err := Compile(nil)
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Fatal("expected nil compiled schema")
	}
	if err := Validate(c, map[string]any{"anything": 1}); err != nil {
		t.Fatalf("nil schema must accept everything, got %v", err)
	}
}

func TestCompile_RejectsUnknownType(t *testing.T) {
	_, err := Compile(&Schema{Properties: map[string]Property{"n": {Type: "integer"}}})
	if err == nil {
		t.Fatal("expected error for unsupported type")
	}
}

func TestValidate_EmptySchemaAcceptsAll(t *testing.T) {
	c, err := Compile(&Schema{})
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(c, map[string]any{"x": []any{1}}); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if err := Validate(c, nil); err != nil {
		t.Fatalf("expected valid for nil params, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	schema := &Schema{
		Required: []string{"msg", "mode"},
		Properties: map[string]Property{
			"msg":    {Type: TypeString},
			"mode":   {Type: TypeString, Enum: []any{"fast", "slow"}},
			"count":  {Type: TypeNumber},
			"tags":   {Type: TypeArray},
			"meta":   {Type: TypeObject},
			"flag":   {Type: TypeBoolean},
			"cursor": {Type: TypeNull},
			"level":  {Enum: []any{1, 2, 3}},
		},
	}
	c, err := Compile(schema)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		params  map[string]any
		kind    error
		param   string
		message string
	}{
		{name: "valid minimal", params: map[string]any{"msg": "hi", "mode": "fast"}},
		{
			name: "valid full",
			params: map[string]any{
				"msg": "hi", "mode": "slow", "count": 3, "tags": []string{"a"},
				"meta": map[string]any{"k": "v"}, "flag": true, "cursor": nil, "level": 2,
				"undeclared": "ignored",
			},
		},
		{name: "float is number", params: map[string]any{"msg": "hi", "mode": "fast", "count": 1.5}},
		{
			name:    "missing first required",
			params:  map[string]any{"mode": "fast"},
			kind:    ErrMissingRequiredParam,
			param:   "msg",
			message: "Missing required param: msg",
		},
		{
			name:    "missing second required",
			params:  map[string]any{"msg": "hi"},
			kind:    ErrMissingRequiredParam,
			param:   "mode",
			message: "Missing required param: mode",
		},
		{
			name:    "wrong primitive type",
			params:  map[string]any{"msg": 42, "mode": "fast"},
			kind:    ErrInvalidParamType,
			param:   "msg",
			message: "Invalid type for msg",
		},
		{
			name:   "array is not object",
			params: map[string]any{"msg": "hi", "mode": "fast", "meta": []any{}},
			kind:   ErrInvalidParamType,
			param:  "meta",
		},
		{
			name:   "null is not object",
			params: map[string]any{"msg": "hi", "mode": "fast", "meta": nil},
			kind:   ErrInvalidParamType,
			param:  "meta",
		},
		{
			name:    "enum miss",
			params:  map[string]any{"msg": "hi", "mode": "medium"},
			kind:    ErrInvalidEnumValue,
			param:   "mode",
			message: "Invalid enum value for mode",
		},
		{
			name:   "untyped enum miss",
			params: map[string]any{"msg": "hi", "mode": "fast", "level": 9},
			kind:   ErrInvalidEnumValue,
			param:  "level",
		},
		{
			name:   "type checked before enum",
			params: map[string]any{"msg": "hi", "mode": 7},
			kind:   ErrInvalidParamType,
			param:  "mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(c, tt.params)
			if tt.kind == nil {
				if err != nil {
					t.Fatalf("expected valid, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.kind) {
				t.Fatalf("expected %v, got %v", tt.kind, err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if ve.Param != tt.param {
				t.Fatalf("expected param %q, got %q", tt.param, ve.Param)
			}
			if tt.message != "" && err.Error() != tt.message {
				t.Fatalf("expected message %q, got %q", tt.message, err.Error())
			}
		})
	}
}

func BenchmarkValidate(b *testing.B) {
	c, _ := Compile(&Schema{
		Required:   []string{"msg"},
		Properties: map[string]Property{"msg": {Type: TypeString}},
	})
	p := map[string]any{"msg": "hi"}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = Validate(c, p)
	}
}

func TestClone_DeepCopiesContainers(t *testing.T) {
	orig := map[string]any{
		"to":   map[string]any{"account": "a-1"},
		"tags": []any{"x", map[string]any{"k": "v"}},
		"n":    5,
	}
	c := Clone(orig)

	orig["to"].(map[string]any)["account"] = "a-2"
	orig["tags"].([]any)[0] = "y"
	orig["tags"].([]any)[1].(map[string]any)["k"] = "w"
	orig["n"] = 6

	if got := c["to"].(map[string]any)["account"]; got != "a-1" {
		t.Fatalf("nested map shared: %v", got)
	}
	if got := c["tags"].([]any)[0]; got != "x" {
		t.Fatalf("nested slice shared: %v", got)
	}
	if got := c["tags"].([]any)[1].(map[string]any)["k"]; got != "v" {
		t.Fatalf("map inside slice shared: %v", got)
	}
	if got := c["n"]; got != 5 {
		t.Fatalf("scalar changed: %v", got)
	}
	if Clone(nil) != nil {
		t.Fatal("nil should stay nil")
	}
}

func TestCompile_KeepsOwnSchemaCopy(t *testing.T) {
	s := &Schema{
		Required:   []string{"msg"},
		Properties: map[string]Property{"msg": {Type: TypeString}},
	}
	c, err := Compile(s)
	if err != nil {
		t.Fatal(err)
	}
	s.Required = append(s.Required, "injected")
	c.Schema().Required[0] = "other"

	if err := Validate(c, map[string]any{"msg": "hi"}); err != nil {
		t.Fatalf("validation changed after schema mutation: %v", err)
	}
	var ve *ValidationError
	if err := Validate(c, map[string]any{}); !errors.As(err, &ve) || ve.Param != "msg" {
		t.Fatalf("expected missing msg, got %v", err)
	}
}
