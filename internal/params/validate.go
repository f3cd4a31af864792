package params

import (
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

var (
	ErrMissingRequiredParam = errors.New("missing required param")
	ErrInvalidParamType     = errors.New("invalid param type")
	ErrInvalidEnumValue     = errors.New("invalid enum value")
	ErrInvalidParams        = errors.New("invalid params")
)

// ValidationError reports the first schema violation found in a params object.
type ValidationError struct {
	Kind  error // one of the Err* sentinels above
	Param string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case ErrMissingRequiredParam:
		return "Missing required param: " + e.Param
	case ErrInvalidParamType:
		return "Invalid type for " + e.Param
	case ErrInvalidEnumValue:
		return "Invalid enum value for " + e.Param
	default:
		return "Invalid params"
	}
}

func (e *ValidationError) Unwrap() error { return e.Kind }

// Validate checks params against a compiled schema.
//
// Checks run in a fixed order so the reported violation is deterministic:
//  1. required names, in declared order
//  2. declared properties present in params, by sorted name: type, then enum
//
// Validation is pure and never calls into a tool.
func Validate(c *Compiled, p map[string]any) error {
	if c == nil {
		return nil
	}

	for _, name := range c.schema.Required {
		if _, ok := p[name]; !ok {
			return &ValidationError{Kind: ErrMissingRequiredParam, Param: name}
		}
	}

	inst, err := Normalize(p)
	if err != nil {
		return &ValidationError{Kind: ErrInvalidParams}
	}

	err = c.sch.Validate(any(inst))
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("Validate: %w", err)
	}

	failures := make(map[string]map[string]bool)
	collectFailures(ve, failures)

	for _, key := range c.keys {
		if _, present := inst[key]; !present {
			continue
		}
		kw := failures[key]
		if kw["type"] {
			return &ValidationError{Kind: ErrInvalidParamType, Param: key}
		}
		if kw["enum"] {
			return &ValidationError{Kind: ErrInvalidEnumValue, Param: key}
		}
	}

	return &ValidationError{Kind: ErrInvalidParams}
}

// collectFailures indexes leaf validation errors by top-level param name and keyword.
func collectFailures(ve *jsonschema.ValidationError, out map[string]map[string]bool) {
	if len(ve.Causes) > 0 {
		for _, c := range ve.Causes {
			collectFailures(c, out)
		}
		return
	}
	if len(ve.InstanceLocation) == 0 || ve.ErrorKind == nil {
		return
	}
	path := ve.ErrorKind.KeywordPath()
	if len(path) == 0 {
		return
	}
	key := ve.InstanceLocation[0]
	if out[key] == nil {
		out[key] = make(map[string]bool)
	}
	out[key][path[len(path)-1]] = true
}
