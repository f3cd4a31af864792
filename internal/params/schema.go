package params

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Primitive type names accepted in a Property.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeObject  = "object"
	TypeArray   = "array"
	TypeNull    = "null"
)

var validTypes = map[string]bool{
	TypeString:  true,
	TypeNumber:  true,
	TypeBoolean: true,
	TypeObject:  true,
	TypeArray:   true,
	TypeNull:    true,
}

// Schema declares the params a tool accepts.
// Only required names, primitive types and enum membership are expressible.
type Schema struct {
	Required   []string            `json:"required,omitempty" yaml:"required,omitempty"`
	Properties map[string]Property `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Property constrains a single param. An empty Type accepts any value.
type Property struct {
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
	Enum []any  `json:"enum,omitempty" yaml:"enum,omitempty"`
}

// Compiled is a Schema prepared for repeated validation.
// A nil *Compiled validates everything.
type Compiled struct {
	schema *Schema
	keys   []string // property names, sorted
	sch    *jsonschema.Schema
}

// Schema returns a copy of the source schema.
func (c *Compiled) Schema() *Schema {
	if c == nil {
		return nil
	}
	return c.schema.Clone()
}

// Compile checks the schema and builds its JSON Schema form. The result keeps
// its own copy of s, so later changes to s do not affect validation.
// A nil schema compiles to nil, meaning "no validation".
func Compile(s *Schema) (*Compiled, error) {
	if s == nil {
		return nil, nil
	}
	s = s.Clone()

	doc := map[string]any{}
	if len(s.Required) > 0 {
		doc["required"] = s.Required
	}

	keys := make([]string, 0, len(s.Properties))
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			if p.Type != "" && !validTypes[p.Type] {
				return nil, fmt.Errorf("Compile: property %q: unsupported type %q", name, p.Type)
			}
			prop := map[string]any{}
			if p.Type != "" {
				prop["type"] = p.Type
			}
			if p.Enum != nil {
				prop["enum"] = p.Enum
			}
			props[name] = prop
			keys = append(keys, name)
		}
		doc["properties"] = props
	}
	sort.Strings(keys)

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("Compile: %w", err)
	}
	docObj, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("Compile: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("params.json", docObj); err != nil {
		return nil, fmt.Errorf("Compile: %w", err)
	}
	sch, err := c.Compile("params.json")
	if err != nil {
		return nil, fmt.Errorf("Compile: %w", err)
	}

	return &Compiled{schema: s, keys: keys, sch: sch}, nil
}
