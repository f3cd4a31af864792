package params

// Clone deep-copies params. Nested map[string]any and []any values are
// copied; other values are shared as-is. nil stays nil.
func Clone(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Clone(t)
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Clone returns a copy of s that shares no slices or maps with it.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	c := &Schema{}
	if s.Required != nil {
		c.Required = append(make([]string, 0, len(s.Required)), s.Required...)
	}
	if s.Properties != nil {
		c.Properties = make(map[string]Property, len(s.Properties))
		for name, p := range s.Properties {
			if p.Enum != nil {
				enum := make([]any, len(p.Enum))
				for i, e := range p.Enum {
					enum[i] = cloneValue(e)
				}
				p.Enum = enum
			}
			c.Properties[name] = p
		}
	}
	return c
}
