package caps

import (
	"strings"
)

// Field is a named value within a structure.
type Field struct {
	Name  string
	Value Value
}

// F is a shorthand to create a field.
func F(name string, v Value) Field {
	return Field{Name: name, Value: v}
}

// Structure is a single format alternative: a media type with constrained
// fields. Fields keep the insertion order.
type Structure struct {
	Name   string
	fields []Field
}

// NewStructure creates a new structure. If a field is provided more than
// once, the last value wins.
func NewStructure(name string, fields ...Field) Structure {
	s := Structure{Name: name}
	for _, f := range fields {
		s = s.Set(f.Name, f.Value)
	}
	return s
}

// Fields returns a copy of structure fields.
func (s Structure) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Get returns the field value.
func (s Structure) Get(name string) (Value, bool) {
	for _, f := range s.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Int returns the fixed integer field value.
func (s Structure) Int(name string) (int, bool) {
	v, ok := s.Get(name)
	if !ok {
		return 0, false
	}
	return v.IntValue()
}

// Str returns the fixed string field value.
func (s Structure) Str(name string) (string, bool) {
	v, ok := s.Get(name)
	if !ok {
		return "", false
	}
	return v.StringValue()
}

// Set returns a copy of the structure with the field set.
func (s Structure) Set(name string, v Value) Structure {
	fields := make([]Field, 0, len(s.fields)+1)
	replaced := false
	for _, f := range s.fields {
		if f.Name == name {
			f.Value = v
			replaced = true
		}
		fields = append(fields, f)
	}
	if !replaced {
		fields = append(fields, Field{Name: name, Value: v})
	}
	s.fields = fields
	return s
}

// IsFixed reports if all fields hold exactly one value.
func (s Structure) IsFixed() bool {
	for _, f := range s.fields {
		if !f.Value.IsFixed() {
			return false
		}
	}
	return true
}

// Equal reports if structures have the same name and the same fields,
// regardless of field order.
func (s Structure) Equal(o Structure) bool {
	if s.Name != o.Name || len(s.fields) != len(o.fields) {
		return false
	}
	for _, f := range s.fields {
		v, ok := o.Get(f.Name)
		if !ok || !v.Equal(f.Value) {
			return false
		}
	}
	return true
}

// Intersect returns the structure that satisfies both alternatives.
//
// Known media types intersect field by field: a field missing on one side is
// unconstrained. Structures of unknown media types are opaque: they only
// intersect with an equal structure.
func (s Structure) Intersect(o Structure) (Structure, bool) {
	if s.Name != o.Name {
		return Structure{}, false
	}
	schema, known := Lookup(s.Name)
	if !known {
		if s.Equal(o) {
			return s, true
		}
		return Structure{}, false
	}
	result := Structure{Name: s.Name}
	for _, f := range s.fields {
		ov, ok := o.Get(f.Name)
		if !ok {
			result.fields = append(result.fields, f)
			continue
		}
		if _, typed := schema.Fields[f.Name]; !typed && !f.Value.Equal(ov) {
			// fields outside the schema are compared as opaque values.
			return Structure{}, false
		}
		v, ok := f.Value.Intersect(ov)
		if !ok {
			return Structure{}, false
		}
		result.fields = append(result.fields, Field{Name: f.Name, Value: v})
	}
	for _, f := range o.fields {
		if _, ok := s.Get(f.Name); !ok {
			result.fields = append(result.fields, f)
		}
	}
	return result, true
}

// rank returns how constrained the structure is.
func (s Structure) rank() int {
	r := 0
	for _, f := range s.fields {
		r += f.Value.constraint()
	}
	return r
}

// String returns the structure in caps string notation.
func (s Structure) String() string {
	var b strings.Builder
	b.WriteString(s.Name)
	for _, f := range s.fields {
		b.WriteString(", ")
		b.WriteString(f.Name)
		b.WriteString("=")
		b.WriteString(f.Value.String())
	}
	return b.String()
}
