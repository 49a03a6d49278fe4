// Package caps describes the formats that pads can produce or accept.
//
// Caps is a set of alternatives. Each alternative is a Structure: a media
// type name with named fields. A field value is either fixed or
// constrained by a range or a list. Two special sets exist: ANY accepts
// every format and EMPTY accepts none.
package caps

import (
	"errors"
	"strings"
)

var (
	// ErrFieldKind is returned when a field holds a value of unexpected kind.
	ErrFieldKind = errors.New("unexpected field kind")
	// ErrSyntax is returned when caps string cannot be parsed.
	ErrSyntax = errors.New("caps syntax error")
)

// Caps is an ordered set of format alternatives. Zero value is EMPTY.
type Caps struct {
	any        bool
	structures []Structure
}

// Any returns caps that accept every format.
func Any() Caps {
	return Caps{any: true}
}

// Empty returns caps that accept no format.
func Empty() Caps {
	return Caps{}
}

// New returns caps with provided alternatives, preferred first.
func New(structures ...Structure) Caps {
	return Caps{structures: append([]Structure(nil), structures...)}
}

// Simple returns caps with a single alternative.
func Simple(name string, fields ...Field) Caps {
	return New(NewStructure(name, fields...))
}

// IsAny reports if caps accept every format.
func (c Caps) IsAny() bool {
	return c.any
}

// IsEmpty reports if caps accept no format.
func (c Caps) IsEmpty() bool {
	return !c.any && len(c.structures) == 0
}

// Len returns the number of alternatives. ANY has zero alternatives.
func (c Caps) Len() int {
	return len(c.structures)
}

// Structure returns the alternative at index i.
func (c Caps) Structure(i int) Structure {
	return c.structures[i]
}

// Structures returns a copy of caps alternatives.
func (c Caps) Structures() []Structure {
	return append([]Structure(nil), c.structures...)
}

// IsFixed reports if caps describe exactly one format.
func (c Caps) IsFixed() bool {
	return !c.any && len(c.structures) == 1 && c.structures[0].IsFixed()
}

// Intersect returns caps accepted by both sets. The result preserves the
// order of alternatives of the receiver. Intersection is commutative up to
// the order of alternatives.
func (c Caps) Intersect(o Caps) Caps {
	switch {
	case c.IsEmpty() || o.IsEmpty():
		return Empty()
	case c.any:
		return o
	case o.any:
		return c
	}
	var result Caps
	for _, s := range c.structures {
		for _, os := range o.structures {
			if r, ok := s.Intersect(os); ok {
				result.structures = appendUnique(result.structures, r)
			}
		}
	}
	return result
}

// CanIntersect reports if both sets share at least one format.
func (c Caps) CanIntersect(o Caps) bool {
	return !c.Intersect(o).IsEmpty()
}

// Best returns the preferred alternative: the first fully fixed one, or
// the most constrained one if none is fixed. Earlier alternatives win ties.
// ANY and EMPTY are returned as is.
func (c Caps) Best() Caps {
	if c.any || len(c.structures) == 0 {
		return c
	}
	return New(c.structures[c.best()])
}

func (c Caps) best() int {
	for i, s := range c.structures {
		if s.IsFixed() {
			return i
		}
	}
	best := 0
	for i := range c.structures {
		if c.structures[i].rank() > c.structures[best].rank() {
			best = i
		}
	}
	return best
}

// Fixate reduces caps to a single fixed format. The first fully fixed
// alternative wins. If none are fixed, the most constrained alternative is
// taken and each of its fields is reduced to a single value: lowest bound of
// the range or first element of the list. ANY and EMPTY cannot be fixated,
// neither can alternatives with invalid fields.
func (c Caps) Fixate() (Caps, bool) {
	if c.any || len(c.structures) == 0 {
		return c, false
	}
	s := c.structures[c.best()]
	if s.IsFixed() {
		return New(s), true
	}
	fixed := Structure{Name: s.Name, fields: make([]Field, 0, len(s.fields))}
	for _, f := range s.fields {
		v := f.Value.fixate()
		if !v.IsFixed() {
			return c, false
		}
		fixed.fields = append(fixed.fields, Field{Name: f.Name, Value: v})
	}
	return New(fixed), true
}

// Equal reports if both caps accept the same alternatives, regardless of
// their order.
func (c Caps) Equal(o Caps) bool {
	if c.any || o.any {
		return c.any == o.any
	}
	if len(c.structures) != len(o.structures) {
		return false
	}
	for _, s := range c.structures {
		if !containsStructure(o.structures, s) {
			return false
		}
	}
	return true
}

// Validate checks every alternative against known media type schemas.
func (c Caps) Validate() error {
	for _, s := range c.structures {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// String returns caps in the notation accepted by Parse.
func (c Caps) String() string {
	if c.any {
		return "ANY"
	}
	if len(c.structures) == 0 {
		return "EMPTY"
	}
	s := make([]string, len(c.structures))
	for i := range c.structures {
		s[i] = c.structures[i].String()
	}
	return strings.Join(s, "; ")
}

// MediaType returns the name of the first alternative.
func (c Caps) MediaType() string {
	if len(c.structures) == 0 {
		return ""
	}
	return c.structures[0].Name
}

func (v Value) fixate() Value {
	switch v.kind {
	case KindIntRange:
		return Int(v.min)
	case KindIntList:
		if len(v.ints) > 0 {
			return Int(v.ints[0])
		}
	case KindStringList:
		if len(v.strs) > 0 {
			return String(v.strs[0])
		}
	case KindFractionRange:
		return Value{kind: KindFraction, f: v.fmin}
	}
	return v
}

func appendUnique(structures []Structure, s Structure) []Structure {
	if containsStructure(structures, s) {
		return structures
	}
	return append(structures, s)
}

func containsStructure(structures []Structure, s Structure) bool {
	for _, existing := range structures {
		if existing.Equal(s) {
			return true
		}
	}
	return false
}
