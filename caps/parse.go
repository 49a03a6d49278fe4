package caps

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse parses caps from the string notation:
//
//	audio/x-raw, rate=(int)[ 8000, 48000 ], channels=(int){ 1, 2 }; video/x-raw
//
// Alternatives are separated by semicolons. Field type annotation is
// optional: without it the type is inferred from the value. "ANY" and
// "EMPTY" denote special caps.
func Parse(s string) (Caps, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "ANY":
		return Any(), nil
	case "EMPTY", "NONE", "":
		return Empty(), nil
	}
	var c Caps
	for _, part := range splitTopLevel(s, ';') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		st, err := parseStructure(part)
		if err != nil {
			return Empty(), err
		}
		c.structures = appendUnique(c.structures, st)
	}
	return c, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Caps {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

func parseStructure(s string) (Structure, error) {
	parts := splitTopLevel(s, ',')
	name := strings.TrimSpace(parts[0])
	if name == "" || strings.ContainsAny(name, "=()[]{} ") {
		return Structure{}, fmt.Errorf("%w: invalid media type %q", ErrSyntax, name)
	}
	st := Structure{Name: name}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		eq := strings.IndexByte(p, '=')
		if eq <= 0 {
			return Structure{}, fmt.Errorf("%w: invalid field %q", ErrSyntax, p)
		}
		field := strings.TrimSpace(p[:eq])
		v, err := parseValue(strings.TrimSpace(p[eq+1:]))
		if err != nil {
			return Structure{}, fmt.Errorf("field %s: %w", field, err)
		}
		st = st.Set(field, v)
	}
	return st, nil
}

func parseValue(s string) (Value, error) {
	typ := ""
	if strings.HasPrefix(s, "(") {
		end := strings.IndexByte(s, ')')
		if end < 0 {
			return Value{}, fmt.Errorf("%w: unterminated type in %q", ErrSyntax, s)
		}
		typ = strings.TrimSpace(s[1:end])
		s = strings.TrimSpace(s[end+1:])
	}
	switch {
	case strings.HasPrefix(s, "["):
		if !strings.HasSuffix(s, "]") {
			return Value{}, fmt.Errorf("%w: unterminated range %q", ErrSyntax, s)
		}
		items := splitTopLevel(s[1:len(s)-1], ',')
		if len(items) != 2 {
			return Value{}, fmt.Errorf("%w: range must have two bounds %q", ErrSyntax, s)
		}
		return parseRange(typ, strings.TrimSpace(items[0]), strings.TrimSpace(items[1]))
	case strings.HasPrefix(s, "{"):
		if !strings.HasSuffix(s, "}") {
			return Value{}, fmt.Errorf("%w: unterminated list %q", ErrSyntax, s)
		}
		return parseList(typ, splitTopLevel(s[1:len(s)-1], ','))
	}
	return parseScalar(typ, s)
}

func parseRange(typ, min, max string) (Value, error) {
	lo, err := parseScalar(typ, min)
	if err != nil {
		return Value{}, err
	}
	hi, err := parseScalar(typ, max)
	if err != nil {
		return Value{}, err
	}
	switch {
	case lo.kind == KindInt && hi.kind == KindInt:
		return IntRange(lo.i, hi.i), nil
	case lo.kind == KindFraction && hi.kind == KindFraction:
		return FracRange(lo.f, hi.f), nil
	}
	return Value{}, fmt.Errorf("%w: unsupported range [%s, %s]", ErrSyntax, min, max)
}

func parseList(typ string, items []string) (Value, error) {
	if len(items) == 0 {
		return Value{}, fmt.Errorf("%w: empty list", ErrSyntax)
	}
	var (
		ints []int
		strs []string
	)
	for _, item := range items {
		v, err := parseScalar(typ, strings.TrimSpace(item))
		if err != nil {
			return Value{}, err
		}
		switch v.kind {
		case KindInt:
			ints = append(ints, v.i)
		case KindString:
			strs = append(strs, v.s)
		default:
			return Value{}, fmt.Errorf("%w: unsupported list item %q", ErrSyntax, item)
		}
	}
	if len(ints) > 0 && len(strs) > 0 {
		return Value{}, fmt.Errorf("%w: mixed list", ErrSyntax)
	}
	if len(ints) > 0 {
		return IntList(ints...), nil
	}
	return StringList(strs...), nil
}

func parseScalar(typ, s string) (Value, error) {
	if s == "" {
		return Value{}, fmt.Errorf("%w: empty value", ErrSyntax)
	}
	switch typ {
	case "int", "i":
		i, err := strconv.Atoi(s)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrSyntax, err)
		}
		return Int(i), nil
	case "string", "s", "str":
		return String(unquote(s)), nil
	case "fraction":
		f, ok := parseFraction(s)
		if !ok {
			return Value{}, fmt.Errorf("%w: invalid fraction %q", ErrSyntax, s)
		}
		return Value{kind: KindFraction, f: f}, nil
	case "":
	default:
		return Value{}, fmt.Errorf("%w: unknown type %q", ErrSyntax, typ)
	}
	if i, err := strconv.Atoi(s); err == nil {
		return Int(i), nil
	}
	if f, ok := parseFraction(s); ok {
		return Value{kind: KindFraction, f: f}, nil
	}
	return String(unquote(s)), nil
}

func parseFraction(s string) (Fraction, bool) {
	slash := strings.IndexByte(s, '/')
	if slash < 0 {
		return Fraction{}, false
	}
	num, err := strconv.Atoi(strings.TrimSpace(s[:slash]))
	if err != nil {
		return Fraction{}, false
	}
	den, err := strconv.Atoi(strings.TrimSpace(s[slash+1:]))
	if err != nil || den == 0 {
		return Fraction{}, false
	}
	return Fraction{Num: num, Den: den}, true
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// splitTopLevel splits s by sep, ignoring separators inside brackets,
// braces and quotes.
func splitTopLevel(s string, sep byte) []string {
	var (
		parts  []string
		depth  int
		quoted bool
		start  int
	)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '"':
			quoted = !quoted
		case quoted:
		case c == '[' || c == '{' || c == '(':
			depth++
		case c == ']' || c == '}' || c == ')':
			depth--
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
