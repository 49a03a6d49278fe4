package caps

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind is a type of field value.
type Kind int

// value kinds
const (
	KindInvalid Kind = iota
	KindInt
	KindIntRange
	KindIntList
	KindString
	KindStringList
	KindFraction
	KindFractionRange
)

func (k Kind) String() string {
	switch k {
	case KindInt, KindIntRange, KindIntList:
		return "int"
	case KindString, KindStringList:
		return "string"
	case KindFraction, KindFractionRange:
		return "fraction"
	}
	return "invalid"
}

// base returns the scalar kind of the value.
func (k Kind) base() Kind {
	switch k {
	case KindInt, KindIntRange, KindIntList:
		return KindInt
	case KindString, KindStringList:
		return KindString
	case KindFraction, KindFractionRange:
		return KindFraction
	}
	return KindInvalid
}

// Fraction is a rational number, e.g. framerate.
type Fraction struct {
	Num, Den int
}

func (f Fraction) cmp(o Fraction) int {
	l, r := int64(f.Num)*int64(o.Den), int64(o.Num)*int64(f.Den)
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	}
	return 0
}

func (f Fraction) String() string {
	return fmt.Sprintf("%d/%d", f.Num, f.Den)
}

// Value is a field value. It's either fixed (Int, String, Fraction) or
// constrained (ranges and lists). Zero value is invalid.
type Value struct {
	kind     Kind
	i        int
	min, max int
	ints     []int
	s        string
	strs     []string
	f        Fraction
	fmin     Fraction
	fmax     Fraction
}

// Int returns a fixed integer value.
func Int(v int) Value {
	return Value{kind: KindInt, i: v}
}

// IntRange returns an inclusive integer range. If min equals max, a fixed
// value is returned.
func IntRange(min, max int) Value {
	if min > max {
		min, max = max, min
	}
	if min == max {
		return Int(min)
	}
	return Value{kind: KindIntRange, min: min, max: max}
}

// IntList returns a list of allowed integers. Duplicates are removed and
// single element list is reduced to a fixed value. Empty list is invalid.
func IntList(v ...int) Value {
	ints := uniqueInts(v)
	switch len(ints) {
	case 0:
		return Value{}
	case 1:
		return Int(ints[0])
	}
	return Value{kind: KindIntList, ints: ints}
}

// String returns a fixed string value.
func String(s string) Value {
	return Value{kind: KindString, s: s}
}

// StringList returns a list of allowed strings. Empty list is invalid.
func StringList(s ...string) Value {
	strs := uniqueStrings(s)
	switch len(strs) {
	case 0:
		return Value{}
	case 1:
		return String(strs[0])
	}
	return Value{kind: KindStringList, strs: strs}
}

// Frac returns a fixed fraction value.
func Frac(num, den int) Value {
	return Value{kind: KindFraction, f: Fraction{Num: num, Den: den}}
}

// FracRange returns an inclusive fraction range.
func FracRange(min, max Fraction) Value {
	if min.cmp(max) > 0 {
		min, max = max, min
	}
	if min.cmp(max) == 0 {
		return Value{kind: KindFraction, f: min}
	}
	return Value{kind: KindFractionRange, fmin: min, fmax: max}
}

// Kind returns the kind of value.
func (v Value) Kind() Kind {
	return v.kind
}

// IsFixed reports if value holds exactly one possible value.
func (v Value) IsFixed() bool {
	switch v.kind {
	case KindInt, KindString, KindFraction:
		return true
	}
	return false
}

// IntValue returns the integer if value is fixed int.
func (v Value) IntValue() (int, bool) {
	return v.i, v.kind == KindInt
}

// StringValue returns the string if value is fixed string.
func (v Value) StringValue() (string, bool) {
	return v.s, v.kind == KindString
}

// FractionValue returns the fraction if value is fixed fraction.
func (v Value) FractionValue() (Fraction, bool) {
	return v.f, v.kind == KindFraction
}

// Equal reports if two values are identical.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.i == o.i
	case KindIntRange:
		return v.min == o.min && v.max == o.max
	case KindIntList:
		return equalInts(v.ints, o.ints)
	case KindString:
		return v.s == o.s
	case KindStringList:
		return equalStrings(v.strs, o.strs)
	case KindFraction:
		return v.f.cmp(o.f) == 0
	case KindFractionRange:
		return v.fmin.cmp(o.fmin) == 0 && v.fmax.cmp(o.fmax) == 0
	}
	return true
}

// Intersect returns the value that satisfies both constraints. False is
// returned if there is no such value.
func (v Value) Intersect(o Value) (Value, bool) {
	if v.kind.base() != o.kind.base() || v.kind == KindInvalid {
		return Value{}, false
	}
	switch v.kind.base() {
	case KindInt:
		return intersectInts(v, o)
	case KindString:
		return intersectStrings(v, o)
	case KindFraction:
		return intersectFractions(v, o)
	}
	return Value{}, false
}

// constraint is used to rank partially constrained values. Fixed values
// have the highest rank.
func (v Value) constraint() int {
	switch {
	case v.IsFixed():
		return 2
	case v.kind != KindInvalid:
		return 1
	}
	return 0
}

func intersectInts(a, b Value) (Value, bool) {
	// range with range gives range, everything else can be enumerated.
	if a.kind == KindIntRange && b.kind == KindIntRange {
		min, max := a.min, a.max
		if b.min > min {
			min = b.min
		}
		if b.max < max {
			max = b.max
		}
		if min > max {
			return Value{}, false
		}
		return IntRange(min, max), true
	}
	if a.kind == KindIntRange {
		a, b = b, a
	}
	// a is enumerable now.
	result := make([]int, 0, len(a.ints)+1)
	for _, i := range a.enumInts() {
		if b.containsInt(i) {
			result = append(result, i)
		}
	}
	if len(result) == 0 {
		return Value{}, false
	}
	return IntList(result...), true
}

func (v Value) enumInts() []int {
	if v.kind == KindInt {
		return []int{v.i}
	}
	return v.ints
}

func (v Value) containsInt(i int) bool {
	switch v.kind {
	case KindInt:
		return v.i == i
	case KindIntRange:
		return i >= v.min && i <= v.max
	case KindIntList:
		for _, vi := range v.ints {
			if vi == i {
				return true
			}
		}
	}
	return false
}

func intersectStrings(a, b Value) (Value, bool) {
	as, bs := a.enumStrings(), b.enumStrings()
	result := make([]string, 0, len(as))
	for _, s := range as {
		for _, o := range bs {
			if s == o {
				result = append(result, s)
				break
			}
		}
	}
	if len(result) == 0 {
		return Value{}, false
	}
	return StringList(result...), true
}

func (v Value) enumStrings() []string {
	if v.kind == KindString {
		return []string{v.s}
	}
	return v.strs
}

func intersectFractions(a, b Value) (Value, bool) {
	if a.kind == KindFraction && b.kind == KindFraction {
		return a, a.f.cmp(b.f) == 0
	}
	if a.kind == KindFractionRange {
		a, b = b, a
	}
	if a.kind == KindFraction {
		if a.f.cmp(b.fmin) >= 0 && a.f.cmp(b.fmax) <= 0 {
			return a, true
		}
		return Value{}, false
	}
	min, max := a.fmin, a.fmax
	if b.fmin.cmp(min) > 0 {
		min = b.fmin
	}
	if b.fmax.cmp(max) < 0 {
		max = b.fmax
	}
	if min.cmp(max) > 0 {
		return Value{}, false
	}
	return FracRange(min, max), true
}

// String returns the value in caps string notation with type annotation.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return "(int)" + strconv.Itoa(v.i)
	case KindIntRange:
		return fmt.Sprintf("(int)[ %d, %d ]", v.min, v.max)
	case KindIntList:
		s := make([]string, len(v.ints))
		for i := range v.ints {
			s[i] = strconv.Itoa(v.ints[i])
		}
		return "(int){ " + strings.Join(s, ", ") + " }"
	case KindString:
		return "(string)" + v.s
	case KindStringList:
		return "(string){ " + strings.Join(v.strs, ", ") + " }"
	case KindFraction:
		return "(fraction)" + v.f.String()
	case KindFractionRange:
		return fmt.Sprintf("(fraction)[ %v, %v ]", v.fmin, v.fmax)
	}
	return "(invalid)"
}

func uniqueInts(v []int) []int {
	seen := make(map[int]struct{}, len(v))
	result := make([]int, 0, len(v))
	for _, i := range v {
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		result = append(result, i)
	}
	sort.Ints(result)
	return result
}

func uniqueStrings(v []string) []string {
	seen := make(map[string]struct{}, len(v))
	result := make([]string, 0, len(v))
	for _, s := range v {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		result = append(result, s)
	}
	sort.Strings(result)
	return result
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
