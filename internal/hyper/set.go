// Package hyper holds hyperparameter sets and spaces, the grid search that
// enumerates them, and the tuners that drive an objective over a space.
package hyper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"math"
	"sort"
	"strings"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/errdefs"
)

// Entry is one name/value pair of a Set.
type Entry struct {
	Name  string
	Value any
}

// Set is an immutable, ordered mapping from parameter name to value.
//
// Two sets are equal when they hold the same names with equal values,
// regardless of order. Numeric values compare by value, so 1 and 1.0 match.
type Set struct {
	entries []Entry
}

// NewSet builds a set from entries in the given order.
func NewSet(entries ...Entry) (Set, error) {
	seen := make(map[string]struct{}, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			return Set{}, fmt.Errorf("%w: empty parameter name", errdefs.ErrInvalidConfiguration)
		}
		if _, dup := seen[e.Name]; dup {
			return Set{}, fmt.Errorf("%w: duplicate parameter %q", errdefs.ErrInvalidConfiguration, e.Name)
		}
		seen[e.Name] = struct{}{}
		out = append(out, e)
	}
	return Set{entries: out}, nil
}

// MustSet is NewSet for literal sets in code and tests.
// Arguments alternate name, value.
func MustSet(kv ...any) Set {
	if len(kv)%2 != 0 {
		panic("hyper.MustSet: odd number of arguments")
	}
	entries := make([]Entry, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		name, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("hyper.MustSet: name at %d is %T", i, kv[i]))
		}
		entries = append(entries, Entry{Name: name, Value: kv[i+1]})
	}
	s, err := NewSet(entries...)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of parameters.
func (s Set) Len() int { return len(s.entries) }

// Names returns parameter names in order.
func (s Set) Names() []string {
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.Name
	}
	return names
}

// All iterates over name/value pairs in order.
func (s Set) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for _, e := range s.entries {
			if !yield(e.Name, e.Value) {
				return
			}
		}
	}
}

// Get returns the value for name.
func (s Set) Get(name string) (any, bool) {
	for _, e := range s.entries {
		if e.Name == name {
			return e.Value, true
		}
	}
	return nil, false
}

// Has reports whether name is present.
func (s Set) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// With returns a copy of s with name set to value, appended if absent.
func (s Set) With(name string, value any) Set {
	out := make([]Entry, 0, len(s.entries)+1)
	replaced := false
	for _, e := range s.entries {
		if e.Name == name {
			e.Value = value
			replaced = true
		}
		out = append(out, e)
	}
	if !replaced {
		out = append(out, Entry{Name: name, Value: value})
	}
	return Set{entries: out}
}

// Float returns a numeric parameter as float64.
func (s Set) Float(name string) (float64, error) {
	v, ok := s.Get(name)
	if !ok {
		return 0, errdefs.InvalidParam(name, nil, "missing")
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, errdefs.InvalidParam(name, v, "not a number")
	}
	return f, nil
}

// Int returns an integral numeric parameter.
func (s Set) Int(name string) (int, error) {
	f, err := s.Float(name)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, errdefs.InvalidParam(name, f, "not an integer")
	}
	return int(f), nil
}

// Bool returns a boolean parameter.
func (s Set) Bool(name string) (bool, error) {
	v, ok := s.Get(name)
	if !ok {
		return false, errdefs.InvalidParam(name, nil, "missing")
	}
	b, ok := v.(bool)
	if !ok {
		return false, errdefs.InvalidParam(name, v, "not a boolean")
	}
	return b, nil
}

// Text returns a string parameter.
func (s Set) Text(name string) (string, error) {
	v, ok := s.Get(name)
	if !ok {
		return "", errdefs.InvalidParam(name, nil, "missing")
	}
	str, ok := v.(string)
	if !ok {
		return "", errdefs.InvalidParam(name, v, "not a string")
	}
	return str, nil
}

// Equal reports whether both sets hold the same contents.
func (s Set) Equal(other Set) bool {
	if len(s.entries) != len(other.entries) {
		return false
	}
	for _, e := range s.entries {
		v, ok := other.Get(e.Name)
		if !ok || !valuesEqual(e.Value, v) {
			return false
		}
	}
	return true
}

// String renders the set in declaration order, e.g. "{lr:0.01, batch_size:64}".
func (s Set) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, e := range s.entries {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s:%v", e.Name, e.Value)
	}
	b.WriteByte('}')
	return b.String()
}

// Key returns a canonical, order-independent identity string.
func (s Set) Key() string {
	sorted := make([]Entry, len(s.entries))
	copy(sorted, s.entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	var b strings.Builder
	for i, e := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		if f, ok := toFloat(e.Value); ok {
			fmt.Fprintf(&b, "%s=%g", e.Name, f)
		} else {
			fmt.Fprintf(&b, "%s=%v", e.Name, e.Value)
		}
	}
	return b.String()
}

// MarshalJSON encodes the set as a JSON object preserving order.
func (s Set) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range s.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Value)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", e.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object preserving key order.
// Integral numbers decode as int, other numbers as float64.
func (s *Set) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("hyperparameter set: expected object, got %v", tok)
	}

	var entries []Entry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("parameter %s: %w", name, err)
		}
		entries = append(entries, Entry{Name: name, Value: normalize(raw)})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	set, err := NewSet(entries...)
	if err != nil {
		return err
	}
	*s = set
	return nil
}

// normalize converts decoded JSON numbers to int or float64.
func normalize(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return int(i)
	}
	f, _ := n.Float64()
	return f
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func valuesEqual(a, b any) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA || okB {
		return okA && okB && fa == fb
	}
	return a == b
}
