package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
)

// Filter restricts a query by payload values. It uses Qdrant's JSON shape:
//
//	{"must": [...], "should": [...], "must_not": [...]}
//
// An empty filter matches everything.
type Filter struct {
	Must    []Condition `json:"must,omitempty"`
	Should  []Condition `json:"should,omitempty"`
	MustNot []Condition `json:"must_not,omitempty"`
}

// Condition is either a field condition (Key plus exactly one of Match or
// Range) or a nested filter (one or more of Must, Should, MustNot).
type Condition struct {
	Key   string `json:"key,omitempty"`
	Match *Match `json:"match,omitempty"`
	Range *Range `json:"range,omitempty"`

	Must    []Condition `json:"must,omitempty"`
	Should  []Condition `json:"should,omitempty"`
	MustNot []Condition `json:"must_not,omitempty"`
}

// Match compares a payload value. Exactly one field is set.
//
// Value holds a string, an int64 or a bool. Any and Except hold only strings
// or only int64s.
type Match struct {
	Value  any     `json:"value,omitempty"`
	Any    []any   `json:"any,omitempty"`
	Except []any   `json:"except,omitempty"`
	Text   *string `json:"text,omitempty"`
}

// Range bounds a numeric payload value.
type Range struct {
	Gt  *float64 `json:"gt,omitempty"`
	Gte *float64 `json:"gte,omitempty"`
	Lt  *float64 `json:"lt,omitempty"`
	Lte *float64 `json:"lte,omitempty"`
}

// MatchValue builds a key == value condition.
func MatchValue(key string, value any) Condition {
	return Condition{Key: key, Match: &Match{Value: value}}
}

// MatchAny builds a condition matching any of values.
func MatchAny(key string, values ...any) Condition {
	return Condition{Key: key, Match: &Match{Any: values}}
}

// MatchExcept builds a condition matching none of values.
func MatchExcept(key string, values ...any) Condition {
	return Condition{Key: key, Match: &Match{Except: values}}
}

// RangeCondition builds a numeric range condition.
func RangeCondition(key string, r Range) Condition {
	return Condition{Key: key, Range: &r}
}

// Nested wraps a filter as a condition.
func Nested(f *Filter) Condition {
	return Condition{Must: f.Must, Should: f.Should, MustNot: f.MustNot}
}

// ParseFilter decodes and validates a filter from JSON. Unknown fields are
// rejected.
func ParseFilter(data []byte) (*Filter, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	dec.UseNumber()

	var f Filter
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: unexpected data after filter", ErrInvalidFilter)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// IsEmpty reports whether the filter has no conditions.
func (f *Filter) IsEmpty() bool {
	return f == nil || (len(f.Must) == 0 && len(f.Should) == 0 && len(f.MustNot) == 0)
}

// Validate checks the filter's structure and normalizes match values decoded
// from JSON into their Go types.
func (f *Filter) Validate() error {
	if f == nil {
		return nil
	}
	for _, clause := range [][]Condition{f.Must, f.Should, f.MustNot} {
		for i := range clause {
			if err := clause[i].validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Condition) isNested() bool {
	return c.Must != nil || c.Should != nil || c.MustNot != nil
}

func (c *Condition) nested() *Filter {
	return &Filter{Must: c.Must, Should: c.Should, MustNot: c.MustNot}
}

func (c *Condition) validate() error {
	if c.isNested() {
		if c.Key != "" || c.Match != nil || c.Range != nil {
			return fmt.Errorf("%w: condition mixes a nested filter with key %q", ErrInvalidFilter, c.Key)
		}
		for _, clause := range [][]Condition{c.Must, c.Should, c.MustNot} {
			for i := range clause {
				if err := clause[i].validate(); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if c.Key == "" {
		return fmt.Errorf("%w: condition without key", ErrInvalidFilter)
	}
	switch {
	case c.Match != nil && c.Range != nil:
		return fmt.Errorf("%w: condition on %q has both match and range", ErrInvalidFilter, c.Key)
	case c.Match != nil:
		return c.Match.validate(c.Key)
	case c.Range != nil:
		if c.Range.Gt == nil && c.Range.Gte == nil && c.Range.Lt == nil && c.Range.Lte == nil {
			return fmt.Errorf("%w: empty range on %q", ErrInvalidFilter, c.Key)
		}
		return nil
	default:
		return fmt.Errorf("%w: condition on %q has no match or range", ErrInvalidFilter, c.Key)
	}
}

func (m *Match) validate(key string) error {
	set := 0
	if m.Value != nil {
		set++
	}
	if m.Any != nil {
		set++
	}
	if m.Except != nil {
		set++
	}
	if m.Text != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("%w: match on %q needs exactly one of value, any, except, text", ErrInvalidFilter, key)
	}

	if m.Value != nil {
		v, err := scalar(m.Value)
		if err != nil {
			return fmt.Errorf("%w: match value on %q: %v", ErrInvalidFilter, key, err)
		}
		m.Value = v
	}
	for _, list := range []*[]any{&m.Any, &m.Except} {
		if *list == nil {
			continue
		}
		if err := normalizeList(*list); err != nil {
			return fmt.Errorf("%w: match list on %q: %v", ErrInvalidFilter, key, err)
		}
	}
	return nil
}

// scalar converts a match value into a string, int64 or bool.
func scalar(v any) (any, error) {
	switch x := v.(type) {
	case string, bool, int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return nil, fmt.Errorf("%s is not an integer", x)
		}
		return n, nil
	case float64:
		if x != math.Trunc(x) {
			return nil, fmt.Errorf("%v is not an integer", x)
		}
		return int64(x), nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

// normalizeList converts list values in place and requires one kind.
func normalizeList(list []any) error {
	if len(list) == 0 {
		return fmt.Errorf("list is empty")
	}
	var kind string
	for i, v := range list {
		s, err := scalar(v)
		if err != nil {
			return err
		}
		k := fmt.Sprintf("%T", s)
		if k == "bool" {
			return fmt.Errorf("boolean values are not allowed in a list")
		}
		if kind != "" && k != kind {
			return fmt.Errorf("mixed value types")
		}
		kind = k
		list[i] = s
	}
	return nil
}

// Matches evaluates the filter against a payload. Keys are dotted paths;
// arrays match when any element matches.
func (f *Filter) Matches(payload map[string]any) bool {
	if f == nil {
		return true
	}
	for i := range f.Must {
		if !f.Must[i].matches(payload) {
			return false
		}
	}
	for i := range f.MustNot {
		if f.MustNot[i].matches(payload) {
			return false
		}
	}
	if len(f.Should) == 0 {
		return true
	}
	for i := range f.Should {
		if f.Should[i].matches(payload) {
			return true
		}
	}
	return false
}

func (c *Condition) matches(payload map[string]any) bool {
	if c.isNested() {
		return c.nested().Matches(payload)
	}

	var values []any
	collect(payload, strings.Split(c.Key, "."), &values)

	for _, v := range values {
		if c.Match != nil && c.Match.matches(v) {
			return true
		}
		if c.Range != nil && c.Range.matches(v) {
			return true
		}
	}
	return false
}

// collect resolves a dotted path, flattening arrays along the way.
func collect(v any, path []string, out *[]any) {
	if list, ok := v.([]any); ok {
		for _, item := range list {
			collect(item, path, out)
		}
		return
	}
	if len(path) == 0 {
		if v != nil {
			*out = append(*out, v)
		}
		return
	}
	m, ok := v.(map[string]any)
	if !ok {
		return
	}
	next, ok := m[path[0]]
	if !ok {
		return
	}
	collect(next, path[1:], out)
}

func (m *Match) matches(v any) bool {
	switch {
	case m.Value != nil:
		return equal(m.Value, v)
	case m.Text != nil:
		s, ok := v.(string)
		return ok && strings.Contains(s, *m.Text)
	case m.Any != nil:
		for _, want := range m.Any {
			if equal(want, v) {
				return true
			}
		}
		return false
	case m.Except != nil:
		for _, want := range m.Except {
			if equal(want, v) {
				return false
			}
		}
		return true
	}
	return false
}

func (r *Range) matches(v any) bool {
	x, ok := number(v)
	if !ok {
		return false
	}
	if r.Gt != nil && !(x > *r.Gt) {
		return false
	}
	if r.Gte != nil && !(x >= *r.Gte) {
		return false
	}
	if r.Lt != nil && !(x < *r.Lt) {
		return false
	}
	if r.Lte != nil && !(x <= *r.Lte) {
		return false
	}
	return true
}

func equal(want, got any) bool {
	switch w := want.(type) {
	case string:
		s, ok := got.(string)
		return ok && s == w
	case bool:
		b, ok := got.(bool)
		return ok && b == w
	case int64:
		n, ok := number(got)
		return ok && n == float64(w)
	}
	return false
}

// number converts numeric payload values, which arrive as float64 from JSON
// and as ints from Go callers.
func number(v any) (float64, bool) {
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
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}
