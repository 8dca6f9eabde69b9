package api

import (
	"fmt"
	"reflect"
)

// MergePolicy decides how a field in a partial update combines with the
// value already present in the state.
type MergePolicy int

const (
	// Overwrite replaces the existing value with the incoming one.
	Overwrite MergePolicy = iota

	// Append concatenates the incoming slice onto the existing slice.
	// Fields with this policy must hold slice values.
	Append
)

func (p MergePolicy) String() string {
	switch p {
	case Overwrite:
		return "overwrite"
	case Append:
		return "append"
	default:
		return fmt.Sprintf("MergePolicy(%d)", int(p))
	}
}

// Field declares one state field and its merge policy. The policy is fixed
// when the schema is defined and never changes at runtime.
type Field struct {
	Name   string
	Policy MergePolicy
}

// Schema is the set of fields a workflow state may contain. Updates for
// keys outside the schema are rejected with *UnknownFieldError.
type Schema struct {
	fields map[string]MergePolicy
	order  []string
}

// NewSchema builds a Schema from the given field declarations.
// Declaring the same field twice is a programmer error and panics.
func NewSchema(fields ...Field) *Schema {
	s := &Schema{fields: make(map[string]MergePolicy, len(fields))}
	for _, f := range fields {
		if f.Name == "" {
			panic("api: schema field name must not be empty")
		}
		if _, dup := s.fields[f.Name]; dup {
			panic(fmt.Sprintf("api: schema field %q declared twice", f.Name))
		}
		s.fields[f.Name] = f.Policy
		s.order = append(s.order, f.Name)
	}
	return s
}

// Policy returns the merge policy for a field.
func (s *Schema) Policy(name string) (MergePolicy, bool) {
	p, ok := s.fields[name]
	return p, ok
}

// Fields returns the field names in declaration order.
func (s *Schema) Fields() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// State is a keyed snapshot of workflow data. Values are never mutated in
// place; Apply produces a new State.
type State map[string]any

// Update is a partial state produced by one node execution.
type Update map[string]any

// Clone returns a shallow copy of the state.
func (st State) Clone() State {
	out := make(State, len(st))
	for k, v := range st {
		out[k] = v
	}
	return out
}

// UnknownFieldError reports an update for a key the schema does not declare.
// This is a programmer error and fails the run immediately rather than
// silently dropping the field.
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("state update for unknown field %q", e.Field)
}

// Apply merges a partial update into the state according to each field's
// policy and returns the resulting state. The input state is not modified.
//
// Overwrite fields take the incoming value as-is. Append fields require both
// the existing and incoming values to be slices; the incoming elements are
// concatenated after the existing ones, so two sequential updates yield the
// concatenation in application order.
func (s *Schema) Apply(st State, upd Update) (State, error) {
	if len(upd) == 0 {
		return st, nil
	}
	out := st.Clone()
	for key, val := range upd {
		policy, ok := s.fields[key]
		if !ok {
			return nil, &UnknownFieldError{Field: key}
		}
		switch policy {
		case Overwrite:
			out[key] = val
		case Append:
			merged, err := appendValues(key, out[key], val)
			if err != nil {
				return nil, err
			}
			out[key] = merged
		}
	}
	return out, nil
}

func appendValues(key string, existing, incoming any) (any, error) {
	if incoming == nil {
		return existing, nil
	}
	iv := reflect.ValueOf(incoming)
	if iv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("append field %q: incoming value is %T, not a slice", key, incoming)
	}
	if existing == nil {
		return incoming, nil
	}
	ev := reflect.ValueOf(existing)
	if ev.Kind() != reflect.Slice {
		return nil, fmt.Errorf("append field %q: existing value is %T, not a slice", key, existing)
	}
	if ev.Type() != iv.Type() {
		return nil, fmt.Errorf("append field %q: cannot append %s onto %s", key, iv.Type(), ev.Type())
	}
	merged := reflect.MakeSlice(ev.Type(), 0, ev.Len()+iv.Len())
	merged = reflect.AppendSlice(merged, ev)
	merged = reflect.AppendSlice(merged, iv)
	return merged.Interface(), nil
}

// Get reads a typed value from the state. The zero value is returned when
// the field is absent or holds a different type.
func Get[T any](st State, field string) T {
	var zero T
	v, ok := st[field]
	if !ok || v == nil {
		return zero
	}
	t, ok := v.(T)
	if !ok {
		return zero
	}
	return t
}

// GetOr reads a typed value from the state, falling back to def when the
// field is absent or holds a different type.
func GetOr[T any](st State, field string, def T) T {
	v, ok := st[field]
	if !ok || v == nil {
		return def
	}
	t, ok := v.(T)
	if !ok {
		return def
	}
	return t
}
