// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

package schema

import (
	"fmt"
	"reflect"
)

// Record holds the values of one row, positionally keyed by its Schema.
// The value slice always has exactly one element per schema entry.
type Record struct {
	schema *Schema
	values []any
}

// NewRecord builds an empty record on the schema and freezes the schema.
func NewRecord(s *Schema) *Record {
	s.freeze()
	return &Record{schema: s, values: make([]any, s.Len())}
}

// Schema returns the schema the record is keyed by.
func (r *Record) Schema() *Schema {
	return r.schema
}

// Len returns the number of values, which always equals the schema length.
func (r *Record) Len() int {
	return len(r.values)
}

// Values returns the positional values. The returned slice must not be
// modified; use Set.
func (r *Record) Values() []any {
	return r.values
}

// ValueAt returns the value at position i.
func (r *Record) ValueAt(i int) any {
	return r.values[i]
}

// SetAt sets the value at position i.
func (r *Record) SetAt(i int, v any) error {
	if i < 0 || i >= len(r.values) {
		return fmt.Errorf("record index %d out of range [0, %d)", i, len(r.values))
	}
	r.values[i] = v
	return nil
}

// Value returns the value for the named column. Names resolve as in
// [Schema.Find].
func (r *Record) Value(name string) (any, error) {
	_, i, err := r.schema.Find(name)
	if err != nil {
		return nil, err
	}
	return r.values[i], nil
}

// Set sets the value for the named column.
func (r *Record) Set(name string, v any) error {
	_, i, err := r.schema.Find(name)
	if err != nil {
		return err
	}
	r.values[i] = v
	return nil
}

// Clone returns a copy of the record sharing the frozen schema.
func (r *Record) Clone() *Record {
	values := make([]any, len(r.values))
	copy(values, r.values)
	return &Record{schema: r.schema, values: values}
}

// Equal reports whether two records share a schema and hold deeply equal
// values.
func (r *Record) Equal(o *Record) bool {
	if r.schema != o.schema || len(r.values) != len(o.values) {
		return false
	}
	for i, v := range r.values {
		if !reflect.DeepEqual(v, o.values[i]) {
			return false
		}
	}
	return true
}
