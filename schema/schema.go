// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

// Package schema describes tabular result metadata and holds per-row
// values. A Schema is an ordered collection of entries, each naming a
// table and column along with primary-key, unique and read-only flags and
// an open metadata bag. A Record is a positional value array keyed by its
// Schema.
package schema

import (
	"fmt"
	"strings"
)

// Entry describes one column of a result set or mapped table.
type Entry struct {
	// Table is the owning table. It may be empty for computed columns or
	// results whose origin is unknown.
	Table string

	// Column is the column name. It is never empty.
	Column string

	IsPrimaryKey bool
	IsUnique     bool

	// IsReadOnly marks columns that are hydrated on SELECT but skipped by
	// INSERT and UPDATE generation.
	IsReadOnly bool

	// Metadata is an open bag for engine or mapping specific annotations.
	Metadata map[string]any
}

// Name returns the qualified "table.column" name, or just the column when
// the entry carries no table.
func (e *Entry) Name() string {
	if e.Table == "" {
		return e.Column
	}
	return e.Table + "." + e.Column
}

// Meta returns the metadata value stored under key, allocating the bag on
// first write via SetMeta.
func (e *Entry) Meta(key string) (any, bool) {
	v, ok := e.Metadata[key]
	return v, ok
}

// SetMeta stores a metadata value under key.
func (e *Entry) SetMeta(key string, v any) {
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	e.Metadata[key] = v
}

// Schema is an ordered collection of entries. Once a Record has been built
// on a Schema it is frozen and further entries are rejected.
type Schema struct {
	entries []*Entry
	frozen  bool
}

// New builds a schema from the given entries.
func New(entries ...*Entry) (*Schema, error) {
	s := &Schema{}
	for _, e := range entries {
		if err := s.Add(e); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// MustNew is the same as New except that it panics on error.
func MustNew(entries ...*Entry) *Schema {
	s, err := New(entries...)
	if err != nil {
		panic(err)
	}
	return s
}

// Add appends an entry to the schema.
func (s *Schema) Add(e *Entry) error {
	if s.frozen {
		return fmt.Errorf("cannot add entry %q: schema is frozen", e.Name())
	}
	if e.Column == "" {
		return fmt.Errorf("cannot add entry with empty column name")
	}
	for _, have := range s.entries {
		if have.Table == e.Table && have.Column == e.Column {
			return fmt.Errorf("duplicate schema entry %q", e.Name())
		}
	}
	s.entries = append(s.entries, e)
	return nil
}

// Len returns the number of entries.
func (s *Schema) Len() int {
	return len(s.entries)
}

// Entries returns the entries in order. The returned slice must not be
// modified.
func (s *Schema) Entries() []*Entry {
	return s.entries
}

// Entry returns the entry at position i.
func (s *Schema) Entry(i int) *Entry {
	return s.entries[i]
}

// PrimaryKey returns the entries flagged as primary key, in order.
func (s *Schema) PrimaryKey() []*Entry {
	var pk []*Entry
	for _, e := range s.entries {
		if e.IsPrimaryKey {
			pk = append(pk, e)
		}
	}
	return pk
}

// Find locates an entry by name. The name may be qualified ("table.column")
// or a bare column name; a bare name that matches entries of more than one
// table is ambiguous and returns an error.
func (s *Schema) Find(name string) (*Entry, int, error) {
	table, column := "", name
	if i := strings.IndexByte(name, '.'); i >= 0 {
		table, column = name[:i], name[i+1:]
	}
	foundAt := -1
	for i, e := range s.entries {
		if e.Column != column {
			continue
		}
		if table != "" {
			if e.Table == table {
				return e, i, nil
			}
			continue
		}
		if foundAt >= 0 {
			return nil, 0, fmt.Errorf("ambiguous column %q: have %q and %q", name, s.entries[foundAt].Name(), e.Name())
		}
		foundAt = i
	}
	if foundAt < 0 {
		return nil, 0, fmt.Errorf("column %q not found in schema", name)
	}
	return s.entries[foundAt], foundAt, nil
}

func (s *Schema) freeze() {
	s.frozen = true
}
