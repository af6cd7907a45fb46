// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

package forge

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/forgedb/forge/dialect"
	"github.com/forgedb/forge/internal/typeinfo"
	"github.com/forgedb/forge/schema"
)

// TableMap binds an entity struct type to a table. The map's schema is
// derived from the entity's "db" tags; primary, unique and readonly tag
// options become the matching schema flags.
type TableMap struct {
	entityType reflect.Type
	table      string
	sch        *schema.Schema
	info       *typeinfo.EntityInfo

	// weak marks maps auto-created on first use of an unregistered entity
	// type. A weak map is replaced when a real map is registered.
	weak bool
}

// NewMap builds a map for the entity sample's type. An empty table name
// derives one from the type name (PersonAddress becomes person_address).
func NewMap(entitySample any, table string) (*TableMap, error) {
	info, err := typeinfo.ForValue(entitySample)
	if err != nil {
		return nil, fmt.Errorf("cannot map entity: %s", err)
	}
	if table == "" {
		table = defaultTableName(info.Type().Name())
	}
	sch := &schema.Schema{}
	for _, f := range info.Fields() {
		err := sch.Add(&schema.Entry{
			Table:        table,
			Column:       f.Tag,
			IsPrimaryKey: f.Primary,
			IsUnique:     f.Unique,
			IsReadOnly:   f.ReadOnly,
		})
		if err != nil {
			return nil, fmt.Errorf("cannot map entity %q: %s", info.Type().Name(), err)
		}
	}
	return &TableMap{
		entityType: info.Type(),
		table:      table,
		sch:        sch,
		info:       info,
	}, nil
}

// Table returns the mapped table name.
func (m *TableMap) Table() string {
	return m.table
}

// EntityType returns the mapped entity struct type.
func (m *TableMap) EntityType() reflect.Type {
	return m.entityType
}

// Schema returns the table schema derived from the entity type.
func (m *TableMap) Schema() *schema.Schema {
	return m.sch
}

// IsWeak reports whether the map was auto-created rather than registered.
func (m *TableMap) IsWeak() bool {
	return m.weak
}

// Columns returns the mapped column names in field declaration order.
func (m *TableMap) Columns() []string {
	return m.info.Tags()
}

// record builds a snapshot record of the entity's current column values.
func (m *TableMap) record(entity reflect.Value) (*schema.Record, error) {
	rec := schema.NewRecord(m.sch)
	for i, f := range m.info.Fields() {
		v, _, err := f.ValueOf(entity)
		if err != nil {
			return nil, err
		}
		rec.SetAt(i, v)
	}
	return rec, nil
}

// CreateTableDDL renders a CREATE TABLE statement for the map with the
// dialect's identifier quoting. Column types come from the "type" entry
// metadata set by map configs, defaulting to TEXT.
func (m *TableMap) CreateTableDDL(d dialect.Dialect) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (", d.Quote(m.table))
	for i, e := range m.sch.Entries() {
		if i > 0 {
			b.WriteString(", ")
		}
		typ := "TEXT"
		if t, ok := e.Meta("type"); ok {
			typ = t.(string)
		}
		fmt.Fprintf(&b, "%s %s", d.Quote(e.Column), typ)
		if e.IsUnique && !e.IsPrimaryKey {
			b.WriteString(" UNIQUE")
		}
	}
	if pk := m.sch.PrimaryKey(); len(pk) > 0 {
		quoted := make([]string, len(pk))
		for i, e := range pk {
			quoted[i] = d.Quote(e.Column)
		}
		fmt.Fprintf(&b, ", PRIMARY KEY (%s)", strings.Join(quoted, ", "))
	}
	b.WriteString(")")
	return b.String()
}

// defaultTableName derives a table name from an entity type name by lower
// snake-casing it.
func defaultTableName(typeName string) string {
	var b strings.Builder
	for i, r := range typeName {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
