// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

package forge

import (
	"fmt"
	"io"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/forgedb/forge/dialect"
	"github.com/forgedb/forge/internal/typeinfo"
	"github.com/forgedb/forge/schema"
)

// ColumnConfig carries per-column mapping overrides. The flag fields are
// pointers so an omitted flag keeps the value from the entity's "db" tag.
type ColumnConfig struct {
	Name string `yaml:"name"`

	// Type is the column's database type, used by DDL generation. It has
	// no effect on command generation.
	Type string `yaml:"type,omitempty"`

	Primary  *bool `yaml:"primary,omitempty"`
	Unique   *bool `yaml:"unique,omitempty"`
	ReadOnly *bool `yaml:"readonly,omitempty"`
}

// MapConfig declares the table binding of one entity type.
type MapConfig struct {
	// Entity is the entity struct type name the config applies to.
	Entity string `yaml:"entity"`

	// Table overrides the table name; empty keeps the derived name.
	Table string `yaml:"table,omitempty"`

	Columns []ColumnConfig `yaml:"columns,omitempty"`
}

// CreateTableDDL renders a CREATE TABLE statement from the config alone,
// for use where no entity type is at hand. The config must list columns.
func (cfg MapConfig) CreateTableDDL(d dialect.Dialect) (string, error) {
	if len(cfg.Columns) == 0 {
		return "", fmt.Errorf("map config for entity %q lists no columns", cfg.Entity)
	}
	table := cfg.Table
	if table == "" {
		table = defaultTableName(cfg.Entity)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (", d.Quote(table))
	var pk []string
	for i, col := range cfg.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		typ := col.Type
		if typ == "" {
			typ = "TEXT"
		}
		fmt.Fprintf(&b, "%s %s", d.Quote(col.Name), typ)
		primary := col.Primary != nil && *col.Primary
		if col.Unique != nil && *col.Unique && !primary {
			b.WriteString(" UNIQUE")
		}
		if primary {
			pk = append(pk, d.Quote(col.Name))
		}
	}
	if len(pk) > 0 {
		fmt.Fprintf(&b, ", PRIMARY KEY (%s)", strings.Join(pk, ", "))
	}
	b.WriteString(")")
	return b.String(), nil
}

type mapFile struct {
	Maps []MapConfig `yaml:"maps"`
}

// LoadMapConfigs reads entity map configs from YAML of the form:
//
//	maps:
//	  - entity: Person
//	    table: people
//	    columns:
//	      - name: id
//	        type: INTEGER
//	        primary: true
func LoadMapConfigs(rd io.Reader) ([]MapConfig, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("cannot read map config: %s", err)
	}
	var file mapFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("cannot parse map config: %s", err)
	}
	seen := map[string]bool{}
	for i, cfg := range file.Maps {
		if cfg.Entity == "" {
			return nil, fmt.Errorf("map config %d has no entity name", i)
		}
		if seen[cfg.Entity] {
			return nil, fmt.Errorf("duplicate map config for entity %q", cfg.Entity)
		}
		seen[cfg.Entity] = true
		for _, col := range cfg.Columns {
			if col.Name == "" {
				return nil, fmt.Errorf("map config for entity %q has a column with no name", cfg.Entity)
			}
		}
	}
	return file.Maps, nil
}

// NewMapFromConfig builds a table map for the sample's type with the
// config's overrides applied on top of the "db" tag flags.
func NewMapFromConfig(entitySample any, cfg MapConfig) (*TableMap, error) {
	info, err := typeinfo.ForValue(entitySample)
	if err != nil {
		return nil, fmt.Errorf("cannot map entity: %s", err)
	}
	info = info.Clone()

	table := cfg.Table
	if table == "" {
		table = defaultTableName(info.Type().Name())
	}

	types := map[string]string{}
	for _, col := range cfg.Columns {
		f, err := info.Field(col.Name)
		if err != nil {
			return nil, fmt.Errorf("map config for entity %q: %s", cfg.Entity, err)
		}
		if col.Primary != nil {
			f.Primary = *col.Primary
		}
		if col.Unique != nil {
			f.Unique = *col.Unique
		}
		if col.ReadOnly != nil {
			f.ReadOnly = *col.ReadOnly
		}
		if col.Type != "" {
			types[col.Name] = col.Type
		}
	}

	sch := &schema.Schema{}
	for _, f := range info.Fields() {
		e := &schema.Entry{
			Table:        table,
			Column:       f.Tag,
			IsPrimaryKey: f.Primary,
			IsUnique:     f.Unique,
			IsReadOnly:   f.ReadOnly,
		}
		if t, ok := types[f.Tag]; ok {
			e.SetMeta("type", t)
		}
		if err := sch.Add(e); err != nil {
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

// LoadMaps reads map configs from rd and registers a map for every config
// whose entity name matches one of the samples' type names. Configs with
// no matching sample are an error, as are samples left unconfigured.
func (r *Repository) LoadMaps(rd io.Reader, entitySamples ...any) error {
	configs, err := LoadMapConfigs(rd)
	if err != nil {
		return err
	}
	byName := map[string]any{}
	for _, sample := range entitySamples {
		t := reflect.TypeOf(sample)
		for t != nil && t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t == nil || t.Kind() != reflect.Struct {
			return fmt.Errorf("need entity struct sample, got %T", sample)
		}
		byName[t.Name()] = sample
	}
	matched := map[string]bool{}
	for _, cfg := range configs {
		sample, ok := byName[cfg.Entity]
		if !ok {
			return fmt.Errorf("no entity sample given for map config %q", cfg.Entity)
		}
		m, err := NewMapFromConfig(sample, cfg)
		if err != nil {
			return err
		}
		if err := r.Register(m); err != nil {
			return err
		}
		matched[cfg.Entity] = true
	}
	for name := range byName {
		if !matched[name] {
			return fmt.Errorf("no map config found for entity %q", name)
		}
	}
	return nil
}
