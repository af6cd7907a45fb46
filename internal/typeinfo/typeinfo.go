// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

// Package typeinfo extracts and caches reflection information about entity
// struct types. Entity fields are bound to columns with "db" tags; the tag
// options primary, unique, readonly and omitempty mark the corresponding
// schema flags.
package typeinfo

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
)

// EntityInfo holds the column binding of an entity struct type.
type EntityInfo struct {
	entityType reflect.Type

	// tags lists the bound column names in field declaration order.
	tags []string

	tagToField map[string]*Field
}

// Type returns the reflected entity type.
func (ei *EntityInfo) Type() reflect.Type {
	return ei.entityType
}

// Tags returns the bound column names in field declaration order.
func (ei *EntityInfo) Tags() []string {
	return ei.tags
}

// Field returns the field bound to the named column.
func (ei *EntityInfo) Field(tag string) (*Field, error) {
	f, ok := ei.tagToField[tag]
	if !ok {
		return nil, fmt.Errorf(`type %q has no %q db tag`, ei.entityType.Name(), tag)
	}
	return f, nil
}

// Fields returns the bound fields in field declaration order.
func (ei *EntityInfo) Fields() []*Field {
	fields := make([]*Field, 0, len(ei.tags))
	for _, tag := range ei.tags {
		fields = append(fields, ei.tagToField[tag])
	}
	return fields
}

// PrimaryKey returns the fields flagged primary, in declaration order.
func (ei *EntityInfo) PrimaryKey() []*Field {
	var pk []*Field
	for _, tag := range ei.tags {
		if f := ei.tagToField[tag]; f.Primary {
			pk = append(pk, f)
		}
	}
	return pk
}

// Clone returns a deep copy whose fields can carry flag overrides without
// touching the cached entry for the type.
func (ei *EntityInfo) Clone() *EntityInfo {
	clone := &EntityInfo{
		entityType: ei.entityType,
		tags:       append([]string(nil), ei.tags...),
		tagToField: make(map[string]*Field, len(ei.tagToField)),
	}
	for tag, f := range ei.tagToField {
		c := *f
		clone.tagToField[tag] = &c
	}
	return clone
}

// entityInfoCache caches type reflection information across commands.
var entityInfoCacheMutex sync.RWMutex
var entityInfoCache = make(map[reflect.Type]*EntityInfo)

// ForType returns the entity information for a struct type, generating and
// caching it on first use.
func ForType(t reflect.Type) (*EntityInfo, error) {
	entityInfoCacheMutex.RLock()
	info, found := entityInfoCache[t]
	entityInfoCacheMutex.RUnlock()
	if found {
		return info, nil
	}

	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("need struct entity type, got %s", t.Kind())
	}
	if t.Name() == "" {
		return nil, fmt.Errorf("cannot use anonymous struct as entity")
	}

	info = &EntityInfo{
		entityType: t,
		tagToField: make(map[string]*Field),
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		// Fields without a "db" tag are not mapped.
		tag := f.Tag.Get("db")
		if tag == "" {
			continue
		}
		if !f.IsExported() {
			return nil, fmt.Errorf("field %q of struct %s not exported", f.Name, t.Name())
		}
		field, err := parseTag(tag)
		if err != nil {
			return nil, fmt.Errorf("cannot parse tag for field %s.%s: %s", t.Name(), f.Name, err)
		}
		if _, dup := info.tagToField[field.Tag]; dup {
			return nil, fmt.Errorf("db tag %q appears twice in struct %s", field.Tag, t.Name())
		}
		field.Name = f.Name
		field.Index = i
		field.entityType = t
		info.tags = append(info.tags, field.Tag)
		info.tagToField[field.Tag] = field
	}
	if len(info.tags) == 0 {
		return nil, fmt.Errorf(`no "db" tags found in struct %q`, t.Name())
	}

	entityInfoCacheMutex.Lock()
	entityInfoCache[t] = info
	entityInfoCacheMutex.Unlock()

	return info, nil
}

// ForValue returns the entity information for the dynamic struct type of v.
// Pointers are followed.
func ForValue(v any) (*EntityInfo, error) {
	if v == nil {
		return nil, fmt.Errorf("need valid entity, got nil")
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return ForType(t)
}

// This expression should be aligned with the identifiers the parser
// accepts as column names.
var validColNameRx = regexp.MustCompile(`^([a-zA-Z_])+([a-zA-Z_0-9])*$`)

// parseTag parses a "db" tag into a partially filled Field holding the
// column name and option flags.
func parseTag(tag string) (*Field, error) {
	options := strings.Split(tag, ",")

	field := &Field{}
	for _, flag := range options[1:] {
		switch flag {
		case "primary":
			field.Primary = true
		case "unique":
			field.Unique = true
		case "readonly":
			field.ReadOnly = true
		case "omitempty":
			field.OmitEmpty = true
		default:
			return nil, fmt.Errorf("unsupported flag %q in tag %q", flag, tag)
		}
	}

	name := options[0]
	if len(name) == 0 {
		return nil, fmt.Errorf("empty db tag")
	}
	if !validColNameRx.MatchString(name) {
		return nil, fmt.Errorf("invalid column name in 'db' tag: %q", name)
	}
	field.Tag = name
	return field, nil
}
