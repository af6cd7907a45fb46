// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"database/sql"
	"fmt"
	"reflect"
)

var scannerInterface = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

// Field represents reflection information about one mapped field of an
// entity struct type.
type Field struct {
	// Name is the member name within the struct.
	Name string

	// Index for Type.Field.
	Index int

	// Tag is the column name from the field's "db" tag.
	Tag string

	// Primary, Unique and ReadOnly carry the tag option flags.
	Primary  bool
	Unique   bool
	ReadOnly bool

	// OmitEmpty is true when "omitempty" is a property of the field's
	// "db" tag. Zero values of such fields are skipped by insert
	// generation.
	OmitEmpty bool

	// entityType is the reflected type of the struct containing this field.
	entityType reflect.Type
}

// String returns a natural language description of the field for use in
// error messages.
func (f *Field) String() string {
	return "tag \"" + f.Tag + "\" of struct \"" + f.entityType.Name() + "\""
}

// EntityType returns the type of the struct this field is located in.
func (f *Field) EntityType() reflect.Type {
	return f.entityType
}

// ValueOf returns the field's value within the given entity, along with
// whether it is the zero value of its type.
func (f *Field) ValueOf(entity reflect.Value) (any, bool, error) {
	entity, err := f.deref(entity)
	if err != nil {
		return nil, false, err
	}
	v := entity.Field(f.Index)
	return v.Interface(), v.IsZero(), nil
}

// SetValue assigns v to the field within the given entity, which must be
// addressable. Values are converted when the types differ but are
// convertible, so an int64 scanned from the database can populate an int
// field.
func (f *Field) SetValue(entity reflect.Value, v any) error {
	entity, err := f.deref(entity)
	if err != nil {
		return err
	}
	target := entity.Field(f.Index)
	if !target.CanSet() {
		return fmt.Errorf("internal error: cannot set field %s of struct %s", f.Name, f.entityType.Name())
	}
	if v == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}
	val := reflect.ValueOf(v)
	if val.Type() != target.Type() {
		if !val.Type().ConvertibleTo(target.Type()) {
			return fmt.Errorf("cannot assign %s to %s", val.Type(), f)
		}
		val = val.Convert(target.Type())
	}
	target.Set(val)
	return nil
}

// ScanTarget returns a pointer for the target of rows.Scan, and a ScanProxy
// reference in the event that the pointer must be coerced into the field
// after scanning.
//
// rows.Scan will return an error if it tries to scan NULL into a type that
// cannot be set to nil, so for types that are not a pointer and do not
// implement sql.Scanner, a pointer to a pointer is generated and passed to
// rows.Scan. If Scan has set this pointer to nil the value is zeroed by
// ScanProxy.OnSuccess.
func (f *Field) ScanTarget(entity reflect.Value) (any, *ScanProxy, error) {
	entity, err := f.deref(entity)
	if err != nil {
		return nil, nil, err
	}
	val := entity.Field(f.Index)
	if !val.CanSet() {
		return nil, nil, fmt.Errorf("internal error: cannot set field %s of struct %s", f.Name, f.entityType.Name())
	}

	pt := reflect.PointerTo(val.Type())
	if val.Type().Kind() != reflect.Pointer && !pt.Implements(scannerInterface) {
		scanVal := reflect.New(pt).Elem()
		return scanVal.Addr().Interface(), &ScanProxy{original: val, scan: scanVal}, nil
	}
	return val.Addr().Interface(), nil, nil
}

// deref follows pointers down to the entity struct and checks its type.
func (f *Field) deref(entity reflect.Value) (reflect.Value, error) {
	for entity.Kind() == reflect.Pointer {
		if entity.IsNil() {
			return reflect.Value{}, fmt.Errorf("got nil pointer to entity %q", f.entityType.Name())
		}
		entity = entity.Elem()
	}
	if entity.Type() != f.entityType {
		return reflect.Value{}, fmt.Errorf("field %s does not belong to entity type %q", f, entity.Type())
	}
	return entity, nil
}

// ScanProxy is a shim for scanning query results into fields that cannot
// receive a NULL directly.
type ScanProxy struct {
	original reflect.Value
	scan     reflect.Value
}

// OnSuccess writes the scanned value through to the original field. A nil
// scan result zeroes the field.
func (sp ScanProxy) OnSuccess() {
	var val reflect.Value
	if !sp.scan.IsNil() {
		val = sp.scan.Elem()
	} else {
		val = reflect.Zero(sp.original.Type())
	}
	sp.original.Set(val)
}
