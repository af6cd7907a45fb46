// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

package forge

import (
	"fmt"
	"reflect"

	"github.com/forgedb/forge/schema"
)

// EntityState is the lifecycle state of a tracked entity.
type EntityState int

const (
	// StateDetached entities are unknown to the repository.
	StateDetached EntityState = iota

	// StateReady entities are tracked and have no pending operation.
	StateReady

	// StateToInsert, StateToUpdate and StateToDelete entities have a
	// pending operation awaiting the next Submit.
	StateToInsert
	StateToUpdate
	StateToDelete

	// StateCollected entities have their pending operation queued in a
	// running Submit. The state is transient; it resolves to Ready or
	// Detached on commit, or back to the pending state on rollback.
	StateCollected
)

func (s EntityState) String() string {
	switch s {
	case StateDetached:
		return "Detached"
	case StateReady:
		return "Ready"
	case StateToInsert:
		return "ToInsert"
	case StateToUpdate:
		return "ToUpdate"
	case StateToDelete:
		return "ToDelete"
	case StateCollected:
		return "Collected"
	default:
		return fmt.Sprintf("EntityState(%d)", int(s))
	}
}

// MetaEntity correlates a plain entity instance with its table map and
// lifecycle state. The repository owns and hands out meta entities; user
// code reads them to inspect tracking.
type MetaEntity struct {
	// entity is the pointer to the tracked struct.
	entity any
	m      *TableMap
	state  EntityState

	// snapshot holds the column values seen when the entity was last
	// tracked or flushed. Update generation diffs against it.
	snapshot *schema.Record
}

// Entity returns the tracked entity pointer.
func (me *MetaEntity) Entity() any {
	return me.entity
}

// Map returns the table map the entity is tracked under.
func (me *MetaEntity) Map() *TableMap {
	return me.m
}

// State returns the current lifecycle state.
func (me *MetaEntity) State() EntityState {
	return me.state
}

func (me *MetaEntity) value() reflect.Value {
	return reflect.ValueOf(me.entity)
}

// takeSnapshot records the entity's current column values.
func (me *MetaEntity) takeSnapshot() error {
	rec, err := me.m.record(me.value())
	if err != nil {
		return err
	}
	me.snapshot = rec
	return nil
}

// HasChanges reports whether any column value differs from the snapshot.
// Without a snapshot every column counts as changed.
func (me *MetaEntity) HasChanges() (bool, error) {
	cols, err := me.changedColumns()
	if err != nil {
		return false, err
	}
	return len(cols) > 0, nil
}

// changedColumns returns the names of columns whose current value differs
// from the snapshot, skipping read-only columns. Without a snapshot all
// writable non-key columns are returned.
func (me *MetaEntity) changedColumns() ([]string, error) {
	current, err := me.m.record(me.value())
	if err != nil {
		return nil, err
	}
	var changed []string
	for i, e := range me.m.Schema().Entries() {
		if e.IsReadOnly {
			continue
		}
		if me.snapshot == nil && e.IsPrimaryKey {
			continue
		}
		if me.snapshot == nil || !reflect.DeepEqual(me.snapshot.ValueAt(i), current.ValueAt(i)) {
			changed = append(changed, e.Column)
		}
	}
	return changed, nil
}

// primaryKey returns the primary key columns paired with their values,
// preferring the snapshot so a key edit cannot orphan the row.
func (me *MetaEntity) primaryKey() ([]string, []any, error) {
	pk := me.m.Schema().PrimaryKey()
	if len(pk) == 0 {
		return nil, nil, fmt.Errorf("entity type %q has no primary key", me.m.EntityType().Name())
	}
	source := me.snapshot
	if source == nil {
		rec, err := me.m.record(me.value())
		if err != nil {
			return nil, nil, err
		}
		source = rec
	}
	var cols []string
	var vals []any
	for _, e := range pk {
		v, err := source.Value(e.Name())
		if err != nil {
			return nil, nil, err
		}
		cols = append(cols, e.Column)
		vals = append(vals, v)
	}
	return cols, vals, nil
}
