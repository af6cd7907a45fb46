// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

package forge

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/forgedb/forge/optree"
	"github.com/forgedb/forge/schema"
)

// Repository is the entity-mapping layer. It tracks entity instances
// through meta entities, accumulates pending insert, update and delete
// operations, and flushes them as one unit of work in a transaction.
//
// A Repository is safe for concurrent use; Submit serialises flushes.
type Repository struct {
	db *DB

	mutex sync.Mutex
	maps  map[reflect.Type]*TableMap

	// tracked holds the meta entities in registration order. Inserts run
	// in this order and deletes in reverse so parents appear before their
	// dependants.
	tracked  []*MetaEntity
	byEntity map[any]*MetaEntity
}

// NewRepository builds a repository flushing to db.
func NewRepository(db *DB) *Repository {
	return &Repository{
		db:       db,
		maps:     map[reflect.Type]*TableMap{},
		byEntity: map[any]*MetaEntity{},
	}
}

// DB returns the database the repository flushes to.
func (r *Repository) DB() *DB {
	return r.db
}

// Register installs a table map. Registering a map for a type that only
// has a weak map replaces the weak map; a second explicit registration is
// an error.
func (r *Repository) Register(m *TableMap) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if have, ok := r.maps[m.entityType]; ok && !have.weak {
		return fmt.Errorf("map for entity type %q already registered", m.entityType.Name())
	}
	r.maps[m.entityType] = m
	return nil
}

// MapFor returns the table map for the entity's type, auto-creating a
// weak map from reflection when none was registered.
func (r *Repository) MapFor(entity any) (*TableMap, error) {
	t, err := entityType(entity)
	if err != nil {
		return nil, err
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.mapForLocked(t)
}

func (r *Repository) mapForLocked(t reflect.Type) (*TableMap, error) {
	if m, ok := r.maps[t]; ok {
		return m, nil
	}
	m, err := NewMap(reflect.New(t).Elem().Interface(), "")
	if err != nil {
		return nil, err
	}
	m.weak = true
	r.maps[t] = m
	return m, nil
}

// Meta returns the meta entity tracking the given entity pointer, if any.
func (r *Repository) Meta(entity any) (*MetaEntity, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	me, ok := r.byEntity[entity]
	return me, ok
}

// Track attaches entities with no pending operation, snapshotting their
// current values for later change detection. Already tracked entities are
// left alone.
func (r *Repository) Track(entities ...any) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, entity := range entities {
		if _, ok := r.byEntity[entity]; ok {
			continue
		}
		me, err := r.attachLocked(entity, StateReady)
		if err != nil {
			return err
		}
		if err := me.takeSnapshot(); err != nil {
			return err
		}
	}
	return nil
}

// Detach removes entities from tracking, cancelling any pending
// operation.
func (r *Repository) Detach(entities ...any) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, entity := range entities {
		if me, ok := r.byEntity[entity]; ok {
			me.state = StateDetached
			r.removeLocked(me)
		}
	}
}

// Insert marks entities for insertion on the next Submit.
func (r *Repository) Insert(entities ...any) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, entity := range entities {
		if me, ok := r.byEntity[entity]; ok {
			return fmt.Errorf("cannot insert %s entity of type %q", me.state, me.m.entityType.Name())
		}
		if _, err := r.attachLocked(entity, StateToInsert); err != nil {
			return err
		}
	}
	return nil
}

// Update marks entities for update on the next Submit. Untracked entities
// are attached without a snapshot, so every writable column is written.
func (r *Repository) Update(entities ...any) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, entity := range entities {
		me, ok := r.byEntity[entity]
		if !ok {
			var err error
			if me, err = r.attachLocked(entity, StateToUpdate); err != nil {
				return err
			}
			continue
		}
		switch me.state {
		case StateReady, StateToUpdate:
			me.state = StateToUpdate
		default:
			return fmt.Errorf("cannot update %s entity of type %q", me.state, me.m.entityType.Name())
		}
	}
	return nil
}

// Delete marks entities for deletion on the next Submit. Deleting an
// entity pending insertion simply detaches it.
func (r *Repository) Delete(entities ...any) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, entity := range entities {
		me, ok := r.byEntity[entity]
		if !ok {
			var err error
			if me, err = r.attachLocked(entity, StateToDelete); err != nil {
				return err
			}
			continue
		}
		switch me.state {
		case StateToInsert:
			me.state = StateDetached
			r.removeLocked(me)
		case StateReady, StateToUpdate, StateToDelete:
			me.state = StateToDelete
		default:
			return fmt.Errorf("cannot delete %s entity of type %q", me.state, me.m.entityType.Name())
		}
	}
	return nil
}

// Save marks entities for insertion when their primary key is zero and
// for update otherwise.
func (r *Repository) Save(entities ...any) error {
	for _, entity := range entities {
		m, err := r.MapFor(entity)
		if err != nil {
			return err
		}
		zero, err := primaryKeyIsZero(m, entity)
		if err != nil {
			return err
		}
		if zero {
			err = r.Insert(entity)
		} else {
			err = r.Update(entity)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// attachLocked builds and registers a meta entity. Entities must be
// pointers to structs so flushed values can be written back.
func (r *Repository) attachLocked(entity any, state EntityState) (*MetaEntity, error) {
	t, err := entityType(entity)
	if err != nil {
		return nil, err
	}
	m, err := r.mapForLocked(t)
	if err != nil {
		return nil, err
	}
	me := &MetaEntity{entity: entity, m: m, state: state}
	r.tracked = append(r.tracked, me)
	r.byEntity[entity] = me
	return me, nil
}

func (r *Repository) removeLocked(me *MetaEntity) {
	delete(r.byEntity, me.entity)
	for i, have := range r.tracked {
		if have == me {
			r.tracked = append(r.tracked[:i], r.tracked[i+1:]...)
			return
		}
	}
}

// entityType checks that entity is a non-nil pointer to a struct and
// returns the struct type.
func entityType(entity any) (reflect.Type, error) {
	if entity == nil {
		return nil, fmt.Errorf("need pointer to entity struct, got nil")
	}
	t := reflect.TypeOf(entity)
	if t.Kind() != reflect.Pointer {
		return nil, fmt.Errorf("need pointer to entity struct, got %s", t.Kind())
	}
	if t.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("need pointer to entity struct, got pointer to %s", t.Elem().Kind())
	}
	if reflect.ValueOf(entity).IsNil() {
		return nil, fmt.Errorf("need pointer to entity struct, got nil pointer")
	}
	return t.Elem(), nil
}

// primaryKeyIsZero reports whether every primary key field of the entity
// holds its zero value.
func primaryKeyIsZero(m *TableMap, entity any) (bool, error) {
	pk := m.info.PrimaryKey()
	if len(pk) == 0 {
		return false, fmt.Errorf("entity type %q has no primary key", m.entityType.Name())
	}
	val := reflect.ValueOf(entity)
	for _, f := range pk {
		_, zero, err := f.ValueOf(val)
		if err != nil {
			return false, err
		}
		if !zero {
			return false, nil
		}
	}
	return true, nil
}

// Submit flushes the pending operations as one unit of work: inserts in
// registration order, then updates, then deletes in reverse registration
// order, all inside a single transaction. On failure the transaction is
// rolled back and the pending states restored.
func (r *Repository) Submit(ctx context.Context) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var inserts, updates, deletes []*MetaEntity
	for _, me := range r.tracked {
		switch me.state {
		case StateToInsert:
			inserts = append(inserts, me)
		case StateToUpdate:
			updates = append(updates, me)
		case StateToDelete:
			deletes = append(deletes, me)
		}
	}
	if len(inserts)+len(updates)+len(deletes) == 0 {
		return nil
	}

	// Collect the pending operations, remembering the states to restore
	// on rollback.
	restore := map[*MetaEntity]EntityState{}
	collect := func(metas []*MetaEntity) {
		for _, me := range metas {
			restore[me] = me.state
			me.state = StateCollected
		}
	}
	collect(inserts)
	collect(updates)
	collect(deletes)

	unit := uuid.NewString()
	if r.db.logger != nil {
		r.db.logger.InfoContext(ctx, "submitting unit of work",
			"unit", unit,
			"inserts", len(inserts),
			"updates", len(updates),
			"deletes", len(deletes))
	}

	tx, err := r.db.Begin(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if err != nil && !committed {
			tx.Rollback()
			for me, state := range restore {
				me.state = state
			}
			if r.db.logger != nil {
				r.db.logger.ErrorContext(ctx, "unit of work rolled back", "unit", unit, "error", err.Error())
			}
		}
	}()

	// Generated keys are only written back once the unit commits, so a
	// rollback leaves the entities untouched.
	type adoption struct {
		me *MetaEntity
		id int64
	}
	var adoptions []adoption
	for _, me := range inserts {
		var id int64
		var adopt bool
		if id, adopt, err = r.flushInsert(ctx, tx, me); err != nil {
			return err
		}
		if adopt {
			adoptions = append(adoptions, adoption{me: me, id: id})
		}
	}
	for _, me := range updates {
		if err = r.flushUpdate(ctx, tx, me); err != nil {
			return err
		}
	}
	for i := len(deletes) - 1; i >= 0; i-- {
		if err = r.flushDelete(ctx, tx, deletes[i]); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	committed = true

	// The unit is durable; adopt generated keys and settle the states.
	for _, a := range adoptions {
		f := a.me.m.info.PrimaryKey()[0]
		if err := f.SetValue(a.me.value(), a.id); err != nil {
			return err
		}
	}
	for _, me := range deletes {
		me.state = StateDetached
		r.removeLocked(me)
	}
	for _, me := range inserts {
		me.state = StateReady
		if err := me.takeSnapshot(); err != nil {
			return err
		}
	}
	for _, me := range updates {
		me.state = StateReady
		if err := me.takeSnapshot(); err != nil {
			return err
		}
	}
	if r.db.logger != nil {
		r.db.logger.InfoContext(ctx, "unit of work committed", "unit", unit)
	}
	return nil
}

// flushInsert runs the insert and, when the entity has a single integer
// primary key left zero for the database to generate, reports the key the
// driver assigned. The key is only adopted after the unit commits.
func (r *Repository) flushInsert(ctx context.Context, tx *TX, me *MetaEntity) (id int64, adopt bool, err error) {
	cmd := NewInsert(r.db.dialect).Into(me.m.table)
	val := me.value()
	for _, f := range me.m.info.Fields() {
		if f.ReadOnly {
			continue
		}
		v, zero, err := f.ValueOf(val)
		if err != nil {
			return 0, false, err
		}
		if zero && (f.OmitEmpty || f.Primary) {
			// Zero keys are left to the database to generate.
			continue
		}
		cmd.Set(optree.X().Member(f.Tag).Assign(v))
	}
	outcome, err := tx.Run(ctx, cmd)
	if err != nil {
		return 0, false, fmt.Errorf("cannot insert %q entity: %w", me.m.entityType.Name(), err)
	}
	if !generatesKey(me) {
		return 0, false, nil
	}
	id, err = outcome.LastInsertId()
	if err != nil {
		// The driver may not report generated keys; that is fine.
		return 0, false, nil
	}
	return id, true, nil
}

// generatesKey reports whether the entity has a single zero-valued integer
// primary key the database is expected to fill in.
func generatesKey(me *MetaEntity) bool {
	pk := me.m.info.PrimaryKey()
	if len(pk) != 1 {
		return false
	}
	f := pk[0]
	_, zero, err := f.ValueOf(me.value())
	if err != nil || !zero {
		return false
	}
	switch me.m.entityType.Field(f.Index).Type.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func (r *Repository) flushUpdate(ctx context.Context, tx *TX, me *MetaEntity) error {
	changed, err := me.changedColumns()
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}
	cmd := NewUpdate(r.db.dialect).Table(me.m.table)
	val := me.value()
	for _, col := range changed {
		f, err := me.m.info.Field(col)
		if err != nil {
			return err
		}
		if f.Primary {
			return fmt.Errorf("cannot update primary key column %q of entity type %q", col, me.m.entityType.Name())
		}
		v, _, err := f.ValueOf(val)
		if err != nil {
			return err
		}
		cmd.Set(optree.X().Member(col).Assign(v))
	}
	cond, err := primaryKeyCondition(me)
	if err != nil {
		return err
	}
	cmd.Where(cond)
	if _, err := tx.Run(ctx, cmd); err != nil {
		return fmt.Errorf("cannot update %q entity: %w", me.m.entityType.Name(), err)
	}
	return nil
}

func (r *Repository) flushDelete(ctx context.Context, tx *TX, me *MetaEntity) error {
	cond, err := primaryKeyCondition(me)
	if err != nil {
		return err
	}
	cmd := NewDelete(r.db.dialect).From(me.m.table).Where(cond)
	if _, err := tx.Run(ctx, cmd); err != nil {
		return fmt.Errorf("cannot delete %q entity: %w", me.m.entityType.Name(), err)
	}
	return nil
}

// primaryKeyCondition builds the WHERE expression matching the entity's
// primary key.
func primaryKeyCondition(me *MetaEntity) (optree.Expr, error) {
	cols, vals, err := me.primaryKey()
	if err != nil {
		return optree.Expr{}, err
	}
	conds := make([]optree.Expr, len(cols))
	for i, col := range cols {
		conds[i] = optree.X().Member(col).Eq(vals[i])
	}
	return optree.And(conds...), nil
}

// NewQueryFor returns a SELECT builder preloaded with the entity type's
// mapped columns and table.
func (r *Repository) NewQueryFor(entitySample any) (*Query, error) {
	info, err := r.mapForSample(entitySample)
	if err != nil {
		return nil, err
	}
	q := NewQuery(r.db.dialect)
	for _, col := range info.Columns() {
		q.Select(optree.X().Member(col))
	}
	q.From(info.Table())
	return q, nil
}

// mapForSample resolves the map for a sample that may be a value rather
// than a pointer.
func (r *Repository) mapForSample(sample any) (*TableMap, error) {
	if sample == nil {
		return nil, fmt.Errorf("need entity sample, got nil")
	}
	t := reflect.TypeOf(sample)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("need entity struct sample, got %s", t.Kind())
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.mapForLocked(t)
}

// FindByPK loads the row matching the entity's primary key values into
// the entity and tracks it. ErrNoRows is returned when no row matches.
func (r *Repository) FindByPK(ctx context.Context, entity any) error {
	m, err := r.MapFor(entity)
	if err != nil {
		return err
	}
	me := &MetaEntity{entity: entity, m: m}
	q, err := r.NewQueryFor(entity)
	if err != nil {
		return err
	}
	cond, err := primaryKeyCondition(me)
	if err != nil {
		return err
	}
	q.Where(cond).Take(1)

	iter, err := r.db.Records(ctx, q)
	if err != nil {
		return err
	}
	if !iter.Next() {
		if err := iter.Close(); err != nil {
			return err
		}
		return ErrNoRows
	}
	rec, err := iter.Get()
	if err != nil {
		iter.Close()
		return err
	}
	if err := iter.Close(); err != nil {
		return err
	}
	if err := r.populate(m, entity, rec); err != nil {
		return err
	}
	return r.Track(entity)
}

// FetchAll runs the query and scans every row into dest, which must be a
// pointer to a slice of entity structs or of pointers to them.
func (r *Repository) FetchAll(ctx context.Context, q *Query, dest any) error {
	destVal := reflect.ValueOf(dest)
	if destVal.Kind() != reflect.Pointer || destVal.IsNil() {
		return fmt.Errorf("need pointer to slice, got %T", dest)
	}
	sliceVal := destVal.Elem()
	if sliceVal.Kind() != reflect.Slice {
		return fmt.Errorf("need pointer to slice, got pointer to %s", sliceVal.Kind())
	}
	elemType := sliceVal.Type().Elem()
	ptrElems := elemType.Kind() == reflect.Pointer
	structType := elemType
	if ptrElems {
		structType = elemType.Elem()
	}
	if structType.Kind() != reflect.Struct {
		return fmt.Errorf("need slice of entity structs, got slice of %s", elemType.Kind())
	}
	m, err := r.mapForSample(reflect.New(structType).Elem().Interface())
	if err != nil {
		return err
	}

	iter, err := r.db.Records(ctx, q)
	if err != nil {
		return err
	}
	for iter.Next() {
		rec, err := iter.Get()
		if err != nil {
			iter.Close()
			return err
		}
		entityPtr := reflect.New(structType)
		if err := r.populate(m, entityPtr.Interface(), rec); err != nil {
			iter.Close()
			return err
		}
		if ptrElems {
			sliceVal = reflect.Append(sliceVal, entityPtr)
		} else {
			sliceVal = reflect.Append(sliceVal, entityPtr.Elem())
		}
	}
	if err := iter.Close(); err != nil {
		return err
	}
	destVal.Elem().Set(sliceVal)
	return nil
}

// FetchOne runs the query and scans the first row into entity, returning
// ErrNoRows if there is none.
func (r *Repository) FetchOne(ctx context.Context, q *Query, entity any) error {
	m, err := r.MapFor(entity)
	if err != nil {
		return err
	}
	iter, err := r.db.Records(ctx, q)
	if err != nil {
		return err
	}
	if !iter.Next() {
		if err := iter.Close(); err != nil {
			return err
		}
		return ErrNoRows
	}
	rec, err := iter.Get()
	if err != nil {
		iter.Close()
		return err
	}
	if err := iter.Close(); err != nil {
		return err
	}
	return r.populate(m, entity, rec)
}

// populate writes a record's values into the entity's mapped fields.
// Result columns with no mapped field are ignored.
func (r *Repository) populate(m *TableMap, entity any, rec *schema.Record) error {
	val := reflect.ValueOf(entity)
	for i, e := range rec.Schema().Entries() {
		col := e.Column
		if origin, ok := e.Meta("origin"); ok {
			col = origin.(string)
		}
		f, err := m.info.Field(col)
		if err != nil {
			continue
		}
		if err := f.SetValue(val, rec.ValueAt(i)); err != nil {
			return fmt.Errorf("cannot populate entity: %s", err)
		}
	}
	return nil
}
