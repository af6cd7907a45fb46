// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

package forge

import (
	"context"
	"database/sql"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/forgedb/forge/dialect"
)

// dbIDCount is a global variable used to generate unique DB IDs.
var dbIDCount int64

type dbID = int64

// statementCache caches the sql.Stmt objects prepared for command text on
// each DB. Commands regenerate identical text when rebuilt, so repeated
// runs of the same shape reuse the driver prepared statement.
//
// A finalizer is set on DB objects to close all statements prepared on
// the DB, close the DB, and remove references to the DB from the cache.
//
// The mutex must be locked when accessing the cache map.
type statementCache struct {
	cache map[dbID]map[string]*sql.Stmt
	mutex sync.RWMutex
}

var once sync.Once
var singleStmtCache *statementCache

// newStatementCache returns the single instance of the statement cache.
func newStatementCache() *statementCache {
	once.Do(func() {
		singleStmtCache = &statementCache{
			cache: map[dbID]map[string]*sql.Stmt{},
		}
	})
	return singleStmtCache
}

// newDB returns a new DB and allocates it in the cache. A finalizer is
// set on the DB which removes it from the cache, closes all sql.Stmt
// values prepared upon it and then closes the DB. The finalizer is run
// after the DB is garbage collected.
func (sc *statementCache) newDB(sqldb *sql.DB, d dialect.Dialect) *DB {
	cacheID := atomic.AddInt64(&dbIDCount, 1)
	sc.mutex.Lock()
	sc.cache[cacheID] = map[string]*sql.Stmt{}
	sc.mutex.Unlock()
	db := &DB{sqldb: sqldb, dialect: d, cacheID: cacheID}
	runtime.SetFinalizer(db, sc.getDBFinalizer())
	return db
}

// lookup returns the statement prepared on the DB for the given text, if
// there is one.
func (sc *statementCache) lookup(db *DB, text string) (*sql.Stmt, bool) {
	sc.mutex.RLock()
	sqlstmt, ok := sc.cache[db.cacheID][text]
	sc.mutex.RUnlock()
	return sqlstmt, ok
}

// prepare returns the statement for the given text, preparing it on the
// DB on first use.
func (sc *statementCache) prepare(ctx context.Context, db *DB, text string) (*sql.Stmt, error) {
	sqlstmt, ok := sc.lookup(db, text)
	if ok {
		return sqlstmt, nil
	}
	sqlstmt, err := db.sqldb.PrepareContext(ctx, text)
	if err != nil {
		return nil, err
	}
	sc.mutex.Lock()
	// Check if a statement has been inserted by someone else since we
	// last checked.
	sqlstmtAlt, ok := sc.cache[db.cacheID][text]
	if ok {
		sqlstmt.Close()
		sqlstmt = sqlstmtAlt
	} else {
		sc.cache[db.cacheID][text] = sqlstmt
	}
	sc.mutex.Unlock()
	return sqlstmt, nil
}

// getDBFinalizer returns a finalizer that closes and removes from the
// cache all sql.Stmt values prepared on the database, removes the
// database from the cache, then closes the sql.DB.
func (sc *statementCache) getDBFinalizer() func(*DB) {
	return func(db *DB) {
		sc.mutex.Lock()
		defer sc.mutex.Unlock()
		for _, sqlstmt := range sc.cache[db.cacheID] {
			sqlstmt.Close()
		}
		delete(sc.cache, db.cacheID)
		db.sqldb.Close()
	}
}
