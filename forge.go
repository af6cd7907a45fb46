// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

package forge

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/forgedb/forge/dialect"
	"github.com/forgedb/forge/schema"
)

var ErrNoRows = sql.ErrNoRows
var ErrTXDone = sql.ErrTxDone

// stmtCache stores the driver prepared statements associated with command
// text run on each DB.
var stmtCache = newStatementCache()

// DB wraps the database-alike the commands execute on. It pairs a plain
// sql.DB with the dialect used to generate text for it.
type DB struct {
	// cacheID is used to look up the driver prepared statements prepared
	// on this database.
	cacheID int64
	// sqldb is the underlying database/sql DB object.
	sqldb   *sql.DB
	dialect dialect.Dialect
	logger  *slog.Logger
}

// NewDB creates a DB from a sql.DB. A nil dialect selects the default.
func NewDB(sqldb *sql.DB, d dialect.Dialect) *DB {
	if sqldb == nil {
		return nil
	}
	if d == nil {
		d = dialect.Default()
	}
	return stmtCache.newDB(sqldb, d)
}

// PlainDB returns the underlying database object.
func (db *DB) PlainDB() *sql.DB {
	return db.sqldb
}

// Dialect returns the dialect commands built on this DB render text for.
func (db *DB) Dialect() dialect.Dialect {
	return db.dialect
}

// WithLogger attaches a structured logger. Generated command text and
// parameter names are logged at debug level; parameter values never are.
func (db *DB) WithLogger(l *slog.Logger) *DB {
	db.logger = l
	return db
}

// NewQuery returns a SELECT builder for this DB's dialect.
func (db *DB) NewQuery() *Query { return NewQuery(db.dialect) }

// NewInsert returns an INSERT builder for this DB's dialect.
func (db *DB) NewInsert() *Insert { return NewInsert(db.dialect) }

// NewUpdate returns an UPDATE builder for this DB's dialect.
func (db *DB) NewUpdate() *Update { return NewUpdate(db.dialect) }

// NewDelete returns a DELETE builder for this DB's dialect.
func (db *DB) NewDelete() *Delete { return NewDelete(db.dialect) }

// NewRaw returns a free-form builder for this DB's dialect.
func (db *DB) NewRaw() *Raw { return NewRaw(db.dialect) }

func (db *DB) logRun(ctx context.Context, text string, params *Parameters) {
	if db.logger != nil {
		db.logger.DebugContext(ctx, "running command", "text", text, "params", params.String())
	}
}

// Outcome holds metadata about an executed command.
type Outcome struct {
	result sql.Result
}

// Result returns the sql.Result of the execution. If no result is set
// then Result returns nil.
func (o *Outcome) Result() sql.Result {
	return o.result
}

// RowsAffected returns the number of rows changed by the command.
func (o *Outcome) RowsAffected() (int64, error) {
	if o.result == nil {
		return 0, fmt.Errorf("no result in outcome")
	}
	return o.result.RowsAffected()
}

// LastInsertId returns the driver generated id of the last inserted row.
func (o *Outcome) LastInsertId() (int64, error) {
	if o.result == nil {
		return 0, fmt.Errorf("no result in outcome")
	}
	return o.result.LastInsertId()
}

// Run executes a command that returns no rows and reports the outcome.
func (db *DB) Run(ctx context.Context, cmd Command) (*Outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	text, err := cmd.Text()
	if err != nil {
		return nil, err
	}
	db.logRun(ctx, text, cmd.Params())
	sqlstmt, err := stmtCache.prepare(ctx, db, text)
	if err != nil {
		return nil, err
	}
	result, err := sqlstmt.ExecContext(ctx, cmd.Params().Args()...)
	if err != nil {
		return nil, err
	}
	return &Outcome{result: result}, nil
}

// Records executes a command that returns rows and yields an iterator
// over them. Iterator.Close must be run once iteration is finished.
func (db *DB) Records(ctx context.Context, cmd Command) (*Iterator, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	text, err := cmd.Text()
	if err != nil {
		return nil, err
	}
	db.logRun(ctx, text, cmd.Params())
	sqlstmt, err := stmtCache.prepare(ctx, db, text)
	if err != nil {
		return nil, err
	}
	rows, err := sqlstmt.QueryContext(ctx, cmd.Params().Args()...)
	if err != nil {
		return nil, err
	}
	return newIterator(rows)
}

// Iterator walks the records produced by a command row by row.
type Iterator struct {
	rows   *sql.Rows
	schema *schema.Schema
	err    error
}

func newIterator(rows *sql.Rows) (*Iterator, error) {
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, err
	}
	s, err := resultSchema(cols)
	if err != nil {
		rows.Close()
		return nil, err
	}
	return &Iterator{rows: rows, schema: s}, nil
}

// resultSchema builds a schema from result column names. Columns repeated
// across joined tables are disambiguated with an ordinal suffix, keeping
// the original name in the entry metadata.
func resultSchema(cols []string) (*schema.Schema, error) {
	s := &schema.Schema{}
	seen := map[string]int{}
	for _, col := range cols {
		n := seen[col]
		seen[col] = n + 1
		e := &schema.Entry{Column: col}
		if n > 0 {
			e.Column = col + "_" + strconv.Itoa(n)
			e.SetMeta("origin", col)
		}
		if err := s.Add(e); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Schema describes the columns of the result set.
func (iter *Iterator) Schema() *schema.Schema {
	return iter.schema
}

// Next prepares the next record for Get. If an error occurs during
// iteration it will be returned by Close.
func (iter *Iterator) Next() bool {
	if iter.err != nil || iter.rows == nil {
		return false
	}
	return iter.rows.Next()
}

// Get decodes the current row into a new record.
func (iter *Iterator) Get() (*schema.Record, error) {
	if iter.err != nil {
		return nil, iter.err
	}
	if iter.rows == nil {
		return nil, fmt.Errorf("cannot get record: iteration ended")
	}
	rec := schema.NewRecord(iter.schema)
	ptrs := make([]any, rec.Len())
	vals := make([]any, rec.Len())
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := iter.rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("cannot get record: %s", err)
	}
	for i, v := range vals {
		rec.SetAt(i, v)
	}
	return rec, nil
}

// Close finishes the iteration and returns any errors encountered. Close
// can be called multiple times and the same error will be returned.
func (iter *Iterator) Close() error {
	if iter.rows == nil {
		return iter.err
	}
	err := iter.rows.Close()
	iter.rows = nil
	if iter.err == nil {
		iter.err = err
	}
	return iter.err
}

// All collects every remaining record and closes the iterator.
func (iter *Iterator) All() ([]*schema.Record, error) {
	var recs []*schema.Record
	for iter.Next() {
		rec, err := iter.Get()
		if err != nil {
			iter.Close()
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return recs, nil
}

// TX represents a transaction on the database.
type TX struct {
	sqltx *sql.Tx
	db    *DB
	done  int32
}

func (tx *TX) isDone() bool {
	return atomic.LoadInt32(&tx.done) == 1
}

func (tx *TX) setDone() error {
	if !atomic.CompareAndSwapInt32(&tx.done, 0, 1) {
		return ErrTXDone
	}
	return nil
}

// TXOptions holds the transaction options to be used in DB.Begin.
type TXOptions struct {
	// Isolation is the transaction isolation level.
	// If zero, the driver or database's default level is used.
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

func (txopts *TXOptions) plainTXOptions() *sql.TxOptions {
	if txopts == nil {
		return nil
	}
	return &sql.TxOptions{Isolation: txopts.Isolation, ReadOnly: txopts.ReadOnly}
}

// Begin starts a transaction. A transaction must be ended with a
// TX.Commit or TX.Rollback.
func (db *DB) Begin(ctx context.Context, opts *TXOptions) (*TX, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sqltx, err := db.sqldb.BeginTx(ctx, opts.plainTXOptions())
	if err != nil {
		return nil, err
	}
	return &TX{sqltx: sqltx, db: db}, nil
}

// Commit commits the transaction.
func (tx *TX) Commit() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Commit()
	}
	return err
}

// Rollback aborts the transaction.
func (tx *TX) Rollback() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Rollback()
	}
	return err
}

// Run executes a command that returns no rows inside the transaction.
func (tx *TX) Run(ctx context.Context, cmd Command) (*Outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if tx.isDone() {
		return nil, ErrTXDone
	}
	text, err := cmd.Text()
	if err != nil {
		return nil, err
	}
	tx.db.logRun(ctx, text, cmd.Params())
	result, err := tx.stmtFor(ctx, text).ExecContext(ctx, cmd.Params().Args()...)
	if err != nil {
		return nil, err
	}
	return &Outcome{result: result}, nil
}

// Records executes a command that returns rows inside the transaction.
func (tx *TX) Records(ctx context.Context, cmd Command) (*Iterator, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if tx.isDone() {
		return nil, ErrTXDone
	}
	text, err := cmd.Text()
	if err != nil {
		return nil, err
	}
	tx.db.logRun(ctx, text, cmd.Params())
	rows, err := tx.stmtFor(ctx, text).QueryContext(ctx, cmd.Params().Args()...)
	if err != nil {
		return nil, err
	}
	return newIterator(rows)
}

// txStmt is the subset of sql.Tx and sql.Stmt execution methods the
// transaction needs.
type txStmt interface {
	ExecContext(ctx context.Context, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, args ...any) (*sql.Rows, error)
}

// stmtFor reuses a statement already prepared on the DB by registering it
// on the transaction. Note that this does not re-prepare the statement on
// the driver. With no cached statement the text runs unprepared.
func (tx *TX) stmtFor(ctx context.Context, text string) txStmt {
	if sqlstmt, ok := stmtCache.lookup(tx.db, text); ok {
		// The returned stmt is closed by database/sql when the
		// transaction is committed or rolled back.
		return tx.sqltx.Stmt(sqlstmt)
	}
	return &plainTxStmt{tx: tx.sqltx, text: text}
}

type plainTxStmt struct {
	tx   *sql.Tx
	text string
}

func (s *plainTxStmt) ExecContext(ctx context.Context, args ...any) (sql.Result, error) {
	return s.tx.ExecContext(ctx, s.text, args...)
}

func (s *plainTxStmt) QueryContext(ctx context.Context, args ...any) (*sql.Rows, error) {
	return s.tx.QueryContext(ctx, s.text, args...)
}
