// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

package forge

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	. "gopkg.in/check.v1"

	"github.com/forgedb/forge/dialect"
)

type CacheSuite struct{}

var _ = Suite(&CacheSuite{})

func (s *CacheSuite) openDB(c *C) *DB {
	sqldb, err := sql.Open("sqlite3", ":memory:")
	c.Assert(err, IsNil)
	return NewDB(sqldb, dialect.SQLite{})
}

func (s *CacheSuite) TestPrepareReusesStatement(c *C) {
	db := s.openDB(c)
	ctx := context.Background()

	_, ok := stmtCache.lookup(db, "SELECT 1")
	c.Check(ok, Equals, false)

	stmt1, err := stmtCache.prepare(ctx, db, "SELECT 1")
	c.Assert(err, IsNil)
	stmt2, err := stmtCache.prepare(ctx, db, "SELECT 1")
	c.Assert(err, IsNil)
	c.Check(stmt1, Equals, stmt2)

	cached, ok := stmtCache.lookup(db, "SELECT 1")
	c.Assert(ok, Equals, true)
	c.Check(cached, Equals, stmt1)
}

func (s *CacheSuite) TestStatementsAreScopedPerDB(c *C) {
	db1 := s.openDB(c)
	db2 := s.openDB(c)

	_, err := stmtCache.prepare(context.Background(), db1, "SELECT 1")
	c.Assert(err, IsNil)

	_, ok := stmtCache.lookup(db2, "SELECT 1")
	c.Check(ok, Equals, false)
}

func (s *CacheSuite) TestPrepareReportsBadText(c *C) {
	db := s.openDB(c)
	_, err := stmtCache.prepare(context.Background(), db, "SELEKT broken")
	c.Assert(err, NotNil)
	_, ok := stmtCache.lookup(db, "SELEKT broken")
	c.Check(ok, Equals, false)
}
