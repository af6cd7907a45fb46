// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

package forge_test

import (
	. "gopkg.in/check.v1"

	"github.com/forgedb/forge"
	"github.com/forgedb/forge/dialect"
	"github.com/forgedb/forge/optree"
)

type CommandSuite struct{}

var _ = Suite(&CommandSuite{})

func (s *CommandSuite) TestQueryMinimal(c *C) {
	q := forge.NewQuery(nil).From("person")
	text, err := q.Text()
	c.Assert(err, IsNil)
	c.Check(text, Equals, "SELECT * FROM person")
	c.Check(q.Params().Len(), Equals, 0)
}

func (s *CommandSuite) TestQueryFull(c *C) {
	q := forge.NewQuery(dialect.ANSI{}).
		Select(optree.X().Member("team"), optree.X().Call("count", optree.X().Member("id")).As("total")).
		From("person AS p").
		Join("address AS a", optree.Invoked("a.id = p.address_id")).
		Where(optree.X().Member("age").Ge(21)).
		GroupBy(optree.X().Member("team")).
		Having(optree.X().Call("count", optree.X().Member("id")).Gt(3)).
		OrderBy("total DESC").
		Skip(10).
		Take(5)

	text, err := q.Text()
	c.Assert(err, IsNil)
	c.Check(text, Equals, "SELECT team, COUNT(id) AS total FROM person AS p "+
		"JOIN address AS a ON a.id = p.address_id "+
		"WHERE (age >= @p0) "+
		"GROUP BY team "+
		"HAVING (COUNT(id) > @p1) "+
		"ORDER BY total DESC "+
		"OFFSET 10 ROWS FETCH NEXT 5 ROWS ONLY")
	c.Check(q.Params().Names(), DeepEquals, []string{"p0", "p1"})
}

func (s *CommandSuite) TestQueryDistinct(c *C) {
	q := forge.NewQuery(nil).Distinct().Select(optree.X().Member("team")).From("person")
	text, err := q.Text()
	c.Assert(err, IsNil)
	c.Check(text, Equals, "SELECT DISTINCT team FROM person")
}

func (s *CommandSuite) TestQueryWhereAccumulates(c *C) {
	q := forge.NewQuery(nil).
		From("person").
		Where(optree.X().Member("age").Ge(21)).
		Where(optree.X().Member("team").Eq("eng")).
		OrWhere(optree.X().Member("name").Eq("root"))
	text, err := q.Text()
	c.Assert(err, IsNil)
	c.Check(text, Equals, "SELECT * FROM person WHERE "+
		"(((age >= @p0) AND (team = @p1)) OR (name = @p2))")
}

func (s *CommandSuite) TestQueryLeftJoin(c *C) {
	q := forge.NewQuery(nil).
		From("person AS p").
		LeftJoin("address AS a", optree.Invoked("a.id = p.address_id"))
	text, err := q.Text()
	c.Assert(err, IsNil)
	c.Check(text, Equals, "SELECT * FROM person AS p LEFT JOIN address AS a ON a.id = p.address_id")
}

func (s *CommandSuite) TestQueryAliasQualifiedColumns(c *C) {
	// Sources register their aliases as they parse, so arguments named
	// after them qualify column references in later clauses.
	q := forge.NewQuery(nil).
		From("person AS p").
		Join("address AS a", optree.Invoked("a.person_id = p.id")).
		Select(optree.Arg("p").Member("name"), optree.Arg("a").Member("city")).
		Where(optree.Arg("a").Member("city").Eq("London"))
	text, err := q.Text()
	c.Assert(err, IsNil)
	c.Check(text, Equals, "SELECT p.name, a.city FROM person AS p "+
		"JOIN address AS a ON a.person_id = p.id WHERE (a.city = @p0)")
}

func (s *CommandSuite) TestQueryPaginationSQLite(c *C) {
	q := forge.NewQuery(dialect.SQLite{}).From("person").Skip(10).Take(5)
	text, err := q.Text()
	c.Assert(err, IsNil)
	c.Check(text, Equals, "SELECT * FROM person LIMIT 5 OFFSET 10")

	q = forge.NewQuery(dialect.SQLite{}).From("person").Skip(10)
	text, err = q.Text()
	c.Assert(err, IsNil)
	c.Check(text, Equals, "SELECT * FROM person LIMIT -1 OFFSET 10")
}

func (s *CommandSuite) TestQueryNoFrom(c *C) {
	_, err := forge.NewQuery(nil).Text()
	c.Assert(err, ErrorMatches, "query has no FROM clause")
}

func (s *CommandSuite) TestQueryErrorSticks(c *C) {
	q := forge.NewQuery(nil).
		From("person").
		Where(optree.X()).
		Where(optree.X().Member("age").Ge(21))
	_, err := q.Text()
	c.Assert(err, ErrorMatches, `cannot parse expression: naked argument "x" cannot be used as an expression`)
	// Later clauses were ignored after the failure.
	c.Check(q.Params().Len(), Equals, 0)
}

func (s *CommandSuite) TestQueryAsSubquery(c *C) {
	sub := forge.NewQuery(nil).
		Select(optree.X().Member("id")).
		From("address").
		Where(optree.X().Member("city").Eq("London"))
	q := forge.NewQuery(nil).
		From("person").
		Where(optree.X().Member("team").Eq("eng")).
		Where(optree.X().Member("address_id").In(sub))

	text, err := q.Text()
	c.Assert(err, IsNil)
	c.Check(text, Equals, "SELECT * FROM person WHERE "+
		"((team = @p0) AND (address_id IN (SELECT id FROM address WHERE (city = @p1))))")

	// The subquery's parameter was migrated into the outer command.
	c.Check(q.Params().Names(), DeepEquals, []string{"p0", "p1"})
	prm, ok := q.Params().Get("p1")
	c.Assert(ok, Equals, true)
	c.Check(prm.Value, Equals, "London")
}

func (s *CommandSuite) TestQueryAsComparisonOperand(c *C) {
	sub := forge.NewQuery(nil).
		Select(optree.X().Call("max", optree.X().Member("age"))).
		From("person")
	q := forge.NewQuery(nil).
		From("person").
		Where(optree.X().Member("age").Eq(sub))

	text, err := q.Text()
	c.Assert(err, IsNil)
	c.Check(text, Equals, "SELECT * FROM person WHERE (age = (SELECT MAX(age) FROM person))")
}

func (s *CommandSuite) TestInsert(c *C) {
	i := forge.NewInsert(nil).
		Into("person").
		Set(optree.X().Member("name").Assign("Fred"), optree.X().Member("age").Assign(30))
	text, err := i.Text()
	c.Assert(err, IsNil)
	c.Check(text, Equals, "INSERT INTO person (name, age) VALUES (@p0, @p1)")
	c.Check(i.Params().Names(), DeepEquals, []string{"p0", "p1"})
}

func (s *CommandSuite) TestInsertDuplicateColumn(c *C) {
	i := forge.NewInsert(nil).
		Into("person").
		Set(optree.X().Member("name").Assign("Fred")).
		Set(optree.X().Member("name").Assign("Barney"))
	_, err := i.Text()
	c.Assert(err, ErrorMatches, `column "name" set twice`)
}

func (s *CommandSuite) TestInsertIncomplete(c *C) {
	_, err := forge.NewInsert(nil).Text()
	c.Assert(err, ErrorMatches, "insert has no target table")

	_, err = forge.NewInsert(nil).Into("person").Text()
	c.Assert(err, ErrorMatches, "insert has no columns")
}

func (s *CommandSuite) TestUpdate(c *C) {
	u := forge.NewUpdate(nil).
		Table("person").
		Set(optree.X().Member("team").Assign("sre")).
		Where(optree.X().Member("id").Eq(7))
	text, err := u.Text()
	c.Assert(err, IsNil)
	c.Check(text, Equals, "UPDATE person SET team = @p0 WHERE (id = @p1)")
}

func (s *CommandSuite) TestUpdateWithoutWhere(c *C) {
	// An update without restriction is legal, unlike a delete.
	u := forge.NewUpdate(nil).
		Table("person").
		Set(optree.X().Member("team").Assign("sre"))
	text, err := u.Text()
	c.Assert(err, IsNil)
	c.Check(text, Equals, "UPDATE person SET team = @p0")
}

func (s *CommandSuite) TestUpdateIncomplete(c *C) {
	_, err := forge.NewUpdate(nil).Text()
	c.Assert(err, ErrorMatches, "update has no target table")

	_, err = forge.NewUpdate(nil).Table("person").Text()
	c.Assert(err, ErrorMatches, "update has no set list")
}

func (s *CommandSuite) TestDelete(c *C) {
	d := forge.NewDelete(nil).
		From("person").
		Where(optree.X().Member("id").Eq(7))
	text, err := d.Text()
	c.Assert(err, IsNil)
	c.Check(text, Equals, "DELETE FROM person WHERE (id = @p0)")
}

func (s *CommandSuite) TestDeleteRefusesBareTable(c *C) {
	_, err := forge.NewDelete(nil).From("person").Text()
	c.Assert(err, ErrorMatches, "delete without WHERE clause: call AllRows to delete every row")
}

func (s *CommandSuite) TestDeleteAllRows(c *C) {
	d := forge.NewDelete(nil).From("person").AllRows()
	text, err := d.Text()
	c.Assert(err, IsNil)
	c.Check(text, Equals, "DELETE FROM person")
}

func (s *CommandSuite) TestRaw(c *C) {
	r := forge.NewRaw(nil).
		Append("SELECT name FROM person").
		Append("WHERE age > {0} AND team = {1}", 21, "eng")
	text, err := r.Text()
	c.Assert(err, IsNil)
	c.Check(text, Equals, "SELECT name FROM person WHERE age > @p0 AND team = @p1")
	c.Check(r.Params().Names(), DeepEquals, []string{"p0", "p1"})
}

func (s *CommandSuite) TestRawEmpty(c *C) {
	_, err := forge.NewRaw(nil).Text()
	c.Assert(err, ErrorMatches, "raw command is empty")
}

func (s *CommandSuite) TestRawNestedCommand(c *C) {
	sub := forge.NewQuery(nil).
		Select(optree.X().Member("id")).
		From("address").
		Where(optree.X().Member("city").Eq("Paris"))
	r := forge.NewRaw(nil).
		Append("SELECT * FROM person WHERE address_id IN {0}", sub)
	text, err := r.Text()
	c.Assert(err, IsNil)
	c.Check(text, Equals, "SELECT * FROM person WHERE address_id IN "+
		"(SELECT id FROM address WHERE (city = @p0))")
	prm, ok := r.Params().Get("p0")
	c.Assert(ok, Equals, true)
	c.Check(prm.Value, Equals, "Paris")
}

func (s *CommandSuite) TestAliasBookkeeping(c *C) {
	q := forge.NewQuery(nil).
		Select(optree.X().Member("name").As("n")).
		From("person AS p")
	_, err := q.Text()
	c.Assert(err, IsNil)
	c.Check(q.Aliases().Len(), Equals, 2)
	element, ok := q.Aliases().Resolve("n")
	c.Assert(ok, Equals, true)
	c.Check(element, Equals, "name")
}

func (s *CommandSuite) TestParametersNamed(c *C) {
	ps := forge.NewParameters()
	_, err := ps.AddNamed("cutoff", 21)
	c.Assert(err, IsNil)
	_, err = ps.AddNamed("cutoff", 30)
	c.Assert(err, ErrorMatches, `parameter "cutoff" already present`)

	// Auto names skip taken ones.
	ps2 := forge.NewParameters()
	_, err = ps2.AddNamed("p0", "taken")
	c.Assert(err, IsNil)
	prm := ps2.Add("fresh")
	c.Check(prm.Name, Equals, "p1")
}
