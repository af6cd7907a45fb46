// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

package forge_test

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	. "gopkg.in/check.v1"

	"github.com/forgedb/forge"
	"github.com/forgedb/forge/dialect"
	"github.com/forgedb/forge/optree"
)

type PackageSuite struct{}

var _ = Suite(&PackageSuite{})

type Person struct {
	ID   int    `db:"id,primary,omitempty"`
	Name string `db:"name"`
	Team string `db:"team"`
}

type Address struct {
	ID       int    `db:"id,primary,omitempty"`
	PersonID int    `db:"person_id"`
	City     string `db:"city"`
}

func createTestDB(c *C, extraDDL ...string) *forge.DB {
	sqldb, err := sql.Open("sqlite3", ":memory:")
	c.Assert(err, IsNil)

	ddl := []string{
		"CREATE TABLE person (id INTEGER PRIMARY KEY, name TEXT, team TEXT)",
		"CREATE TABLE address (id INTEGER PRIMARY KEY, person_id INTEGER, city TEXT)",
	}
	for _, stmt := range append(ddl, extraDDL...) {
		_, err = sqldb.Exec(stmt)
		c.Assert(err, IsNil)
	}
	return forge.NewDB(sqldb, dialect.SQLite{})
}

func insertPeople(c *C, db *forge.DB, people ...Person) {
	for _, p := range people {
		i := db.NewInsert().Into("person").Set(
			optree.X().Member("name").Assign(p.Name),
			optree.X().Member("team").Assign(p.Team),
		)
		_, err := db.Run(nil, i)
		c.Assert(err, IsNil)
	}
}

func (s *PackageSuite) TestRunAndRecords(c *C) {
	db := createTestDB(c)
	insertPeople(c, db,
		Person{Name: "Fred", Team: "eng"},
		Person{Name: "Barney", Team: "ops"},
		Person{Name: "Wilma", Team: "eng"},
	)

	q := db.NewQuery().
		Select(optree.X().Member("name")).
		From("person").
		Where(optree.X().Member("team").Eq("eng")).
		OrderBy("name")
	iter, err := db.Records(nil, q)
	c.Assert(err, IsNil)

	recs, err := iter.All()
	c.Assert(err, IsNil)
	c.Assert(recs, HasLen, 2)

	name, err := recs[0].Value("name")
	c.Assert(err, IsNil)
	c.Check(name, Equals, "Barney")
	name, err = recs[1].Value("name")
	c.Assert(err, IsNil)
	c.Check(name, Equals, "Fred")
}

func (s *PackageSuite) TestOutcome(c *C) {
	db := createTestDB(c)
	insertPeople(c, db, Person{Name: "Fred", Team: "eng"})

	u := db.NewUpdate().
		Table("person").
		Set(optree.X().Member("team").Assign("sre")).
		Where(optree.X().Member("name").Eq("Fred"))
	outcome, err := db.Run(nil, u)
	c.Assert(err, IsNil)
	affected, err := outcome.RowsAffected()
	c.Assert(err, IsNil)
	c.Check(affected, Equals, int64(1))
}

func (s *PackageSuite) TestDuplicateResultColumns(c *C) {
	db := createTestDB(c)
	insertPeople(c, db, Person{Name: "Fred", Team: "eng"})
	_, err := db.PlainDB().Exec("INSERT INTO address (person_id, city) VALUES (1, 'London')")
	c.Assert(err, IsNil)

	r := db.NewRaw().Append("SELECT p.id, a.id FROM person AS p JOIN address AS a ON a.person_id = p.id")
	iter, err := db.Records(nil, r)
	c.Assert(err, IsNil)
	defer iter.Close()

	sch := iter.Schema()
	c.Assert(sch.Len(), Equals, 2)
	c.Check(sch.Entry(0).Column, Equals, "id")
	c.Check(sch.Entry(1).Column, Equals, "id_1")
	origin, ok := sch.Entry(1).Meta("origin")
	c.Assert(ok, Equals, true)
	c.Check(origin, Equals, "id")
}

func (s *PackageSuite) TestTransactionCommitAndRollback(c *C) {
	db := createTestDB(c)
	ctx := context.Background()

	tx, err := db.Begin(ctx, nil)
	c.Assert(err, IsNil)
	i := db.NewInsert().Into("person").Set(
		optree.X().Member("name").Assign("Fred"),
		optree.X().Member("team").Assign("eng"),
	)
	_, err = tx.Run(ctx, i)
	c.Assert(err, IsNil)
	c.Assert(tx.Commit(), IsNil)
	c.Assert(tx.Commit(), Equals, forge.ErrTXDone)

	tx, err = db.Begin(ctx, nil)
	c.Assert(err, IsNil)
	d := db.NewDelete().From("person").AllRows()
	_, err = tx.Run(ctx, d)
	c.Assert(err, IsNil)
	c.Assert(tx.Rollback(), IsNil)

	// The delete was rolled back.
	q := db.NewQuery().Select(optree.X().Call("count", optree.X().Member("id"))).From("person")
	iter, err := db.Records(ctx, q)
	c.Assert(err, IsNil)
	recs, err := iter.All()
	c.Assert(err, IsNil)
	c.Assert(recs, HasLen, 1)
	c.Check(recs[0].ValueAt(0), Equals, int64(1))
}

func (s *PackageSuite) TestRepositoryInsert(c *C) {
	db := createTestDB(c)
	repo := forge.NewRepository(db)

	fred := &Person{Name: "Fred", Team: "eng"}
	barney := &Person{Name: "Barney", Team: "ops"}
	c.Assert(repo.Insert(fred, barney), IsNil)

	me, ok := repo.Meta(fred)
	c.Assert(ok, Equals, true)
	c.Check(me.State(), Equals, forge.StateToInsert)

	c.Assert(repo.Submit(context.Background()), IsNil)

	// Generated keys were adopted and the entities settled.
	c.Check(fred.ID, Not(Equals), 0)
	c.Check(barney.ID, Not(Equals), 0)
	c.Check(me.State(), Equals, forge.StateReady)
}

func (s *PackageSuite) TestRepositoryUpdateWritesOnlyChanges(c *C) {
	db := createTestDB(c)
	repo := forge.NewRepository(db)
	ctx := context.Background()

	fred := &Person{Name: "Fred", Team: "eng"}
	c.Assert(repo.Insert(fred), IsNil)
	c.Assert(repo.Submit(ctx), IsNil)

	fred.Team = "sre"
	c.Assert(repo.Update(fred), IsNil)

	me, _ := repo.Meta(fred)
	changed, err := me.HasChanges()
	c.Assert(err, IsNil)
	c.Check(changed, Equals, true)

	c.Assert(repo.Submit(ctx), IsNil)

	got := &Person{ID: fred.ID}
	c.Assert(forge.NewRepository(db).FindByPK(ctx, got), IsNil)
	c.Check(got.Team, Equals, "sre")
	c.Check(got.Name, Equals, "Fred")
}

func (s *PackageSuite) TestRepositoryUpdateNoChangesIsNoop(c *C) {
	db := createTestDB(c)
	repo := forge.NewRepository(db)
	ctx := context.Background()

	fred := &Person{Name: "Fred", Team: "eng"}
	c.Assert(repo.Insert(fred), IsNil)
	c.Assert(repo.Submit(ctx), IsNil)

	c.Assert(repo.Update(fred), IsNil)
	c.Assert(repo.Submit(ctx), IsNil)

	me, ok := repo.Meta(fred)
	c.Assert(ok, Equals, true)
	c.Check(me.State(), Equals, forge.StateReady)
}

func (s *PackageSuite) TestRepositoryDelete(c *C) {
	db := createTestDB(c)
	repo := forge.NewRepository(db)
	ctx := context.Background()

	fred := &Person{Name: "Fred", Team: "eng"}
	c.Assert(repo.Insert(fred), IsNil)
	c.Assert(repo.Submit(ctx), IsNil)

	c.Assert(repo.Delete(fred), IsNil)
	c.Assert(repo.Submit(ctx), IsNil)

	_, ok := repo.Meta(fred)
	c.Check(ok, Equals, false)

	err := repo.FindByPK(ctx, &Person{ID: fred.ID})
	c.Assert(err, Equals, forge.ErrNoRows)
}

func (s *PackageSuite) TestRepositoryDeletePendingInsertDetaches(c *C) {
	db := createTestDB(c)
	repo := forge.NewRepository(db)

	fred := &Person{Name: "Fred", Team: "eng"}
	c.Assert(repo.Insert(fred), IsNil)
	c.Assert(repo.Delete(fred), IsNil)

	_, ok := repo.Meta(fred)
	c.Check(ok, Equals, false)
	c.Assert(repo.Submit(context.Background()), IsNil)
}

func (s *PackageSuite) TestRepositorySave(c *C) {
	db := createTestDB(c)
	repo := forge.NewRepository(db)
	ctx := context.Background()

	fred := &Person{Name: "Fred", Team: "eng"}
	c.Assert(repo.Save(fred), IsNil)
	me, _ := repo.Meta(fred)
	c.Check(me.State(), Equals, forge.StateToInsert)
	c.Assert(repo.Submit(ctx), IsNil)

	fred.Team = "sre"
	repo2 := forge.NewRepository(db)
	c.Assert(repo2.Save(fred), IsNil)
	me2, _ := repo2.Meta(fred)
	c.Check(me2.State(), Equals, forge.StateToUpdate)
	c.Assert(repo2.Submit(ctx), IsNil)
}

func (s *PackageSuite) TestRepositoryRollbackRestoresStates(c *C) {
	db := createTestDB(c, "CREATE UNIQUE INDEX person_name ON person (name)")
	repo := forge.NewRepository(db)

	fred := &Person{Name: "Fred", Team: "eng"}
	clone := &Person{Name: "Fred", Team: "ops"}
	c.Assert(repo.Insert(fred, clone), IsNil)

	err := repo.Submit(context.Background())
	c.Assert(err, NotNil)

	// Both pending inserts survived the rollback.
	me, _ := repo.Meta(fred)
	c.Check(me.State(), Equals, forge.StateToInsert)
	me, _ = repo.Meta(clone)
	c.Check(me.State(), Equals, forge.StateToInsert)
	c.Check(fred.ID, Equals, 0)
}

func (s *PackageSuite) TestRepositoryWeakMap(c *C) {
	repo := forge.NewRepository(createTestDB(c))
	m, err := repo.MapFor(&Person{})
	c.Assert(err, IsNil)
	c.Check(m.IsWeak(), Equals, true)
	c.Check(m.Table(), Equals, "person")
	c.Check(m.Columns(), DeepEquals, []string{"id", "name", "team"})

	// Registering a real map replaces the weak one.
	strong, err := forge.NewMap(Person{}, "people")
	c.Assert(err, IsNil)
	c.Assert(repo.Register(strong), IsNil)
	m, err = repo.MapFor(&Person{})
	c.Assert(err, IsNil)
	c.Check(m.Table(), Equals, "people")
	c.Check(m.IsWeak(), Equals, false)

	// A second strong registration is refused.
	c.Assert(repo.Register(strong), ErrorMatches, `map for entity type "Person" already registered`)
}

func (s *PackageSuite) TestRepositoryFetchAll(c *C) {
	db := createTestDB(c)
	insertPeople(c, db,
		Person{Name: "Fred", Team: "eng"},
		Person{Name: "Barney", Team: "ops"},
		Person{Name: "Wilma", Team: "eng"},
	)
	repo := forge.NewRepository(db)

	q, err := repo.NewQueryFor(Person{})
	c.Assert(err, IsNil)
	q.Where(optree.X().Member("team").Eq("eng")).OrderBy("name")

	var people []Person
	c.Assert(repo.FetchAll(context.Background(), q, &people), IsNil)
	c.Assert(people, HasLen, 2)
	c.Check(people[0].Name, Equals, "Barney")
	c.Check(people[1].Name, Equals, "Wilma")
	c.Check(people[0].ID, Not(Equals), 0)
}

func (s *PackageSuite) TestRepositoryFetchOne(c *C) {
	db := createTestDB(c)
	insertPeople(c, db, Person{Name: "Fred", Team: "eng"})
	repo := forge.NewRepository(db)

	q, err := repo.NewQueryFor(Person{})
	c.Assert(err, IsNil)
	q.Where(optree.X().Member("name").Eq("Fred"))

	got := &Person{}
	c.Assert(repo.FetchOne(context.Background(), q, got), IsNil)
	c.Check(got.Team, Equals, "eng")

	q2, err := repo.NewQueryFor(Person{})
	c.Assert(err, IsNil)
	q2.Where(optree.X().Member("name").Eq("Nobody"))
	err = repo.FetchOne(context.Background(), q2, &Person{})
	c.Assert(err, Equals, forge.ErrNoRows)
}

func (s *PackageSuite) TestRepositoryRefusesValues(c *C) {
	repo := forge.NewRepository(createTestDB(c))
	err := repo.Insert(Person{Name: "Fred"})
	c.Assert(err, ErrorMatches, "need pointer to entity struct, got struct")
}
