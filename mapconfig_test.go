// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

package forge_test

import (
	"context"
	"strings"

	. "gopkg.in/check.v1"

	"github.com/forgedb/forge"
	"github.com/forgedb/forge/dialect"
)

type MapConfigSuite struct{}

var _ = Suite(&MapConfigSuite{})

const personMaps = `
maps:
  - entity: Person
    table: people
    columns:
      - name: id
        type: INTEGER
      - name: name
        type: TEXT
        unique: true
      - name: team
        readonly: true
`

func (s *MapConfigSuite) TestLoadMapConfigs(c *C) {
	configs, err := forge.LoadMapConfigs(strings.NewReader(personMaps))
	c.Assert(err, IsNil)
	c.Assert(configs, HasLen, 1)
	c.Check(configs[0].Entity, Equals, "Person")
	c.Check(configs[0].Table, Equals, "people")
	c.Assert(configs[0].Columns, HasLen, 3)
	c.Check(configs[0].Columns[1].Type, Equals, "TEXT")
	c.Assert(configs[0].Columns[1].Unique, NotNil)
	c.Check(*configs[0].Columns[1].Unique, Equals, true)
	// Omitted flags stay nil so the tag values survive.
	c.Check(configs[0].Columns[0].Primary, IsNil)
}

func (s *MapConfigSuite) TestLoadMapConfigsErrors(c *C) {
	_, err := forge.LoadMapConfigs(strings.NewReader("maps:\n  - table: people\n"))
	c.Assert(err, ErrorMatches, "map config 0 has no entity name")

	_, err = forge.LoadMapConfigs(strings.NewReader("maps:\n  - entity: P\n  - entity: P\n"))
	c.Assert(err, ErrorMatches, `duplicate map config for entity "P"`)

	_, err = forge.LoadMapConfigs(strings.NewReader("maps:\n  - entity: P\n    columns:\n      - type: TEXT\n"))
	c.Assert(err, ErrorMatches, `map config for entity "P" has a column with no name`)

	_, err = forge.LoadMapConfigs(strings.NewReader("maps: {broken"))
	c.Assert(err, ErrorMatches, "cannot parse map config: .*")
}

func (s *MapConfigSuite) TestNewMapFromConfig(c *C) {
	configs, err := forge.LoadMapConfigs(strings.NewReader(personMaps))
	c.Assert(err, IsNil)

	m, err := forge.NewMapFromConfig(Person{}, configs[0])
	c.Assert(err, IsNil)
	c.Check(m.Table(), Equals, "people")

	// The tag's primary flag survives; the config adds unique and
	// readonly on top.
	e, _, err := m.Schema().Find("id")
	c.Assert(err, IsNil)
	c.Check(e.IsPrimaryKey, Equals, true)

	e, _, err = m.Schema().Find("name")
	c.Assert(err, IsNil)
	c.Check(e.IsUnique, Equals, true)

	e, _, err = m.Schema().Find("team")
	c.Assert(err, IsNil)
	c.Check(e.IsReadOnly, Equals, true)

	typ, ok := e.Meta("type")
	c.Check(ok, Equals, false)
	typ, ok = m.Schema().Entry(0).Meta("type")
	c.Assert(ok, Equals, true)
	c.Check(typ, Equals, "INTEGER")
}

func (s *MapConfigSuite) TestNewMapFromConfigUnknownColumn(c *C) {
	cfg := forge.MapConfig{
		Entity:  "Person",
		Columns: []forge.ColumnConfig{{Name: "bogus"}},
	}
	_, err := forge.NewMapFromConfig(Person{}, cfg)
	c.Assert(err, ErrorMatches, `map config for entity "Person": type "Person" has no "bogus" db tag`)
}

func (s *MapConfigSuite) TestConfigDoesNotLeakIntoOtherMaps(c *C) {
	configs, err := forge.LoadMapConfigs(strings.NewReader(personMaps))
	c.Assert(err, IsNil)
	_, err = forge.NewMapFromConfig(Person{}, configs[0])
	c.Assert(err, IsNil)

	// A plain map built afterwards sees the bare tag flags.
	plain, err := forge.NewMap(Person{}, "")
	c.Assert(err, IsNil)
	e, _, err := plain.Schema().Find("team")
	c.Assert(err, IsNil)
	c.Check(e.IsReadOnly, Equals, false)
}

func (s *MapConfigSuite) TestRepositoryLoadMaps(c *C) {
	db := createTestDB(c, "CREATE TABLE people (id INTEGER PRIMARY KEY, name TEXT, team TEXT)")
	repo := forge.NewRepository(db)
	err := repo.LoadMaps(strings.NewReader(personMaps), Person{})
	c.Assert(err, IsNil)

	m, err := repo.MapFor(&Person{})
	c.Assert(err, IsNil)
	c.Check(m.Table(), Equals, "people")
	c.Check(m.IsWeak(), Equals, false)

	// The readonly team column is skipped on insert.
	fred := &Person{Name: "Fred", Team: "eng"}
	c.Assert(repo.Insert(fred), IsNil)
	c.Assert(repo.Submit(context.Background()), IsNil)

	got := &Person{ID: fred.ID}
	c.Assert(repo.FindByPK(context.Background(), got), IsNil)
	c.Check(got.Name, Equals, "Fred")
	c.Check(got.Team, Equals, "")
}

func (s *MapConfigSuite) TestRepositoryLoadMapsMismatch(c *C) {
	repo := forge.NewRepository(createTestDB(c))
	err := repo.LoadMaps(strings.NewReader(personMaps), Address{})
	c.Assert(err, ErrorMatches, `no entity sample given for map config "Person"`)

	err = repo.LoadMaps(strings.NewReader(personMaps), Person{}, Address{})
	c.Assert(err, ErrorMatches, `no map config found for entity "Address"`)
}

func (s *MapConfigSuite) TestConfigDDL(c *C) {
	configs, err := forge.LoadMapConfigs(strings.NewReader(personMaps))
	c.Assert(err, IsNil)

	text, err := configs[0].CreateTableDDL(dialect.SQLite{})
	c.Assert(err, IsNil)
	c.Check(text, Equals, `CREATE TABLE "people" ("id" INTEGER, "name" TEXT UNIQUE, "team" TEXT)`)

	_, err = forge.MapConfig{Entity: "Person"}.CreateTableDDL(dialect.SQLite{})
	c.Assert(err, ErrorMatches, `map config for entity "Person" lists no columns`)
}

func (s *MapConfigSuite) TestTableMapDDL(c *C) {
	configs, err := forge.LoadMapConfigs(strings.NewReader(personMaps))
	c.Assert(err, IsNil)
	m, err := forge.NewMapFromConfig(Person{}, configs[0])
	c.Assert(err, IsNil)

	text := m.CreateTableDDL(dialect.SQLite{})
	c.Check(text, Equals, `CREATE TABLE "people" ("id" INTEGER, "name" TEXT UNIQUE, "team" TEXT, PRIMARY KEY ("id"))`)
}
