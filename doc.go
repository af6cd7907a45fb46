/*
Forge is a query builder and lightweight entity mapper for SQL databases.

Commands are built out of typed expression trees instead of SQL text.
The trees are rendered to parameterised command text through a dialect, so the
same command object can target different database engines.
On top of the commands sits an entity layer that maps tagged Go structs to
tables and flushes tracked changes as one unit of work.

# Commands

A command accumulates clause fragments and produces its text on demand.
Expression trees are built with the combinators in the optree package; the
zero argument X() stands for the row under consideration:

	q := forge.NewQuery(dialect.SQLite{}).
		Select(optree.X().Member("name"), optree.X().Member("age")).
		From("person").
		Where(optree.X().Member("age").Ge(21))
	text, err := q.Text()
	// => SELECT name, age FROM person WHERE (age >= @p0)

Values folded into an expression become named parameters, never literal text.
The parameters are collected on the command and handed to the driver with the
generated text.

Query, Insert, Update and Delete cover the usual statement shapes.
Raw covers everything else; its text chunks use {0}, {1}, ... markers that are
replaced by parameter placeholders:

	r := forge.NewRaw(nil).Append("SELECT count(*) FROM person WHERE age > {0}", 21)

Commands nest: a Query used as a value inside another command is folded in as
a parenthesised subquery, with its parameters migrated into the outer command.

# Entities

Entity structs bind fields to columns with `db` tags:

	type Person struct {
		ID   int    `db:"id,primary,omitempty"`
		Name string `db:"name"`
		Team string `db:"team"`
	}

A Repository tracks entity instances and queues inserts, updates and deletes.
Submit flushes the queue inside one transaction; updates only write the
columns that changed since the entity was last tracked or flushed.

	repo := forge.NewRepository(db)
	repo.Insert(&Person{Name: "Fred", Team: "engineering"})
	err := repo.Submit(ctx)

Table maps are derived from the `db` tags on first use.
They can also be registered explicitly, or loaded from a YAML map config that
overrides table names and column flags without touching the struct tags.
*/
package forge
