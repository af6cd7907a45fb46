// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

package forge

import (
	"github.com/forgedb/forge/dialect"
)

// Command is a mutable builder that accumulates clause fragments and can
// render itself as dialect command text plus a parameter collection.
type Command interface {
	// Text generates the command text. It returns an error if any clause
	// method failed or the command is incomplete.
	Text() (string, error)

	// Params returns the values extracted while the clauses were built, in
	// placeholder order.
	Params() *Parameters
}

// commandBase carries the state shared by all command objects. Clause
// methods parse their arguments at call time, so parameters accumulate in
// the order the clauses were invoked.
type commandBase struct {
	dialect dialect.Dialect
	params  *Parameters
	aliases *AliasList
	err     error
}

func newCommandBase(d dialect.Dialect) commandBase {
	if d == nil {
		d = dialect.Default()
	}
	return commandBase{
		dialect: d,
		params:  NewParameters(),
		aliases: NewAliasList(),
	}
}

// Params returns the command's parameter collection.
func (c *commandBase) Params() *Parameters {
	return c.params
}

// Aliases returns the command's alias bookkeeping.
func (c *commandBase) Aliases() *AliasList {
	return c.aliases
}

// Dialect returns the dialect the command renders text for.
func (c *commandBase) Dialect() dialect.Dialect {
	return c.dialect
}

// Err returns the first error raised while building clauses, if any.
func (c *commandBase) Err() error {
	return c.err
}

// fail records the first clause error. Later clause calls on a failed
// command are ignored so errors surface once, from Text.
func (c *commandBase) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *commandBase) parser() *Parser {
	return &Parser{dialect: c.dialect, params: c.params, aliases: c.aliases}
}
