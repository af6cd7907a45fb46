// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

package forge

import (
	"fmt"
	"strings"

	"github.com/forgedb/forge/dialect"
)

// Delete is the DELETE command builder. A delete without a WHERE clause is
// refused unless AllRows is invoked explicitly.
type Delete struct {
	commandBase
	table   string
	where   string
	allRows bool
}

// NewDelete returns an empty DELETE builder for the dialect.
func NewDelete(d dialect.Dialect) *Delete {
	return &Delete{commandBase: newCommandBase(d)}
}

// From names the table to delete from.
func (d *Delete) From(table any) *Delete {
	if d.err != nil {
		return d
	}
	frag, err := d.parser().Parse(table)
	if err != nil {
		d.fail(err)
		return d
	}
	d.table = frag
	return d
}

// Where restricts the delete. Repeated calls conjoin conditions with AND.
func (d *Delete) Where(cond any) *Delete {
	d.addWhere("AND", cond)
	return d
}

// OrWhere disjoins a condition with the restrictions accumulated so far.
func (d *Delete) OrWhere(cond any) *Delete {
	d.addWhere("OR", cond)
	return d
}

func (d *Delete) addWhere(op string, cond any) {
	if d.err != nil {
		return
	}
	frag, err := d.parser().Parse(cond)
	if err != nil {
		d.fail(err)
		return
	}
	if d.where == "" {
		d.where = frag
		return
	}
	d.where = "(" + d.where + " " + op + " " + frag + ")"
}

// AllRows allows the delete to run without a WHERE clause.
func (d *Delete) AllRows() *Delete {
	d.allRows = true
	return d
}

// Text generates the DELETE command text.
func (d *Delete) Text() (string, error) {
	if d.err != nil {
		return "", d.err
	}
	if d.table == "" {
		return "", fmt.Errorf("delete has no target table")
	}
	if d.where == "" && !d.allRows {
		return "", fmt.Errorf("delete without WHERE clause: call AllRows to delete every row")
	}
	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(d.table)
	if d.where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(d.where)
	}
	return b.String(), nil
}

// Fragment renders the delete as a nested command inside another parser.
func (d *Delete) Fragment(p *Parser) (string, error) {
	text, err := d.Text()
	if err != nil {
		return "", err
	}
	return p.rebase(text, d.params)
}
