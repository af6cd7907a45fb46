// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

package forge

import (
	"fmt"
	"strings"

	"github.com/forgedb/forge/dialect"
)

// Update is the UPDATE command builder.
type Update struct {
	commandBase
	table string
	sets  []string
	where string
}

// NewUpdate returns an empty UPDATE builder for the dialect.
func NewUpdate(d dialect.Dialect) *Update {
	return &Update{commandBase: newCommandBase(d)}
}

// Table names the table to update.
func (u *Update) Table(table any) *Update {
	if u.err != nil {
		return u
	}
	frag, err := u.parser().Parse(table)
	if err != nil {
		u.fail(err)
		return u
	}
	u.table = frag
	return u
}

// Set adds column assignments. Values are extracted as parameters.
func (u *Update) Set(assignments ...any) *Update {
	if u.err != nil {
		return u
	}
	p := u.parser()
	for _, a := range assignments {
		column, value, err := p.ParseAssignment(a)
		if err != nil {
			u.fail(err)
			return u
		}
		u.sets = append(u.sets, column+" = "+value)
	}
	return u
}

// Where restricts the update. Repeated calls conjoin conditions with AND.
func (u *Update) Where(cond any) *Update {
	u.addWhere("AND", cond)
	return u
}

// OrWhere disjoins a condition with the restrictions accumulated so far.
func (u *Update) OrWhere(cond any) *Update {
	u.addWhere("OR", cond)
	return u
}

func (u *Update) addWhere(op string, cond any) {
	if u.err != nil {
		return
	}
	frag, err := u.parser().Parse(cond)
	if err != nil {
		u.fail(err)
		return
	}
	if u.where == "" {
		u.where = frag
		return
	}
	u.where = "(" + u.where + " " + op + " " + frag + ")"
}

// Text generates the UPDATE command text.
func (u *Update) Text() (string, error) {
	if u.err != nil {
		return "", u.err
	}
	if u.table == "" {
		return "", fmt.Errorf("update has no target table")
	}
	if len(u.sets) == 0 {
		return "", fmt.Errorf("update has no set list")
	}
	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(u.table)
	b.WriteString(" SET ")
	b.WriteString(strings.Join(u.sets, ", "))
	if u.where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(u.where)
	}
	return b.String(), nil
}

// Fragment renders the update as a nested command inside another parser.
func (u *Update) Fragment(p *Parser) (string, error) {
	text, err := u.Text()
	if err != nil {
		return "", err
	}
	return p.rebase(text, u.params)
}
