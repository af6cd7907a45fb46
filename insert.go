// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

package forge

import (
	"fmt"
	"strings"

	"github.com/forgedb/forge/dialect"
)

// Insert is the INSERT command builder. Columns and values are given as
// assignment expressions, e.g. Set(optree.X().Member("name").Assign("Fred")).
type Insert struct {
	commandBase
	table   string
	columns []string
	values  []string
}

// NewInsert returns an empty INSERT builder for the dialect.
func NewInsert(d dialect.Dialect) *Insert {
	return &Insert{commandBase: newCommandBase(d)}
}

// Into names the target table. It accepts a string or an operation tree
// member naming the table.
func (i *Insert) Into(table any) *Insert {
	if i.err != nil {
		return i
	}
	frag, err := i.parser().Parse(table)
	if err != nil {
		i.fail(err)
		return i
	}
	i.table = frag
	return i
}

// Set adds column assignments. Values are extracted as parameters.
func (i *Insert) Set(assignments ...any) *Insert {
	if i.err != nil {
		return i
	}
	p := i.parser()
	for _, a := range assignments {
		column, value, err := p.ParseAssignment(a)
		if err != nil {
			i.fail(err)
			return i
		}
		for _, have := range i.columns {
			if have == column {
				i.fail(fmt.Errorf("column %q set twice", column))
				return i
			}
		}
		i.columns = append(i.columns, column)
		i.values = append(i.values, value)
	}
	return i
}

// Text generates the INSERT command text.
func (i *Insert) Text() (string, error) {
	if i.err != nil {
		return "", i.err
	}
	if i.table == "" {
		return "", fmt.Errorf("insert has no target table")
	}
	if len(i.columns) == 0 {
		return "", fmt.Errorf("insert has no columns")
	}
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(i.table)
	b.WriteString(" (")
	b.WriteString(strings.Join(i.columns, ", "))
	b.WriteString(") VALUES (")
	b.WriteString(strings.Join(i.values, ", "))
	b.WriteString(")")
	return b.String(), nil
}

// Fragment renders the insert as a nested command inside another parser.
func (i *Insert) Fragment(p *Parser) (string, error) {
	text, err := i.Text()
	if err != nil {
		return "", err
	}
	return p.rebase(text, i.params)
}
