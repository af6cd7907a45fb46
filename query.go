// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

package forge

import (
	"fmt"
	"strings"

	"github.com/forgedb/forge/dialect"
)

// Query is the SELECT command builder. Clause methods parse their
// arguments immediately and accumulate the produced fragments; Text
// assembles the final command.
type Query struct {
	commandBase
	distinct bool
	selects  []string
	froms    []string
	joins    []string
	where    string
	groups   []string
	having   string
	orders   []string
	skip     int
	take     int
}

// NewQuery returns an empty SELECT builder for the dialect.
func NewQuery(d dialect.Dialect) *Query {
	return &Query{commandBase: newCommandBase(d), skip: 0, take: -1}
}

// Select adds items to the select list. Items may be strings (optionally
// "element AS alias"), operation trees, or nested commands. With no Select
// call the query selects *.
func (q *Query) Select(items ...any) *Query {
	if q.err != nil {
		return q
	}
	p := q.parser()
	for _, item := range items {
		frag, err := p.ParseAliased(item)
		if err != nil {
			q.fail(err)
			return q
		}
		q.selects = append(q.selects, frag)
	}
	return q
}

// Distinct makes the query select distinct rows.
func (q *Query) Distinct() *Query {
	q.distinct = true
	return q
}

// From adds table sources, optionally aliased.
func (q *Query) From(sources ...any) *Query {
	if q.err != nil {
		return q
	}
	p := q.parser()
	for _, src := range sources {
		frag, err := p.ParseAliased(src)
		if err != nil {
			q.fail(err)
			return q
		}
		q.froms = append(q.froms, frag)
	}
	return q
}

// Join adds an inner join on the given condition.
func (q *Query) Join(source any, on any) *Query {
	return q.join("JOIN", source, on)
}

// LeftJoin adds a left outer join on the given condition.
func (q *Query) LeftJoin(source any, on any) *Query {
	return q.join("LEFT JOIN", source, on)
}

func (q *Query) join(kind string, source any, on any) *Query {
	if q.err != nil {
		return q
	}
	p := q.parser()
	src, err := p.ParseAliased(source)
	if err != nil {
		q.fail(err)
		return q
	}
	cond, err := p.Parse(on)
	if err != nil {
		q.fail(err)
		return q
	}
	q.joins = append(q.joins, kind+" "+src+" ON "+cond)
	return q
}

// Where restricts the query. Repeated calls conjoin conditions with AND.
func (q *Query) Where(cond any) *Query {
	q.addWhere("AND", cond)
	return q
}

// OrWhere disjoins a condition with the restrictions accumulated so far.
func (q *Query) OrWhere(cond any) *Query {
	q.addWhere("OR", cond)
	return q
}

func (q *Query) addWhere(op string, cond any) {
	if q.err != nil {
		return
	}
	frag, err := q.parser().Parse(cond)
	if err != nil {
		q.fail(err)
		return
	}
	if q.where == "" {
		q.where = frag
		return
	}
	q.where = "(" + q.where + " " + op + " " + frag + ")"
}

// GroupBy adds grouping items.
func (q *Query) GroupBy(items ...any) *Query {
	if q.err != nil {
		return q
	}
	p := q.parser()
	for _, item := range items {
		frag, err := p.Parse(item)
		if err != nil {
			q.fail(err)
			return q
		}
		q.groups = append(q.groups, frag)
	}
	return q
}

// Having restricts grouped results. Repeated calls conjoin with AND.
func (q *Query) Having(cond any) *Query {
	if q.err != nil {
		return q
	}
	frag, err := q.parser().Parse(cond)
	if err != nil {
		q.fail(err)
		return q
	}
	if q.having == "" {
		q.having = frag
	} else {
		q.having = "(" + q.having + " AND " + frag + ")"
	}
	return q
}

// OrderBy adds ordering items. Direction is part of the item, e.g.
// OrderBy("name DESC") or OrderBy(optree.X().Member("name")).
func (q *Query) OrderBy(items ...any) *Query {
	if q.err != nil {
		return q
	}
	p := q.parser()
	for _, item := range items {
		frag, err := p.Parse(item)
		if err != nil {
			q.fail(err)
			return q
		}
		q.orders = append(q.orders, frag)
	}
	return q
}

// Skip discards the first n rows. How the paging is written is up to the
// dialect.
func (q *Query) Skip(n int) *Query {
	q.skip = n
	return q
}

// Take limits the query to n rows.
func (q *Query) Take(n int) *Query {
	q.take = n
	return q
}

// Top is an alias for Take.
func (q *Query) Top(n int) *Query {
	return q.Take(n)
}

// Text generates the SELECT command text.
func (q *Query) Text() (string, error) {
	if q.err != nil {
		return "", q.err
	}
	if len(q.froms) == 0 {
		return "", fmt.Errorf("query has no FROM clause")
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if q.distinct {
		b.WriteString("DISTINCT ")
	}
	if len(q.selects) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(strings.Join(q.selects, ", "))
	}
	b.WriteString(" FROM ")
	b.WriteString(strings.Join(q.froms, ", "))
	for _, join := range q.joins {
		b.WriteString(" ")
		b.WriteString(join)
	}
	if q.where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(q.where)
	}
	if len(q.groups) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(q.groups, ", "))
	}
	if q.having != "" {
		b.WriteString(" HAVING ")
		b.WriteString(q.having)
	}
	if len(q.orders) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(q.orders, ", "))
	}
	if q.skip > 0 || q.take >= 0 {
		b.WriteString(q.dialect.Pagination(q.skip, q.take))
	}
	return b.String(), nil
}

// Fragment renders the query as a nested command inside another parser.
func (q *Query) Fragment(p *Parser) (string, error) {
	text, err := q.Text()
	if err != nil {
		return "", err
	}
	return p.rebase(text, q.params)
}
