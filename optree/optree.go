// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

// Package optree defines the operation tree: a typed representation of the
// expressions accepted by the command parser. Trees are built with the
// fluent combinators on [Expr] and describe member accesses, method calls,
// indexers, operators, conversions and literal values. Nodes are immutable;
// combinators always allocate.
package optree

import (
	"fmt"
	"strings"
)

// Node is a single operation in an operation tree.
type Node interface {
	// String returns a debug representation of the node. It is not the
	// command text; text generation is the parser's job.
	String() string

	// node is a marker method.
	node()
}

// Op is a binary or unary operator.
type Op string

const (
	OpEq      Op = "="
	OpNe      Op = "<>"
	OpGt      Op = ">"
	OpGe      Op = ">="
	OpLt      Op = "<"
	OpLe      Op = "<="
	OpAnd     Op = "AND"
	OpOr      Op = "OR"
	OpAdd     Op = "+"
	OpSub     Op = "-"
	OpMul     Op = "*"
	OpDiv     Op = "/"
	OpMod     Op = "%"
	OpLike    Op = "LIKE"
	OpNotLike Op = "NOT LIKE"
	OpIn      Op = "IN"
	OpNotIn   Op = "NOT IN"
	OpIs      Op = "IS"
	OpIsNot   Op = "IS NOT"
	OpNot     Op = "NOT"
	OpNeg     Op = "-"
)

// Argument is the root of a member path. It stands for the imaginary row
// variable of the expression, e.g. the "x" in x.Name.
type Argument struct {
	Name string
}

func (a *Argument) String() string { return "Arg[" + a.Name + "]" }
func (a *Argument) node()          {}

// Member is a get-member operation on a parent node, e.g. x.Name or
// x.Employee.Id.
type Member struct {
	Of   Node
	Name string
}

func (m *Member) String() string { return fmt.Sprintf("Member[%s.%s]", m.Of, m.Name) }
func (m *Member) node()          {}

// Index is an indexer access on a parent node, e.g. x["Name"]. The key may
// itself be any node.
type Index struct {
	Of  Node
	Key Node
}

func (i *Index) String() string { return fmt.Sprintf("Index[%s[%s]]", i.Of, i.Key) }
func (i *Index) node()          {}

// Call is a method call on a parent node, e.g. x.Name.Upper(). The parser
// renders it as a function invocation with the receiver as first argument.
type Call struct {
	Of   Node
	Name string
	Args []Node
}

func (c *Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("Call[%s.%s(%s)]", c.Of, c.Name, strings.Join(args, ", "))
}
func (c *Call) node() {}

// Invoke is a direct invocation used as an escape hatch: its arguments are
// concatenated by the parser, with string arguments passed through verbatim
// and all others parsed as usual.
type Invoke struct {
	Args []Node
}

func (iv *Invoke) String() string {
	args := make([]string, len(iv.Args))
	for i, a := range iv.Args {
		args[i] = a.String()
	}
	return "Invoke[" + strings.Join(args, " ") + "]"
}
func (iv *Invoke) node() {}

// Binary is a binary operation between two nodes.
type Binary struct {
	Left  Node
	Op    Op
	Right Node
}

func (b *Binary) String() string { return fmt.Sprintf("Binary[%s %s %s]", b.Left, b.Op, b.Right) }
func (b *Binary) node()          {}

// Unary is a unary operation on a node.
type Unary struct {
	Op      Op
	Operand Node
}

func (u *Unary) String() string { return fmt.Sprintf("Unary[%s %s]", u.Op, u.Operand) }
func (u *Unary) node()          {}

// Convert is a conversion of a node to a named database type, rendered as a
// CAST by the parser.
type Convert struct {
	TypeName string
	Operand  Node
}

func (c *Convert) String() string { return fmt.Sprintf("Convert[%s AS %s]", c.Operand, c.TypeName) }
func (c *Convert) node()          {}

// SetMember is an assignment of a value to a member, used by the set lists
// of INSERT and UPDATE commands.
type SetMember struct {
	Target Node
	Value  Node
}

func (s *SetMember) String() string { return fmt.Sprintf("Set[%s = %s]", s.Target, s.Value) }
func (s *SetMember) node()          {}

// Alias attaches an alias to an element. It is only legal in clauses that
// admit aliasing (select lists, FROM and JOIN sources).
type Alias struct {
	Of    Node
	Alias string
}

func (a *Alias) String() string { return fmt.Sprintf("Alias[%s AS %s]", a.Of, a.Alias) }
func (a *Alias) node()          {}

// Constant is a literal value. The parser never writes the value into the
// command text; it is extracted into the parameter collection.
type Constant struct {
	Value any
}

func (c *Constant) String() string { return fmt.Sprintf("Const[%v]", c.Value) }
func (c *Constant) node()          {}

// List is an ordered list of nodes, used as the right operand of IN and
// NOT IN.
type List struct {
	Items []Node
}

func (l *List) String() string {
	items := make([]string, len(l.Items))
	for i, item := range l.Items {
		items[i] = item.String()
	}
	return "List[" + strings.Join(items, ", ") + "]"
}
func (l *List) node() {}
