// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

package optree

// Expr is a fluent handle on a node. All combinators return a new Expr and
// leave the receiver untouched, so a partially built expression can be
// reused as the prefix of several trees.
type Expr struct {
	n Node
}

// Arg starts an expression rooted at the named row variable.
func Arg(name string) Expr {
	return Expr{n: &Argument{Name: name}}
}

// X is shorthand for Arg("x"), the conventional row variable.
func X() Expr {
	return Arg("x")
}

// Lit wraps a literal value. Literals are extracted into the parameter
// collection at parse time, never written into the command text.
func Lit(v any) Expr {
	return Expr{n: &Constant{Value: v}}
}

// Wrap builds an Expr from an existing node.
func Wrap(n Node) Expr {
	return Expr{n: n}
}

// Node returns the underlying operation tree.
func (e Expr) Node() Node {
	return e.n
}

// Member accesses a member of the expression, e.g. Arg("x").Member("Name").
func (e Expr) Member(name string) Expr {
	return Expr{n: &Member{Of: e.n, Name: name}}
}

// Index accesses the expression through an indexer, e.g. x["Name"].
func (e Expr) Index(key any) Expr {
	return Expr{n: &Index{Of: e.n, Key: nodeOf(key)}}
}

// Call invokes a method on the expression. The parser renders it as a
// function with the receiver as first argument.
func (e Expr) Call(name string, args ...any) Expr {
	return Expr{n: &Call{Of: e.n, Name: name, Args: nodesOf(args)}}
}

// Convert casts the expression to the named database type.
func (e Expr) Convert(typeName string) Expr {
	return Expr{n: &Convert{TypeName: typeName, Operand: e.n}}
}

// As attaches an alias to the expression.
func (e Expr) As(alias string) Expr {
	return Expr{n: &Alias{Of: e.n, Alias: alias}}
}

// Assign builds a set-member operation assigning v to the expression.
func (e Expr) Assign(v any) Expr {
	return Expr{n: &SetMember{Target: e.n, Value: nodeOf(v)}}
}

func (e Expr) binary(op Op, v any) Expr {
	return Expr{n: &Binary{Left: e.n, Op: op, Right: nodeOf(v)}}
}

// Eq compares the expression for equality. Eq(nil) renders as IS NULL.
func (e Expr) Eq(v any) Expr { return e.binary(OpEq, v) }

// Ne compares the expression for inequality. Ne(nil) renders as IS NOT NULL.
func (e Expr) Ne(v any) Expr { return e.binary(OpNe, v) }

func (e Expr) Gt(v any) Expr { return e.binary(OpGt, v) }
func (e Expr) Ge(v any) Expr { return e.binary(OpGe, v) }
func (e Expr) Lt(v any) Expr { return e.binary(OpLt, v) }
func (e Expr) Le(v any) Expr { return e.binary(OpLe, v) }

func (e Expr) Add(v any) Expr { return e.binary(OpAdd, v) }
func (e Expr) Sub(v any) Expr { return e.binary(OpSub, v) }
func (e Expr) Mul(v any) Expr { return e.binary(OpMul, v) }
func (e Expr) Div(v any) Expr { return e.binary(OpDiv, v) }
func (e Expr) Mod(v any) Expr { return e.binary(OpMod, v) }

func (e Expr) Like(pattern any) Expr    { return e.binary(OpLike, pattern) }
func (e Expr) NotLike(pattern any) Expr { return e.binary(OpNotLike, pattern) }

// In builds an IN operation against a list of values or a nested value such
// as a subquery expression.
func (e Expr) In(vals ...any) Expr {
	return Expr{n: &Binary{Left: e.n, Op: OpIn, Right: &List{Items: nodesOf(vals)}}}
}

// NotIn builds a NOT IN operation.
func (e Expr) NotIn(vals ...any) Expr {
	return Expr{n: &Binary{Left: e.n, Op: OpNotIn, Right: &List{Items: nodesOf(vals)}}}
}

// IsNull renders as IS NULL.
func (e Expr) IsNull() Expr { return e.binary(OpIs, nil) }

// IsNotNull renders as IS NOT NULL.
func (e Expr) IsNotNull() Expr { return e.binary(OpIsNot, nil) }

// And conjoins this expression with another.
func (e Expr) And(o Expr) Expr {
	return Expr{n: &Binary{Left: e.n, Op: OpAnd, Right: o.n}}
}

// Or disjoins this expression with another.
func (e Expr) Or(o Expr) Expr {
	return Expr{n: &Binary{Left: e.n, Op: OpOr, Right: o.n}}
}

// Not negates a boolean expression.
func Not(e Expr) Expr {
	return Expr{n: &Unary{Op: OpNot, Operand: e.n}}
}

// Neg negates a numeric expression.
func Neg(e Expr) Expr {
	return Expr{n: &Unary{Op: OpNeg, Operand: e.n}}
}

// And conjoins a series of expressions left to right.
func And(exprs ...Expr) Expr {
	return conjoin(OpAnd, exprs)
}

// Or disjoins a series of expressions left to right.
func Or(exprs ...Expr) Expr {
	return conjoin(OpOr, exprs)
}

func conjoin(op Op, exprs []Expr) Expr {
	if len(exprs) == 0 {
		return Expr{}
	}
	e := exprs[0]
	for _, next := range exprs[1:] {
		e = Expr{n: &Binary{Left: e.n, Op: op, Right: next.n}}
	}
	return e
}

// Invoked builds an escape-hatch invocation. String arguments pass through
// to the command text verbatim; everything else is parsed as usual.
func Invoked(args ...any) Expr {
	nodes := make([]Node, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case string:
			// Strings inside an invocation are verbatim text, not values.
			nodes[i] = rawText(v)
		default:
			nodes[i] = nodeOf(a)
		}
	}
	return Expr{n: &Invoke{Args: nodes}}
}

// rawText wraps a verbatim text chunk for use inside an Invoke node.
func rawText(s string) Node {
	return &Constant{Value: verbatim(s)}
}

// verbatim marks a string constant that the parser must write through
// instead of extracting as a parameter.
type verbatim string

// Verbatim reports whether a constant holds pass-through text and returns
// it. The parser uses this to honour Invoke string arguments.
func (c *Constant) Verbatim() (string, bool) {
	if v, ok := c.Value.(verbatim); ok {
		return string(v), true
	}
	return "", false
}

func nodeOf(v any) Node {
	switch t := v.(type) {
	case Expr:
		return t.n
	case Node:
		return t
	default:
		return &Constant{Value: v}
	}
}

func nodesOf(vals []any) []Node {
	nodes := make([]Node, len(vals))
	for i, v := range vals {
		nodes[i] = nodeOf(v)
	}
	return nodes
}
