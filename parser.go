// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

package forge

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/forgedb/forge/dialect"
	"github.com/forgedb/forge/optree"
)

// Fragmenter is implemented by commands that can be nested inside another
// command, e.g. a subquery in a WHERE clause. Fragment renders the command
// text into the given parser, migrating its parameters into the parser's
// collection.
type Fragmenter interface {
	Fragment(p *Parser) (string, error)
}

// Parser translates expression values into dialect command text. It walks
// operation trees, plain strings, nested commands and constants, and
// extracts every literal value it meets into its parameter collection so
// that no value is ever written into the generated text.
//
// A Parser is bound to one command: it shares the command's dialect,
// parameter collection and alias list.
type Parser struct {
	dialect dialect.Dialect
	params  *Parameters
	aliases *AliasList
}

// NewParser returns a parser emitting text for the given dialect and
// extracting values into params. A nil params allocates a fresh
// collection; the alias list is optional.
func NewParser(d dialect.Dialect, params *Parameters, aliases *AliasList) *Parser {
	if d == nil {
		d = dialect.Default()
	}
	if params == nil {
		params = NewParameters()
	}
	return &Parser{dialect: d, params: params, aliases: aliases}
}

// Params returns the parser's parameter collection.
func (p *Parser) Params() *Parameters {
	return p.params
}

// Dialect returns the dialect the parser emits text for.
func (p *Parser) Dialect() dialect.Dialect {
	return p.dialect
}

// Parse translates a clause value into command text. Strings pass through
// verbatim; operation trees are walked; nested commands are wrapped in
// parentheses; nil renders as NULL; any other value becomes a parameter
// placeholder.
func (p *Parser) Parse(v any) (s string, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot parse expression: %s", err)
		}
	}()
	switch t := v.(type) {
	case string:
		return t, nil
	case optree.Expr:
		return p.parseNode(t.Node())
	case optree.Node:
		return p.parseNode(t)
	default:
		return p.parseValue(v)
	}
}

// ParseAliased is the variant of Parse used in clauses that admit aliases
// (select lists, FROM and JOIN sources). Alias nodes and "element AS
// alias" strings are registered in the command's alias list and rendered
// as "element AS alias".
func (p *Parser) ParseAliased(v any) (s string, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot parse expression: %s", err)
		}
	}()
	switch t := v.(type) {
	case string:
		return p.parseAliasedText(t)
	case optree.Expr:
		return p.parseAliasedNode(t.Node())
	case optree.Node:
		return p.parseAliasedNode(t)
	default:
		return p.parseValue(v)
	}
}

func (p *Parser) parseAliasedNode(n optree.Node) (string, error) {
	a, ok := n.(*optree.Alias)
	if !ok {
		return p.parseNode(n)
	}
	element, err := p.parseNode(a.Of)
	if err != nil {
		return "", err
	}
	if err := p.registerAlias(element, a.Alias); err != nil {
		return "", err
	}
	return element + " AS " + a.Alias, nil
}

// parseAliasedText scans a verbatim chunk for a trailing "AS alias" and
// registers the alias when present.
func (p *Parser) parseAliasedText(text string) (string, error) {
	element, alias, ok := splitAlias(text)
	if !ok {
		return text, nil
	}
	if err := p.registerAlias(element, alias); err != nil {
		return "", err
	}
	return element + " AS " + alias, nil
}

func (p *Parser) registerAlias(element, alias string) error {
	if p.aliases == nil {
		return fmt.Errorf("alias %q not allowed here", alias)
	}
	_, err := p.aliases.Register(element, alias)
	return err
}

// splitAlias splits "element AS alias" on its last AS keyword. The alias
// must be a plain identifier.
func splitAlias(text string) (element, alias string, ok bool) {
	upper := strings.ToUpper(text)
	i := strings.LastIndex(upper, " AS ")
	if i < 0 {
		return "", "", false
	}
	element = strings.TrimSpace(text[:i])
	alias = strings.TrimSpace(text[i+len(" AS "):])
	if element == "" || !isName(alias) {
		return "", "", false
	}
	return element, alias, true
}

// parseNode recursively turns an operation tree into command text.
func (p *Parser) parseNode(n optree.Node) (string, error) {
	switch t := n.(type) {
	case nil:
		return "", fmt.Errorf("nil operation node")
	case *optree.Argument:
		return "", fmt.Errorf("naked argument %q cannot be used as an expression", t.Name)
	case *optree.Member:
		return p.parseMember(t)
	case *optree.Index:
		return p.parseIndex(t)
	case *optree.Call:
		return p.parseCall(t)
	case *optree.Invoke:
		return p.parseInvoke(t)
	case *optree.Binary:
		return p.parseBinary(t)
	case *optree.Unary:
		return p.parseUnary(t)
	case *optree.Convert:
		return p.parseConvert(t)
	case *optree.Constant:
		if text, ok := t.Verbatim(); ok {
			return text, nil
		}
		return p.parseValue(t.Value)
	case *optree.Alias:
		return "", fmt.Errorf("alias %q not allowed here", t.Alias)
	case *optree.SetMember:
		return "", fmt.Errorf("assignment not allowed here")
	case *optree.List:
		return "", fmt.Errorf("value list only allowed as the operand of IN")
	default:
		return "", fmt.Errorf("unsupported operation node %T", n)
	}
}

// parseMember renders a member path. The argument root is elided, so
// x.Name renders as "Name" and x.Employee.Id as "Employee.Id" — unless
// the argument is named after a registered alias, in which case it
// qualifies the path: Arg("e").Member("name") renders as "e.name" once
// "employees AS e" is in the command's alias list.
func (p *Parser) parseMember(m *optree.Member) (string, error) {
	if m.Name == "" {
		return "", fmt.Errorf("empty member name")
	}
	if a, ok := m.Of.(*optree.Argument); ok {
		if p.aliases != nil {
			if _, registered := p.aliases.Resolve(a.Name); registered {
				return a.Name + "." + m.Name, nil
			}
		}
		return m.Name, nil
	}
	of, err := p.parseNode(m.Of)
	if err != nil {
		return "", err
	}
	return of + "." + m.Name, nil
}

// parseIndex renders an indexer access. String constant keys name a column
// exactly as a member access does; anything else is rejected.
func (p *Parser) parseIndex(i *optree.Index) (string, error) {
	c, ok := i.Key.(*optree.Constant)
	if !ok {
		return "", fmt.Errorf("index key must be a string constant, got %s", i.Key)
	}
	name, ok := c.Value.(string)
	if !ok {
		return "", fmt.Errorf("index key must be a string constant, got %T", c.Value)
	}
	return p.parseMember(&optree.Member{Of: i.Of, Name: name})
}

// parseCall renders a method call as a function invocation with the
// receiver as first argument. A call rooted directly on the argument has
// no receiver: x.Count(c) renders as COUNT(c).
func (p *Parser) parseCall(c *optree.Call) (string, error) {
	var args []string
	if _, rootCall := c.Of.(*optree.Argument); !rootCall {
		of, err := p.parseNode(c.Of)
		if err != nil {
			return "", err
		}
		args = append(args, of)
	}
	for _, a := range c.Args {
		s, err := p.parseNode(a)
		if err != nil {
			return "", err
		}
		args = append(args, s)
	}
	return p.dialect.Function(c.Name) + "(" + strings.Join(args, ", ") + ")", nil
}

// parseInvoke concatenates the invocation arguments. Verbatim string
// arguments pass straight through to the text.
func (p *Parser) parseInvoke(iv *optree.Invoke) (string, error) {
	if len(iv.Args) == 0 {
		return "", fmt.Errorf("empty invocation")
	}
	var b strings.Builder
	for _, a := range iv.Args {
		s, err := p.parseNode(a)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

func (p *Parser) parseBinary(b *optree.Binary) (string, error) {
	switch b.Op {
	case optree.OpIn, optree.OpNotIn:
		return p.parseIn(b)
	}

	left, err := p.parseNode(b.Left)
	if err != nil {
		return "", err
	}

	// Comparisons against NULL use the IS forms.
	op := b.Op
	if isNullNode(b.Right) {
		switch op {
		case optree.OpEq, optree.OpIs:
			return "(" + left + " IS NULL)", nil
		case optree.OpNe, optree.OpIsNot:
			return "(" + left + " IS NOT NULL)", nil
		}
	}

	right, err := p.parseNode(b.Right)
	if err != nil {
		return "", err
	}
	return "(" + left + " " + string(op) + " " + right + ")", nil
}

// parseIn renders IN and NOT IN. The right operand is the list built by
// the combinators; a single nested command renders as a subquery.
func (p *Parser) parseIn(b *optree.Binary) (string, error) {
	left, err := p.parseNode(b.Left)
	if err != nil {
		return "", err
	}
	list, ok := b.Right.(*optree.List)
	if !ok {
		right, err := p.parseNode(b.Right)
		if err != nil {
			return "", err
		}
		return "(" + left + " " + string(b.Op) + " " + right + ")", nil
	}
	if len(list.Items) == 0 {
		return "", fmt.Errorf("%s needs at least one value", b.Op)
	}
	// A lone nested command is a subquery and brings its own parentheses.
	if len(list.Items) == 1 {
		if c, isConst := list.Items[0].(*optree.Constant); isConst {
			if _, nested := c.Value.(Fragmenter); nested {
				sub, err := p.parseValue(c.Value)
				if err != nil {
					return "", err
				}
				return "(" + left + " " + string(b.Op) + " " + sub + ")", nil
			}
		}
	}
	items := make([]string, len(list.Items))
	for i, item := range list.Items {
		s, err := p.parseNode(item)
		if err != nil {
			return "", err
		}
		items[i] = s
	}
	return "(" + left + " " + string(b.Op) + " (" + strings.Join(items, ", ") + "))", nil
}

func (p *Parser) parseUnary(u *optree.Unary) (string, error) {
	operand, err := p.parseNode(u.Operand)
	if err != nil {
		return "", err
	}
	switch u.Op {
	case optree.OpNot:
		return "(NOT " + operand + ")", nil
	case optree.OpNeg:
		return "-" + operand, nil
	default:
		return "", fmt.Errorf("unsupported unary operator %q", u.Op)
	}
}

func (p *Parser) parseConvert(c *optree.Convert) (string, error) {
	if c.TypeName == "" {
		return "", fmt.Errorf("conversion needs a type name")
	}
	operand, err := p.parseNode(c.Operand)
	if err != nil {
		return "", err
	}
	return "CAST(" + operand + " AS " + c.TypeName + ")", nil
}

// ParseAssignment renders a set-member operation for the set lists of
// INSERT and UPDATE commands, returning the column name and the value
// fragment separately.
func (p *Parser) ParseAssignment(v any) (column, value string, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot parse assignment: %s", err)
		}
	}()
	var n optree.Node
	switch t := v.(type) {
	case optree.Expr:
		n = t.Node()
	case optree.Node:
		n = t
	default:
		return "", "", fmt.Errorf("need assignment expression, got %T", v)
	}
	sm, ok := n.(*optree.SetMember)
	if !ok {
		return "", "", fmt.Errorf("need assignment expression, got %s", n)
	}
	column, err = p.parseNode(sm.Target)
	if err != nil {
		return "", "", err
	}
	value, err = p.parseNode(sm.Value)
	if err != nil {
		return "", "", err
	}
	return column, value, nil
}

// parseValue renders any plain Go value. Nested commands are re-based into
// this parser and wrapped in parentheses; nil renders as NULL; all other
// values are extracted as parameters.
func (p *Parser) parseValue(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "NULL", nil
	case Fragmenter:
		text, err := t.Fragment(p)
		if err != nil {
			return "", err
		}
		return "(" + text + ")", nil
	case optree.Expr:
		return p.parseNode(t.Node())
	case optree.Node:
		return p.parseNode(t)
	default:
		prm := p.params.Add(v)
		return p.dialect.Placeholder(prm.Name), nil
	}
}

func isNullNode(n optree.Node) bool {
	c, ok := n.(*optree.Constant)
	return ok && c.Value == nil
}

// isName reports whether s is a plain identifier.
func isName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if !isNameRune(r, i == 0) {
			return false
		}
	}
	return true
}

func isNameRune(r rune, initial bool) bool {
	switch {
	case r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z'):
		return true
	case '0' <= r && r <= '9':
		return !initial
	}
	return false
}

// rawScanner walks raw command text rune by rune looking for substitution
// markers. It mirrors the cursor bookkeeping of the expression parser so
// error positions can name a column.
type rawScanner struct {
	input   string
	pos     int
	nextPos int
	char    rune
}

func newRawScanner(input string) *rawScanner {
	s := &rawScanner{input: input}
	s.advance()
	return s
}

// advance moves the scanner to the next character in the input. char is
// set to 0 when pos reaches the end of input.
func (s *rawScanner) advance() bool {
	if s.nextPos >= len(s.input) {
		s.char = 0
		s.pos = s.nextPos
		return false
	}
	var size int
	s.char, size = utf8.DecodeRuneInString(s.input[s.nextPos:])
	s.pos = s.nextPos
	s.nextPos += size
	return true
}

// ParseRaw renders verbatim text with {N} ordinal substitution markers.
// Each marker is replaced by the parsed form of the corresponding argument
// so values end up in the parameter collection, never in the text. "{{"
// and "}}" escape literal braces.
func (p *Parser) ParseRaw(text string, args ...any) (out string, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot parse raw text: %s", err)
		}
	}()

	var b strings.Builder
	used := make([]bool, len(args))
	s := newRawScanner(text)
	for s.char != 0 {
		switch s.char {
		case '{':
			s.advance()
			if s.char == '{' {
				b.WriteByte('{')
				s.advance()
				continue
			}
			start := s.pos
			for s.char != 0 && s.char != '}' {
				s.advance()
			}
			if s.char != '}' {
				return "", fmt.Errorf("column %d: unclosed substitution marker", start)
			}
			marker := s.input[start:s.pos]
			s.advance()
			n, ok := markerIndex(marker)
			if !ok {
				return "", fmt.Errorf("column %d: invalid substitution marker {%s}", start, marker)
			}
			if n >= len(args) {
				return "", fmt.Errorf("marker {%d} out of range: have %d arguments", n, len(args))
			}
			frag, err := p.parseValue(args[n])
			if err != nil {
				return "", err
			}
			used[n] = true
			b.WriteString(frag)
		case '}':
			s.advance()
			if s.char == '}' {
				s.advance()
			}
			b.WriteByte('}')
		default:
			b.WriteRune(s.char)
			s.advance()
		}
	}
	for i, u := range used {
		if !u {
			return "", fmt.Errorf("argument %d not referenced in raw text", i)
		}
	}
	return b.String(), nil
}

// maxMarkerIndex bounds the ordinal accepted in a substitution marker.
// No argument list comes close, and the bound keeps the accumulator in
// markerIndex from overflowing on absurd digit runs.
const maxMarkerIndex = 1 << 20

// markerIndex returns the integer N from a substitution marker body.
func markerIndex(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
		if n > maxMarkerIndex {
			return 0, false
		}
	}
	return n, true
}

// rebase migrates the parameters referenced by a nested command's text
// into this parser's collection, rewriting the placeholders in the text to
// the freshly assigned names. Placeholders are found with a rune scan so a
// parameter name is never mistaken for the prefix of a longer one.
func (p *Parser) rebase(text string, params *Parameters) (string, error) {
	if params.Len() == 0 {
		return text, nil
	}
	rename := make(map[string]string, params.Len())
	for _, prm := range params.List() {
		moved := p.params.Add(prm.Value)
		rename[prm.Name] = p.dialect.Placeholder(moved.Name)
	}

	var b strings.Builder
	s := newRawScanner(text)
	for s.char != 0 {
		if s.char != '@' {
			b.WriteRune(s.char)
			s.advance()
			continue
		}
		s.advance()
		start := s.pos
		for s.char != 0 && isNameRune(s.char, s.pos == start) {
			s.advance()
		}
		name := s.input[start:s.pos]
		if placeholder, ok := rename[name]; ok {
			b.WriteString(placeholder)
		} else {
			b.WriteByte('@')
			b.WriteString(name)
		}
	}
	return b.String(), nil
}
