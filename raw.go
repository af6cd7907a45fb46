// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

package forge

import (
	"fmt"
	"strings"

	"github.com/forgedb/forge/dialect"
)

// Raw is the free-form command builder. Text accumulates verbatim, with
// {N} markers substituted by parsed arguments so values still end up in
// the parameter collection.
type Raw struct {
	commandBase
	buf strings.Builder
}

// NewRaw returns an empty raw builder for the dialect.
func NewRaw(d dialect.Dialect) *Raw {
	return &Raw{commandBase: newCommandBase(d)}
}

// Append adds a chunk of text. {0}, {1}, ... reference args; "{{" and
// "}}" escape literal braces. Nested commands referenced by a marker are
// wrapped in parentheses and their parameters merged.
func (r *Raw) Append(text string, args ...any) *Raw {
	if r.err != nil {
		return r
	}
	frag, err := r.parser().ParseRaw(text, args...)
	if err != nil {
		r.fail(err)
		return r
	}
	if r.buf.Len() > 0 {
		r.buf.WriteString(" ")
	}
	r.buf.WriteString(frag)
	return r
}

// Text returns the accumulated command text.
func (r *Raw) Text() (string, error) {
	if r.err != nil {
		return "", r.err
	}
	if r.buf.Len() == 0 {
		return "", fmt.Errorf("raw command is empty")
	}
	return r.buf.String(), nil
}

// Fragment renders the raw command nested inside another parser.
func (r *Raw) Fragment(p *Parser) (string, error) {
	text, err := r.Text()
	if err != nil {
		return "", err
	}
	return p.rebase(text, r.params)
}
