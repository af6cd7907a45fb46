// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

// Package dialect holds the pluggable text-generation strategies the
// command parser delegates to. A Dialect never executes anything; it only
// decides how identifiers, placeholders, functions and pagination are
// written. Database engines themselves are out of scope.
package dialect

import (
	"fmt"
	"strings"
)

// Dialect is the engine-specific text-generation strategy.
type Dialect interface {
	// Name identifies the dialect, e.g. "ansi" or "sqlite".
	Name() string

	// Quote quotes a single identifier part.
	Quote(identifier string) string

	// Placeholder renders the placeholder for the named parameter.
	// Parameters are passed to the driver as named arguments and nested
	// commands are migrated by rewriting "@" markers, so implementations
	// must render "@" followed by the name.
	Placeholder(name string) string

	// Function maps a method-call name from an operation tree to the
	// function name written into the command text.
	Function(name string) string

	// Pagination renders the clause suffix for skip/take paging. take < 0
	// means no row limit.
	Pagination(skip, take int) string
}

// Default returns the dialect used when none is specified.
func Default() Dialect {
	return ANSI{}
}

// ANSI is the default strategy, emitting portable SQL with named
// placeholders and OFFSET/FETCH pagination.
type ANSI struct{}

func (ANSI) Name() string { return "ansi" }

func (ANSI) Quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func (ANSI) Placeholder(name string) string {
	return "@" + name
}

func (ANSI) Function(name string) string {
	return strings.ToUpper(name)
}

func (ANSI) Pagination(skip, take int) string {
	var b strings.Builder
	if skip > 0 {
		fmt.Fprintf(&b, " OFFSET %d ROWS", skip)
	}
	if take >= 0 {
		if skip <= 0 {
			b.WriteString(" OFFSET 0 ROWS")
		}
		fmt.Fprintf(&b, " FETCH NEXT %d ROWS ONLY", take)
	}
	return b.String()
}

// SQLite emits SQLite flavoured text: LIMIT/OFFSET pagination and the
// function names SQLite actually ships.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) Quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func (SQLite) Placeholder(name string) string {
	return "@" + name
}

// sqliteFunctions maps tree method names to their SQLite spellings where
// they differ from a plain upper-casing.
var sqliteFunctions = map[string]string{
	"len":     "LENGTH",
	"ceiling": "CEIL",
}

func (SQLite) Function(name string) string {
	if fn, ok := sqliteFunctions[strings.ToLower(name)]; ok {
		return fn
	}
	return strings.ToUpper(name)
}

func (SQLite) Pagination(skip, take int) string {
	var b strings.Builder
	if take >= 0 {
		fmt.Fprintf(&b, " LIMIT %d", take)
	} else if skip > 0 {
		// SQLite requires a LIMIT before OFFSET.
		b.WriteString(" LIMIT -1")
	}
	if skip > 0 {
		fmt.Fprintf(&b, " OFFSET %d", skip)
	}
	return b.String()
}
