// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

package forge

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Parameter is a single named value extracted from a command expression.
// The parser writes a placeholder referencing Name into the command text
// and the value is handed to the driver at execution time.
type Parameter struct {
	Name  string
	Value any
}

// Parameters is the ordered collection of values extracted while building
// a command. Order matches extraction order.
type Parameters struct {
	list  []*Parameter
	index map[string]int
}

// NewParameters returns an empty parameter collection.
func NewParameters() *Parameters {
	return &Parameters{index: map[string]int{}}
}

// Add appends a value under the next free auto-generated name ("p0",
// "p1", ...) and returns the new parameter.
func (ps *Parameters) Add(v any) *Parameter {
	n := len(ps.list)
	name := "p" + strconv.Itoa(n)
	for {
		if _, taken := ps.index[name]; !taken {
			break
		}
		n++
		name = "p" + strconv.Itoa(n)
	}
	p := &Parameter{Name: name, Value: v}
	ps.index[p.Name] = len(ps.list)
	ps.list = append(ps.list, p)
	return p
}

// AddNamed appends a value under an explicit name. Names are unique within
// a command.
func (ps *Parameters) AddNamed(name string, v any) (*Parameter, error) {
	if name == "" {
		return nil, fmt.Errorf("cannot add parameter with empty name")
	}
	if _, taken := ps.index[name]; taken {
		return nil, fmt.Errorf("parameter %q already present", name)
	}
	p := &Parameter{Name: name, Value: v}
	ps.index[name] = len(ps.list)
	ps.list = append(ps.list, p)
	return p, nil
}

// Get returns the parameter with the given name.
func (ps *Parameters) Get(name string) (*Parameter, bool) {
	i, ok := ps.index[name]
	if !ok {
		return nil, false
	}
	return ps.list[i], true
}

// Len returns the number of parameters.
func (ps *Parameters) Len() int {
	return len(ps.list)
}

// List returns the parameters in extraction order. The returned slice must
// not be modified.
func (ps *Parameters) List() []*Parameter {
	return ps.list
}

// Args renders the collection as driver arguments, one sql.Named value per
// parameter in extraction order.
func (ps *Parameters) Args() []any {
	args := make([]any, len(ps.list))
	for i, p := range ps.list {
		args[i] = sql.Named(p.Name, p.Value)
	}
	return args
}

// Names returns the parameter names in extraction order, for logging. The
// values themselves are deliberately not exposed here.
func (ps *Parameters) Names() []string {
	names := make([]string, len(ps.list))
	for i, p := range ps.list {
		names[i] = p.Name
	}
	return names
}

// String returns a debug representation listing names only.
func (ps *Parameters) String() string {
	return "[" + strings.Join(ps.Names(), ", ") + "]"
}
