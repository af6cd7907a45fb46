// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

package forge

import (
	"fmt"
)

// ElementAlias associates an alias with the element it stands for, e.g.
// the table in "employees AS e" or the column in "COUNT(id) AS total".
type ElementAlias struct {
	Element string
	Alias   string
}

func (ea *ElementAlias) String() string {
	return ea.Element + " AS " + ea.Alias
}

// AliasList is the per-command alias bookkeeping. Aliases are registered
// as the parser meets them in select lists and FROM and JOIN sources, and
// resolved when qualifying member paths.
type AliasList struct {
	list  []*ElementAlias
	index map[string]*ElementAlias
}

// NewAliasList returns an empty alias list.
func NewAliasList() *AliasList {
	return &AliasList{index: map[string]*ElementAlias{}}
}

// Register records an alias for an element. Re-registering the same
// element under the same alias is a no-op; registering a different element
// under a taken alias is an error.
func (al *AliasList) Register(element, alias string) (*ElementAlias, error) {
	if alias == "" {
		return nil, fmt.Errorf("cannot register empty alias for %q", element)
	}
	if have, ok := al.index[alias]; ok {
		if have.Element == element {
			return have, nil
		}
		return nil, fmt.Errorf("alias %q already stands for %q", alias, have.Element)
	}
	ea := &ElementAlias{Element: element, Alias: alias}
	al.index[alias] = ea
	al.list = append(al.list, ea)
	return ea, nil
}

// Resolve returns the element an alias stands for.
func (al *AliasList) Resolve(alias string) (string, bool) {
	ea, ok := al.index[alias]
	if !ok {
		return "", false
	}
	return ea.Element, true
}

// List returns the aliases in registration order. The returned slice must
// not be modified.
func (al *AliasList) List() []*ElementAlias {
	return al.list
}

// Len returns the number of registered aliases.
func (al *AliasList) Len() int {
	return len(al.list)
}
