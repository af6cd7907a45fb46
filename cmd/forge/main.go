// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"fmt"
	"os"

	"github.com/forgedb/forge/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
