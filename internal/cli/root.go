// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

// Package cli implements the forge command line tool.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgedb/forge/dialect"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Dialect string
}

// ValidDialects defines the allowed --dialect values.
var ValidDialects = []string{"ansi", "sqlite"}

// NewRootCommand creates the root command for the forge CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "forge",
		Short: "forge - SQL command toolkit",
		Long:  "Tools for working with forge entity maps and generated command text.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := dialectFor(opts.Dialect); err != nil {
				return err
			}
			level := slog.LevelInfo
			if opts.Verbose {
				level = slog.LevelDebug
			}
			handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})
			slog.SetDefault(slog.New(handler))
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Dialect, "dialect", "ansi", "command text dialect (ansi|sqlite)")

	cmd.AddCommand(NewDDLCommand(opts))
	cmd.AddCommand(NewExplainCommand(opts))

	return cmd
}

// dialectFor maps a --dialect flag value to a dialect.
func dialectFor(name string) (dialect.Dialect, error) {
	switch name {
	case "ansi":
		return dialect.ANSI{}, nil
	case "sqlite":
		return dialect.SQLite{}, nil
	}
	return nil, fmt.Errorf("invalid dialect %q: must be one of %v", name, ValidDialects)
}
