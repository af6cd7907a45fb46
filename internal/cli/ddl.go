// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgedb/forge"
)

// DDLOptions holds flags for the ddl command.
type DDLOptions struct {
	*RootOptions
	Maps string
}

// NewDDLCommand creates the ddl command.
func NewDDLCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DDLOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ddl",
		Short: "Render CREATE TABLE statements from a map config",
		Long: `Render a CREATE TABLE statement for every entity map in a YAML
map config file.

Example:
  forge ddl --maps maps.yaml --dialect sqlite`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDDL(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Maps, "maps", "", "path to YAML map config (required)")
	_ = cmd.MarkFlagRequired("maps")

	return cmd
}

func runDDL(opts *DDLOptions, cmd *cobra.Command) error {
	d, err := dialectFor(opts.Dialect)
	if err != nil {
		return err
	}

	slog.Debug("loading map config", "path", opts.Maps)
	f, err := os.Open(opts.Maps)
	if err != nil {
		return fmt.Errorf("cannot open map config: %s", err)
	}
	defer f.Close()

	configs, err := forge.LoadMapConfigs(f)
	if err != nil {
		return err
	}
	slog.Debug("map config loaded", "maps", len(configs))

	out := cmd.OutOrStdout()
	for _, cfg := range configs {
		text, err := cfg.CreateTableDDL(d)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s;\n", text)
	}
	return nil
}
