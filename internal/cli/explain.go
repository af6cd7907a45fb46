// Copyright 2024 The forge authors
// Licensed under Apache 2.0, see LICENCE file for details.

package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/forgedb/forge"
)

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain <text> [arg...]",
		Short: "Show the generated text and parameters of a raw command",
		Long: `Build a raw command from text with {0}, {1}, ... argument markers
and print the command text the dialect generates along with the
collected parameter names.

Example:
  forge explain --dialect sqlite "SELECT * FROM person WHERE age > {0}" 21`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(rootOpts, cmd, args)
		},
	}
	return cmd
}

func runExplain(opts *RootOptions, cmd *cobra.Command, args []string) error {
	d, err := dialectFor(opts.Dialect)
	if err != nil {
		return err
	}

	vals := make([]any, len(args)-1)
	for i, arg := range args[1:] {
		vals[i] = coerceArg(arg)
	}

	raw := forge.NewRaw(d).Append(args[0], vals...)
	text, err := raw.Text()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, text)
	for _, p := range raw.Params().List() {
		fmt.Fprintf(out, "-- %s = %v\n", p.Name, p.Value)
	}
	return nil
}

// coerceArg turns command line strings into ints, floats or bools where
// they parse as such, so placeholder values carry a useful type.
func coerceArg(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
