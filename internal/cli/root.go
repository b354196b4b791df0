// Package cli implements the boon command line: loading YAML program
// documents, running them against the reactive engine, and checking them
// statically.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds the persistent flags shared by every subcommand.
type RootOptions struct {
	Verbose bool
	Format  string
}

// ValidFormats lists the accepted values of --format.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the boon root command with its subcommands
// attached.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "boon",
		Short: "Run reactive dataflow programs",
		Long: `boon builds a program document into a live node graph and streams the
root's emissions. Programs are YAML files; durable state is kept in a
SQLite database when one is given.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q, valid formats: %v", opts.Format, ValidFormats), nil)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "enable verbose logging")
	cmd.PersistentFlags().StringVarP(&opts.Format, "format", "f", "text", "output format (text|json)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newCheckCommand(opts))

	return cmd
}
