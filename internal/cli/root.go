// Package cli defines the inkwell command tree.
package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigDir string
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "inkwell",
		Short: "Inkwell artist directory service",
		Long: `Inkwell serves the artist directory API, ingests run updates and keeps
the search index in step with the primary store.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigDir, "config", "c", "config", "directory holding config.yml and config.local.yml")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}
