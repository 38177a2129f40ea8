package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/syntrixbase/inkwell/internal/config"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(newConfigCheckCommand(rootOpts))
	return cmd
}

func newConfigCheckCommand(rootOpts *RootOptions) *cobra.Command {
	var printCfg bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Load and validate the configuration",
		Long: `Load config.yml, config.local.yml and environment overrides, then
validate the result. With --print the effective configuration is written as
YAML; static secrets are omitted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(rootOpts.ConfigDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !printCfg {
				_, err := fmt.Fprintf(out, "configuration OK (mode=%s)\n", cfg.Deployment.Mode)
				return err
			}
			cfg.Search.Secrets.Static = nil
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encode configuration: %w", err)
			}
			_, err = out.Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&printCfg, "print", false, "print the effective configuration")
	return cmd
}
