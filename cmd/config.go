package cmd

import (
	"fmt"
	"os"

	"github.com/grovetools/remit/cli"
	"github.com/grovetools/remit/config"
	"github.com/grovetools/remit/pkg/banks"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCmd returns the configuration inspection commands.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the remit configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigLayersCmd())
	cmd.AddCommand(newConfigSchemaCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration with defaults applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return writeJSON(cmd.OutOrStdout(), cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigLayersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layers",
		Short: "List the configuration files merged for the current directory",
		Long: `Lists the files merged into the final configuration, in order:
1. Global config (~/.config/remit/remit.yml)
2. Project config (remit.yml, searched upwards)
3. Override files (remit.override.yml)
Later files override earlier ones.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get current directory: %w", err)
			}
			layers := config.Layers(cwd)
			if cli.GetOptions(cmd).JSONOutput {
				return writeJSON(cmd.OutOrStdout(), layers)
			}
			if len(layers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No configuration files; defaults apply")
				return nil
			}
			for i, path := range layers {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, path)
			}
			return nil
		},
	}
}

func newConfigSchemaCmd() *cobra.Command {
	var banksTable bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of remit.yml or of a bank table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			generate := config.GenerateSchema
			if banksTable {
				generate = banks.GenerateSchema
			}
			data, err := generate()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	cmd.Flags().BoolVar(&banksTable, "banks", false, "Print the bank table schema instead")
	return cmd
}
