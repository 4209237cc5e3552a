package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/arbiter/internal/config"
	"github.com/zjrosen/arbiter/internal/flags"
	"github.com/zjrosen/arbiter/internal/presentation"
	"github.com/zjrosen/arbiter/internal/registry"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the arbiter config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config file",
	Long: `Init writes the commented default config to --config, or to
.arbiter/config.yaml when no config file is in use.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := configFileUsed()
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.WriteDefaultConfig(path); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var configSetPolicyCmd = &cobra.Command{
	Use:   "set-policy <kind> <policy>",
	Short: "Set the merge policy for one resource kind",
	Long: `Set-policy edits the policies section of the config file in place,
keeping its comments. Policies are ignore, override, error and fallback.

Example:
  arbiter config set-policy route override`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := registry.ParseKind(args[0])
		if err != nil {
			return err
		}
		policy, err := registry.ParsePolicy(args[1])
		if err != nil {
			return err
		}
		path := configFileUsed()
		if err := config.SetPolicy(path, kind, policy); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s\n", path, kind, policy)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective policies and feature flags",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		table, err := cfg.PolicyTable()
		if err != nil {
			return err
		}
		f := flags.New(cfg.Flags)
		all := make(map[string]bool, len(flags.Known()))
		for _, name := range flags.Known() {
			all[name] = f.Enabled(name)
		}
		return presentation.NewFormatter(cmd.OutOrStdout()).FormatResult(struct {
			File     string            `json:"file"`
			Policies map[string]string `json:"policies"`
			Flags    map[string]bool   `json:"flags"`
			Unknown  []string          `json:"unknown_flags,omitempty"`
		}{configFileUsed(), table.Strings(), all, f.Unknown()})
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configSetPolicyCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
