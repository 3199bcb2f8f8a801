package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// PrintVersion returns the version line.
func PrintVersion() string {
	return fmt.Sprintf("modloader v%s (commit: %s, built on: %s)", Version, Commit, Date)
}

// NewRootCommand creates the root command for the modloader application
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modloader",
		Short: "modloader - run and inspect the material placement wizard modules",
		Long: `modloader defines the wizard's manager modules on a module registry,
loads them in dependency order and optionally serves a debug endpoint,
reloads modules when their source files change and logs periodic status.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.SetVersionTemplate(PrintVersion() + "\n")

	cmd.PersistentFlags().StringP("config", "c", "", "Configuration file (.yaml, .toml or .json)")

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewInfoCommand())
	cmd.AddCommand(NewOrderCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), PrintVersion())
		},
	}
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
