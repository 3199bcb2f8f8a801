package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewInfoCommand creates the info command
func NewInfoCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print the registry snapshot as JSON",
		Long: `Print every defined module with its dependencies and lifecycle state.

By default modules are only defined. Use --load to construct and initialize
them first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			load, _ := cmd.Flags().GetBool("load")
			a, err := newApp(configPath(cmd), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if load {
				if err := a.registry.LoadAll(cmd.Context()); err != nil {
					return err
				}
			}
			return writeJSON(cmd, a.registry.Info())
		},
	}
	cmd.Flags().BoolP("load", "l", false, "Load and initialize every module before printing")
	return cmd
}

// NewOrderCommand creates the order command
func NewOrderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "order",
		Short: "Print the module initialization order, one name per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath(cmd), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			order, err := a.registry.Order()
			if err != nil {
				return err
			}
			for _, name := range order {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
