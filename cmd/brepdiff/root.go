package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var setFlags []string

	ctx := newCommandContext(&configFlag, &setFlags)

	var rootCmd *cobra.Command
	rootCmd = &cobra.Command{
		Use:           "brepdiff",
		Short:         "B-rep diffusion training configuration tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Help output never needs a loaded document.
			if cmd == rootCmd || shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringArrayVar(&setFlags, "set", nil, "Override a configuration value (dotted.path=value, repeatable)")

	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
