package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	return buildRootCommand(newCommandContext())
}

func buildRootCommand(ctx *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ohopus",
		Short:         "Convert MP3 libraries to Opus",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", "", "Settings file path (.json or .toml)")
	rootCmd.PersistentFlags().StringVar(&ctx.logLevel, "log-level", "warn", "Console log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&ctx.logFile, "log-file", "", "Also write JSON debug logs to this file")

	rootCmd.AddCommand(newConvertCommand(ctx))
	rootCmd.AddCommand(newDoctorCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
