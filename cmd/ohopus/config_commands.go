package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"oh-opus/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Settings utilities",
	}

	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand(ctx))
	configCmd.AddCommand(newConfigPathCommand(ctx))

	return configCmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings as TOML",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := ctx.loadSettings()
			if err != nil {
				return err
			}
			data, err := config.Encode("settings.toml", settings)
			if err != nil {
				return fmt.Errorf("encode settings: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigInitCommand(ctx *commandContext) *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a settings file with default values",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := ctx.settingsPath()
				if err != nil {
					return fmt.Errorf("determine settings path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve settings path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create settings directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("settings file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check settings path: %w", err)
				}
			}

			if err := config.NewFileStore(target).Save(config.DefaultSettings()); err != nil {
				return fmt.Errorf("write settings: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote default settings to %s\n", target)
			fmt.Fprintln(out, "Set source_folder and dest_folder, or pass them to `ohopus convert`.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the settings file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite an existing settings file")
	return cmd
}

func newConfigPathCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the settings file location",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := ctx.settingsPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
