package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"oh-opus/internal/config"
	"oh-opus/internal/diagnostics"
	"oh-opus/internal/domain"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Locate encoder tools and check the configured folders",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.store()
			if err != nil {
				return err
			}
			settings, err := store.Load()
			if err != nil {
				return fmt.Errorf("load settings from %s: %w", store.Path(), err)
			}

			logger, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			report := diagnostics.NewChecker(logger).Run(cmd.Context(), settings)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderReport(report))

			if save {
				settings.Binaries = config.WithDiscovered(settings.Binaries, report.Binaries)
				if err := store.Save(settings); err != nil {
					return fmt.Errorf("save settings: %w", err)
				}
				fmt.Fprintf(out, "Saved tool paths to %s\n", store.Path())
			}

			if report.HasFailures {
				return errors.New("diagnostics found failures")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "Persist discovered tool paths into the settings file")
	return cmd
}

func renderReport(report domain.DiagnosticReport) string {
	rows := make([][]string, 0, len(report.Items))
	for _, item := range report.Items {
		detail := item.Message
		if item.Hint != "" {
			detail += "\n" + item.Hint
		}
		rows = append(rows, []string{item.Name, statusLabel(item.Status), detail})
	}
	return renderTable([]string{"Check", "Status", "Detail"}, rows, nil)
}

func statusLabel(status domain.DiagnosticStatus) string {
	switch status {
	case domain.DiagnosticStatusPass:
		return "OK"
	case domain.DiagnosticStatusWarn:
		return "WARN"
	default:
		return "FAIL"
	}
}
