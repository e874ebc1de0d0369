package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func tickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Evaluate every task once and print the reminders that fired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx, cfg, logger, wireOptions{})
			if err != nil {
				return err
			}
			defer a.shutdown()

			report := a.engine.Tick(ctx)
			out := cmd.OutOrStdout()
			if banner := a.emitter.PermissionBanner(); banner != "" {
				fmt.Fprintln(out, banner)
			}
			fmt.Fprintf(out, "evaluated %d task(s) at %s, %d fired\n", report.Evaluated, report.At.Format("2006-01-02 15:04"), len(report.Fired))
			for _, n := range report.Fired {
				fmt.Fprintf(out, "  [%s] %s: %s\n", n.Kind, n.Title, n.Body)
			}
			return nil
		},
	}
}
