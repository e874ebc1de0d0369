package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/remindd/internal/cascade"
	"github.com/sandeepkv93/remindd/internal/notify"
)

// withEngine builds the app, loads the task cache and runs fn. Writes are
// flushed before returning.
func withEngine(cmd *cobra.Command, fn func(a *app) error) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx, cfg, logger, wireOptions{})
	if err != nil {
		return err
	}
	defer a.shutdown()
	if err := a.engine.Load(ctx); err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	return fn(a)
}

func completeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Complete a task, its subtasks and unblock its dependents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(a *app) error {
				res, err := a.engine.Complete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printResult(cmd, "completed", res)
				return nil
			})
		},
	}
}

func uncompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uncomplete <task-id>",
		Short: "Reopen a completed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(a *app) error {
				res, err := a.engine.Uncomplete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printResult(cmd, "reopened", res)
				return nil
			})
		},
	}
}

func snoozeCmd() *cobra.Command {
	var minutes int
	cmd := &cobra.Command{
		Use:   "snooze <task-id>",
		Short: "Push a task's next reminder into the future",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if minutes <= 0 {
				return fmt.Errorf("--minutes must be positive, got %d", minutes)
			}
			return withEngine(cmd, func(a *app) error {
				t, err := a.engine.Snooze(cmd.Context(), args[0], minutes)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "snoozed %s until %s\n", t.ID, t.SnoozeUntil.Local().Format("2006-01-02 15:04"))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&minutes, "minutes", notify.SnoozeMinutes, "snooze length in minutes")
	return cmd
}

func depsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deps <task-id> [dependency-id...]",
		Short: "Replace a task's dependencies; no ids clears them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var deps []string
			for _, arg := range args[1:] {
				for _, d := range strings.Split(arg, ",") {
					if d = strings.TrimSpace(d); d != "" {
						deps = append(deps, d)
					}
				}
			}
			return withEngine(cmd, func(a *app) error {
				t, err := a.engine.SetDependencies(cmd.Context(), args[0], deps)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: status %s, depends on [%s]\n", t.ID, t.Status, strings.Join(t.Dependencies, ", "))
				return nil
			})
		},
	}
}

func printResult(cmd *cobra.Command, verb string, res cascade.Result) {
	out := cmd.OutOrStdout()
	if !res.Changed {
		fmt.Fprintf(out, "%s is already %s\n", res.Task.ID, res.Task.Status)
		return
	}
	fmt.Fprintf(out, "%s %s\n", verb, res.Task.ID)
	if len(res.Subtasks) > 0 {
		fmt.Fprintf(out, "  subtasks completed: %s\n", strings.Join(res.Subtasks, ", "))
	}
	if len(res.Unblocked) > 0 {
		fmt.Fprintf(out, "  unblocked: %s\n", strings.Join(res.Unblocked, ", "))
	}
	if res.ParentProgress != nil {
		fmt.Fprintf(out, "  parent progress: %d%%\n", *res.ParentProgress)
	}
}
