package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sandeepkv93/remindd/internal/config"
	"github.com/sandeepkv93/remindd/internal/logging"
)

var (
	cfgFile string
	debug   bool

	cfg    config.Config
	logger *zap.Logger
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "remindd",
		Short:         "remindd schedules task reminders and keeps task completion consistent",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if debug {
				loaded.Log.Level = "debug"
			}
			l, err := logging.New(loaded.Log.Level, loaded.Log.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			cfg, logger = loaded, l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "remindd.yaml", "config file path")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(runCmd())
	root.AddCommand(tickCmd())
	root.AddCommand(completeCmd())
	root.AddCommand(uncompleteCmd())
	root.AddCommand(snoozeCmd())
	root.AddCommand(depsCmd())
	root.AddCommand(migrateCmd())
	return root
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
