package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/remindd/internal/storage"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate <up|down>",
		Short:     "Apply or roll back the database schema",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := storage.OpenSQLite(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer repo.Close()

			if args[0] == "down" {
				err = storage.MigrateDown(repo.DB())
			} else {
				err = storage.MigrateUp(repo.DB())
			}
			if err != nil {
				return fmt.Errorf("migrate %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %s: %s\n", args[0], cfg.DatabasePath)
			return nil
		},
	}
}
