package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vantagehq/vantage/pkg/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	Long: `Apply all pending schema migrations to the configured store.

This creates the businesses and business_names tables, their indexes, and
the search_tokens trigger, backfilling the token column for any rows that
predate it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := storage.Migrate(cfg.Database.URL); err != nil {
			return err
		}
		fmt.Println("✓ Migrations applied")
		return nil
	},
}
