package main

import (
	"fmt"

	"cashbook/internal/storage"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and print the schema version",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg := loadConfig()
	repo, err := openRepo(cfg)
	if err != nil {
		return err
	}
	if err := repo.Close(); err != nil {
		return err
	}

	version, dirty, err := storage.MigrationVersion(cfg.SQLiteDBPath)
	if err != nil {
		return err
	}
	fmt.Printf("%s: schema version %d", cfg.SQLiteDBPath, version)
	if dirty {
		fmt.Print(" (dirty)")
	}
	fmt.Println()
	return nil
}
