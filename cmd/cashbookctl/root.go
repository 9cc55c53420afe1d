package main

import (
	"encoding/json"
	"fmt"
	"os"

	"cashbook/internal/cli"
	"cashbook/internal/config"
	"cashbook/internal/log"
	"cashbook/internal/storage"

	"github.com/spf13/cobra"
)

var (
	flagDB    string
	flagUser  string
	flagQuiet bool
)

var rootCmd = &cobra.Command{
	Use:   "cashbookctl",
	Short: "Cashbook administration CLI",
	Long:  "Migrate the cashbook database, inspect users' books and issue API tokens.",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		cli.LoadEnvFile()
	},
	SilenceUsage: true,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "SQLite database path (default $SQLITE_DB_PATH)")
	rootCmd.PersistentFlags().StringVarP(&flagUser, "user", "u", "", "User id to act as")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output")
}

// loadConfig reads the environment without the server's validation, which
// asks for settings most commands do not use.
func loadConfig() *config.Config {
	cfg := config.Load()
	if flagDB != "" {
		cfg.SQLiteDBPath = flagDB
	}
	return cfg
}

func logger() *log.Logger {
	if flagQuiet {
		return log.Discard()
	}
	return cli.SetupLogger(log.ComponentApp)
}

func openRepo(cfg *config.Config) (*storage.SQLiteRepository, error) {
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.SQLiteDBPath, err)
	}
	return repo, nil
}

func requireUser() error {
	if flagUser == "" {
		return fmt.Errorf("--user is required")
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
