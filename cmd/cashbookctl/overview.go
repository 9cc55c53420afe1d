package main

import (
	"context"
	"time"

	"cashbook/internal/cache"
	"cashbook/internal/core"
	"cashbook/internal/services"

	"github.com/spf13/cobra"
)

var (
	flagMonth string
	flagPlan  bool
)

var overviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Print a user's totals for a month",
	Args:  cobra.NoArgs,
	RunE:  runOverview,
}

func init() {
	overviewCmd.Flags().StringVarP(&flagMonth, "month", "m", "", "Month as YYYY-MM (default current month)")
	overviewCmd.Flags().BoolVar(&flagPlan, "plan", false, "Print the recurring plan table instead of totals")
	rootCmd.AddCommand(overviewCmd)
}

func runOverview(_ *cobra.Command, _ []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	m := core.CurrentMonth()
	if flagMonth != "" {
		var err error
		if m, err = core.ParseMonth(flagMonth); err != nil {
			return err
		}
	}

	repo, err := openRepo(loadConfig())
	if err != nil {
		return err
	}
	defer repo.Close()

	svc := services.NewOverviewService(repo, repo, repo,
		cache.NewLRUCache[core.MonthTotals](1, time.Minute), nil, logger())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if flagPlan {
		table, err := svc.Plan(ctx, flagUser, m)
		if err != nil {
			return err
		}
		return printJSON(table)
	}
	totals, err := svc.Month(ctx, flagUser, m)
	if err != nil {
		return err
	}
	return printJSON(totals)
}
