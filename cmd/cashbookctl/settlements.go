package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"cashbook/internal/backend"
	"cashbook/internal/core"
	"cashbook/internal/services"
	"cashbook/internal/worker"

	"github.com/spf13/cobra"
)

var settlementsCmd = &cobra.Command{
	Use:   "settlements",
	Short: "List a user's settlement history",
	Args:  cobra.NoArgs,
	RunE:  runSettlements,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recent settlements missing from the export backend",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	settlementsCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(settlementsCmd)
}

func runSettlements(_ *cobra.Command, _ []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	cfg := loadConfig()
	repo, err := openRepo(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	debts := services.NewDebtService(repo, nil, nil, logger(), services.DebtConfig{SettledPageSize: cfg.SettledPageSize})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	batches, err := debts.GroupSettled(ctx, flagUser)
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		fmt.Println("No settlements.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SETTLEMENT\tDEBTS\tNET\tPAYER\tPAYEE")
	for _, b := range batches {
		net := b.Net()
		if net == nil {
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
			b.SettlementID, len(b.Debts), core.FormatAmount(net.Total), net.Payer, net.Payee)
	}
	return tw.Flush()
}

func runExport(_ *cobra.Command, _ []string) error {
	cfg := loadConfig()
	repo, err := openRepo(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	l := logger()
	result, err := backend.NewFactory(l).CreateExporter(ctx, backendCfg)
	if err != nil {
		return err
	}
	if result.Cleanup != nil {
		defer result.Cleanup()
	}

	w := worker.NewSettlementWorker(repo, result.Exporter, backendCfg.Type.String(), nil, l, cfg.SettledPageSize)
	return w.Reconcile(ctx)
}
