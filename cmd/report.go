package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fleetops/dutyroster/app"
	"github.com/fleetops/dutyroster/config"
)

var (
	reportTenant string
	reportFrom   string
	reportTo     string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a compliance report for a date range",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportTenant, "tenant", "", "tenant identifier")
	reportCmd.Flags().StringVar(&reportFrom, "from", "", "first date, YYYY-MM-DD")
	reportCmd.Flags().StringVar(&reportTo, "to", "", "last date inclusive, YYYY-MM-DD")
	_ = reportCmd.MarkFlagRequired("tenant")
	_ = reportCmd.MarkFlagRequired("from")
	_ = reportCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	rep, err := svc.Reports.Generate(ctx, reportTenant, reportFrom, reportTo)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
