package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/agvkernel/core/orderlog"
	"github.com/kilianp07/agvkernel/pkg/export"
)

var (
	logFormat  string
	logSince   time.Duration
	logVehicle string
	logLimit   int
)

var orderLogCmd = &cobra.Command{
	Use:   "orderlog",
	Short: "Export finished transport orders from the order log",
	RunE:  runOrderLog,
}

func init() {
	orderLogCmd.Flags().StringVar(&logFormat, "format", export.FormatCSV, "output format: json or csv")
	orderLogCmd.Flags().DurationVar(&logSince, "since", 0, "only orders that became final within this duration")
	orderLogCmd.Flags().StringVar(&logVehicle, "vehicle", "", "only orders processed by this vehicle")
	orderLogCmd.Flags().IntVar(&logLimit, "limit", 0, "maximum number of records (0 for all)")
	rootCmd.AddCommand(orderLogCmd)
}

func runOrderLog(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()
	if !cfg.OrderLog.Enabled() {
		return fmt.Errorf("order log is disabled")
	}
	store, err := orderlog.NewStore(cfg.OrderLog.Module())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	q := orderlog.Query{Vehicle: logVehicle, Limit: logLimit}
	if logSince > 0 {
		q.Start = time.Now().Add(-logSince)
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	recs, err := store.Query(ctx, q)
	if err != nil {
		return err
	}
	return export.Write(cmd.OutOrStdout(), logFormat, recs)
}
