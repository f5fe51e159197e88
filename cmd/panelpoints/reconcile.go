package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/pauljmillar/survey-sub001/internal/database"
	"github.com/pauljmillar/survey-sub001/internal/points"
)

var errNotClean = errors.New("reconcile found issues")

func reconcileCommand() *cobra.Command {
	var (
		repair     bool
		staleAfter time.Duration
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Find awards and redemptions left half-done and balances that drifted from the ledger",
		Long: `Reports survey completions that never received their award, redemptions
stuck in pending, and panelists whose cached balance or totals disagree with
the ledger. Completions and redemptions younger than --stale-after are left
alone because their request may still be running. With --repair the missing
awards are issued and stuck redemptions are settled. Drift is never changed
automatically.

Exits non-zero when the report is not clean.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := mustConfig(cmd)
			logger := commonRun(cfg)
			if !cmd.Flags().Changed("stale-after") {
				staleAfter = cfg.StaleRedemption
			}

			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			svc := points.New(db, points.WithLogger(logger))
			report, err := svc.Reconcile(cmd.Context(), repair, staleAfter)
			if err != nil {
				return err
			}

			if err := printJSON(report); err != nil {
				return err
			}
			if !report.Clean() {
				return errNotClean
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "issue missing awards and settle stale redemptions")
	cmd.Flags().DurationVar(&staleAfter, "stale-after", 15*time.Minute, "age after which an unawarded completion or pending redemption is considered stuck")
	return cmd
}
