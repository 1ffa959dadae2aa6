package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"example.com/activitydedup/internal/domain"
	"example.com/activitydedup/internal/persistence/postgres"
	"example.com/activitydedup/internal/scanner"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan one owner's activities for duplicates",
	Long: "Scans [from, to) in calendar-month chunks and flags every surfaced pair. " +
		"With --dry-run the candidates are printed and nothing is written.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		owner, _ := cmd.Flags().GetString("owner")
		fromRaw, _ := cmd.Flags().GetString("from")
		toRaw, _ := cmd.Flags().GetString("to")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		window, err := parseWindow(fromRaw, toRaw)
		if err != nil {
			return err
		}
		if strings.TrimSpace(owner) == "" {
			return eris.New("--owner is required")
		}

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		store := postgres.NewStore(pool)
		sc := scanner.New(store, cfg.Scanner())
		out := cmd.OutOrStdout()

		if dryRun {
			report, err := sc.Scan(ctx, owner, window)
			for _, c := range report.Candidates {
				fmt.Fprintf(out, "%d\t%d\t%s\t%d\n", c.Activity.ID, c.Match.ID, c.Result.Tier, domain.DisplayScore(c.Result.Score))
			}
			fmt.Fprintf(out, "run %s: %d candidates, %d/%d chunks failed\n", report.RunID, len(report.Candidates), report.FailedChunks, report.Chunks)
			return err
		}

		summary, err := scanner.NewService(sc, store).ScanAndFlag(ctx, owner, window)
		fmt.Fprintf(out, "run %s: %d candidates, %d flagged, %d skipped, %d failed, %d/%d chunks failed\n",
			summary.RunID, summary.Candidates, summary.Flagged, summary.Skipped, summary.Failed, summary.FailedChunks, summary.Chunks)
		if err != nil {
			zap.L().Error("scan finished with errors", zap.String("owner_id", owner), zap.Error(err))
			return err
		}
		return nil
	},
}

// parseWindow accepts YYYY-MM-DD dates; to defaults to tomorrow (UTC).
func parseWindow(fromRaw, toRaw string) (scanner.Window, error) {
	from, err := time.Parse(time.DateOnly, fromRaw)
	if err != nil {
		return scanner.Window{}, eris.Wrapf(domain.ErrInvalidInput, "--from %q is not a YYYY-MM-DD date", fromRaw)
	}
	to := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, 1)
	if toRaw != "" {
		if to, err = time.Parse(time.DateOnly, toRaw); err != nil {
			return scanner.Window{}, eris.Wrapf(domain.ErrInvalidInput, "--to %q is not a YYYY-MM-DD date", toRaw)
		}
	}
	w := scanner.Window{From: from, To: to}
	return w, w.Validate()
}

func init() {
	scanCmd.Flags().String("owner", "", "owner id to scan")
	scanCmd.Flags().String("from", "", "first day of the window (YYYY-MM-DD)")
	scanCmd.Flags().String("to", "", "day after the window (YYYY-MM-DD); defaults to tomorrow")
	scanCmd.Flags().Bool("dry-run", false, "print candidates without flagging")
	_ = scanCmd.MarkFlagRequired("owner")
	_ = scanCmd.MarkFlagRequired("from")
	rootCmd.AddCommand(scanCmd)
}
