package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/terrasight/internal/model"
)

var (
	runForce    bool
	runDaysBack int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one pipeline run in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		// The interval gate applies to manual runs too; force bypasses it
		// but never the mutual-exclusion guard.
		if !runForce {
			last, err := env.Store.LatestRun(ctx)
			if err != nil {
				return err
			}
			if last != nil && time.Since(last.StartedAt) < cfg.Scheduler.Interval() {
				return eris.Errorf("last run started %s ago, next run due in %s (use --force to override)",
					time.Since(last.StartedAt).Round(time.Minute),
					(cfg.Scheduler.Interval() - time.Since(last.StartedAt)).Round(time.Minute))
			}
		}

		daysBack := runDaysBack
		if daysBack <= 0 {
			daysBack = cfg.Pipeline.LookbackDays
		}
		to := time.Now().UTC()
		from := to.AddDate(0, 0, -daysBack)

		run, err := env.Pipeline.ExecuteWindow(ctx, model.TriggerManual, from, to)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runForce, "force", false, "run even when the interval since the last run has not elapsed")
	runCmd.Flags().IntVar(&runDaysBack, "days-back", 0, "acquisition window in days (default from config)")
	rootCmd.AddCommand(runCmd)
}
