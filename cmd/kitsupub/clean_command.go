package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"kitsupub/internal/history"
	"kitsupub/internal/logging"
	"kitsupub/internal/staging"
)

func newCleanCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration
	var historyDays int

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove stale temp previews, old logs and old history",
		Long: `Remove kitsupub temp artifacts (previews kept after failed publishes,
concat lists, thumbnail folders) older than staging.max_age_hours, log files
older than logging.retention_days, and, with --history-days, publish history
older than that many days.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-age") {
				maxAge = cfg.StagingMaxAge()
			}

			staged := staging.CleanStale(cmd.Context(), cfg.Paths.StagingDir, maxAge, logger)
			logs := logging.PruneOldLogs(logger, cfg.Paths.LogDir, "kitsupub*.log",
				filepath.Join(cfg.Paths.LogDir, logging.LogFileName), cfg.Logging.RetentionDays, time.Now())

			var pruned int64
			if historyDays > 0 {
				store, err := history.Open(cfg)
				if err != nil {
					return err
				}
				defer store.Close()
				pruned, err = store.Prune(cmd.Context(), time.Now().AddDate(0, 0, -historyDays))
				if err != nil {
					return err
				}
			}

			if ctx.JSONMode() {
				failures := make([]map[string]string, 0, len(staged.Errors))
				for _, e := range staged.Errors {
					failures = append(failures, map[string]string{"path": e.Path, "error": e.Error.Error()})
				}
				return writeJSON(cmd, map[string]any{
					"staging_removed": len(staged.Removed),
					"staging_errors":  failures,
					"logs_removed":    len(logs),
					"history_pruned":  pruned,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Removed %d staging artifact(s) and %d log file(s)\n", len(staged.Removed), len(logs))
			if historyDays > 0 {
				fmt.Fprintf(out, "Pruned %d history entries\n", pruned)
			}
			for _, e := range staged.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "warn: %s: %v\n", e.Path, e.Error)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 72*time.Hour, "Artifact age threshold (defaults to staging.max_age_hours)")
	cmd.Flags().IntVar(&historyDays, "history-days", 0, "Also prune publish history older than this many days")
	return cmd
}
