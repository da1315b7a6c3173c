package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"kitsupub/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var opts history.ListOptions

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent publish attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), opts)
			if err != nil {
				return err
			}

			if ctx.JSONMode() {
				type entryJSON struct {
					PublishID   string `json:"publish_id"`
					TaskID      string `json:"task_id"`
					TaskPath    string `json:"task_path,omitempty"`
					Status      string `json:"status,omitempty"`
					Media       string `json:"media,omitempty"`
					Outcome     string `json:"outcome"`
					PreviewID   string `json:"preview_id,omitempty"`
					PreviewPath string `json:"preview_path,omitempty"`
					ErrorKind   string `json:"error_kind,omitempty"`
					Error       string `json:"error,omitempty"`
					FinishedAt  string `json:"finished_at"`
				}
				items := make([]entryJSON, 0, len(entries))
				for _, e := range entries {
					items = append(items, entryJSON{
						PublishID:   e.PublishID,
						TaskID:      e.TaskID,
						TaskPath:    e.TaskPath,
						Status:      e.Status,
						Media:       e.Media,
						Outcome:     string(e.Outcome),
						PreviewID:   e.PreviewID,
						PreviewPath: e.PreviewPath,
						ErrorKind:   e.ErrorKind,
						Error:       e.Error,
						FinishedAt:  e.FinishedAt.UTC().Format(time.RFC3339),
					})
				}
				return writeJSON(cmd, map[string]any{"entries": items})
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No publishes recorded")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				task := e.TaskPath
				if task == "" {
					task = e.TaskID
				}
				detail := e.PreviewID
				if e.Outcome == history.OutcomeFailed {
					detail = e.ErrorKind
					if e.PreviewPath != "" {
						detail += " (kept " + e.PreviewPath + ")"
					}
				}
				rows = append(rows, []string{
					e.FinishedAt.Local().Format("2006-01-02 15:04"),
					task,
					e.Status,
					passFail(out, e.Outcome == history.OutcomePublished),
					detail,
				})
			}
			fmt.Fprint(out, renderTable(out, []string{"Finished", "Task", "Status", "Result", "Detail"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.TaskID, "task", "", "Only attempts for this task ID")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum entries (0 for all)")
	return cmd
}
