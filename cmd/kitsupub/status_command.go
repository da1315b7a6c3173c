package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"kitsupub/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session, dependency and directory checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			results := preflight.RunAll(cmd.Context(), cfg)
			results = append(results, preflight.CheckSavedSession(cfg, time.Now()))

			if ctx.JSONMode() {
				type check struct {
					Name   string `json:"name"`
					Passed bool   `json:"passed"`
					Detail string `json:"detail,omitempty"`
				}
				checks := make([]check, len(results))
				for i, r := range results {
					checks[i] = check{Name: r.Name, Passed: r.Passed, Detail: r.Detail}
				}
				return writeJSON(cmd, map[string]any{
					"checks": checks,
					"failed": len(preflight.Failed(results)),
				})
			}

			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{r.Name, passFail(out, r.Passed), r.Detail})
			}
			fmt.Fprint(out, renderTable(out, []string{"Check", "Result", "Detail"}, rows, nil))
			if failed := preflight.Failed(results); len(failed) > 0 {
				fmt.Fprintf(out, "%d of %d checks failed\n", len(failed), len(results))
			}
			return nil
		},
	}
}
