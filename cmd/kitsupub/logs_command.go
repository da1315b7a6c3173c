package main

import (
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"kitsupub/internal/logging"
	"kitsupub/internal/logs"
)

const logPollInterval = time.Second

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent kitsupub logs",
		Long: `Show log events from the running sidecar, or the log file in
paths.log_dir when no sidecar is reachable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, err := logs.NewClient(cfg.Paths.APIBind, cfg.Paths.APIToken)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			limit := lines
			if limit <= 0 {
				limit = 200
			}
			query := logs.Query{Limit: limit, Tail: true}
			printed := false
			for {
				resp, err := client.Fetch(runCtx, query)
				if errors.Is(err, logs.ErrAPIUnavailable) {
					break
				}
				if err != nil {
					if runCtx.Err() != nil {
						return nil
					}
					return err
				}
				for _, evt := range resp.Events {
					fmt.Fprintln(out, formatLogEvent(evt))
					printed = true
				}
				if !follow {
					if !printed {
						fmt.Fprintln(out, "No log entries available")
					}
					return nil
				}
				query = logs.Query{Since: resp.Next, Limit: 200}
				select {
				case <-runCtx.Done():
					return nil
				case <-time.After(logPollInterval):
				}
			}

			path := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
			tail, offset, err := logs.LastLines(path, lines)
			if err != nil {
				return err
			}
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				if len(tail) == 0 {
					fmt.Fprintln(out, "No log entries available")
				}
				return nil
			}
			return logs.Follow(runCtx, path, offset, logPollInterval, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of lines to show (0 for all)")
	return cmd
}

func formatLogEvent(evt logging.LogEvent) string {
	var b strings.Builder
	b.WriteString(evt.Timestamp.Local().Format("2006-01-02 15:04:05"))
	b.WriteByte(' ')
	b.WriteString(strings.ToUpper(evt.Level))
	if evt.Component != "" {
		b.WriteString(" [")
		b.WriteString(evt.Component)
		b.WriteByte(']')
	}
	b.WriteByte(' ')
	b.WriteString(evt.Message)
	keys := make([]string, 0, len(evt.Fields))
	for k := range evt.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, evt.Fields[k])
	}
	return b.String()
}
