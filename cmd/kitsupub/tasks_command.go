package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"kitsupub/internal/tasksync"
	"kitsupub/internal/tasktree"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	var mine bool
	var all bool
	var sorted bool
	var project string

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Fetch the task tree from the tracker",
		Long: `Fetch tasks and print them grouped as
project / type / sequence / element / task.

Tasks without a sequence are grouped under their entity type name. Press
Ctrl-C to cancel; a cancelled refresh prints nothing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, logger, err := ctx.connectedClient(runCtx)
			if err != nil {
				return err
			}

			opts := tasksync.OptionsFromConfig(cfg)
			if cmd.Flags().Changed("mine") {
				opts.MineOnly = mine
			}
			if all {
				opts.MineOnly = false
			}
			opts.Project = project
			if cmd.Flags().Changed("sort") {
				opts.Sort = sorted
			}
			// Thumbnails are only rendered by the sidecar's clients.
			opts.Thumbnails = false

			errOut := cmd.ErrOrStderr()
			emit := func(evt tasksync.Event) {
				if ctx.JSONMode() {
					return
				}
				switch evt.Kind {
				case tasksync.EventLog:
					fmt.Fprintln(errOut, evt.Message)
				case tasksync.EventProgress:
					if evt.Total > 0 && (evt.Done == evt.Total || evt.Done%25 == 0) {
						fmt.Fprintf(errOut, "%s %d/%d\n", evt.Phase, evt.Done, evt.Total)
					}
				}
			}

			syncer := tasksync.New(client, cfg.Paths.StagingDir, logger)
			result := syncer.Run(runCtx, uuid.NewString(), tasksync.NewToken(), opts, emit)
			switch result.Outcome {
			case tasksync.OutcomeCancelled:
				fmt.Fprintln(errOut, "Cancelled")
				return nil
			case tasksync.OutcomeFailed:
				return result.Err
			}

			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]any{
					"pass_id": result.PassID,
					"tasks":   len(tasktree.Leaves(result.Tree.Roots)),
					"skipped": result.Skipped,
					"nodes":   toTreeJSON(result.Tree.Roots),
				})
			}
			out := cmd.OutOrStdout()
			if len(result.Tree.Roots) == 0 {
				fmt.Fprintln(out, "No tasks found")
				return nil
			}
			fmt.Fprint(out, renderTree(out, result.Tree.Roots))
			fmt.Fprintf(out, "\n%d tasks", len(tasktree.Leaves(result.Tree.Roots)))
			if result.Skipped > 0 {
				fmt.Fprintf(out, " (%d skipped)", result.Skipped)
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&mine, "mine", false, "Only tasks assigned to you (defaults to sync.mine_only)")
	cmd.Flags().BoolVar(&all, "all", false, "All tasks of open projects, overriding sync.mine_only")
	cmd.Flags().StringVarP(&project, "project", "p", "", "Only tasks of the named open project")
	cmd.Flags().BoolVar(&sorted, "sort", false, "Sort groups by name instead of discovery order")
	return cmd
}
