package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"kitsupub/internal/api"
	"kitsupub/internal/history"
	"kitsupub/internal/kitsu"
	"kitsupub/internal/logging"
	"kitsupub/internal/metrics"
	"kitsupub/internal/notifications"
	"kitsupub/internal/services"
	"kitsupub/internal/session"
	"kitsupub/internal/tasksync"
)

// serveLockName guards against two sidecars sharing one log directory.
const serveLockName = "kitsupub-serve.lock"

func newServeCommand(ctx *commandContext) *cobra.Command {
	var initialSync bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local sidecar API for DCC plugins",
		Long: `Serve the sidecar HTTP API and websocket event stream on paths.api_bind.

The saved session is restored at startup; run 'kitsupub login' first. Task
tree refreshes are triggered through POST /api/sync and streamed over /ws.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			hub := logging.NewStreamHub(4096)
			ctx.useStream(hub)
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			lockPath := filepath.Join(cfg.Paths.LogDir, serveLockName)
			lock := flock.New(lockPath)
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !ok {
				return errors.New("another kitsupub sidecar is already running")
			}
			defer func() {
				_ = lock.Unlock()
			}()

			sess, err := ctx.newSession(logger)
			if err != nil {
				return err
			}
			if err := sess.Restore(runCtx); err != nil {
				logging.WarnWithContext(logger, "session not restored", "session_restore_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "run 'kitsupub login'"),
					logging.String(logging.FieldImpact, "task tree refreshes fail until logged in"),
				)
			}

			store, err := history.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			notifier := notifications.NewService(cfg)
			syncer := tasksync.New(sessionTracker{sess: sess}, cfg.Paths.StagingDir, logger)
			controller := tasksync.NewController(runCtx, syncer, logger,
				tasksync.WithResultHook(func(r tasksync.Result) {
					metrics.RecordSyncPass(string(r.Outcome), r.Duration, r.Fetched-r.Skipped, r.Skipped, r.ThumbnailFailures)
					if r.Outcome != tasksync.OutcomeFailed {
						return
					}
					payload := notifications.Payload{"error": errorText(r.Err)}
					if err := notifier.Publish(context.Background(), notifications.EventSyncFailed, payload); err != nil {
						logger.Debug("sync failure notification not sent", logging.Error(err))
					}
				}),
			)

			srv, err := api.NewServer(api.Deps{
				Config:  cfg,
				Sync:    controller,
				Session: sess,
				History: store,
				Logs:    hub,
			}, logger)
			if err != nil {
				controller.Close()
				return err
			}
			if srv == nil {
				controller.Close()
				return errors.New("paths.api_bind is empty; nothing to serve")
			}

			forwarded := make(chan struct{})
			go func() {
				defer close(forwarded)
				srv.Forward(controller.Events())
			}()

			if err := srv.Start(runCtx); err != nil {
				controller.Close()
				<-forwarded
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sidecar listening on %s\n", srv.Addr())

			if initialSync && sess.State() == session.Connected {
				if _, err := controller.Trigger(tasksync.OptionsFromConfig(cfg)); err != nil {
					logger.Warn("initial task refresh not started", logging.Error(err),
						logging.String(logging.FieldEventType, "initial_sync_failed"),
						logging.String(logging.FieldErrorHint, "trigger POST /api/sync manually"),
						logging.String(logging.FieldImpact, "plugins see no tree until the next refresh"),
					)
				}
			}

			<-runCtx.Done()
			logger.Info("sidecar shutting down")
			controller.Close()
			<-forwarded
			srv.Stop()
			return nil
		},
	}

	cmd.Flags().BoolVar(&initialSync, "initial-sync", true, "Refresh the task tree once at startup when logged in")
	return cmd
}

// sessionTracker resolves the session's client on every call so a pass run
// while logged out fails with a connection error instead of a nil client.
type sessionTracker struct {
	sess *session.Session
}

func (t sessionTracker) client() (*kitsu.Client, error) {
	client, err := t.sess.Client()
	if err != nil {
		return nil, services.Wrap(services.ErrConnection, "sidecar", "tracker", "not logged in", err)
	}
	return client, nil
}

func (t sessionTracker) OpenProjects(ctx context.Context) ([]kitsu.Project, error) {
	c, err := t.client()
	if err != nil {
		return nil, err
	}
	return c.OpenProjects(ctx)
}

func (t sessionTracker) ProjectByName(ctx context.Context, name string) (*kitsu.Project, error) {
	c, err := t.client()
	if err != nil {
		return nil, err
	}
	return c.ProjectByName(ctx, name)
}

func (t sessionTracker) ProjectTasks(ctx context.Context, projectID string) ([]kitsu.TaskRef, error) {
	c, err := t.client()
	if err != nil {
		return nil, err
	}
	return c.ProjectTasks(ctx, projectID)
}

func (t sessionTracker) TasksToDo(ctx context.Context) ([]kitsu.TaskRef, error) {
	c, err := t.client()
	if err != nil {
		return nil, err
	}
	return c.TasksToDo(ctx)
}

func (t sessionTracker) Task(ctx context.Context, id string) (*kitsu.TaskDetail, error) {
	c, err := t.client()
	if err != nil {
		return nil, err
	}
	return c.Task(ctx, id)
}

func (t sessionTracker) DownloadThumbnail(ctx context.Context, previewID, dest string) error {
	c, err := t.client()
	if err != nil {
		return err
	}
	return c.DownloadThumbnail(ctx, previewID, dest)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
