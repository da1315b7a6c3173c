package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"kitsupub/internal/history"
	"kitsupub/internal/logging"
	"kitsupub/internal/notifications"
	"kitsupub/internal/publish"
	"kitsupub/internal/transcode"
)

func newPublishCommand(ctx *commandContext) *cobra.Command {
	var req publish.Request

	cmd := &cobra.Command{
		Use:   "publish --task ID [flags] MEDIA...",
		Short: "Publish a preview with a review comment",
		Long: `Transcode MEDIA into an H.264 preview, post a comment on the task with the
chosen status and attach the preview.

A single movie file is re-encoded; two or more image files are treated as a
frame sequence at --fps. With --no-transcode a single .mp4 or .mov is uploaded
as-is. When the comment or upload fails the temporary preview is kept and its
path printed so the publish can be retried.`,
		Args: cobra.MinimumNArgs(1),
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
			store, err := history.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if !cmd.Flags().Changed("fps") {
				req.FPS = cfg.Transcode.DefaultFPS
			}
			if !cmd.Flags().Changed("main-preview") {
				req.SetMainPreview = cfg.Tracker.SetMainPreview
			}
			req.Media = args

			encoder := transcode.New(ffmpegCommand(cfg), cfg.Paths.StagingDir, logger)
			publisher := publish.New(client, encoder, cfg.Paths.StagingDir, logger,
				publish.WithHistory(store),
				publish.WithNotifier(notifications.NewService(cfg)),
				publish.WithDefaultStatus(cfg.Tracker.DefaultStatus),
			)

			errOut := cmd.ErrOrStderr()
			sampler := logging.NewProgressSampler(10)
			result, err := publisher.Publish(runCtx, req, func(p publish.Progress) {
				if ctx.JSONMode() {
					return
				}
				printPublishProgress(errOut, sampler, p)
			})
			if err != nil {
				if result != nil && result.PreviewKept {
					fmt.Fprintf(errOut, "Preview kept at %s\n", result.PreviewPath)
				}
				return err
			}

			if ctx.JSONMode() {
				payload := map[string]any{
					"publish_id": result.PublishID,
					"task_id":    result.TaskID,
					"task":       result.TaskLabel,
					"duration":   result.Duration.String(),
				}
				if result.Status != nil {
					payload["status"] = result.Status.ShortName
				}
				if result.Comment != nil {
					payload["comment_id"] = result.Comment.ID
				}
				if result.Preview != nil {
					payload["preview_id"] = result.Preview.ID
				}
				if result.MainPreviewErr != nil {
					payload["main_preview_error"] = result.MainPreviewErr.Error()
				}
				return writeJSON(cmd, payload)
			}

			out := cmd.OutOrStdout()
			status := ""
			if result.Status != nil {
				status = fmt.Sprintf(" (%s)", result.Status.Name)
			}
			fmt.Fprintf(out, "Published to %s%s in %s\n", result.TaskLabel, status, result.Duration.Round(100*time.Millisecond))
			if result.Preview != nil {
				fmt.Fprintf(out, "Preview: %s\n", result.Preview.ID)
			}
			if result.MainPreviewErr != nil {
				fmt.Fprintf(errOut, "warn: main preview not set: %v\n", result.MainPreviewErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&req.TaskID, "task", "t", "", "Task ID (see 'kitsupub tasks')")
	cmd.Flags().StringVarP(&req.Status, "status", "s", "", "Status name or short name (defaults to tracker.default_status)")
	cmd.Flags().StringVarP(&req.Comment, "comment", "m", "", "Review comment")
	cmd.Flags().Float64Var(&req.FPS, "fps", 24, "Frame rate for image sequences (defaults to transcode.default_fps)")
	cmd.Flags().StringVar(&req.SceneFile, "scene", "", "Scene file named in the comment footer")
	cmd.Flags().BoolVar(&req.NoTranscode, "no-transcode", false, "Upload a single .mp4/.mov without re-encoding")
	cmd.Flags().BoolVar(&req.SetMainPreview, "main-preview", false, "Make the upload the entity's main preview (defaults to tracker.set_main_preview)")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func printPublishProgress(w io.Writer, sampler *logging.ProgressSampler, p publish.Progress) {
	if p.Stage == publish.StageTranscode {
		if !sampler.ShouldLog(p.Percent, string(p.Stage)) {
			return
		}
		if p.Percent >= 0 {
			fmt.Fprintf(w, "transcode %3.0f%%\n", p.Percent)
			return
		}
	}
	if p.Message != "" {
		fmt.Fprintf(w, "%s: %s\n", p.Stage, p.Message)
	}
}
