package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"kitsupub/internal/config"
	"kitsupub/internal/logging"
	"kitsupub/internal/metrics"
	"kitsupub/internal/transcode"
)

func newTranscodeCommand(ctx *commandContext) *cobra.Command {
	var output string
	var fps float64

	cmd := &cobra.Command{
		Use:   "transcode --output FILE [flags] MEDIA...",
		Short: "Encode a preview movie without publishing it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			target, err := config.ExpandPath(output)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("fps") {
				fps = cfg.Transcode.DefaultFPS
			}

			encoder := transcode.New(ffmpegCommand(cfg), cfg.Paths.StagingDir, logger)
			errOut := cmd.ErrOrStderr()
			sampler := logging.NewProgressSampler(10)
			mode := "single"
			if len(args) > 1 {
				mode = "sequence"
			}
			started := time.Now()
			err = encoder.Transcode(runCtx, transcode.Request{Inputs: args, Output: target, FPS: fps}, func(p transcode.Progress) {
				if ctx.JSONMode() || p.Percent < 0 || !sampler.ShouldLog(p.Percent, mode) {
					return
				}
				fmt.Fprintf(errOut, "frame %d/%d (%.0f%%)\n", p.Frame, p.Total, p.Percent)
			})
			metrics.RecordTranscode(mode, time.Since(started), err == nil)
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]any{"output": target, "inputs": len(args), "mode": mode})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", filepath.Clean(target))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination .mp4")
	cmd.Flags().Float64Var(&fps, "fps", 24, "Frame rate for image sequences (defaults to transcode.default_fps)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
