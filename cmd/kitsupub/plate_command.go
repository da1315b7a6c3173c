package main

import (
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"kitsupub/internal/config"
	"kitsupub/internal/logging"
	"kitsupub/internal/notifications"
	"kitsupub/internal/plates"
)

func newPlateCommand(ctx *commandContext) *cobra.Command {
	var req plates.Request

	cmd := &cobra.Command{
		Use:   "plate --seq SEQ --shot SHOT [flags] SOURCE",
		Short: "Copy a source plate into the shot folder",
		Long: `Copy SOURCE into
<root>/03_Production/Shots/<seq>/<shot>/Renders/external/sourceplate/vNNNN/rgb
using the next free version, then record the frame range in
<root>/00_Pipeline/Shotinfo/shotInfo.json.

An .exr SOURCE brings its whole frame sequence along; the frame range then
defaults to the first and last frame numbers.`,
		Args: cobra.ExactArgs(1),
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

			root, err := resolveRoot(req.Root, cfg)
			if err != nil {
				return err
			}
			req.Root = root
			req.Source, err = config.ExpandPath(args[0])
			if err != nil {
				return err
			}

			exporter := plates.NewExporter(notifications.NewService(cfg), logger)
			errOut := cmd.ErrOrStderr()
			sampler := logging.NewProgressSampler(10)
			result, err := exporter.Export(runCtx, req, func(p plates.Progress) {
				if ctx.JSONMode() || !sampler.ShouldLog(p.Percent, "copy") {
					return
				}
				fmt.Fprintf(errOut, "copy %3.0f%% (%d/%d)\n", p.Percent, p.Index, p.Count)
			})
			if err != nil {
				return err
			}

			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]any{
					"version":   result.Version,
					"directory": result.Dir,
					"files":     len(result.Files),
					"bytes":     result.Bytes,
					"in":        result.In,
					"out":       result.Out,
					"shot_info": result.ShotInfoPath,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Exported %d file(s) to %s\n", len(result.Files), result.Dir)
			if result.ShotInfoPath != "" {
				fmt.Fprintf(out, "Frame range %d-%d recorded in %s\n", result.In, result.Out, result.ShotInfoPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Root, "root", "", "Pipeline project folder (defaults to paths.production_root)")
	cmd.Flags().StringVar(&req.Project, "project", "", "Project key in the shot info file")
	cmd.Flags().StringVar(&req.Sequence, "seq", "", "Sequence folder name")
	cmd.Flags().StringVar(&req.Shot, "shot", "", "Shot folder name")
	cmd.Flags().IntVar(&req.In, "in", 0, "First frame")
	cmd.Flags().IntVar(&req.Out, "out", 0, "Last frame")
	cmd.Flags().BoolVar(&req.SkipShotInfo, "skip-shotinfo", false, "Do not update the shot info file")
	_ = cmd.MarkFlagRequired("seq")
	_ = cmd.MarkFlagRequired("shot")
	return cmd
}

func resolveRoot(flag string, cfg *config.Config) (string, error) {
	root := strings.TrimSpace(flag)
	if root == "" && cfg != nil {
		root = cfg.Paths.ProductionRoot
	}
	if root == "" {
		return "", errors.New("production root is required (use --root or paths.production_root)")
	}
	return config.ExpandPath(root)
}
