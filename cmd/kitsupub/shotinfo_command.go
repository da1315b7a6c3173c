package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kitsupub/internal/plates"
	"kitsupub/internal/shotinfo"
)

func newShotInfoCommand(ctx *commandContext) *cobra.Command {
	var root string
	var shot shotinfo.Shot

	shotCmd := &cobra.Command{
		Use:   "shotinfo",
		Short: "Read or update the pipeline shot info file",
	}
	shotCmd.PersistentFlags().StringVar(&root, "root", "", "Pipeline project folder (defaults to paths.production_root)")
	shotCmd.PersistentFlags().StringVar(&shot.Project, "project", "", "Project key")
	shotCmd.PersistentFlags().StringVar(&shot.Sequence, "seq", "", "Sequence name")
	shotCmd.PersistentFlags().StringVar(&shot.Name, "shot", "", "Shot name")

	setCmd := &cobra.Command{
		Use:   "set --seq SEQ --shot SHOT --in N --out N",
		Short: "Record a shot's frame range, keeping its existing metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			resolved, err := resolveRoot(root, cfg)
			if err != nil {
				return err
			}
			path := plates.ShotInfoPath(resolved)
			if err := shotinfo.Update(path, shot); err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]any{"path": path, "in": shot.In, "out": shot.Out})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s/%s %d-%d in %s\n", shot.Sequence, shot.Name, shot.In, shot.Out, path)
			return nil
		},
	}
	setCmd.Flags().IntVar(&shot.In, "in", 0, "First frame")
	setCmd.Flags().IntVar(&shot.Out, "out", 0, "Last frame")

	showCmd := &cobra.Command{
		Use:   "show --seq SEQ --shot SHOT",
		Short: "Print a shot's recorded frame range",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			resolved, err := resolveRoot(root, cfg)
			if err != nil {
				return err
			}
			path := plates.ShotInfoPath(resolved)
			doc, err := shotinfo.Load(path)
			if err != nil {
				return err
			}
			in, out, ok := doc.Range(shot)
			if ctx.JSONMode() {
				payload := map[string]any{"path": path, "found": ok, "has_shot": doc.HasShot(shot)}
				if ok {
					payload["in"] = in
					payload["out"] = out
				}
				return writeJSON(cmd, payload)
			}
			if !ok {
				return fmt.Errorf("no frame range recorded for %s/%s in %s", shot.Sequence, shot.Name, path)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s/%s %d-%d\n", shot.Sequence, shot.Name, in, out)
			return nil
		},
	}

	for _, c := range []*cobra.Command{setCmd, showCmd} {
		shotCmd.AddCommand(c)
	}
	_ = shotCmd.MarkPersistentFlagRequired("seq")
	_ = shotCmd.MarkPersistentFlagRequired("shot")
	return shotCmd
}
