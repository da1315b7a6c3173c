package plates

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kitsupub/internal/fileutil"
	"kitsupub/internal/logging"
	"kitsupub/internal/notifications"
	"kitsupub/internal/services"
	"kitsupub/internal/shotinfo"
)

// Request describes one plate export.
type Request struct {
	// Root is the pipeline project folder.
	Root    string
	Source  string
	Project string
	// Sequence and Shot name the destination folders.
	Sequence string
	Shot     string
	// In and Out are recorded in the shot info file. When both are zero and
	// the source is an image sequence, the first and last frame numbers are
	// used.
	In, Out int
	// SkipShotInfo leaves the shot info file untouched.
	SkipShotInfo bool
}

// Progress reports copy advancement across the whole export.
type Progress struct {
	File    string
	Index   int
	Count   int
	Percent float64
}

// Result describes a finished export.
type Result struct {
	Version      string
	Dir          string
	Files        []string
	Bytes        int64
	ShotInfoPath string
	In, Out      int
	Duration     time.Duration
}

// Exporter copies source plates into versioned shot folders.
type Exporter struct {
	notifier notifications.Service
	logger   *slog.Logger
}

// NewExporter constructs an exporter. A nil notifier disables notifications.
func NewExporter(notifier notifications.Service, logger *slog.Logger) *Exporter {
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	return &Exporter{notifier: notifier, logger: logging.NewComponentLogger(logger, "plates")}
}

// ShotDir returns the shot folder under root.
func ShotDir(root, sequence, shot string) string {
	return filepath.Join(root, "03_Production", "Shots", sequence, shot)
}

// PlateDir returns the folder holding source plate versions for a shot.
func PlateDir(root, sequence, shot string) string {
	return filepath.Join(ShotDir(root, sequence, shot), "Renders", "external", "sourceplate")
}

// ShotInfoPath returns the pipeline shot info file under root.
func ShotInfoPath(root string) string {
	return filepath.Join(root, "00_Pipeline", "Shotinfo", "shotInfo.json")
}

// Export copies req.Source into the next plate version. An .exr source
// pulls in every frame of its sequence.
func (e *Exporter) Export(ctx context.Context, req Request, progress func(Progress)) (*Result, error) {
	started := time.Now()
	if err := validate(req); err != nil {
		return nil, err
	}
	logger := e.logger.With(logging.String("sequence", req.Sequence), logging.String("shot", req.Shot))

	sources, in, out, err := collectSources(req)
	if err != nil {
		return nil, err
	}

	base := PlateDir(req.Root, req.Sequence, req.Shot)
	version, err := fileutil.NextVersion(base)
	if err != nil {
		return nil, fmt.Errorf("scan plate versions: %w", err)
	}
	dest := filepath.Join(base, version, "rgb")
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("create plate folder: %w", err)
	}

	result := &Result{Version: version, Dir: dest, In: in, Out: out}
	logger.Info("exporting plate",
		logging.String("source", req.Source),
		logging.String("destination", dest),
		logging.Int("files", len(sources)),
	)

	if err := e.copyAll(ctx, sources, dest, result, progress); err != nil {
		return result, err
	}

	if !req.SkipShotInfo {
		result.ShotInfoPath = ShotInfoPath(req.Root)
		shot := shotinfo.Shot{Project: req.Project, Sequence: req.Sequence, Name: req.Shot, In: in, Out: out}
		if err := shotinfo.Update(result.ShotInfoPath, shot); err != nil {
			return result, fmt.Errorf("update shot info: %w", err)
		}
	}
	result.Duration = time.Since(started)

	logger.Info("plate exported",
		logging.String("version", version),
		logging.Int("files", len(result.Files)),
		logging.Int64("bytes", result.Bytes),
		logging.Duration("elapsed", result.Duration),
		logging.String(logging.FieldEventType, "plate_exported"),
	)
	payload := notifications.Payload{"shot": req.Sequence + "/" + req.Shot, "destination": dest}
	if err := e.notifier.Publish(ctx, notifications.EventPlateExported, payload); err != nil {
		logger.Debug("plate notification not sent", logging.Error(err))
	}
	return result, nil
}

func (e *Exporter) copyAll(ctx context.Context, sources []string, dest string, result *Result, progress func(Progress)) error {
	count := len(sources)
	report := func(p Progress) {
		if progress != nil {
			progress(p)
		}
	}

	if count == 1 {
		src := sources[0]
		target := filepath.Join(dest, filepath.Base(src))
		err := fileutil.CopyWithProgress(src, target, func(written, total int64) {
			pct := 100.0
			if total > 0 {
				pct = float64(written) / float64(total) * 100
			}
			report(Progress{File: filepath.Base(src), Index: 0, Count: 1, Percent: pct})
		})
		if err != nil {
			return services.Wrap(services.ErrItem, "plates", "copy", src, err)
		}
		result.Files = append(result.Files, target)
		result.Bytes += fileSize(target)
		return nil
	}

	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		report(Progress{File: filepath.Base(src), Index: i, Count: count, Percent: float64(i) / float64(count) * 100})
		target := filepath.Join(dest, filepath.Base(src))
		if err := fileutil.CopyFileVerified(src, target); err != nil {
			return services.Wrap(services.ErrItem, "plates", "copy frame", src, err)
		}
		result.Files = append(result.Files, target)
		result.Bytes += fileSize(target)
	}
	report(Progress{Index: count, Count: count, Percent: 100})
	return nil
}

func collectSources(req Request) ([]string, int, int, error) {
	info, err := os.Stat(req.Source)
	if err != nil {
		return nil, 0, 0, services.Wrap(services.ErrValidation, "plates", "source", req.Source, err)
	}
	if info.IsDir() {
		return nil, 0, 0, services.Wrap(services.ErrValidation, "plates", "source", req.Source+" is a directory", nil)
	}
	in, out := req.In, req.Out
	if !strings.EqualFold(filepath.Ext(req.Source), ".exr") {
		return []string{req.Source}, in, out, nil
	}

	frames, err := fileutil.ScanSequence(req.Source)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("scan sequence: %w", err)
	}
	paths := make([]string, 0, len(frames))
	for _, f := range frames {
		paths = append(paths, f.Path)
	}
	if in == 0 && out == 0 && len(frames) > 1 {
		in, out = frames[0].Number, frames[len(frames)-1].Number
	}
	return paths, in, out, nil
}

func validate(req Request) error {
	if strings.TrimSpace(req.Root) == "" {
		return services.Wrap(services.ErrConfiguration, "plates", "export", "production root not set (use --root or paths.production_root)", nil)
	}
	for _, part := range []string{req.Sequence, req.Shot} {
		part = strings.TrimSpace(part)
		if part == "" {
			return services.Wrap(services.ErrValidation, "plates", "export", "sequence and shot are required", nil)
		}
		if strings.ContainsAny(part, `/\`) || part == "." || part == ".." {
			return services.Wrap(services.ErrValidation, "plates", "export", fmt.Sprintf("invalid folder name %q", part), nil)
		}
	}
	if req.In > req.Out {
		return services.Wrap(services.ErrValidation, "plates", "export", fmt.Sprintf("frame in %d is after frame out %d", req.In, req.Out), nil)
	}
	return nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
