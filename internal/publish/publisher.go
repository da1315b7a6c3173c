package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"kitsupub/internal/history"
	"kitsupub/internal/kitsu"
	"kitsupub/internal/logging"
	"kitsupub/internal/metrics"
	"kitsupub/internal/notifications"
	"kitsupub/internal/services"
	"kitsupub/internal/transcode"
)

// Tracker is the subset of the tracker client a publish needs.
type Tracker interface {
	StatusFinder
	Task(ctx context.Context, id string) (*kitsu.TaskDetail, error)
	AddComment(ctx context.Context, taskID, statusID, text string) (*kitsu.Comment, error)
	AddPreview(ctx context.Context, taskID, commentID, mediaPath string) (*kitsu.PreviewFile, error)
	SetMainPreview(ctx context.Context, previewID string) error
}

// Encoder produces preview movies.
type Encoder interface {
	Transcode(ctx context.Context, req transcode.Request, progress func(transcode.Progress)) error
}

// Recorder stores publish attempts.
type Recorder interface {
	Record(ctx context.Context, e *history.Entry) error
}

// Request describes one publish.
type Request struct {
	TaskID string
	// Status is a display or short name; empty uses the configured default.
	Status  string
	Comment string
	Media   []string
	FPS     float64
	// SceneFile is named in the comment footer when set.
	SceneFile      string
	NoTranscode    bool
	SetMainPreview bool
}

// Stage names a publish step reported through Progress.
type Stage string

const (
	StageTranscode   Stage = "transcode"
	StageComment     Stage = "comment"
	StageUpload      Stage = "upload"
	StageMainPreview Stage = "main_preview"
	StageDone        Stage = "done"
)

// Progress reports publish advancement. Percent is -1 when unknown.
type Progress struct {
	Stage   Stage
	Percent float64
	Message string
}

// Result describes a finished publish. On failure PreviewPath names the
// local preview that was kept, if any.
type Result struct {
	PublishID      string
	TaskID         string
	TaskLabel      string
	Status         *kitsu.TaskStatus
	Comment        *kitsu.Comment
	Preview        *kitsu.PreviewFile
	PreviewPath    string
	PreviewKept    bool
	MainPreviewErr error
	Duration       time.Duration
}

// Option customizes a Publisher.
type Option func(*Publisher)

// WithHistory records every attempt in r.
func WithHistory(r Recorder) Option {
	return func(p *Publisher) { p.history = r }
}

// WithNotifier sends completion and failure notifications.
func WithNotifier(n notifications.Service) Option {
	return func(p *Publisher) {
		if n != nil {
			p.notifier = n
		}
	}
}

// WithDefaultStatus sets the status used when a request names none.
func WithDefaultStatus(status string) Option {
	return func(p *Publisher) { p.defaultStatus = status }
}

// Publisher runs the publish flow: transcode, comment, preview upload and
// optional main preview.
type Publisher struct {
	tracker       Tracker
	encoder       Encoder
	stagingDir    string
	defaultStatus string
	history       Recorder
	notifier      notifications.Service
	logger        *slog.Logger
	newID         func() string
}

// New constructs a publisher writing temporary previews to stagingDir.
func New(tracker Tracker, encoder Encoder, stagingDir string, logger *slog.Logger, opts ...Option) *Publisher {
	p := &Publisher{
		tracker:       tracker,
		encoder:       encoder,
		stagingDir:    stagingDir,
		defaultStatus: "wfa",
		notifier:      notifications.NewService(nil),
		logger:        logging.NewComponentLogger(logger, "publish"),
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish runs req. The temporary preview is removed only after a successful
// upload; on failure it is kept and reported in Result.PreviewPath so the
// artist can retry without re-encoding.
func (p *Publisher) Publish(ctx context.Context, req Request, progress func(Progress)) (*Result, error) {
	started := time.Now()
	result := &Result{PublishID: p.newID(), TaskID: strings.TrimSpace(req.TaskID)}
	ctx = services.WithTaskID(ctx, result.TaskID)
	logger := logging.WithContext(ctx, p.logger).With(logging.String("publish_id", result.PublishID))
	report := func(stage Stage, percent float64, msg string) {
		if progress != nil {
			progress(Progress{Stage: stage, Percent: percent, Message: msg})
		}
	}

	err := p.run(ctx, req, result, logger, report)
	result.Duration = time.Since(started)
	p.finish(ctx, req, result, started, err, logger)
	if err != nil {
		return result, err
	}
	report(StageDone, 100, "published")
	return result, nil
}

func (p *Publisher) run(ctx context.Context, req Request, result *Result, logger *slog.Logger, report func(Stage, float64, string)) error {
	if err := validate(req); err != nil {
		return err
	}

	task, err := p.tracker.Task(ctx, result.TaskID)
	if err != nil {
		return services.Wrap(services.ErrPublish, "publish", "task", result.TaskID, err)
	}
	result.TaskLabel = task.Label()

	status, err := ResolveStatus(ctx, p.tracker, req.Status, p.defaultStatus)
	if err != nil {
		return err
	}
	result.Status = status

	media := req.Media[0]
	if req.NoTranscode {
		result.PreviewPath = media
	} else {
		out, err := p.transcode(ctx, req, report)
		if err != nil {
			return err
		}
		result.PreviewPath = out
		media = out
	}

	report(StageComment, -1, "posting comment")
	comment, err := p.tracker.AddComment(ctx, result.TaskID, status.ID, CommentText(req.Comment, req.SceneFile, media))
	if err != nil {
		p.keepPreview(req, result)
		return err
	}
	result.Comment = comment

	report(StageUpload, -1, "uploading preview")
	preview, err := p.tracker.AddPreview(ctx, result.TaskID, comment.ID, media)
	if err != nil {
		p.keepPreview(req, result)
		return err
	}
	result.Preview = preview

	if req.SetMainPreview {
		report(StageMainPreview, -1, "setting main preview")
		if err := p.tracker.SetMainPreview(ctx, preview.ID); err != nil {
			result.MainPreviewErr = err
			logging.WarnWithContext(logger, "main preview not updated", "main_preview_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "set it from the tracker web page"),
				logging.String(logging.FieldImpact, "the entity thumbnail keeps its previous preview"),
			)
		}
	}

	if !req.NoTranscode {
		if err := os.Remove(media); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Debug("temporary preview not removed", logging.String("path", media), logging.Error(err))
		}
	}
	return nil
}

func (p *Publisher) transcode(ctx context.Context, req Request, report func(Stage, float64, string)) (string, error) {
	out, err := transcode.TempOutput(p.stagingDir)
	if err != nil {
		return "", fmt.Errorf("reserve preview path: %w", err)
	}
	mode := "single"
	if len(req.Media) > 1 {
		mode = "sequence"
	}
	report(StageTranscode, 0, "encoding preview")
	started := time.Now()
	err = p.encoder.Transcode(ctx, transcode.Request{Inputs: req.Media, Output: out, FPS: req.FPS}, func(tp transcode.Progress) {
		report(StageTranscode, tp.Percent, fmt.Sprintf("frame %d", tp.Frame))
	})
	metrics.RecordTranscode(mode, time.Since(started), err == nil)
	if err != nil {
		_ = os.Remove(out)
		return "", err
	}
	return out, nil
}

func (p *Publisher) keepPreview(req Request, result *Result) {
	result.PreviewKept = !req.NoTranscode && result.PreviewPath != ""
}

func (p *Publisher) finish(ctx context.Context, req Request, result *Result, started time.Time, runErr error, logger *slog.Logger) {
	outcome := history.OutcomePublished
	if runErr != nil {
		outcome = history.OutcomeFailed
	}
	metrics.RecordPublish(string(outcome), result.Duration)

	entry := &history.Entry{
		PublishID:  result.PublishID,
		TaskID:     result.TaskID,
		TaskPath:   result.TaskLabel,
		Media:      strings.Join(mediaNames(req.Media), ", "),
		Outcome:    outcome,
		StartedAt:  started,
		FinishedAt: started.Add(result.Duration),
	}
	if result.Status != nil {
		entry.Status = result.Status.ShortName
	}
	if result.Comment != nil {
		entry.CommentID = result.Comment.ID
	}
	if result.Preview != nil {
		entry.PreviewID = result.Preview.ID
	}
	if result.PreviewKept {
		entry.PreviewPath = result.PreviewPath
	}
	if runErr != nil {
		entry.ErrorKind = services.Kind(runErr)
		entry.Error = runErr.Error()
	}
	if p.history != nil && entry.TaskID != "" {
		if err := p.history.Record(ctx, entry); err != nil {
			logger.Warn("publish history not recorded",
				logging.Error(err),
				logging.String(logging.FieldEventType, "history_record_failed"),
				logging.String(logging.FieldErrorHint, "check paths.history_db"),
				logging.String(logging.FieldImpact, "this publish is missing from 'kitsupub history'"),
			)
		}
	}

	target := result.TaskLabel
	if target == "" {
		target = result.TaskID
	}
	if runErr != nil {
		attrs := []logging.Attr{
			logging.Error(runErr),
			logging.String(logging.FieldErrorHint, services.Hint(runErr)),
			logging.Duration("elapsed", result.Duration),
		}
		if result.PreviewKept {
			attrs = append(attrs, logging.String("kept_preview", result.PreviewPath))
		}
		logging.ErrorWithContext(logger, "publish failed", "publish_failed", attrs...)
		if err := p.notifier.Publish(ctx, notifications.EventPublishFailed, notifications.Payload{"task": target, "error": runErr}); err != nil {
			logger.Debug("failure notification not sent", logging.Error(err))
		}
		return
	}

	logger.Info("publish completed",
		logging.String("task", target),
		logging.String("status", entry.Status),
		logging.String("preview_id", entry.PreviewID),
		logging.Duration("elapsed", result.Duration),
		logging.String(logging.FieldEventType, "publish_completed"),
	)
	payload := notifications.Payload{"task": target, "file": entry.Media}
	if result.Status != nil {
		payload["status"] = result.Status.Name
	}
	if err := p.notifier.Publish(ctx, notifications.EventPublishCompleted, payload); err != nil {
		logger.Debug("publish notification not sent", logging.Error(err))
	}
}

func validate(req Request) error {
	if strings.TrimSpace(req.TaskID) == "" {
		return services.Wrap(services.ErrValidation, "publish", "request", "task id required", nil)
	}
	if len(req.Media) == 0 {
		return services.Wrap(services.ErrValidation, "publish", "request", "no media files given", nil)
	}
	for _, m := range req.Media {
		info, err := os.Stat(m)
		if err != nil {
			return services.Wrap(services.ErrValidation, "publish", "media", m, err)
		}
		if info.IsDir() {
			return services.Wrap(services.ErrValidation, "publish", "media", m+" is a directory", nil)
		}
	}
	if req.NoTranscode {
		if len(req.Media) != 1 || !uploadable(req.Media[0]) {
			return services.Wrap(services.ErrValidation, "publish", "media", "--no-transcode needs a single .mp4 or .mov file", nil)
		}
		return nil
	}
	if req.FPS <= 0 {
		return services.Wrap(services.ErrValidation, "publish", "fps", fmt.Sprintf("fps must be positive, got %v", req.FPS), nil)
	}
	return nil
}

func uploadable(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".mov":
		return true
	}
	return false
}

func mediaNames(media []string) []string {
	if len(media) <= 1 {
		out := make([]string, 0, len(media))
		for _, m := range media {
			out = append(out, filepath.Base(m))
		}
		return out
	}
	return []string{fmt.Sprintf("%s .. %s (%d files)", filepath.Base(media[0]), filepath.Base(media[len(media)-1]), len(media))}
}
