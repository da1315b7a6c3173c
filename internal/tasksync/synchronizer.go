package tasksync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"kitsupub/internal/config"
	"kitsupub/internal/kitsu"
	"kitsupub/internal/logging"
	"kitsupub/internal/services"
	"kitsupub/internal/tasktree"
)

// Tracker is the subset of the tracker client a pass needs.
type Tracker interface {
	OpenProjects(ctx context.Context) ([]kitsu.Project, error)
	ProjectByName(ctx context.Context, name string) (*kitsu.Project, error)
	ProjectTasks(ctx context.Context, projectID string) ([]kitsu.TaskRef, error)
	TasksToDo(ctx context.Context) ([]kitsu.TaskRef, error)
	Task(ctx context.Context, id string) (*kitsu.TaskDetail, error)
	DownloadThumbnail(ctx context.Context, previewID, dest string) error
}

// Outcome is the terminal state of a pass.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// Options tune a single pass. A non-empty Project limits the pass to the
// open project of that name.
type Options struct {
	MineOnly      bool
	Project       string
	Thumbnails    bool
	ThumbnailSize int
	Sort          bool
	WarnThreshold int
}

// OptionsFromConfig derives pass options from the [sync] section.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{WarnThreshold: 40, ThumbnailSize: 96}
	}
	return Options{
		MineOnly:      cfg.Sync.MineOnly,
		Thumbnails:    cfg.Sync.Thumbnails,
		ThumbnailSize: cfg.Sync.ThumbnailSize,
		Sort:          cfg.Sync.SortGroups,
		WarnThreshold: cfg.Sync.EstimateWarningThreshold,
	}
}

// Result summarizes a finished pass. Tree is set only for OutcomeCompleted.
type Result struct {
	PassID            string
	Outcome           Outcome
	Tree              *tasktree.Tree
	Fetched           int
	Skipped           int
	ThumbnailFailures int
	Err               error
	Started           time.Time
	Duration          time.Duration
}

// Event builds the terminal event matching the result.
func (r Result) Event() Event {
	evt := Event{PassID: r.PassID, Time: time.Now()}
	switch r.Outcome {
	case OutcomeCompleted:
		evt.Kind = EventCompleted
		evt.Tree = r.Tree
		evt.Message = fmt.Sprintf("task tree ready: %d tasks", r.Fetched-r.Skipped)
	case OutcomeCancelled:
		evt.Kind = EventCancelled
		evt.Message = "task tree refresh cancelled"
	default:
		evt.Kind = EventFailed
		evt.Message = "task tree refresh failed"
		if r.Err != nil {
			evt.Error = r.Err.Error()
		}
	}
	return evt
}

// Synchronizer converts the tracker's flat task list into a task tree.
type Synchronizer struct {
	tracker    Tracker
	stagingDir string
	logger     *slog.Logger
	now        func() time.Time
}

// New constructs a synchronizer. Thumbnails are downloaded into a per-pass
// temporary directory under stagingDir.
func New(tracker Tracker, stagingDir string, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		tracker:    tracker,
		stagingDir: stagingDir,
		logger:     logging.NewComponentLogger(logger, "tasksync"),
		now:        time.Now,
	}
}

type passRun struct {
	s      *Synchronizer
	ctx    context.Context
	id     string
	token  *Token
	opts   Options
	emit   EmitFunc
	logger *slog.Logger
	result Result
}

// Run executes one pass. It emits progress and log events through emit
// (which may be nil); the terminal event is available from Result.Event so
// callers can publish it after recording the result. Cancellation through
// token or ctx yields OutcomeCancelled and never a tree.
func (s *Synchronizer) Run(ctx context.Context, passID string, token *Token, opts Options, emit EmitFunc) Result {
	ctx = services.WithPassID(ctx, passID)
	p := &passRun{
		s:      s,
		ctx:    ctx,
		id:     passID,
		token:  token,
		opts:   opts,
		emit:   emit,
		logger: logging.WithContext(ctx, s.logger),
		result: Result{PassID: passID, Started: s.now()},
	}
	p.execute()
	p.result.Duration = s.now().Sub(p.result.Started)
	p.logResult()
	return p.result
}

func (p *passRun) execute() {
	p.log(slog.LevelInfo, "building task tree")

	thumbDir := ""
	if p.opts.Thumbnails {
		dir, err := p.s.makeTempDir()
		if err != nil {
			logging.WarnWithContext(p.logger, "thumbnail directory unavailable; continuing without thumbnails", "thumbnail_dir_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check paths.staging_dir is writable"),
				logging.String(logging.FieldImpact, "tree is built without thumbnails"),
			)
		} else {
			thumbDir = dir
			defer os.RemoveAll(dir)
		}
	}

	refs, err := p.listTasks()
	if err != nil {
		if p.stopped() {
			p.result.Outcome = OutcomeCancelled
			return
		}
		p.result.Outcome = OutcomeFailed
		p.result.Err = services.Wrap(services.ErrFetch, "tasksync", "list tasks", "", err)
		return
	}
	p.log(slog.LevelInfo, fmt.Sprintf("Found %d tasks", len(refs)))
	if p.opts.WarnThreshold > 0 && len(refs) > p.opts.WarnThreshold {
		p.log(slog.LevelWarn, fmt.Sprintf("%d tasks to fetch; building the tree may take a while", len(refs)))
	}

	records := make([]tasktree.Record, 0, len(refs))
	for i, ref := range refs {
		if p.stopped() {
			p.result.Outcome = OutcomeCancelled
			return
		}
		p.result.Fetched++
		detail, err := p.s.tracker.Task(p.ctx, ref.ID)
		if err != nil {
			if p.stopped() {
				p.result.Outcome = OutcomeCancelled
				return
			}
			p.result.Skipped++
			p.log(slog.LevelWarn, fmt.Sprintf("skipping task %s: %v", ref.ID, err))
		} else {
			records = append(records, recordFromDetail(detail))
		}
		p.progress("fetch", i+1, len(refs))
	}

	builder := tasktree.NewBuilder()
	for i, rec := range records {
		if p.stopped() {
			p.result.Outcome = OutcomeCancelled
			return
		}
		element, created, err := builder.Add(rec)
		if err != nil {
			p.result.Skipped++
			p.log(slog.LevelWarn, fmt.Sprintf("skipping task %s: %v", rec.ID, err))
			continue
		}
		if created && thumbDir != "" && element.PreviewFileID() != "" {
			img, err := p.s.fetchThumbnail(p.ctx, thumbDir, i, element.PreviewFileID(), p.opts.ThumbnailSize)
			switch {
			case err == nil:
				element.Thumbnail = img
			case p.stopped():
				p.result.Outcome = OutcomeCancelled
				return
			default:
				p.result.ThumbnailFailures++
				p.logger.Debug("thumbnail skipped",
					logging.String("element", element.Label),
					logging.String("preview_id", element.PreviewFileID()),
					logging.Error(err),
				)
			}
		}
		p.progress("group", i+1, len(records))
	}

	p.result.Tree = builder.Tree(p.opts.Sort)
	p.result.Outcome = OutcomeCompleted
}

func (p *passRun) listTasks() ([]kitsu.TaskRef, error) {
	var scope *kitsu.Project
	if name := strings.TrimSpace(p.opts.Project); name != "" {
		project, err := p.s.tracker.ProjectByName(p.ctx, name)
		if err != nil {
			return nil, err
		}
		scope = project
	}
	if p.opts.MineOnly {
		refs, err := p.s.tracker.TasksToDo(p.ctx)
		if err != nil || scope == nil {
			return refs, err
		}
		return inProject(refs, scope.Name), nil
	}
	if scope != nil {
		return p.s.tracker.ProjectTasks(p.ctx, scope.ID)
	}
	projects, err := p.s.tracker.OpenProjects(p.ctx)
	if err != nil {
		return nil, err
	}
	var refs []kitsu.TaskRef
	for _, project := range projects {
		if p.stopped() {
			return nil, context.Canceled
		}
		tasks, err := p.s.tracker.ProjectTasks(p.ctx, project.ID)
		if err != nil {
			return nil, fmt.Errorf("project %s: %w", project.Name, err)
		}
		refs = append(refs, tasks...)
	}
	return refs, nil
}

func inProject(refs []kitsu.TaskRef, project string) []kitsu.TaskRef {
	out := refs[:0:0]
	for _, ref := range refs {
		if strings.EqualFold(strings.TrimSpace(ref.ProjectName), project) {
			out = append(out, ref)
		}
	}
	return out
}

// stopped reports cancellation by the token or by shutdown of ctx.
func (p *passRun) stopped() bool {
	return p.token.Cancelled() || p.ctx.Err() != nil
}

func (p *passRun) log(level slog.Level, msg string) {
	p.logger.Log(p.ctx, level, msg)
	if p.emit != nil {
		levelName := "info"
		if level >= slog.LevelWarn {
			levelName = "warn"
		}
		p.emit(Event{PassID: p.id, Kind: EventLog, Time: p.s.now(), Level: levelName, Message: msg})
	}
}

func (p *passRun) progress(phase string, done, total int) {
	if p.emit != nil {
		p.emit(Event{PassID: p.id, Kind: EventProgress, Time: p.s.now(), Phase: phase, Done: done, Total: total})
	}
}

func (p *passRun) logResult() {
	r := p.result
	attrs := []logging.Attr{
		logging.String("outcome", string(r.Outcome)),
		logging.Int("fetched", r.Fetched),
		logging.Int("skipped", r.Skipped),
		logging.Int("thumbnail_failures", r.ThumbnailFailures),
		logging.Duration("elapsed", r.Duration),
		logging.String(logging.FieldEventType, "sync_"+string(r.Outcome)),
	}
	switch r.Outcome {
	case OutcomeFailed:
		attrs = append(attrs, logging.Error(r.Err), logging.String(logging.FieldErrorHint, services.Hint(r.Err)))
		logging.ErrorWithContext(p.logger, "task tree refresh failed", "sync_failed", attrs...)
	default:
		p.logger.Info("task tree pass finished", logging.Args(attrs...)...)
	}
}

func (s *Synchronizer) makeTempDir() (string, error) {
	if s.stagingDir != "" {
		if err := os.MkdirAll(s.stagingDir, 0o755); err != nil {
			return "", err
		}
	}
	return os.MkdirTemp(s.stagingDir, "kitsupub-thumbs-")
}

func recordFromDetail(d *kitsu.TaskDetail) tasktree.Record {
	rec := tasktree.Record{ID: d.ID, EntityTypeName: d.EntityTypeName}
	if d.Project != nil {
		rec.Project = d.Project.Name
	}
	if d.TaskType != nil {
		rec.EntityKind = d.TaskType.ForEntity
		rec.TaskType = d.TaskType.Name
	}
	if d.Sequence != nil {
		rec.Sequence = d.Sequence.Name
	}
	if d.EntityType != nil && d.EntityType.Name != "" {
		rec.EntityTypeName = d.EntityType.Name
	}
	if d.Entity != nil {
		rec.Entity = d.Entity.Name
		rec.PreviewFileID = d.Entity.PreviewFileID
	}
	return rec
}
