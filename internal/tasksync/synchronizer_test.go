package tasksync_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"kitsupub/internal/kitsu"
	"kitsupub/internal/logging"
	"kitsupub/internal/services"
	"kitsupub/internal/tasksync"
	"kitsupub/internal/tasktree"
	"kitsupub/internal/testsupport"
)

func newClient(t *testing.T, f *testsupport.FakeTracker) *kitsu.Client {
	t.Helper()
	client, err := kitsu.New(f.URL(), kitsu.WithToken(f.Token))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func shotDetail(id, project, seq, shot, taskType, preview string) kitsu.TaskDetail {
	return kitsu.TaskDetail{
		ID:         id,
		Project:    &kitsu.Named{ID: "proj-" + project, Name: project},
		TaskType:   &kitsu.TaskType{ID: "tt-" + taskType, Name: taskType, ForEntity: "Shot"},
		Entity:     &kitsu.Entity{ID: "ent-" + shot, Name: shot, PreviewFileID: preview},
		EntityType: &kitsu.Named{ID: "et-shot", Name: "Shot"},
		Sequence:   &kitsu.Named{ID: "seq-" + seq, Name: seq},
	}
}

func newSynchronizer(t *testing.T, f *testsupport.FakeTracker) *tasksync.Synchronizer {
	t.Helper()
	return tasksync.New(newClient(t, f), t.TempDir(), logging.NewNop())
}

func TestRunBuildsTreeFromOpenProjects(t *testing.T) {
	f := testsupport.NewFakeTracker(t)
	f.Projects = []kitsu.Project{{ID: "proj-Feature", Name: "Feature"}, {ID: "proj-Short", Name: "Short"}}
	f.AddTask("proj-Feature", shotDetail("t1", "Feature", "SQ010", "SH0010", "Anim", "pf-1"))
	f.AddTask("proj-Feature", shotDetail("t2", "Feature", "SQ010", "SH0010", "Comp", "pf-1"))
	f.AddTask("proj-Short", shotDetail("t3", "Short", "SQ001", "SH0001", "Layout", ""))
	f.Thumbnails["pf-1"] = testsupport.PNG(t, 200, 100)

	var progress, logs int
	emit := func(evt tasksync.Event) {
		switch evt.Kind {
		case tasksync.EventProgress:
			progress++
		case tasksync.EventLog:
			logs++
		default:
			t.Errorf("Run must not emit terminal events, got %s", evt.Kind)
		}
	}
	opts := tasksync.Options{Thumbnails: true, ThumbnailSize: 40}
	result := newSynchronizer(t, f).Run(context.Background(), "pass-1", tasksync.NewToken(), opts, emit)

	if result.Outcome != tasksync.OutcomeCompleted || result.Err != nil {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Fetched != 3 || result.Skipped != 0 {
		t.Fatalf("expected 3 fetched and none skipped, got %+v", result)
	}
	if len(tasktree.Leaves(result.Tree.Roots)) != 3 {
		t.Fatalf("expected 3 leaves, got %v", tasktree.Flatten(result.Tree.Roots))
	}
	element := tasktree.FindByPath(result.Tree.Roots, "Feature", "Shot", "SQ010", "SH0010")
	if element == nil || element.Thumbnail == nil {
		t.Fatalf("expected element with thumbnail, got %+v", element)
	}
	if b := element.Thumbnail.Bounds(); b.Dx() != 40 || b.Dy() != 20 {
		t.Fatalf("thumbnail not scaled to fit: %v", b)
	}
	if progress == 0 || logs == 0 {
		t.Fatalf("expected progress and log events, got %d/%d", progress, logs)
	}
	if evt := result.Event(); evt.Kind != tasksync.EventCompleted || evt.Tree != result.Tree || evt.PassID != "pass-1" {
		t.Fatalf("unexpected terminal event %+v", evt)
	}
}

func TestRunMineOnlyUsesTodoList(t *testing.T) {
	f := testsupport.NewFakeTracker(t)
	f.Projects = []kitsu.Project{{ID: "proj-Feature", Name: "Feature"}}
	f.AddTask("proj-Feature", shotDetail("t1", "Feature", "SQ010", "SH0010", "Anim", ""))
	f.AddTask("proj-Feature", shotDetail("t2", "Feature", "SQ010", "SH0020", "Anim", ""))
	f.MyTasks = []kitsu.TaskRef{{ID: "t2"}}

	result := newSynchronizer(t, f).Run(context.Background(), "p", nil, tasksync.Options{MineOnly: true}, nil)
	if result.Outcome != tasksync.OutcomeCompleted {
		t.Fatalf("unexpected outcome %s: %v", result.Outcome, result.Err)
	}
	leaves := tasktree.Leaves(result.Tree.Roots)
	if len(leaves) != 1 || leaves[0].ContextID != "t2" {
		t.Fatalf("expected only t2, got %v", leaves)
	}
}

func TestRunWithNoTasksCompletesEmpty(t *testing.T) {
	f := testsupport.NewFakeTracker(t)

	result := newSynchronizer(t, f).Run(context.Background(), "p", nil, tasksync.Options{}, nil)
	if result.Outcome != tasksync.OutcomeCompleted {
		t.Fatalf("expected completed, got %s", result.Outcome)
	}
	if result.Tree == nil || len(result.Tree.Roots) != 0 {
		t.Fatalf("expected empty tree, got %+v", result.Tree)
	}
}

func TestRunSkipsFailedDetails(t *testing.T) {
	f := testsupport.NewFakeTracker(t)
	f.MyTasks = []kitsu.TaskRef{{ID: "gone-1"}, {ID: "gone-2"}}

	var warnings int
	emit := func(evt tasksync.Event) {
		if evt.Kind == tasksync.EventLog && evt.Level == "warn" {
			warnings++
		}
	}
	result := newSynchronizer(t, f).Run(context.Background(), "p", nil, tasksync.Options{MineOnly: true}, emit)
	if result.Outcome != tasksync.OutcomeCompleted {
		t.Fatalf("expected completed, got %s", result.Outcome)
	}
	if result.Skipped != 2 || len(result.Tree.Roots) != 0 {
		t.Fatalf("expected 2 skipped and empty tree, got %+v", result)
	}
	if warnings != 2 {
		t.Fatalf("expected a warning per skipped task, got %d", warnings)
	}
}

func TestRunTaskListFailure(t *testing.T) {
	f := testsupport.NewFakeTracker(t)
	f.Projects = []kitsu.Project{{ID: "proj-Feature", Name: "Feature"}}
	f.FailTaskList = true

	result := newSynchronizer(t, f).Run(context.Background(), "p", nil, tasksync.Options{}, nil)
	if result.Outcome != tasksync.OutcomeFailed {
		t.Fatalf("expected failed, got %s", result.Outcome)
	}
	if !errors.Is(result.Err, services.ErrFetch) {
		t.Fatalf("expected fetch error, got %v", result.Err)
	}
	if result.Tree != nil {
		t.Fatal("failed pass must not carry a tree")
	}
	if evt := result.Event(); evt.Kind != tasksync.EventFailed || evt.Error == "" {
		t.Fatalf("unexpected terminal event %+v", evt)
	}
}

func TestThumbnailFailureDoesNotBlockSiblings(t *testing.T) {
	f := testsupport.NewFakeTracker(t)
	f.MyTasks = []kitsu.TaskRef{{ID: "t1"}, {ID: "t2"}}
	f.Details["t1"] = shotDetail("t1", "P", "S", "SH0010", "Comp", "pf-missing")
	f.Details["t2"] = shotDetail("t2", "P", "S", "SH0020", "Comp", "pf-ok")
	f.Thumbnails["pf-ok"] = testsupport.PNG(t, 8, 8)

	opts := tasksync.Options{MineOnly: true, Thumbnails: true, ThumbnailSize: 96}
	result := newSynchronizer(t, f).Run(context.Background(), "p", nil, opts, nil)
	if result.Outcome != tasksync.OutcomeCompleted {
		t.Fatalf("expected completed, got %s", result.Outcome)
	}
	if result.ThumbnailFailures != 1 {
		t.Fatalf("expected one thumbnail failure, got %d", result.ThumbnailFailures)
	}
	if n := tasktree.FindByPath(result.Tree.Roots, "P", "Shot", "S", "SH0010"); n == nil || n.Thumbnail != nil {
		t.Fatalf("missing preview should leave element without thumbnail: %+v", n)
	}
	if n := tasktree.FindByPath(result.Tree.Roots, "P", "Shot", "S", "SH0020"); n == nil || n.Thumbnail == nil {
		t.Fatalf("sibling should still get its thumbnail: %+v", n)
	}
}

func TestCancelledPassYieldsNoTree(t *testing.T) {
	f := testsupport.NewFakeTracker(t)
	f.MyTasks = []kitsu.TaskRef{{ID: "t1"}, {ID: "t2"}, {ID: "t3"}}
	for _, id := range []string{"t1", "t2", "t3"} {
		f.Details[id] = shotDetail(id, "P", "S", "SH-"+id, "Comp", "")
	}
	token := tasksync.NewToken()
	f.BeforeDetail = func(id string) {
		if id == "t2" {
			token.Cancel()
		}
	}

	result := newSynchronizer(t, f).Run(context.Background(), "p", token, tasksync.Options{MineOnly: true}, nil)
	if result.Outcome != tasksync.OutcomeCancelled {
		t.Fatalf("expected cancelled, got %s", result.Outcome)
	}
	if result.Tree != nil {
		t.Fatal("cancelled pass must not carry a tree")
	}
	for _, req := range f.Requests() {
		if req == "GET /api/data/tasks/t3/full" {
			t.Fatal("no detail should be fetched after cancellation")
		}
	}
}

func TestRunWarnsAboveEstimateThreshold(t *testing.T) {
	f := testsupport.NewFakeTracker(t)
	for _, id := range []string{"t1", "t2", "t3"} {
		f.MyTasks = append(f.MyTasks, kitsu.TaskRef{ID: id})
		f.Details[id] = shotDetail(id, "P", "S", "SH-"+id, "Comp", "")
	}

	var warnings []string
	emit := func(evt tasksync.Event) {
		if evt.Kind == tasksync.EventLog && evt.Level == "warn" {
			warnings = append(warnings, evt.Message)
		}
	}
	opts := tasksync.Options{MineOnly: true, WarnThreshold: 2}
	result := newSynchronizer(t, f).Run(context.Background(), "p", nil, opts, emit)
	if result.Outcome != tasksync.OutcomeCompleted {
		t.Fatalf("expected completed, got %s", result.Outcome)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "3 tasks to fetch") {
		t.Fatalf("expected one estimate warning, got %q", warnings)
	}

	warnings = nil
	opts.WarnThreshold = 3
	newSynchronizer(t, f).Run(context.Background(), "p", nil, opts, emit)
	if len(warnings) != 0 {
		t.Fatalf("no warning expected at the threshold, got %q", warnings)
	}
}

func TestCancelledPassRemovesThumbnailDir(t *testing.T) {
	f := testsupport.NewFakeTracker(t)
	f.MyTasks = []kitsu.TaskRef{{ID: "t1"}, {ID: "t2"}}
	f.Details["t1"] = shotDetail("t1", "P", "S", "SH0010", "Comp", "pf-1")
	f.Details["t2"] = shotDetail("t2", "P", "S", "SH0020", "Comp", "pf-1")
	f.Thumbnails["pf-1"] = testsupport.PNG(t, 8, 8)
	token := tasksync.NewToken()
	f.BeforeDetail = func(id string) {
		if id == "t2" {
			token.Cancel()
		}
	}

	staging := t.TempDir()
	s := tasksync.New(newClient(t, f), staging, logging.NewNop())
	opts := tasksync.Options{MineOnly: true, Thumbnails: true, ThumbnailSize: 32}
	result := s.Run(context.Background(), "p", token, opts, nil)
	if result.Outcome != tasksync.OutcomeCancelled {
		t.Fatalf("expected cancelled, got %s", result.Outcome)
	}
	entries, err := os.ReadDir(staging)
	if err != nil {
		t.Fatalf("read staging: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected staging to be empty, found %d entries", len(entries))
	}
}

func TestRunScopedToProject(t *testing.T) {
	f := testsupport.NewFakeTracker(t)
	f.Projects = []kitsu.Project{{ID: "proj-Feature", Name: "Feature"}, {ID: "proj-Short", Name: "Short"}}
	f.AddTask("proj-Feature", shotDetail("t1", "Feature", "SQ010", "SH0010", "Comp", ""))
	f.AddTask("proj-Short", shotDetail("t2", "Short", "SQ001", "SH0001", "Comp", ""))

	result := newSynchronizer(t, f).Run(context.Background(), "p", nil, tasksync.Options{Project: "feature"}, nil)
	if result.Outcome != tasksync.OutcomeCompleted {
		t.Fatalf("unexpected outcome %s: %v", result.Outcome, result.Err)
	}
	leaves := tasktree.Leaves(result.Tree.Roots)
	if len(leaves) != 1 || leaves[0].ContextID != "t1" {
		t.Fatalf("expected only t1, got %v", leaves)
	}
	for _, req := range f.Requests() {
		if req == "GET /api/data/projects/proj-Short/tasks" {
			t.Fatal("other projects must not be listed")
		}
	}

	f.MyTasks = []kitsu.TaskRef{{ID: "t1", ProjectName: "Feature"}, {ID: "t2", ProjectName: "Short"}}
	mine := newSynchronizer(t, f).Run(context.Background(), "p", nil, tasksync.Options{MineOnly: true, Project: "Short"}, nil)
	if mine.Outcome != tasksync.OutcomeCompleted {
		t.Fatalf("unexpected outcome %s: %v", mine.Outcome, mine.Err)
	}
	if leaves := tasktree.Leaves(mine.Tree.Roots); len(leaves) != 1 || leaves[0].ContextID != "t2" {
		t.Fatalf("expected only t2, got %v", leaves)
	}

	missing := newSynchronizer(t, f).Run(context.Background(), "p", nil, tasksync.Options{Project: "Nope"}, nil)
	if missing.Outcome != tasksync.OutcomeFailed || !errors.Is(missing.Err, services.ErrNotFound) {
		t.Fatalf("expected not-found failure, got %s: %v", missing.Outcome, missing.Err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Sync.MineOnly = true
	cfg.Sync.ThumbnailSize = 64
	opts := tasksync.OptionsFromConfig(cfg)
	if !opts.MineOnly || opts.ThumbnailSize != 64 || opts.WarnThreshold != cfg.Sync.EstimateWarningThreshold {
		t.Fatalf("unexpected options %+v", opts)
	}
}
