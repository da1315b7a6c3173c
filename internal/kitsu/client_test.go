package kitsu_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"kitsupub/internal/kitsu"
	"kitsupub/internal/services"
	"kitsupub/internal/testsupport"
)

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://kitsu.example.com", "https://kitsu.example.com/api", false},
		{"https://kitsu.example.com/api/", "https://kitsu.example.com/api", false},
		{"  http://10.0.0.2:8080/  ", "http://10.0.0.2:8080/api", false},
		{"", "", true},
		{"kitsu.example.com", "", true},
	}
	for _, tt := range tests {
		got, err := kitsu.NormalizeHost(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("NormalizeHost(%q) expected error", tt.in)
			}
			if !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected configuration marker, got %v", err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("NormalizeHost(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestLoginInstallsToken(t *testing.T) {
	fake := testsupport.NewFakeTracker(t)
	client, err := kitsu.New(fake.URL())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := client.Login(context.Background(), fake.Email, fake.Password)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.AccessToken != fake.Token || client.Token() != fake.Token {
		t.Fatalf("expected token installed, got %q / %q", result.AccessToken, client.Token())
	}
	user, err := client.CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if user.DisplayName() != "Test Artist" {
		t.Fatalf("unexpected user %+v", user)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	fake := testsupport.NewFakeTracker(t)
	client, _ := kitsu.New(fake.URL())

	_, err := client.Login(context.Background(), fake.Email, "wrong")
	if err == nil {
		t.Fatal("expected login error")
	}
	if !errors.Is(err, services.ErrConnection) {
		t.Fatalf("expected connection marker, got %v", err)
	}
	if !kitsu.IsUnauthorized(err) {
		t.Fatalf("expected unauthorized api error, got %v", err)
	}
	if client.Token() != "" {
		t.Fatal("token must stay empty after failed login")
	}
}

func TestUnauthenticatedCallsFail(t *testing.T) {
	fake := testsupport.NewFakeTracker(t)
	client, _ := kitsu.New(fake.URL(), kitsu.WithToken("stale"))

	_, err := client.OpenProjects(context.Background())
	var apiErr *kitsu.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 401 {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
	if !errors.Is(err, services.ErrConnection) {
		t.Fatalf("401 should classify as connection error, got %v", err)
	}
}

func TestDataQueries(t *testing.T) {
	fake := testsupport.NewFakeTracker(t)
	fake.Projects = []kitsu.Project{{ID: "p1", Name: "Feature"}, {ID: "p2", Name: "Short"}}
	fake.AddTask("p1", kitsu.TaskDetail{
		ID:       "t1",
		Project:  &kitsu.Named{ID: "p1", Name: "Feature"},
		TaskType: &kitsu.TaskType{ID: "tt1", Name: "Compositing", ForEntity: "Shot"},
		Entity:   &kitsu.Entity{ID: "e1", Name: "SH0010", PreviewFileID: "pf1"},
		Sequence: &kitsu.Named{ID: "s1", Name: "SQ010"},
	})
	fake.MyTasks = []kitsu.TaskRef{{ID: "t1", ProjectName: "Feature"}}

	client, _ := kitsu.New(fake.URL(), kitsu.WithToken(fake.Token))
	ctx := context.Background()

	project, err := client.ProjectByName(ctx, "feature")
	if err != nil || project.ID != "p1" {
		t.Fatalf("ProjectByName: %+v %v", project, err)
	}
	if _, err := client.ProjectByName(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	tasks, err := client.ProjectTasks(ctx, "p1")
	if err != nil || len(tasks) != 1 {
		t.Fatalf("ProjectTasks: %+v %v", tasks, err)
	}
	mine, err := client.TasksToDo(ctx)
	if err != nil || len(mine) != 1 || mine[0].ProjectName != "Feature" {
		t.Fatalf("TasksToDo: %+v %v", mine, err)
	}
	detail, err := client.Task(ctx, "t1")
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	if detail.Sequence == nil || detail.Sequence.Name != "SQ010" || detail.Entity.PreviewFileID != "pf1" {
		t.Fatalf("unexpected detail %+v", detail)
	}
	if _, err := client.Task(ctx, "nope"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for missing task, got %v", err)
	}
}

func TestStatusLookups(t *testing.T) {
	fake := testsupport.NewFakeTracker(t)
	client, _ := kitsu.New(fake.URL(), kitsu.WithToken(fake.Token))
	ctx := context.Background()

	status, err := client.TaskStatusByName(ctx, "waiting for approval")
	if err != nil || status.ID != "st-wfa" {
		t.Fatalf("TaskStatusByName: %+v %v", status, err)
	}
	status, err = client.TaskStatusByShortName(ctx, "WIP")
	if err != nil || status.ID != "st-wip" {
		t.Fatalf("TaskStatusByShortName: %+v %v", status, err)
	}
	if _, err := client.TaskStatusByName(ctx, "wfa"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("short name must not match display name lookup, got %v", err)
	}
}

func TestCommentPreviewAndMainPreview(t *testing.T) {
	fake := testsupport.NewFakeTracker(t)
	client, _ := kitsu.New(fake.URL(), kitsu.WithToken(fake.Token))
	ctx := context.Background()

	comment, err := client.AddComment(ctx, "t1", "st-wfa", "looks good")
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	media := filepath.Join(t.TempDir(), "preview.mp4")
	if err := os.WriteFile(media, []byte("fake-mp4"), 0o644); err != nil {
		t.Fatal(err)
	}
	preview, err := client.AddPreview(ctx, "t1", comment.ID, media)
	if err != nil {
		t.Fatalf("AddPreview: %v", err)
	}
	data, ok := fake.Upload(preview.ID)
	if !ok || string(data) != "fake-mp4" {
		t.Fatalf("expected uploaded media, got %q %v", data, ok)
	}
	if err := client.SetMainPreview(ctx, preview.ID); err != nil {
		t.Fatalf("SetMainPreview: %v", err)
	}
	if got := fake.MainPreviews(); len(got) != 1 || got[0] != preview.ID {
		t.Fatalf("unexpected main previews %v", got)
	}
	comments := fake.Comments()
	if len(comments) != 1 || comments[0].StatusID != "st-wfa" || comments[0].Text != "looks good" {
		t.Fatalf("unexpected comments %+v", comments)
	}
}

func TestAddCommentFailureIsPublishError(t *testing.T) {
	fake := testsupport.NewFakeTracker(t)
	fake.FailComment = true
	client, _ := kitsu.New(fake.URL(), kitsu.WithToken(fake.Token))

	_, err := client.AddComment(context.Background(), "t1", "st-wfa", "x")
	if !errors.Is(err, services.ErrPublish) {
		t.Fatalf("expected publish marker, got %v", err)
	}
}

func TestAddPreviewMissingFile(t *testing.T) {
	fake := testsupport.NewFakeTracker(t)
	client, _ := kitsu.New(fake.URL(), kitsu.WithToken(fake.Token))

	_, err := client.AddPreview(context.Background(), "t1", "c1", filepath.Join(t.TempDir(), "missing.mp4"))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation marker, got %v", err)
	}
}

func TestDownloadThumbnail(t *testing.T) {
	fake := testsupport.NewFakeTracker(t)
	fake.Thumbnails["pf1"] = testsupport.PNG(t, 4, 4)
	client, _ := kitsu.New(fake.URL(), kitsu.WithToken(fake.Token))
	dir := t.TempDir()

	dest := filepath.Join(dir, "pf1.png")
	if err := client.DownloadThumbnail(context.Background(), "pf1", dest); err != nil {
		t.Fatalf("DownloadThumbnail: %v", err)
	}
	info, err := os.Stat(dest)
	if err != nil || info.Size() == 0 {
		t.Fatalf("expected thumbnail written: %v", err)
	}

	missing := filepath.Join(dir, "pf2.png")
	err = client.DownloadThumbnail(context.Background(), "pf2", missing)
	if !errors.Is(err, services.ErrItem) {
		t.Fatalf("expected item marker, got %v", err)
	}
	if _, statErr := os.Stat(missing); !os.IsNotExist(statErr) {
		t.Fatalf("failed download must not leave a file, stat err %v", statErr)
	}
	if err := client.DownloadThumbnail(context.Background(), "", missing); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for empty id, got %v", err)
	}
}
