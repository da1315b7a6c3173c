package testsupport

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"kitsupub/internal/kitsu"
)

// RecordedComment captures an AddComment call received by FakeTracker.
type RecordedComment struct {
	TaskID   string
	StatusID string
	Text     string
}

// FakeTracker is an httptest-backed stand-in for the tracking server REST API.
// Fields may be changed between calls while holding no lock; tests own them.
type FakeTracker struct {
	Server *httptest.Server

	Email    string
	Password string
	Token    string
	User     kitsu.User

	Projects     []kitsu.Project
	ProjectTasks map[string][]kitsu.TaskRef
	MyTasks      []kitsu.TaskRef
	Details      map[string]kitsu.TaskDetail
	Statuses     []kitsu.TaskStatus
	Thumbnails   map[string][]byte

	// FailTaskList makes every task list endpoint return 500.
	FailTaskList bool
	// FailComment makes AddComment return 500.
	FailComment bool
	// BeforeDetail runs before a task detail is served.
	BeforeDetail func(id string)

	mu           sync.Mutex
	comments     []RecordedComment
	uploads      map[string][]byte
	mainPreviews []string
	requests     []string
	nextPreview  int
}

// NewFakeTracker starts a fake tracker accepting email/password and token.
func NewFakeTracker(t testing.TB) *FakeTracker {
	t.Helper()

	f := &FakeTracker{
		Email:        "artist@example.com",
		Password:     "secret",
		Token:        "test-token",
		User:         kitsu.User{ID: "user-1", Email: "artist@example.com", FullName: "Test Artist"},
		ProjectTasks: map[string][]kitsu.TaskRef{},
		Details:      map[string]kitsu.TaskDetail{},
		Thumbnails:   map[string][]byte{},
		Statuses: []kitsu.TaskStatus{
			{ID: "st-todo", Name: "Todo", ShortName: "todo", IsDefault: true},
			{ID: "st-wip", Name: "Work In Progress", ShortName: "wip"},
			{ID: "st-wfa", Name: "Waiting For Approval", ShortName: "wfa"},
		},
		uploads: map[string][]byte{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", f.handleLogin)
	mux.HandleFunc("GET /api/auth/authenticated", f.authed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"authenticated": true, "user": f.User})
	}))
	mux.HandleFunc("GET /api/data/projects/open", f.authed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, orEmpty(f.Projects))
	}))
	mux.HandleFunc("GET /api/data/projects/{id}/tasks", f.authed(func(w http.ResponseWriter, r *http.Request) {
		if f.FailTaskList {
			http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, orEmpty(f.ProjectTasks[r.PathValue("id")]))
	}))
	mux.HandleFunc("GET /api/data/user/tasks", f.authed(func(w http.ResponseWriter, _ *http.Request) {
		if f.FailTaskList {
			http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, orEmpty(f.MyTasks))
	}))
	mux.HandleFunc("GET /api/data/tasks/{id}/full", f.authed(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if f.BeforeDetail != nil {
			f.BeforeDetail(id)
		}
		detail, ok := f.Details[id]
		if !ok {
			http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, detail)
	}))
	mux.HandleFunc("GET /api/data/task-status", f.authed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, orEmpty(f.Statuses))
	}))
	mux.HandleFunc("POST /api/actions/tasks/{id}/comment", f.authed(f.handleComment))
	mux.HandleFunc("POST /api/actions/tasks/{id}/comments/{cid}/add-preview", f.authed(f.handleAddPreview))
	mux.HandleFunc("POST /api/pictures/preview-files/{pid}", f.authed(f.handleUpload))
	mux.HandleFunc("PUT /api/actions/preview-files/{pid}/set-main-preview", f.authed(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.mainPreviews = append(f.mainPreviews, r.PathValue("pid"))
		f.mu.Unlock()
		writeJSON(w, map[string]string{"id": r.PathValue("pid")})
	}))
	mux.HandleFunc("GET /api/pictures/thumbnails/preview-files/{file}", f.authed(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSuffix(r.PathValue("file"), ".png")
		data, ok := f.Thumbnails[id]
		if !ok {
			http.Error(w, "missing", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))

	f.Server = httptest.NewServer(f.record(mux))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the fake tracker host (without "/api").
func (f *FakeTracker) URL() string {
	return f.Server.URL
}

// Comments returns the comments received so far.
func (f *FakeTracker) Comments() []RecordedComment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecordedComment(nil), f.comments...)
}

// Upload returns the bytes uploaded into a preview file.
func (f *FakeTracker) Upload(previewID string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.uploads[previewID]
	return data, ok
}

// MainPreviews returns the preview IDs promoted to main preview.
func (f *FakeTracker) MainPreviews() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.mainPreviews...)
}

// Requests returns "METHOD path" for every request served.
func (f *FakeTracker) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// AddTask registers a task in project and its full detail in one call.
func (f *FakeTracker) AddTask(projectID string, detail kitsu.TaskDetail) {
	f.ProjectTasks[projectID] = append(f.ProjectTasks[projectID], kitsu.TaskRef{ID: detail.ID})
	f.Details[detail.ID] = detail
}

func (f *FakeTracker) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		f.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (f *FakeTracker) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+f.Token {
			http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (f *FakeTracker) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if body.Email != f.Email || body.Password != f.Password {
		http.Error(w, `{"login":false}`, http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]any{
		"login":         true,
		"user":          f.User,
		"access_token":  f.Token,
		"refresh_token": "refresh-" + f.Token,
	})
}

func (f *FakeTracker) handleComment(w http.ResponseWriter, r *http.Request) {
	if f.FailComment {
		http.Error(w, `{"message":"comment rejected"}`, http.StatusInternalServerError)
		return
	}
	var body struct {
		StatusID string `json:"task_status_id"`
		Comment  string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.comments = append(f.comments, RecordedComment{TaskID: r.PathValue("id"), StatusID: body.StatusID, Text: body.Comment})
	id := len(f.comments)
	f.mu.Unlock()
	writeJSON(w, kitsu.Comment{ID: "comment-" + strconv.Itoa(id), Text: body.Comment, TaskStatusID: body.StatusID, ObjectID: r.PathValue("id")})
}

func (f *FakeTracker) handleAddPreview(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.nextPreview++
	id := "preview-" + strconv.Itoa(f.nextPreview)
	f.mu.Unlock()
	writeJSON(w, kitsu.PreviewFile{ID: id, Revision: 1, TaskID: r.PathValue("id")})
}

func (f *FakeTracker) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "read file", http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.uploads[r.PathValue("pid")] = data
	f.mu.Unlock()
	writeJSON(w, map[string]string{"id": r.PathValue("pid")})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
