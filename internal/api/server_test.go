package api_test

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"kitsupub/internal/api"
	"kitsupub/internal/config"
	"kitsupub/internal/history"
	"kitsupub/internal/logging"
	"kitsupub/internal/session"
	"kitsupub/internal/tasksync"
	"kitsupub/internal/tasktree"
	"kitsupub/internal/testsupport"
)

type stubSync struct {
	mu        sync.Mutex
	triggered []tasksync.Options
	err       error
	tree      *tasktree.Tree
	state     tasksync.State
	cancelled bool
}

func (s *stubSync) Trigger(opts tasksync.Options) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.triggered = append(s.triggered, opts)
	return "pass-1", nil
}

func (s *stubSync) Cancel() bool          { return s.cancelled }
func (s *stubSync) Tree() *tasktree.Tree  { return s.tree }
func (s *stubSync) State() tasksync.State { return s.state }

func newServer(t *testing.T, deps api.Deps, opts ...testsupport.ConfigOption) *api.Server {
	t.Helper()
	if deps.Config == nil {
		deps.Config = testsupport.NewConfig(t, opts...)
	}
	if deps.Sync == nil {
		deps.Sync = &stubSync{}
	}
	srv, err := api.NewServer(deps, logging.NewNop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if srv == nil {
		t.Fatal("expected a server for a configured bind address")
	}
	return srv
}

func do(t *testing.T, srv *api.Server, method, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestNewServerWithoutBindIsDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	srv, err := api.NewServer(api.Deps{Config: cfg, Sync: &stubSync{}}, logging.NewNop())
	if err != nil || srv != nil {
		t.Fatalf("expected disabled server, got %v %v", srv, err)
	}
	if _, err := api.NewServer(api.Deps{Config: cfg}, logging.NewNop()); err == nil {
		t.Fatal("expected error without a sync controller")
	}
}

func TestStatusWithoutSession(t *testing.T) {
	ctrl := &stubSync{state: tasksync.State{Running: true, PassID: "pass-9"}}
	srv := newServer(t, api.Deps{Sync: ctrl})

	w := do(t, srv, http.MethodGet, "/api/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decode[api.StatusResponse](t, w)
	if resp.Session.State != "disconnected" {
		t.Fatalf("unexpected session %+v", resp.Session)
	}
	if !resp.Sync.Running || resp.Sync.PassID != "pass-9" {
		t.Fatalf("unexpected sync state %+v", resp.Sync)
	}
	if len(resp.Dependencies) != 1 || resp.Dependencies[0].Name != "FFmpeg" {
		t.Fatalf("unexpected dependencies %+v", resp.Dependencies)
	}
}

func TestStatusReportsConnectedSession(t *testing.T) {
	f := testsupport.NewFakeTracker(t)
	cfg := testsupport.NewConfig(t, testsupport.WithTrackerHost(f.URL()))
	sess := session.New(cfg.Paths.SettingsFile, logging.NewNop())
	if err := sess.Connect(context.Background(), f.URL(), f.Email, f.Password); err != nil {
		t.Fatalf("connect: %v", err)
	}
	srv := newServer(t, api.Deps{Config: cfg, Session: sess})

	resp := decode[api.StatusResponse](t, do(t, srv, http.MethodGet, "/api/status", nil))
	if resp.Session.State != "connected" || resp.Session.User != "Test Artist" || resp.Session.Host != f.URL() {
		t.Fatalf("unexpected session %+v", resp.Session)
	}

	w := do(t, srv, http.MethodGet, "/api/statuses", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	statuses := decode[[]api.TaskStatus](t, w)
	if len(statuses) != 3 || statuses[2].ShortName != "wfa" || !statuses[0].IsDefault {
		t.Fatalf("unexpected statuses %+v", statuses)
	}
}

func TestStatusesRequireSession(t *testing.T) {
	srv := newServer(t, api.Deps{})
	if w := do(t, srv, http.MethodGet, "/api/statuses", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}

	cfg := testsupport.NewConfig(t)
	sess := session.New(cfg.Paths.SettingsFile, logging.NewNop())
	srv = newServer(t, api.Deps{Config: cfg, Session: sess})
	if w := do(t, srv, http.MethodGet, "/api/statuses", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for a disconnected session, got %d", w.Code)
	}
}

func TestSyncTrigger(t *testing.T) {
	ctrl := &stubSync{}
	srv := newServer(t, api.Deps{Sync: ctrl})

	w := do(t, srv, http.MethodPost, "/api/sync?mine=true", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if resp := decode[api.TriggerResponse](t, w); resp.PassID != "pass-1" {
		t.Fatalf("unexpected pass id %q", resp.PassID)
	}
	if len(ctrl.triggered) != 1 || !ctrl.triggered[0].MineOnly || ctrl.triggered[0].WarnThreshold != 40 {
		t.Fatalf("unexpected options %+v", ctrl.triggered)
	}

	if w := do(t, srv, http.MethodPost, "/api/sync?project=Feature", nil); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 for project pass, got %d", w.Code)
	}
	if len(ctrl.triggered) != 2 || ctrl.triggered[1].Project != "Feature" || ctrl.triggered[0].Project != "" {
		t.Fatalf("unexpected project scope %+v", ctrl.triggered)
	}

	if w := do(t, srv, http.MethodPost, "/api/sync?mine=maybe", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad flag, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodGet, "/api/sync", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", w.Code)
	}

	ctrl.err = tasksync.ErrClosed
	if w := do(t, srv, http.MethodPost, "/api/sync", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after close, got %d", w.Code)
	}
}

func TestSyncCancel(t *testing.T) {
	srv := newServer(t, api.Deps{Sync: &stubSync{cancelled: true}})
	resp := decode[api.CancelResponse](t, do(t, srv, http.MethodPost, "/api/sync/cancel", nil))
	if !resp.Cancelled {
		t.Fatal("expected cancelled=true")
	}
}

func TestTreeEndpoint(t *testing.T) {
	ctrl := &stubSync{}
	srv := newServer(t, api.Deps{Sync: ctrl})

	empty := decode[api.TreeResponse](t, do(t, srv, http.MethodGet, "/api/tree", nil))
	if empty.Available || empty.Nodes == nil || len(empty.Nodes) != 0 {
		t.Fatalf("expected empty unavailable tree, got %+v", empty)
	}

	tree, _ := tasktree.Build([]tasktree.Record{{
		ID: "t1", Project: "P", EntityKind: "Shot", Sequence: "SQ010", Entity: "SH0010", TaskType: "Comp",
	}}, false)
	element := tasktree.FindByPath(tree.Roots, "P", "Shot", "SQ010", "SH0010")
	if element == nil {
		t.Fatal("element node missing")
	}
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	element.Thumbnail = img
	ctrl.tree = tree

	resp := decode[api.TreeResponse](t, do(t, srv, http.MethodGet, "/api/tree", nil))
	if !resp.Available || resp.Tasks != 1 {
		t.Fatalf("unexpected tree summary %+v", resp)
	}
	project := resp.Nodes[0]
	if project.Label != "P" || project.Level != "project" || project.ContextID != "" {
		t.Fatalf("unexpected root %+v", project)
	}
	el := project.Children[0].Children[0].Children[0]
	if !strings.HasPrefix(el.Thumbnail, "data:image/png;base64,") {
		t.Fatalf("expected thumbnail data URI, got %q", el.Thumbnail)
	}
	leaf := el.Children[0]
	if leaf.Level != "task" || leaf.ContextID != "t1" || len(leaf.Children) != 0 {
		t.Fatalf("unexpected leaf %+v", leaf)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()
	for _, e := range []*history.Entry{
		{PublishID: "p1", TaskID: "task-1", Outcome: history.OutcomePublished, PreviewID: "pf-1"},
		{PublishID: "p2", TaskID: "task-2", Outcome: history.OutcomeFailed, Error: "boom"},
	} {
		if err := store.Record(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	srv := newServer(t, api.Deps{Config: cfg, History: store})

	resp := decode[api.HistoryResponse](t, do(t, srv, http.MethodGet, "/api/history?task=task-1", nil))
	if len(resp.Entries) != 1 || resp.Entries[0].PublishID != "p1" || resp.Entries[0].Outcome != "published" {
		t.Fatalf("unexpected entries %+v", resp.Entries)
	}
	if resp.Entries[0].FinishedAt == "" {
		t.Fatal("expected finished timestamp")
	}
	if w := do(t, srv, http.MethodGet, "/api/history?limit=x", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}

	none := newServer(t, api.Deps{})
	if resp := decode[api.HistoryResponse](t, do(t, none, http.MethodGet, "/api/history", nil)); resp.Entries == nil {
		t.Fatal("expected empty entries list")
	}
}

func TestLogsEndpoint(t *testing.T) {
	hub := logging.NewStreamHub(10)
	for _, msg := range []string{"one", "two", "three"} {
		hub.Publish(logging.LogEvent{Level: "info", Message: msg})
	}
	srv := newServer(t, api.Deps{Logs: hub})

	resp := decode[api.LogStreamResponse](t, do(t, srv, http.MethodGet, "/api/logs?since=1", nil))
	if len(resp.Events) != 2 || resp.Events[0].Message != "two" || resp.Next != 3 {
		t.Fatalf("unexpected since response %+v", resp)
	}

	tail := decode[api.LogStreamResponse](t, do(t, srv, http.MethodGet, "/api/logs?tail=1&limit=1", nil))
	if len(tail.Events) != 1 || tail.Events[0].Message != "three" || tail.Next != 3 {
		t.Fatalf("unexpected tail response %+v", tail)
	}

	if w := do(t, srv, http.MethodGet, "/api/logs?since=abc", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestAuthToken(t *testing.T) {
	srv := newServer(t, api.Deps{}, func(c *config.Config) { c.Paths.APIToken = "s3cret" })

	cases := []struct {
		name   string
		target string
		header http.Header
		want   int
	}{
		{name: "missing", target: "/api/tree", want: http.StatusUnauthorized},
		{name: "wrong scheme", target: "/api/tree", header: http.Header{"Authorization": {"Basic s3cret"}}, want: http.StatusUnauthorized},
		{name: "wrong token", target: "/api/tree", header: http.Header{"Authorization": {"Bearer nope"}}, want: http.StatusUnauthorized},
		{name: "bearer", target: "/api/tree", header: http.Header{"Authorization": {"Bearer s3cret"}}, want: http.StatusOK},
		{name: "query", target: "/api/tree?access_token=s3cret", want: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := do(t, srv, http.MethodGet, tc.target, tc.header); w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}

func TestMetricsRecordRoutePatterns(t *testing.T) {
	srv := newServer(t, api.Deps{})
	do(t, srv, http.MethodGet, "/api/tree", nil)
	do(t, srv, http.MethodGet, "/nowhere", nil)

	w := do(t, srv, http.MethodGet, "/metrics", nil)
	body, _ := io.ReadAll(w.Body)
	text := string(body)
	for _, want := range []string{
		`kitsupub_http_requests_total{method="GET",path="GET /api/tree",status="200"}`,
		`kitsupub_http_requests_total{method="GET",path="unmatched",status="404"}`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics missing %s", want)
		}
	}
}

func TestWebsocketStreamsSyncAndLogEvents(t *testing.T) {
	hub := logging.NewStreamHub(10)
	srv := newServer(t, api.Deps{Logs: hub})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(5 * time.Second)
	for srv.Hub().Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	tree, _ := tasktree.Build([]tasktree.Record{{
		ID: "t1", Project: "P", EntityKind: "Shot", Sequence: "S", Entity: "E", TaskType: "Comp",
	}}, false)
	events := make(chan tasksync.Event, 2)
	events <- tasksync.Event{PassID: "pass-1", Kind: tasksync.EventCompleted, Tree: tree}
	close(events)
	srv.Forward(events)
	hub.Publish(logging.LogEvent{Level: "info", Message: "hello"})

	read := func() api.Envelope {
		t.Helper()
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var env api.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		return env
	}

	first := read()
	payload, _ := first.Payload.(map[string]any)
	if first.Topic != "sync" || first.ID != "evt_1" || payload["kind"] != "completed" || payload["pass_id"] != "pass-1" {
		t.Fatalf("unexpected sync envelope %+v", first)
	}
	second := read()
	payload, _ = second.Payload.(map[string]any)
	if second.Topic != "tree" || payload["tasks"] != float64(1) {
		t.Fatalf("unexpected tree envelope %+v", second)
	}
	third := read()
	payload, _ = third.Payload.(map[string]any)
	if third.Topic != "log" || payload["msg"] != "hello" {
		t.Fatalf("unexpected log envelope %+v", third)
	}
}
