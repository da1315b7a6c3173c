package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"kitsupub/internal/config"
	"kitsupub/internal/history"
	"kitsupub/internal/kitsu"
	"kitsupub/internal/logging"
	"kitsupub/internal/metrics"
	"kitsupub/internal/preflight"
	"kitsupub/internal/services"
	"kitsupub/internal/session"
	"kitsupub/internal/tasksync"
	"kitsupub/internal/tasktree"
)

// SyncController is the part of tasksync.Controller the server drives.
type SyncController interface {
	Trigger(opts tasksync.Options) (string, error)
	Cancel() bool
	Tree() *tasktree.Tree
	State() tasksync.State
}

// SessionView exposes the tracker session to handlers.
type SessionView interface {
	State() session.State
	User() *kitsu.User
	Settings() session.Settings
	Client() (*kitsu.Client, error)
}

// HistoryLister reads recorded publish attempts.
type HistoryLister interface {
	List(ctx context.Context, opts history.ListOptions) ([]history.Entry, error)
}

// Deps are the collaborators behind the sidecar endpoints. Session, History
// and Logs may be nil.
type Deps struct {
	Config  *config.Config
	Sync    SyncController
	Session SessionView
	History HistoryLister
	Logs    *logging.StreamHub
}

// Server is the local HTTP sidecar DCC plugins talk to.
type Server struct {
	bind   string
	token  string
	deps   Deps
	logger *slog.Logger
	hub    *WSHub

	handler  http.Handler
	listener net.Listener
	server   *http.Server
}

// NewServer builds the sidecar. It returns nil when no bind address is
// configured.
func NewServer(deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Config == nil {
		return nil, services.Wrap(services.ErrConfiguration, "api", "new server", "config is required", nil)
	}
	if deps.Sync == nil {
		return nil, services.Wrap(services.ErrConfiguration, "api", "new server", "sync controller is required", nil)
	}
	bind := strings.TrimSpace(deps.Config.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}
	logger = logging.NewComponentLogger(logger, "api")

	s := &Server{
		bind:   bind,
		token:  strings.TrimSpace(deps.Config.Paths.APIToken),
		deps:   deps,
		logger: logger,
		hub:    NewWSHub(logger),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.protect(s.handleStatus))
	mux.HandleFunc("POST /api/sync", s.protect(s.handleSync))
	mux.HandleFunc("POST /api/sync/cancel", s.protect(s.handleCancel))
	mux.HandleFunc("GET /api/tree", s.protect(s.handleTree))
	mux.HandleFunc("GET /api/statuses", s.protect(s.handleStatuses))
	mux.HandleFunc("GET /api/history", s.protect(s.handleHistory))
	mux.HandleFunc("GET /api/logs", s.protect(s.handleLogs))
	mux.HandleFunc("GET /ws", s.protect(s.hub.HandleWS))
	mux.Handle("GET /metrics", metrics.Handler())
	s.handler = instrument(mux)

	deps.Logs.OnPublish(func(evt logging.LogEvent) {
		s.hub.Publish("log", evt)
	})

	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No write timeout: /ws connections stay open for the life of the client.
		IdleTimeout: 60 * time.Second,
	}
	return s, nil
}

// Handler returns the routed and instrumented handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub returns the websocket hub events are broadcast on.
func (s *Server) Hub() *WSHub {
	return s.hub
}

// Forward broadcasts synchronizer events until events is closed. A completed
// pass is followed by a "tree" message with the new task count.
func (s *Server) Forward(events <-chan tasksync.Event) {
	for evt := range events {
		s.hub.Publish("sync", evt)
		if evt.Kind == tasksync.EventCompleted && evt.Tree != nil {
			s.hub.Publish("tree", map[string]any{
				"pass_id": evt.PassID,
				"tasks":   len(tasktree.Leaves(evt.Tree.Roots)),
			})
		}
	}
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "api", "listen", fmt.Sprintf("bind %s", s.bind), err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.Bool("auth", s.token != ""),
	)
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes websocket clients and shuts the server down.
func (s *Server) Stop() {
	if s == nil {
		return
	}
	s.hub.Close()
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) protect(next http.HandlerFunc) http.HandlerFunc {
	return authMiddleware(s.token, next)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	payload := StatusResponse{
		PID:          os.Getpid(),
		Session:      SessionStatus{State: session.Disconnected.String()},
		Sync:         s.deps.Sync.State(),
		Dependencies: FromDependencies(preflight.CheckSystemDeps(s.deps.Config)),
	}
	if sess := s.deps.Session; sess != nil {
		payload.Session.State = sess.State().String()
		payload.Session.Host = sess.Settings().Host
		if user := sess.User(); user != nil {
			payload.Session.User = user.DisplayName()
		}
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	opts := tasksync.OptionsFromConfig(s.deps.Config)
	if raw := strings.TrimSpace(r.URL.Query().Get("mine")); raw != "" {
		mine, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid mine flag")
			return
		}
		opts.MineOnly = mine
	}
	opts.Project = strings.TrimSpace(r.URL.Query().Get("project"))
	passID, err := s.deps.Sync.Trigger(opts)
	if err != nil {
		if errors.Is(err, tasksync.ErrClosed) {
			s.writeError(w, http.StatusServiceUnavailable, "synchronizer is shutting down")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, TriggerResponse{PassID: passID})
}

func (s *Server) handleCancel(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, CancelResponse{Cancelled: s.deps.Sync.Cancel()})
}

func (s *Server) handleTree(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, FromTree(s.deps.Sync.Tree()))
}

func (s *Server) handleStatuses(w http.ResponseWriter, r *http.Request) {
	if s.deps.Session == nil {
		s.writeError(w, http.StatusServiceUnavailable, "not connected to tracker")
		return
	}
	client, err := s.deps.Session.Client()
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "not connected to tracker")
		return
	}
	statuses, err := client.TaskStatuses(r.Context())
	if err != nil {
		logging.WarnWithContext(s.logger, "task status fetch failed", "api_statuses_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
			logging.String(logging.FieldImpact, "status list unavailable to plugins"),
		)
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, FromTaskStatuses(statuses))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		s.writeJSON(w, http.StatusOK, HistoryResponse{Entries: []HistoryEntry{}})
		return
	}
	query := r.URL.Query()
	opts := history.ListOptions{TaskID: strings.TrimSpace(query.Get("task")), Limit: 50}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		opts.Limit = limit
	}
	entries, err := s.deps.History.List(r.Context(), opts)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, HistoryResponse{Entries: FromHistory(entries)})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	hub := s.deps.Logs
	if hub == nil {
		s.writeJSON(w, http.StatusOK, LogStreamResponse{Events: []logging.LogEvent{}})
		return
	}
	query := r.URL.Query()
	limit := 200
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	if tail := strings.TrimSpace(query.Get("tail")); tail == "1" || strings.EqualFold(tail, "true") {
		events := hub.Tail(limit)
		var next uint64
		if len(events) > 0 {
			next = events[len(events)-1].Sequence
		}
		s.writeJSON(w, http.StatusOK, LogStreamResponse{Events: nonNilEvents(events), Next: next})
		return
	}

	var since uint64
	if raw := strings.TrimSpace(query.Get("since")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid since cursor")
			return
		}
		since = parsed
	}
	events, next := hub.Since(since, limit)
	s.writeJSON(w, http.StatusOK, LogStreamResponse{Events: nonNilEvents(events), Next: next})
}

func nonNilEvents(events []logging.LogEvent) []logging.LogEvent {
	if events == nil {
		return []logging.LogEvent{}
	}
	return events
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(payload); err != nil {
		s.logger.Debug("api response encode failed", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
