package tasksync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"kitsupub/internal/logging"
	"kitsupub/internal/tasktree"
)

// ErrClosed is returned by Trigger after Close.
var ErrClosed = errors.New("task sync controller closed")

// State is a point-in-time view of the controller.
type State struct {
	Running      bool      `json:"running"`
	PassID       string    `json:"pass_id,omitempty"`
	Started      time.Time `json:"started,omitempty"`
	LastPassID   string    `json:"last_pass_id,omitempty"`
	LastOutcome  Outcome   `json:"last_outcome,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	LastFinished time.Time `json:"last_finished,omitempty"`
	TreeTasks    int       `json:"tree_tasks"`
}

// ControllerOption customizes a Controller.
type ControllerOption func(*Controller)

// WithResultHook registers fn to observe every finished pass before its
// terminal event is published.
func WithResultHook(fn func(Result)) ControllerOption {
	return func(c *Controller) {
		c.onResult = fn
	}
}

// WithPassIDs overrides pass identifier generation.
func WithPassIDs(fn func() string) ControllerOption {
	return func(c *Controller) {
		if fn != nil {
			c.newID = fn
		}
	}
}

type activePass struct {
	id      string
	token   *Token
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
}

// Controller owns the single background pass. Triggering a new pass cancels
// and waits for the previous one, so at most one pass is active and events of
// different passes never interleave.
type Controller struct {
	base     context.Context
	sync     *Synchronizer
	logger   *slog.Logger
	onResult func(Result)
	newID    func() string
	queue    *eventQueue

	triggerMu sync.Mutex
	mu        sync.Mutex
	current   *activePass
	last      Result
	finished  time.Time
	tree      *tasktree.Tree
	closed    bool
	wg        sync.WaitGroup
}

// NewController constructs a controller whose passes derive from base.
// Cancelling base cancels any running pass.
func NewController(base context.Context, s *Synchronizer, logger *slog.Logger, opts ...ControllerOption) *Controller {
	if base == nil {
		base = context.Background()
	}
	c := &Controller{
		base:   base,
		sync:   s,
		logger: logging.NewComponentLogger(logger, "tasksync"),
		newID:  uuid.NewString,
		queue:  newEventQueue(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Events delivers progress, log and terminal events of every pass in order.
// Consumers should drain it until it is closed by Close.
func (c *Controller) Events() <-chan Event {
	return c.queue.out
}

// Trigger starts a new pass and returns its identifier. A running pass is
// cancelled first and its terminal event is published before any event of
// the new pass.
func (c *Controller) Trigger(opts Options) (string, error) {
	c.triggerMu.Lock()
	defer c.triggerMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	prev := c.current
	c.mu.Unlock()

	if prev != nil {
		c.logger.Info("cancelling running pass for new trigger", logging.String("previous_pass", prev.id))
		prev.token.Cancel()
		prev.cancel()
		<-prev.done
	}

	ctx, cancel := context.WithCancel(c.base)
	p := &activePass{
		id:      c.newID(),
		token:   NewToken(),
		cancel:  cancel,
		done:    make(chan struct{}),
		started: time.Now(),
	}

	c.mu.Lock()
	c.current = p
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(ctx, p, opts)
	return p.id, nil
}

// Cancel requests cancellation of the running pass. It reports whether a pass
// was running.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	p := c.current
	c.mu.Unlock()
	if p == nil {
		return false
	}
	p.token.Cancel()
	p.cancel()
	return true
}

// Wait blocks until the running pass, if any, has finished.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	p := c.current
	c.mu.Unlock()
	if p == nil {
		return nil
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether a pass is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Tree returns the tree of the last completed pass, or nil when none has
// completed. Cancelled or failed passes never replace it.
func (c *Controller) Tree() *tasktree.Tree {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tree
}

// State snapshots the controller.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{
		LastPassID:   c.last.PassID,
		LastOutcome:  c.last.Outcome,
		LastFinished: c.finished,
	}
	if c.last.Err != nil {
		st.LastError = c.last.Err.Error()
	}
	if c.current != nil {
		st.Running = true
		st.PassID = c.current.id
		st.Started = c.current.started
	}
	if c.tree != nil {
		st.TreeTasks = len(tasktree.Leaves(c.tree.Roots))
	}
	return st
}

// Close cancels the running pass, waits for it and closes the event stream.
func (c *Controller) Close() {
	c.triggerMu.Lock()
	defer c.triggerMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	p := c.current
	c.mu.Unlock()

	if p != nil {
		p.token.Cancel()
		p.cancel()
	}
	c.wg.Wait()
	c.queue.close()
}

func (c *Controller) run(ctx context.Context, p *activePass, opts Options) {
	defer c.wg.Done()
	defer close(p.done)
	defer p.cancel()

	result := c.runSafely(ctx, p, opts)

	c.mu.Lock()
	c.last = result
	c.finished = time.Now()
	if result.Outcome == OutcomeCompleted {
		c.tree = result.Tree
	}
	if c.current == p {
		c.current = nil
	}
	c.mu.Unlock()

	c.notifyResult(result)
	c.queue.push(result.Event())
}

// notifyResult runs the result hook. A panicking hook is logged and does not
// stop the terminal event.
func (c *Controller) notifyResult(result Result) {
	if c.onResult == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("task sync result hook panicked",
				logging.String("pass_id", result.PassID),
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
			)
		}
	}()
	c.onResult(result)
}

func (c *Controller) runSafely(ctx context.Context, p *activePass, opts Options) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("task sync pass panicked",
				logging.String("pass_id", p.id),
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
			)
			result = Result{
				PassID:   p.id,
				Outcome:  OutcomeFailed,
				Err:      fmt.Errorf("sync pass panicked: %v", r),
				Started:  p.started,
				Duration: time.Since(p.started),
			}
		}
	}()
	return c.sync.Run(ctx, p.id, p.token, opts, c.queue.push)
}
