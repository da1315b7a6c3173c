package tasksync

import (
	"sync"
	"time"

	"kitsupub/internal/tasktree"
)

// EventKind classifies messages flowing from a pass to its observer.
type EventKind string

const (
	EventProgress  EventKind = "progress"
	EventLog       EventKind = "log"
	EventCompleted EventKind = "completed"
	EventCancelled EventKind = "cancelled"
	EventFailed    EventKind = "failed"
)

// Terminal reports whether the kind ends a pass.
func (k EventKind) Terminal() bool {
	return k == EventCompleted || k == EventCancelled || k == EventFailed
}

// Event is one message from a pass. Progress events fill Phase, Done and
// Total; log events fill Level and Message; completed events carry Tree;
// failed events carry Error.
type Event struct {
	PassID  string         `json:"pass_id"`
	Kind    EventKind      `json:"kind"`
	Time    time.Time      `json:"time"`
	Level   string         `json:"level,omitempty"`
	Message string         `json:"message,omitempty"`
	Phase   string         `json:"phase,omitempty"`
	Done    int            `json:"done,omitempty"`
	Total   int            `json:"total,omitempty"`
	Error   string         `json:"error,omitempty"`
	Tree    *tasktree.Tree `json:"-"`
}

// EmitFunc receives events from a running pass. It must not block for long.
type EmitFunc func(Event)

// eventQueue decouples the worker from the consumer: push never blocks and
// events are delivered on out in push order.
type eventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Event
	closed bool
	out    chan Event
}

func newEventQueue() *eventQueue {
	q := &eventQueue{out: make(chan Event)}
	q.cond = sync.NewCond(&q.mu)
	go q.pump()
	return q
}

func (q *eventQueue) push(evt Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, evt)
	q.cond.Signal()
}

// close stops accepting events. Buffered events are still delivered, after
// which out is closed.
func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
}

func (q *eventQueue) pump() {
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			close(q.out)
			return
		}
		evt := q.items[0]
		q.items[0] = Event{}
		q.items = q.items[1:]
		q.mu.Unlock()
		q.out <- evt
	}
}
