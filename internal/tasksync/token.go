package tasksync

import (
	"sync"
	"sync/atomic"
)

// Token is a cooperative cancellation flag shared between whoever triggers a
// pass and the goroutine running it. A nil *Token is never cancelled.
type Token struct {
	cancelled atomic.Bool
	once      sync.Once
	done      chan struct{}
}

// NewToken returns an uncancelled token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel marks the token cancelled. It is safe to call more than once.
func (t *Token) Cancel() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		t.cancelled.Store(true)
		close(t.done)
	})
}

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}

// Done is closed when the token is cancelled. It returns nil for a nil token,
// which blocks forever in a select.
func (t *Token) Done() <-chan struct{} {
	if t == nil {
		return nil
	}
	return t.done
}
