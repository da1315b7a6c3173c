package logging

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// LogEvent represents a structured log line published to the streaming hub.
type LogEvent struct {
	Sequence  uint64            `json:"seq"`
	Timestamp time.Time         `json:"ts"`
	Level     string            `json:"level"`
	Message   string            `json:"msg"`
	Component string            `json:"component,omitempty"`
	PassID    string            `json:"pass_id,omitempty"`
	TaskID    string            `json:"task_id,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// StreamHub stores recent log events for the sidecar log feed.
type StreamHub struct {
	mu       sync.Mutex
	capacity int
	buffer   []LogEvent
	nextSeq  uint64
	notify   []func(LogEvent)
}

// NewStreamHub constructs a bounded in-memory log buffer.
func NewStreamHub(capacity int) *StreamHub {
	if capacity <= 0 {
		capacity = 512
	}
	return &StreamHub{capacity: capacity}
}

// OnPublish registers a callback invoked (outside the hub lock) for every event.
func (h *StreamHub) OnPublish(fn func(LogEvent)) {
	if h == nil || fn == nil {
		return
	}
	h.mu.Lock()
	h.notify = append(h.notify, fn)
	h.mu.Unlock()
}

// Publish appends a new log event to the hub.
func (h *StreamHub) Publish(evt LogEvent) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.nextSeq++
	evt.Sequence = h.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if len(h.buffer) == h.capacity {
		copy(h.buffer, h.buffer[1:])
		h.buffer = h.buffer[:h.capacity-1]
	}
	h.buffer = append(h.buffer, evt)
	notify := slices.Clone(h.notify)
	h.mu.Unlock()

	for _, fn := range notify {
		fn(evt)
	}
}

// Since returns up to limit events with a sequence greater than since, plus
// the latest sequence number.
func (h *StreamHub) Since(since uint64, limit int) ([]LogEvent, uint64) {
	if h == nil {
		return nil, since
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]LogEvent, 0, limit)
	for _, evt := range h.buffer {
		if evt.Sequence <= since {
			continue
		}
		out = append(out, evt)
		if len(out) == limit {
			break
		}
	}
	return out, h.nextSeq
}

// Tail returns the most recent limit events.
func (h *StreamHub) Tail(limit int) []LogEvent {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 || limit > len(h.buffer) {
		limit = len(h.buffer)
	}
	out := make([]LogEvent, limit)
	copy(out, h.buffer[len(h.buffer)-limit:])
	return out
}

type streamHandler struct {
	next  slog.Handler
	hub   *StreamHub
	attrs []slog.Attr
}

func newStreamHandler(next slog.Handler, hub *StreamHub) slog.Handler {
	if hub == nil || next == nil {
		return next
	}
	return &streamHandler{next: next, hub: hub}
}

func (h *streamHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *streamHandler) Handle(ctx context.Context, record slog.Record) error {
	h.hub.Publish(eventFromRecord(record, h.attrs))
	return h.next.Handle(ctx, record.Clone())
}

func (h *streamHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &streamHandler{next: h.next.WithAttrs(attrs), hub: h.hub, attrs: merged}
}

func (h *streamHandler) WithGroup(name string) slog.Handler {
	return &streamHandler{next: h.next.WithGroup(name), hub: h.hub, attrs: h.attrs}
}

func eventFromRecord(record slog.Record, preAttrs []slog.Attr) LogEvent {
	event := LogEvent{
		Timestamp: record.Time,
		Level:     strings.ToUpper(record.Level.String()),
		Message:   strings.TrimSpace(record.Message),
	}
	apply := func(attr slog.Attr) {
		key := strings.TrimSpace(attr.Key)
		if key == "" {
			return
		}
		switch key {
		case FieldComponent:
			event.Component = attrString(attr.Value)
		case FieldPassID:
			event.PassID = attrString(attr.Value)
		case FieldTaskID:
			event.TaskID = attrString(attr.Value)
		default:
			if event.Fields == nil {
				event.Fields = make(map[string]string)
			}
			event.Fields[key] = attrString(attr.Value)
		}
	}
	for _, attr := range preAttrs {
		apply(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		apply(attr)
		return true
	})
	return event
}
