package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kitsupub/internal/config"
)

const userAgent = "kitsupub/0.1.0"

// Event names a notification-worthy milestone.
type Event string

const (
	EventPublishCompleted Event = "publish_completed"
	EventPublishFailed    Event = "publish_failed"
	EventPlateExported    Event = "plate_exported"
	EventSyncFailed       Event = "sync_failed"
	EventTest             Event = "test"
)

// Payload carries event-specific values keyed by name.
type Payload map[string]any

// Service publishes events to the configured notifier.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		publish:  cfg.Notifications.Publish,
		errors:   cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	publish  bool
	errors   bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventPublishCompleted:
		if !n.publish {
			return message{}, false
		}
		body := fmt.Sprintf("📤 Published %s to %s", text(payload, "file"), text(payload, "task"))
		if status := text(payload, "status"); status != "" {
			body += fmt.Sprintf(" (%s)", status)
		}
		return message{title: "kitsupub - Published", body: body, tags: []string{"kitsupub", "publish", "completed"}}, true
	case EventPlateExported:
		if !n.publish {
			return message{}, false
		}
		return message{
			title: "kitsupub - Plate Exported",
			body:  fmt.Sprintf("🎞️ Plate %s exported to %s", text(payload, "shot"), text(payload, "destination")),
			tags:  []string{"kitsupub", "plate", "exported"},
		}, true
	case EventPublishFailed, EventSyncFailed:
		if !n.errors {
			return message{}, false
		}
		label := "publish"
		if event == EventSyncFailed {
			label = "sync"
		}
		var b strings.Builder
		b.WriteString("❌ Error with ")
		b.WriteString(label)
		if target := text(payload, "task"); target != "" {
			b.WriteString(" of ")
			b.WriteString(target)
		}
		b.WriteString(": ")
		if errText := text(payload, "error"); errText != "" {
			b.WriteString(errText)
		} else {
			b.WriteString("unknown")
		}
		return message{
			title:    "kitsupub - Error",
			body:     b.String(),
			tags:     []string{"kitsupub", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "kitsupub - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"kitsupub", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func text(payload Payload, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case error:
		return strings.TrimSpace(val.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
