package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"kitsupub/internal/config"
	"kitsupub/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventPublishCompleted, notifications.Payload{"file": "x.mp4"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "publish completed",
			event: notifications.EventPublishCompleted,
			payload: notifications.Payload{
				"file":   "sh010_comp_v003.mp4",
				"task":   "Feature / SQ010 / SH010 / Comp",
				"status": "WFA",
			},
			expectTitle:   "kitsupub - Published",
			expectMessage: "📤 Published sh010_comp_v003.mp4 to Feature / SQ010 / SH010 / Comp (WFA)",
			expectTags:    "kitsupub,publish,completed",
		},
		{
			name:  "plate exported",
			event: notifications.EventPlateExported,
			payload: notifications.Payload{
				"shot":        "SH010",
				"destination": "/proj/v0002/rgb",
			},
			expectTitle:   "kitsupub - Plate Exported",
			expectMessage: "🎞️ Plate SH010 exported to /proj/v0002/rgb",
			expectTags:    "kitsupub,plate,exported",
		},
		{
			name:  "publish failed",
			event: notifications.EventPublishFailed,
			payload: notifications.Payload{
				"task":  "SH010 / Comp",
				"error": errors.New("upload rejected"),
			},
			expectTitle:    "kitsupub - Error",
			expectMessage:  "❌ Error with publish of SH010 / Comp: upload rejected",
			expectTags:     "kitsupub,error,alert",
			expectPriority: "high",
		},
		{
			name:           "sync failed without detail",
			event:          notifications.EventSyncFailed,
			payload:        notifications.Payload{},
			expectTitle:    "kitsupub - Error",
			expectMessage:  "❌ Error with sync: unknown",
			expectTags:     "kitsupub,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5
			cfg.Notifications.Publish = true
			cfg.Notifications.Errors = true

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresSuppressedEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Publish = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	suppressed := []notifications.Event{
		notifications.EventPublishCompleted,
		notifications.EventPlateExported,
		notifications.EventPublishFailed,
		notifications.EventSyncFailed,
		notifications.Event("unknown"),
	}
	for _, event := range suppressed {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"value": "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic locked", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error for 403 response")
	}
}
