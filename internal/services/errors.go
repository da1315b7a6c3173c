package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConnection covers authentication failures and unreachable hosts.
	ErrConnection = errors.New("connection error")
	// ErrFetch marks a failed task list retrieval; it ends the current pass.
	ErrFetch = errors.New("fetch error")
	// ErrItem marks a failure scoped to one task or thumbnail.
	ErrItem = errors.New("item error")
	// ErrPublish marks a failed comment or preview upload.
	ErrPublish = errors.New("publish error")

	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind maps an error to a short classification label used in history records
// and CLI hints. Unmarked errors report "failed".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConnection):
		return "connection"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExternalTool):
		return "external_tool"
	case errors.Is(err, ErrFetch):
		return "fetch"
	case errors.Is(err, ErrItem):
		return "item"
	case errors.Is(err, ErrPublish):
		return "publish"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "failed"
	}
}

// Hint returns an operator-facing next step for the classified error.
func Hint(err error) string {
	switch Kind(err) {
	case "connection":
		return "check tracker.host, then run 'kitsupub login' to refresh the session"
	case "fetch":
		return "check the tracker is reachable and retry the sync"
	case "publish":
		return "the local preview was kept; retry the publish"
	case "configuration":
		return "check tracker.host and the config file"
	case "external_tool":
		return "verify ffmpeg is installed and on PATH"
	case "not_found":
		return "check the task or file still exists"
	case "timeout":
		return "retry or raise tracker.request_timeout"
	case "validation":
		return "check the command arguments"
	default:
		return "check logs for details"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
