package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kitsupub/internal/kitsu"
	"kitsupub/internal/services"
)

// StatusFinder looks statuses up by display or short name.
type StatusFinder interface {
	TaskStatusByName(ctx context.Context, name string) (*kitsu.TaskStatus, error)
	TaskStatusByShortName(ctx context.Context, short string) (*kitsu.TaskStatus, error)
}

// ResolveStatus finds the status to apply. requested is tried as a display
// name, then as a short name; fallback is used when requested is empty or
// unknown.
func ResolveStatus(ctx context.Context, finder StatusFinder, requested, fallback string) (*kitsu.TaskStatus, error) {
	var tried []string
	for _, name := range []string{strings.TrimSpace(requested), strings.TrimSpace(fallback)} {
		if name == "" {
			continue
		}
		tried = append(tried, name)
		status, err := lookupStatus(ctx, finder, name)
		if err == nil {
			return status, nil
		}
		if !errors.Is(err, services.ErrNotFound) {
			return nil, err
		}
	}
	if len(tried) == 0 {
		return nil, services.Wrap(services.ErrValidation, "publish", "status", "no status given and no default configured", nil)
	}
	return nil, services.Wrap(services.ErrValidation, "publish", "status", fmt.Sprintf("unknown status %s", strings.Join(tried, ", ")), nil)
}

func lookupStatus(ctx context.Context, finder StatusFinder, name string) (*kitsu.TaskStatus, error) {
	status, err := finder.TaskStatusByName(ctx, name)
	if err == nil {
		return status, nil
	}
	if !errors.Is(err, services.ErrNotFound) {
		return nil, err
	}
	return finder.TaskStatusByShortName(ctx, name)
}

// CommentText appends the file footer to an artist's note. sceneFile is
// optional.
func CommentText(note, sceneFile, mediaFile string) string {
	var b strings.Builder
	b.WriteString(note)
	b.WriteString("\n\n<hr>")
	if sceneFile != "" {
		b.WriteString("<b><u>SCENE FILE :\n</b></u><i>")
		b.WriteString(sceneFile)
		b.WriteString("\n\n</i>")
	}
	b.WriteString("<b><u>FILE :</b></u><i>\n")
	b.WriteString(mediaFile)
	b.WriteString("</i>\n")
	return b.String()
}
