package kitsu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"kitsupub/internal/services"
)

// AddComment posts a comment on a task and moves it to statusID.
func (c *Client) AddComment(ctx context.Context, taskID, statusID, text string) (*Comment, error) {
	body := map[string]string{
		"task_status_id": statusID,
		"comment":        text,
	}
	var comment Comment
	path := "actions/tasks/" + url.PathEscape(taskID) + "/comment"
	if err := c.doJSON(ctx, http.MethodPost, path, body, &comment); err != nil {
		return nil, services.Wrap(services.ErrPublish, "kitsu", "add comment", "task "+taskID, err)
	}
	return &comment, nil
}

// AddPreview creates a preview revision on a comment and uploads the media
// file into it.
func (c *Client) AddPreview(ctx context.Context, taskID, commentID, mediaPath string) (*PreviewFile, error) {
	if _, err := os.Stat(mediaPath); err != nil {
		return nil, services.Wrap(services.ErrValidation, "kitsu", "add preview", "media file unavailable", err)
	}
	var preview PreviewFile
	path := "actions/tasks/" + url.PathEscape(taskID) + "/comments/" + url.PathEscape(commentID) + "/add-preview"
	if err := c.doJSON(ctx, http.MethodPost, path, map[string]any{}, &preview); err != nil {
		return nil, services.Wrap(services.ErrPublish, "kitsu", "add preview", "create revision", err)
	}
	if preview.ID == "" {
		return nil, services.Wrap(services.ErrPublish, "kitsu", "add preview", "server returned no preview id", nil)
	}
	if err := c.uploadPreview(ctx, preview.ID, mediaPath); err != nil {
		return nil, services.Wrap(services.ErrPublish, "kitsu", "add preview", "upload media", err)
	}
	return &preview, nil
}

func (c *Client) uploadPreview(ctx context.Context, previewID, mediaPath string) error {
	file, err := os.Open(mediaPath)
	if err != nil {
		return fmt.Errorf("open media: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		part, err := form.CreateFormFile("file", filepath.Base(mediaPath))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(form.Close())
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "pictures/preview-files/"+url.PathEscape(previewID), pr)
	if err != nil {
		pr.Close()
		return err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	resp, err := c.do(req)
	if err != nil {
		pr.CloseWithError(err)
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// SetMainPreview makes the preview the thumbnail of its entity.
func (c *Client) SetMainPreview(ctx context.Context, previewID string) error {
	path := "actions/preview-files/" + url.PathEscape(previewID) + "/set-main-preview"
	if err := c.doJSON(ctx, http.MethodPut, path, map[string]any{}, nil); err != nil {
		return services.Wrap(services.ErrPublish, "kitsu", "set main preview", previewID, err)
	}
	return nil
}

// DownloadThumbnail streams the PNG thumbnail of a preview file into dest.
// A partially written dest is removed on failure.
func (c *Client) DownloadThumbnail(ctx context.Context, previewID, dest string) (err error) {
	if previewID == "" {
		return services.Wrap(services.ErrNotFound, "kitsu", "thumbnail", "no preview id", nil)
	}
	req, err := c.newRequest(ctx, http.MethodGet, "pictures/thumbnails/preview-files/"+url.PathEscape(previewID)+".png", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "image/png, image/*")
	resp, err := c.do(req)
	if err != nil {
		return services.Wrap(services.ErrItem, "kitsu", "thumbnail", previewID, err)
	}
	defer resp.Body.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create thumbnail file: %w", err)
	}
	defer func() {
		closeErr := out.Close()
		if err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(dest)
		}
	}()
	if _, err = io.Copy(out, resp.Body); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return services.Wrap(services.ErrItem, "kitsu", "thumbnail", "download interrupted", err)
	}
	return nil
}
