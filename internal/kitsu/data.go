package kitsu

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/text/cases"

	"kitsupub/internal/services"
)

var folder = cases.Fold()

func sameName(a, b string) bool {
	return folder.String(strings.TrimSpace(a)) == folder.String(strings.TrimSpace(b))
}

// Login authenticates with email and password and installs the returned
// access token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body := map[string]string{"email": email, "password": password}
	var result LoginResult
	if err := c.doJSON(ctx, http.MethodPost, "auth/login", body, &result); err != nil {
		return nil, services.Wrap(services.ErrConnection, "kitsu", "login", "authentication failed", err)
	}
	if strings.TrimSpace(result.AccessToken) == "" {
		return nil, services.Wrap(services.ErrConnection, "kitsu", "login", "server returned no access token", nil)
	}
	c.SetToken(result.AccessToken)
	return &result, nil
}

// CurrentUser returns the person the bearer token belongs to.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var resp struct {
		Authenticated bool `json:"authenticated"`
		User          User `json:"user"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "auth/authenticated", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Authenticated {
		return nil, services.Wrap(services.ErrConnection, "kitsu", "authenticated", "token rejected", nil)
	}
	return &resp.User, nil
}

// OpenProjects lists productions that are not closed.
func (c *Client) OpenProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := c.doJSON(ctx, http.MethodGet, "data/projects/open", nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// ProjectByName finds an open project by name, ignoring case.
func (c *Client) ProjectByName(ctx context.Context, name string) (*Project, error) {
	projects, err := c.OpenProjects(ctx)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		if sameName(projects[i].Name, name) {
			return &projects[i], nil
		}
	}
	return nil, services.Wrap(services.ErrNotFound, "kitsu", "project", fmt.Sprintf("no open project named %q", name), nil)
}

// ProjectTasks lists every task of a project.
func (c *Client) ProjectTasks(ctx context.Context, projectID string) ([]TaskRef, error) {
	var tasks []TaskRef
	path := "data/projects/" + url.PathEscape(projectID) + "/tasks"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// TasksToDo lists the tasks assigned to the current user.
func (c *Client) TasksToDo(ctx context.Context) ([]TaskRef, error) {
	var tasks []TaskRef
	if err := c.doJSON(ctx, http.MethodGet, "data/user/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Task fetches the expanded task detail.
func (c *Client) Task(ctx context.Context, id string) (*TaskDetail, error) {
	var task TaskDetail
	path := "data/tasks/" + url.PathEscape(id) + "/full"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// TaskStatuses lists every task status defined on the server.
func (c *Client) TaskStatuses(ctx context.Context) ([]TaskStatus, error) {
	var statuses []TaskStatus
	if err := c.doJSON(ctx, http.MethodGet, "data/task-status", nil, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// TaskStatusByName finds a status by its display name, ignoring case.
func (c *Client) TaskStatusByName(ctx context.Context, name string) (*TaskStatus, error) {
	return c.findStatus(ctx, name, func(s TaskStatus) string { return s.Name })
}

// TaskStatusByShortName finds a status by its short name ("wfa", "wip"...).
func (c *Client) TaskStatusByShortName(ctx context.Context, short string) (*TaskStatus, error) {
	return c.findStatus(ctx, short, func(s TaskStatus) string { return s.ShortName })
}

func (c *Client) findStatus(ctx context.Context, want string, key func(TaskStatus) string) (*TaskStatus, error) {
	statuses, err := c.TaskStatuses(ctx)
	if err != nil {
		return nil, err
	}
	for i := range statuses {
		if sameName(key(statuses[i]), want) {
			return &statuses[i], nil
		}
	}
	return nil, services.Wrap(services.ErrNotFound, "kitsu", "task status", fmt.Sprintf("no status matching %q", want), nil)
}
