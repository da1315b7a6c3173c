package kitsu

import "strings"

// User is the authenticated person.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	FullName  string `json:"full_name"`
}

// DisplayName prefers the full name and falls back to the email.
func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	if u.FirstName != "" || u.LastName != "" {
		return joinNonEmpty(u.FirstName, u.LastName)
	}
	return u.Email
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	User         User   `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Login        bool   `json:"login"`
}

// Project is an open production.
type Project struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"project_status_name,omitempty"`
}

// TaskStatus is a workflow state a comment can move a task into.
type TaskStatus struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	Color     string `json:"color,omitempty"`
	IsDefault bool   `json:"is_default"`
}

// TaskType names a kind of work (Modeling, Animation, Compositing...).
type TaskType struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ForEntity string `json:"for_entity"`
}

// Named is the minimal {id, name} shape embedded in task details.
type Named struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Entity is the asset or shot a task belongs to.
type Entity struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	PreviewFileID string `json:"preview_file_id"`
}

// TaskRef is the flat task shape returned by list endpoints. Only ID is
// relied upon; the detail call provides the hierarchy data.
type TaskRef struct {
	ID             string `json:"id"`
	ProjectName    string `json:"project_name,omitempty"`
	SequenceName   string `json:"sequence_name,omitempty"`
	EntityName     string `json:"entity_name,omitempty"`
	EntityTypeName string `json:"entity_type_name,omitempty"`
	TaskTypeName   string `json:"task_type_name,omitempty"`
}

// TaskDetail is the expanded task returned by data/tasks/{id}/full. Nested
// objects are pointers because the server sends null for missing relations
// (for example, assets have no sequence).
type TaskDetail struct {
	ID             string      `json:"id"`
	Project        *Named      `json:"project"`
	TaskType       *TaskType   `json:"task_type"`
	TaskStatus     *TaskStatus `json:"task_status"`
	Entity         *Entity     `json:"entity"`
	EntityType     *Named      `json:"entity_type"`
	Sequence       *Named      `json:"sequence"`
	EntityTypeName string      `json:"entity_type_name"`
}

// Label renders the task as "Project / Sequence / Entity / TaskType",
// skipping missing parts.
func (d *TaskDetail) Label() string {
	if d == nil {
		return ""
	}
	var parts []string
	add := func(v string) {
		if v != "" {
			parts = append(parts, v)
		}
	}
	if d.Project != nil {
		add(d.Project.Name)
	}
	if d.Sequence != nil {
		add(d.Sequence.Name)
	}
	if d.Entity != nil {
		add(d.Entity.Name)
	}
	if d.TaskType != nil {
		add(d.TaskType.Name)
	}
	if len(parts) == 0 {
		return d.ID
	}
	return strings.Join(parts, " / ")
}

// Comment is a review note on a task.
type Comment struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	TaskStatusID string `json:"task_status_id"`
	ObjectID     string `json:"object_id"`
}

// PreviewFile is an uploaded review media file.
type PreviewFile struct {
	ID        string `json:"id"`
	Revision  int    `json:"revision"`
	Extension string `json:"extension,omitempty"`
	TaskID    string `json:"task_id,omitempty"`
}

func joinNonEmpty(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += p
	}
	return out
}
