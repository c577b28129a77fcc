// Package todo defines the task data model shared by the stores, the sync
// engine and the MCP facade, together with its validation rules and the
// markdown codec used for file persistence and resource rendering.
package todo

import (
	"fmt"
	"strings"
)

// Status enumerates task lifecycle states.
type Status string

// Task status values.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Priority enumerates task priorities.
type Priority string

// Task priority values.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// DefaultTitle is the sentinel title assigned to lists that were never named.
const DefaultTitle = "Todos"

// NoteMaxLen caps the rune length of a task note.
const NoteMaxLen = 500

// Subtask is a single checklist entry nested under a Task.
type Subtask struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Status  Status `json:"status"`
}

// Task is one unit of work. IDs are caller-assigned and opaque; ordering is
// carried by the surrounding slice, never by the task itself.
type Task struct {
	ID       string    `json:"id"`
	Content  string    `json:"content"`
	Status   Status    `json:"status"`
	Priority Priority  `json:"priority"`
	Note     string    `json:"note,omitempty"`
	Details  string    `json:"details,omitempty"`
	Subtasks []Subtask `json:"subtasks,omitempty"`
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	out := t
	if len(t.Subtasks) > 0 {
		out.Subtasks = append([]Subtask(nil), t.Subtasks...)
	}
	return out
}

// Equal reports whether two tasks carry identical content. All persisted
// fields participate; slice order is significant.
func (t Task) Equal(other Task) bool {
	if t.ID != other.ID || t.Content != other.Content || t.Status != other.Status ||
		t.Priority != other.Priority || t.Note != other.Note || t.Details != other.Details {
		return false
	}
	if len(t.Subtasks) != len(other.Subtasks) {
		return false
	}
	for i := range t.Subtasks {
		if t.Subtasks[i] != other.Subtasks[i] {
			return false
		}
	}
	return true
}

// TaskList is an ordered sequence of tasks plus a title. Order is
// caller-supplied and preserved verbatim; it encodes sequencing intent.
type TaskList struct {
	Title string `json:"title"`
	Tasks []Task `json:"tasks"`
}

// NewTaskList returns an empty list carrying the default title.
func NewTaskList() TaskList {
	return TaskList{Title: DefaultTitle}
}

// Clone returns a deep copy of the list.
func (l TaskList) Clone() TaskList {
	out := TaskList{Title: l.Title}
	if len(l.Tasks) > 0 {
		out.Tasks = make([]Task, len(l.Tasks))
		for i, t := range l.Tasks {
			out.Tasks[i] = t.Clone()
		}
	}
	return out
}

// IsEmpty reports whether the list holds no tasks.
func (l TaskList) IsEmpty() bool {
	return len(l.Tasks) == 0
}

// HasDefaultTitle reports whether the list still carries the sentinel title.
func (l TaskList) HasDefaultTitle() bool {
	title := strings.TrimSpace(l.Title)
	return title == "" || title == DefaultTitle
}

// Equal compares title and ordered task content field by field.
func (l TaskList) Equal(other TaskList) bool {
	if l.Title != other.Title || len(l.Tasks) != len(other.Tasks) {
		return false
	}
	for i := range l.Tasks {
		if !l.Tasks[i].Equal(other.Tasks[i]) {
			return false
		}
	}
	return true
}

// StatusCounts tallies tasks per status.
type StatusCounts struct {
	Pending    int
	InProgress int
	Completed  int
}

// Total returns the sum across all statuses.
func (c StatusCounts) Total() int {
	return c.Pending + c.InProgress + c.Completed
}

// CountByStatus tallies the list's tasks per status.
func (l TaskList) CountByStatus() StatusCounts {
	var counts StatusCounts
	for _, t := range l.Tasks {
		switch t.Status {
		case StatusInProgress:
			counts.InProgress++
		case StatusCompleted:
			counts.Completed++
		default:
			counts.Pending++
		}
	}
	return counts
}

// DisplayTitle derives the presentation title "{title} ({completed}/{total})".
// It is computed on demand and never stored.
func (l TaskList) DisplayTitle() string {
	title := strings.TrimSpace(l.Title)
	if title == "" {
		title = DefaultTitle
	}
	counts := l.CountByStatus()
	return fmt.Sprintf("%s (%d/%d)", title, counts.Completed, counts.Total())
}

// InProgressTask returns the currently active task, if any.
func (l TaskList) InProgressTask() (Task, bool) {
	for _, t := range l.Tasks {
		if t.Status == StatusInProgress {
			return t, true
		}
	}
	return Task{}, false
}
