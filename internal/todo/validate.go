package todo

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ValidateOptions controls optional relaxations of list validation.
type ValidateOptions struct {
	// AllowSubtasks permits the subtasks field on incoming tasks. When false
	// a task carrying subtasks is rejected.
	AllowSubtasks bool
}

// ValidateTask checks structural invariants on a single task. Rules run in a
// fixed order so error messages are deterministic: id, content, status,
// priority, note length, subtasks.
func ValidateTask(t Task) error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("task id is required")
	}
	if strings.TrimSpace(t.Content) == "" {
		return fmt.Errorf("task %q: content must be non-empty", t.ID)
	}
	switch t.Status {
	case StatusPending, StatusInProgress, StatusCompleted:
	default:
		return fmt.Errorf("task %q: invalid status %q (expected pending|in_progress|completed)", t.ID, t.Status)
	}
	switch t.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh:
	default:
		return fmt.Errorf("task %q: invalid priority %q (expected low|medium|high)", t.ID, t.Priority)
	}
	if utf8.RuneCountInString(t.Note) > NoteMaxLen {
		return fmt.Errorf("task %q: note exceeds %d characters", t.ID, NoteMaxLen)
	}
	for _, sub := range t.Subtasks {
		if strings.TrimSpace(sub.ID) == "" {
			return fmt.Errorf("task %q: subtask id is required", t.ID)
		}
		if strings.TrimSpace(sub.Content) == "" {
			return fmt.Errorf("task %q: subtask %q: content must be non-empty", t.ID, sub.ID)
		}
		switch sub.Status {
		case StatusPending, StatusCompleted:
		default:
			return fmt.Errorf("task %q: subtask %q: invalid status %q (expected pending|completed)", t.ID, sub.ID, sub.Status)
		}
	}
	return nil
}

// ValidateList checks a full replacement batch: every task individually,
// unique ids, at most one in_progress task, and the subtasks feature gate.
// Validation is pure and runs strictly before any mutation.
func ValidateList(tasks []Task, opts ValidateOptions) error {
	seen := make(map[string]struct{}, len(tasks))
	inProgress := 0
	for _, t := range tasks {
		if err := ValidateTask(t); err != nil {
			return err
		}
		if !opts.AllowSubtasks && len(t.Subtasks) > 0 {
			return fmt.Errorf("task %q: subtasks are not enabled", t.ID)
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("duplicate task id %q", t.ID)
		}
		seen[t.ID] = struct{}{}
		if t.Status == StatusInProgress {
			inProgress++
		}
	}
	if inProgress > 1 {
		return fmt.Errorf("at most one task may be in_progress, found %d", inProgress)
	}
	return nil
}
