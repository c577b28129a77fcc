package mcp

import (
	"fmt"

	"github.com/digitarald/vscode-agent-todos-sub000/internal/todo"
)

// progressLabel derives a short human-readable label by diffing the pre- and
// post-write lists. Detected shapes, in precedence order: initialization
// from empty, full-list completion, single-task completion, single-task
// start. Anything else falls back to a generic update label.
func progressLabel(before, after todo.TaskList) string {
	if before.IsEmpty() && !after.IsEmpty() {
		return fmt.Sprintf("Planned %d todos", len(after.Tasks))
	}
	counts := after.CountByStatus()
	if counts.Total() > 0 && counts.Completed == counts.Total() {
		if beforeCounts := before.CountByStatus(); beforeCounts.Completed < beforeCounts.Total() || beforeCounts.Total() == 0 {
			return fmt.Sprintf("All %d todos completed", counts.Total())
		}
	}
	if t, ok := newlyWithStatus(before, after, todo.StatusCompleted); ok {
		return "Completed: " + t.Content
	}
	if t, ok := newlyWithStatus(before, after, todo.StatusInProgress); ok {
		return "Started: " + t.Content
	}
	return "Updated " + after.DisplayTitle()
}

// newlyWithStatus finds the single task that moved into status between the
// two lists; ambiguous diffs (zero or several movers) report false.
func newlyWithStatus(before, after todo.TaskList, status todo.Status) (todo.Task, bool) {
	prior := make(map[string]todo.Status, len(before.Tasks))
	for _, t := range before.Tasks {
		prior[t.ID] = t.Status
	}
	var found todo.Task
	count := 0
	for _, t := range after.Tasks {
		if t.Status != status {
			continue
		}
		if old, ok := prior[t.ID]; !ok || old != status {
			found = t
			count++
		}
	}
	return found, count == 1
}
