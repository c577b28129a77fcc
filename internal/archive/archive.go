package archive

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"pkt.systems/pslog"

	"github.com/digitarald/vscode-agent-todos-sub000/internal/todo"
)

// Snapshot is an immutable point-in-time copy of a task list. ID, Slug and
// SavedAt are metadata and never participate in duplicate detection.
type Snapshot struct {
	ID      string      `json:"id"`
	Slug    string      `json:"slug"`
	Title   string      `json:"title"`
	Tasks   []todo.Task `json:"tasks"`
	SavedAt time.Time   `json:"saved_at"`
}

// IsDuplicate compares candidate and mostRecent by title and full ordered
// task content (id, content, status, priority, note, details, subtasks).
func IsDuplicate(candidate todo.TaskList, mostRecent Snapshot) bool {
	return candidate.Equal(todo.TaskList{Title: mostRecent.Title, Tasks: mostRecent.Tasks})
}

// Registry keeps saved snapshots in memory for the lifetime of the server
// and hands out stable unique slugs.
type Registry struct {
	logger pslog.Logger

	mu     sync.Mutex
	order  []string
	bySlug map[string]Snapshot
}

// NewRegistry returns an empty snapshot registry.
func NewRegistry(logger pslog.Logger) *Registry {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &Registry{
		logger: logger,
		bySlug: make(map[string]Snapshot),
	}
}

// Archive saves an immutable copy of list unless it is an exact duplicate of
// the most recently saved snapshot for the same title. Empty lists and lists
// still carrying the default title are never archived. The second return
// reports whether a snapshot was created.
func (r *Registry) Archive(list todo.TaskList) (Snapshot, bool) {
	if list.IsEmpty() || list.HasDefaultTitle() {
		return Snapshot{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if recent, ok := r.mostRecentForTitleLocked(list.Title); ok && IsDuplicate(list, recent) {
		r.logger.Debug("snapshot skipped, identical to most recent", "title", list.Title, "slug", recent.Slug)
		return recent, false
	}
	taken := make(map[string]struct{}, len(r.bySlug))
	for slug := range r.bySlug {
		taken[slug] = struct{}{}
	}
	clone := list.Clone()
	snap := Snapshot{
		ID:      uuid.NewString(),
		Slug:    EnsureUnique(Slugify(list.Title), taken),
		Title:   clone.Title,
		Tasks:   clone.Tasks,
		SavedAt: time.Now().UTC(),
	}
	r.bySlug[snap.Slug] = snap
	r.order = append(r.order, snap.Slug)
	r.logger.Info("task list archived", "title", snap.Title, "slug", snap.Slug, "tasks", len(snap.Tasks))
	return snap, true
}

// mostRecentForTitleLocked scans newest-first for a snapshot with the title.
func (r *Registry) mostRecentForTitleLocked(title string) (Snapshot, bool) {
	for i := len(r.order) - 1; i >= 0; i-- {
		snap := r.bySlug[r.order[i]]
		if snap.Title == title {
			return snap, true
		}
	}
	return Snapshot{}, false
}

// Get returns the snapshot stored under slug.
func (r *Registry) Get(slug string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.bySlug[slug]
	return snap, ok
}

// List returns all snapshots in save order.
func (r *Registry) List() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, 0, len(r.order))
	for _, slug := range r.order {
		out = append(out, r.bySlug[slug])
	}
	return out
}

// CompleteSlug returns the sorted slugs starting with prefix, for
// interactive completion.
func (r *Registry) CompleteSlug(prefix string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.bySlug))
	for slug := range r.bySlug {
		if strings.HasPrefix(slug, prefix) {
			out = append(out, slug)
		}
	}
	sort.Strings(out)
	return out
}

// Len reports the number of stored snapshots.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bySlug)
}

// Clear removes every snapshot. This is the only way snapshots are deleted.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.bySlug = make(map[string]Snapshot)
}
