// Package storage defines the task store contract and its in-memory and
// file-backed implementations. Stores own their task list data, guard it
// with a single mutex, and fan out change notifications to subscribers.
package storage

import (
	"errors"
	"sync"

	"github.com/digitarald/vscode-agent-todos-sub000/internal/todo"
)

// ErrClosed indicates an operation against a closed store.
var ErrClosed = errors.New("storage: store closed")

// Subscriber receives the full post-change list. Callbacks run outside the
// store lock; a subscriber added after a change does not retroactively
// receive it.
type Subscriber func(todo.TaskList)

// Unsubscribe removes a previously registered subscriber. Safe to call more
// than once.
type Unsubscribe func()

// Store is the task list persistence contract shared by the sync engine and
// the MCP facade. Save is atomic with respect to Load: a concurrent Load
// observes either the old or the new state, never a torn write.
type Store interface {
	Load() (todo.TaskList, error)
	Save(list todo.TaskList) error
	Clear() error
	Subscribe(fn Subscriber) Unsubscribe
}

// subscriberHub is the shared fan-out used by the store implementations.
type subscriberHub struct {
	mu   sync.Mutex
	next int
	subs map[int]Subscriber
}

func (h *subscriberHub) add(fn Subscriber) Unsubscribe {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[int]Subscriber)
	}
	id := h.next
	h.next++
	h.subs[id] = fn
	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// notify invokes every subscriber with its own deep copy of list.
func (h *subscriberHub) notify(list todo.TaskList) {
	h.mu.Lock()
	subs := make([]Subscriber, 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.Unlock()
	for _, fn := range subs {
		fn(list.Clone())
	}
}
