package storage

import (
	"sync"

	"github.com/digitarald/vscode-agent-todos-sub000/internal/todo"
)

// Memory is a process-lifetime store with no persistence.
type Memory struct {
	mu   sync.Mutex
	list todo.TaskList
	hub  subscriberHub
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store carrying the default title.
func NewMemory() *Memory {
	return &Memory{list: todo.NewTaskList()}
}

// Load returns a deep copy of the current list.
func (m *Memory) Load() (todo.TaskList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list.Clone(), nil
}

// Save replaces the list wholesale and notifies subscribers.
func (m *Memory) Save(list todo.TaskList) error {
	m.mu.Lock()
	m.list = list.Clone()
	snapshot := m.list.Clone()
	m.mu.Unlock()
	m.hub.notify(snapshot)
	return nil
}

// Clear resets the store to an empty default-titled list.
func (m *Memory) Clear() error {
	return m.Save(todo.NewTaskList())
}

// Subscribe registers a change callback.
func (m *Memory) Subscribe(fn Subscriber) Unsubscribe {
	return m.hub.add(fn)
}
