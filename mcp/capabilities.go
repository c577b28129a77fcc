package mcp

import (
	"sync"

	"github.com/digitarald/vscode-agent-todos-sub000/internal/todo"
)

// capabilityState tracks the inputs that drive the exposed tool surface and
// the surface most recently installed, so recomputation only touches the
// registry when something actually changed. The whole surface is replaced
// atomically under one lock rather than mutated piecemeal.
type capabilityState struct {
	standalone bool

	mu         sync.Mutex
	settings   Settings
	lastList   todo.TaskList
	haveList   bool
	installed  bool
	readShown  bool
	subtasksOn bool
}

func newCapabilityState(standalone bool, settings Settings) *capabilityState {
	return &capabilityState{
		standalone: standalone,
		settings:   settings,
	}
}

// applySettings swaps in new live settings, reporting whether they differ.
func (c *capabilityState) applySettings(settings Settings) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.settings == settings {
		return false
	}
	c.settings = settings
	return true
}

// rememberList seeds the last-seen list without treating it as a change.
func (c *capabilityState) rememberList(list todo.TaskList) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastList = list.Clone()
	c.haveList = true
}

// titleTransition records the new list and returns the replaced one when the
// title moved away from a non-empty, non-default list, which is the archive
// trigger. Transitions into or out of the empty list never archive.
func (c *capabilityState) titleTransition(list todo.TaskList) (todo.TaskList, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.lastList
	had := c.haveList
	c.lastList = list.Clone()
	c.haveList = true
	if !had || prev.Title == list.Title {
		return todo.TaskList{}, false
	}
	if prev.IsEmpty() || prev.HasDefaultTitle() {
		return todo.TaskList{}, false
	}
	return prev, true
}

// plan computes the desired tool surface against list and reports what must
// be (re)installed. The read tool is exposed unconditionally in standalone
// mode, and otherwise only when auto-inject is off and the list is
// non-empty. The write tool is always exposed but its schema tracks the
// subtasks flag.
func (c *capabilityState) plan(list todo.TaskList) (read, subtasks, installRead, installWrite bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	read = c.standalone || (!c.settings.AutoInject && !list.IsEmpty())
	subtasks = c.settings.EnableSubtasks
	// Never remove a tool that was never installed.
	installRead = (!c.installed && read) || (c.installed && read != c.readShown)
	installWrite = !c.installed || subtasks != c.subtasksOn
	c.installed = true
	c.readShown = read
	c.subtasksOn = subtasks
	return read, subtasks, installRead, installWrite
}

// readExposed reports the currently installed read capability.
func (c *capabilityState) readExposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.installed && c.readShown
}

// allowSubtasksWrite reports whether a write may carry subtasks. Standalone
// deployments accept subtasks regardless of the flag, even though the
// advertised schema omits the field (see DESIGN.md).
func (c *capabilityState) allowSubtasksWrite() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.standalone || c.settings.EnableSubtasks
}

// recomputeCapabilities replaces the tool registrations that no longer match
// the desired surface. Connected sessions learn about the change through the
// SDK's tools/list_changed notification without needing a new session.
func (s *Server) recomputeCapabilities() {
	// Serialize plan and registration so concurrent recomputes cannot
	// interleave and leave the tool list matching a stale plan.
	s.recomputeMu.Lock()
	defer s.recomputeMu.Unlock()
	list, err := s.agent.Load()
	if err != nil {
		s.toolLog.Warn("capability recompute load failed", "error", err)
		return
	}
	read, subtasks, installRead, installWrite := s.caps.plan(list)
	if installRead {
		if read {
			s.registerReadTool()
		} else {
			s.mcpServer.RemoveTools(toolRead)
		}
		s.toolLog.Debug("read tool capability changed", "exposed", read)
	}
	if installWrite {
		s.registerWriteTool(subtasks)
		s.toolLog.Debug("write tool capability changed", "subtasks", subtasks)
	}
}
