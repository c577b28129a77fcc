package mcp

import (
	"sync"
	"testing"

	"github.com/digitarald/vscode-agent-todos-sub000/internal/todo"
)

func TestCapabilityPlanStandaloneAlwaysExposesRead(t *testing.T) {
	t.Parallel()
	c := newCapabilityState(true, Settings{AutoInject: true})
	read, _, installRead, installWrite := c.plan(todo.TaskList{})
	if !read || !installRead || !installWrite {
		t.Fatalf("first plan: read=%v installRead=%v installWrite=%v", read, installRead, installWrite)
	}
	// Nothing changed, nothing to reinstall.
	read, _, installRead, installWrite = c.plan(todo.TaskList{})
	if !read || installRead || installWrite {
		t.Fatalf("second plan: read=%v installRead=%v installWrite=%v", read, installRead, installWrite)
	}
}

func TestCapabilityPlanTracksListEmptiness(t *testing.T) {
	t.Parallel()
	c := newCapabilityState(false, Settings{})
	read, _, installRead, installWrite := c.plan(todo.TaskList{})
	if read {
		t.Fatalf("read exposed for empty list")
	}
	if installRead {
		t.Fatalf("first plan scheduled removal of a tool that was never added")
	}
	if !installWrite {
		t.Fatalf("write tool not installed on first plan")
	}

	nonEmpty := todo.TaskList{Tasks: []todo.Task{{ID: "a", Content: "x", Status: todo.StatusPending, Priority: todo.PriorityLow}}}
	read, _, installRead, _ = c.plan(nonEmpty)
	if !read || !installRead {
		t.Fatalf("read not installed once list became non-empty: read=%v installRead=%v", read, installRead)
	}

	read, _, installRead, _ = c.plan(todo.TaskList{})
	if read || !installRead {
		t.Fatalf("read not removed once list emptied: read=%v installRead=%v", read, installRead)
	}
}

func TestCapabilityPlanAutoInjectSuppressesRead(t *testing.T) {
	t.Parallel()
	c := newCapabilityState(false, Settings{AutoInject: true})
	nonEmpty := todo.TaskList{Tasks: []todo.Task{{ID: "a", Content: "x", Status: todo.StatusPending, Priority: todo.PriorityLow}}}
	if read, _, _, _ := c.plan(nonEmpty); read {
		t.Fatalf("read exposed despite auto-inject")
	}
	if !c.applySettings(Settings{}) {
		t.Fatalf("settings change not detected")
	}
	if read, _, installRead, _ := c.plan(nonEmpty); !read || !installRead {
		t.Fatalf("read not installed after auto-inject turned off")
	}
}

func TestCapabilityPlanSubtasksSchemaSwap(t *testing.T) {
	t.Parallel()
	c := newCapabilityState(false, Settings{})
	_, subtasks, _, installWrite := c.plan(todo.TaskList{})
	if subtasks || !installWrite {
		t.Fatalf("first plan: subtasks=%v installWrite=%v", subtasks, installWrite)
	}
	c.applySettings(Settings{EnableSubtasks: true})
	_, subtasks, _, installWrite = c.plan(todo.TaskList{})
	if !subtasks || !installWrite {
		t.Fatalf("schema swap not planned: subtasks=%v installWrite=%v", subtasks, installWrite)
	}
}

func TestAllowSubtasksWrite(t *testing.T) {
	t.Parallel()
	if !newCapabilityState(true, Settings{}).allowSubtasksWrite() {
		t.Fatalf("standalone must accept subtasks regardless of the flag")
	}
	if newCapabilityState(false, Settings{}).allowSubtasksWrite() {
		t.Fatalf("embedded mode must reject subtasks while the flag is off")
	}
	if !newCapabilityState(false, Settings{EnableSubtasks: true}).allowSubtasksWrite() {
		t.Fatalf("flag on must accept subtasks")
	}
}

func TestTitleTransitionReturnsReplacedList(t *testing.T) {
	t.Parallel()
	c := newCapabilityState(false, Settings{})

	named := todo.TaskList{Title: "Sprint One", Tasks: []todo.Task{{ID: "a", Content: "x", Status: todo.StatusPending, Priority: todo.PriorityLow}}}
	if _, archivable := c.titleTransition(named); archivable {
		t.Fatalf("first observed list reported as transition")
	}
	// Same title, changed content: no transition.
	changed := named.Clone()
	changed.Tasks[0].Status = todo.StatusCompleted
	if _, archivable := c.titleTransition(changed); archivable {
		t.Fatalf("content-only change reported as transition")
	}
	renamed := todo.TaskList{Title: "Sprint Two"}
	prev, archivable := c.titleTransition(renamed)
	if !archivable {
		t.Fatalf("title change not reported")
	}
	if prev.Title != "Sprint One" || prev.Tasks[0].Status != todo.StatusCompleted {
		t.Fatalf("replaced list = %+v", prev)
	}
}

func TestTitleTransitionSkipsEmptyAndDefault(t *testing.T) {
	t.Parallel()
	c := newCapabilityState(false, Settings{})
	empty := todo.TaskList{Title: "Sprint One"}
	c.titleTransition(empty)
	if _, archivable := c.titleTransition(todo.TaskList{Title: "Sprint Two"}); archivable {
		t.Fatalf("empty list should never archive")
	}

	c = newCapabilityState(false, Settings{})
	untitled := todo.TaskList{Title: todo.DefaultTitle, Tasks: []todo.Task{{ID: "a", Content: "x", Status: todo.StatusPending, Priority: todo.PriorityLow}}}
	c.titleTransition(untitled)
	if _, archivable := c.titleTransition(todo.TaskList{Title: "Named"}); archivable {
		t.Fatalf("default-titled list should never archive")
	}
}

func TestRecomputeSerializesConcurrentUpdates(t *testing.T) {
	t.Parallel()
	s, agent, _ := newTestServer(t, Config{})
	seed := todo.TaskList{Title: "Race", Tasks: []todo.Task{{ID: "a", Content: "x", Status: todo.StatusPending, Priority: todo.PriorityLow}}}
	if err := agent.Save(seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.ApplySettings(Settings{AutoInject: i%2 == 0})
		}()
		go func() {
			defer wg.Done()
			s.recomputeCapabilities()
		}()
	}
	wg.Wait()

	// Settle on a known state; the advertised surface must match it exactly.
	s.ApplySettings(Settings{AutoInject: true})
	s.recomputeCapabilities()
	cs, closeFn := connectClientSession(t, s, nil)
	defer closeFn()
	names := toolNames(t, cs)
	if names[toolRead] {
		t.Fatalf("read tool advertised while auto-inject active: %v", names)
	}
	if !names[toolWrite] {
		t.Fatalf("write tool missing: %v", names)
	}

	s.ApplySettings(Settings{AutoInject: false})
	names = toolNames(t, cs)
	if !names[toolRead] {
		t.Fatalf("read tool missing after auto-inject disabled: %v", names)
	}
}
