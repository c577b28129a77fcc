package syncer

import (
	"io"
	"sync"
	"testing"
	"time"

	"pkt.systems/pslog"

	"github.com/digitarald/vscode-agent-todos-sub000/internal/storage"
	"github.com/digitarald/vscode-agent-todos-sub000/internal/todo"
)

func testLogger() pslog.Logger {
	return pslog.NewStructured(io.Discard)
}

func oneTask(id, content string) todo.TaskList {
	return todo.TaskList{Title: "Plan", Tasks: []todo.Task{
		{ID: id, Content: content, Status: todo.StatusPending, Priority: todo.PriorityMedium},
	}}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestFingerprintTracksContent(t *testing.T) {
	t.Parallel()
	a := oneTask("a", "same")
	b := oneTask("a", "same")
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("equal lists produced different fingerprints")
	}
	c := oneTask("a", "different")
	if Fingerprint(a) == Fingerprint(c) {
		t.Fatalf("different lists produced equal fingerprints")
	}
}

func TestStartPropagatesLocalToAgent(t *testing.T) {
	t.Parallel()
	local := storage.NewMemory()
	agent := storage.NewMemory()
	if err := local.Save(oneTask("a", "seeded")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	e := New(local, agent, testLogger())
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer e.Stop()

	got, _ := agent.Load()
	if len(got.Tasks) != 1 || got.Tasks[0].Content != "seeded" {
		t.Fatalf("agent after start = %+v", got)
	}
	if p := e.Propagations(); p != 1 {
		t.Fatalf("propagations = %d, want 1", p)
	}
}

func TestAgentChangeReachesLocalWithoutFeedbackLoop(t *testing.T) {
	t.Parallel()
	local := storage.NewMemory()
	agent := storage.NewMemory()
	e := New(local, agent, testLogger(), WithDebounce(20*time.Millisecond))
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer e.Stop()
	base := e.Propagations()

	// A tool-originated write marks itself external before saving.
	e.MarkExternal()
	if err := agent.Save(oneTask("a", "from agent")); err != nil {
		t.Fatalf("agent save: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		got, _ := local.Load()
		return len(got.Tasks) == 1 && got.Tasks[0].Content == "from agent"
	})

	// Settle, then confirm the reciprocal notification was suppressed: one
	// change must cost at most two propagation attempts, never a ping-pong.
	time.Sleep(200 * time.Millisecond)
	if p := e.Propagations() - base; p >= 3 {
		t.Fatalf("propagations for one change = %d, want < 3", p)
	}
}

func TestLocalChangeReachesAgent(t *testing.T) {
	t.Parallel()
	local := storage.NewMemory()
	agent := storage.NewMemory()
	e := New(local, agent, testLogger(), WithDebounce(20*time.Millisecond))
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer e.Stop()

	if err := local.Save(oneTask("a", "hand edit")); err != nil {
		t.Fatalf("local save: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		got, _ := agent.Load()
		return len(got.Tasks) == 1 && got.Tasks[0].Content == "hand edit"
	})
}

func TestDebounceCoalescesRapidChanges(t *testing.T) {
	t.Parallel()
	local := storage.NewMemory()
	agent := storage.NewMemory()
	if err := local.Save(oneTask("a", "v0")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	e := New(local, agent, testLogger(), WithDebounce(150*time.Millisecond))
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer e.Stop()
	base := e.Propagations()

	// Rapid successive non-empty updates reset the same timer.
	for _, content := range []string{"v1", "v2", "v3", "v4"} {
		if err := local.Save(oneTask("a", content)); err != nil {
			t.Fatalf("save %s: %v", content, err)
		}
	}
	waitFor(t, 3*time.Second, func() bool {
		got, _ := agent.Load()
		return len(got.Tasks) == 1 && got.Tasks[0].Content == "v4"
	})
	if p := e.Propagations() - base; p > 2 {
		t.Fatalf("burst cost %d propagations, want at most 2", p)
	}
}

func TestEmptyTransitionBypassesDebounce(t *testing.T) {
	t.Parallel()
	local := storage.NewMemory()
	agent := storage.NewMemory()
	// A debounce long enough that only the bypass can explain fast delivery.
	e := New(local, agent, testLogger(), WithDebounce(time.Hour))
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer e.Stop()

	if err := local.Save(oneTask("a", "first")); err != nil {
		t.Fatalf("save: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		got, _ := agent.Load()
		return !got.IsEmpty()
	})

	if err := local.Save(todo.NewTaskList()); err != nil {
		t.Fatalf("clear save: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		got, _ := agent.Load()
		return got.IsEmpty()
	})
}

func TestOnEmptyTransitionHookFires(t *testing.T) {
	t.Parallel()
	local := storage.NewMemory()
	agent := storage.NewMemory()
	e := New(local, agent, testLogger(), WithDebounce(20*time.Millisecond))

	var mu sync.Mutex
	var edges []bool
	e.OnEmptyTransition(func(nonEmpty bool) {
		mu.Lock()
		edges = append(edges, nonEmpty)
		mu.Unlock()
	})
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer e.Stop()

	_ = local.Save(oneTask("a", "first"))
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(edges) == 1 && edges[0]
	})

	_ = local.Save(todo.NewTaskList())
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(edges) == 2 && !edges[1]
	})
}

func TestObserverSeesPropagationResults(t *testing.T) {
	t.Parallel()
	local := storage.NewMemory()
	agent := storage.NewMemory()

	var mu sync.Mutex
	type obs struct {
		direction string
		ok        bool
	}
	var seen []obs
	e := New(local, agent, testLogger(),
		WithDebounce(20*time.Millisecond),
		WithObserver(func(direction string, ok bool) {
			mu.Lock()
			seen = append(seen, obs{direction, ok})
			mu.Unlock()
		}),
	)
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer e.Stop()

	mu.Lock()
	if len(seen) != 1 || seen[0].direction != "local_to_agent" || !seen[0].ok {
		mu.Unlock()
		t.Fatalf("initial observation = %+v", seen)
	}
	mu.Unlock()

	e.MarkExternal()
	_ = agent.Save(oneTask("a", "task"))
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, o := range seen {
			if o.direction == "agent_to_local" && o.ok {
				return true
			}
		}
		return false
	})
}

func TestStopCancelsPendingPropagation(t *testing.T) {
	t.Parallel()
	local := storage.NewMemory()
	agent := storage.NewMemory()
	if err := local.Save(oneTask("a", "v0")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	e := New(local, agent, testLogger(), WithDebounce(100*time.Millisecond))
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	base := e.Propagations()

	_ = local.Save(oneTask("a", "v1"))
	e.Stop()
	time.Sleep(300 * time.Millisecond)
	if p := e.Propagations(); p != base {
		t.Fatalf("propagation ran after Stop: %d -> %d", base, p)
	}
	got, _ := agent.Load()
	if got.Tasks[0].Content != "v0" {
		t.Fatalf("agent updated after Stop: %+v", got)
	}
}

func TestStartStopConcurrentlySafe(t *testing.T) {
	t.Parallel()
	local := storage.NewMemory()
	agent := storage.NewMemory()
	if err := local.Save(oneTask("a", "seed")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	e := New(local, agent, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = e.Start()
		}()
		go func() {
			defer wg.Done()
			e.Stop()
		}()
	}
	wg.Wait()
	e.Stop()

	// After a final Stop no subscription survives; a local change must not
	// propagate.
	base := e.Propagations()
	_ = local.Save(oneTask("a", "after-stop"))
	time.Sleep(50 * time.Millisecond)
	if p := e.Propagations(); p != base {
		t.Fatalf("propagation after final Stop: %d -> %d", base, p)
	}
}
