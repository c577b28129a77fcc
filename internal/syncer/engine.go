// Package syncer keeps two task stores eventually consistent without
// feedback loops. Changes are fingerprinted, debounced, and propagated one
// direction at a time; empty/non-empty transitions bypass the debounce
// because they drive externally visible state.
package syncer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/digitarald/vscode-agent-todos-sub000/internal/storage"
	"github.com/digitarald/vscode-agent-todos-sub000/internal/todo"
)

// DefaultDebounce is the propagation coalescing window.
const DefaultDebounce = 50 * time.Millisecond

// Direction identifies which store originated a propagation.
type Direction int

// Propagation directions.
const (
	LocalToAgent Direction = iota
	AgentToLocal
)

func (d Direction) String() string {
	if d == AgentToLocal {
		return "agent_to_local"
	}
	return "local_to_agent"
}

func (d Direction) opposite() Direction {
	if d == LocalToAgent {
		return AgentToLocal
	}
	return LocalToAgent
}

// dirState is the per-direction state machine.
type dirState int

const (
	stateIdle dirState = iota
	statePendingDebounce
	statePropagating
)

// Fingerprint hashes the content of a list (title plus ordered tasks). Two
// lists with equal content always produce the same fingerprint.
func Fingerprint(list todo.TaskList) string {
	raw, err := json.Marshal(list)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Option tunes engine construction.
type Option func(*Engine)

// WithDebounce overrides the coalescing window.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.debounce = d
		}
	}
}

// WithObserver installs a callback invoked after every completed propagation
// attempt. Used for metrics; must not block.
func WithObserver(fn func(direction string, ok bool)) Option {
	return func(e *Engine) {
		e.observer = fn
	}
}

// Engine observes a local store and an agent-facing store and mirrors
// changes between them. It exclusively owns the echo-suppression state: the
// active direction, the last propagated fingerprint, and a monotonic version
// counter ensuring a stale propagation never clobbers a newer one.
type Engine struct {
	local    storage.Store
	agent    storage.Store
	logger   pslog.Logger
	debounce time.Duration
	observer func(direction string, ok bool)

	mu              sync.Mutex
	states          [2]dirState
	timers          [2]*time.Timer
	lastEmpty       [2]bool
	fingerprint     string
	version         uint64
	activeVersion   uint64
	externalPending bool
	started         bool
	firstDone       bool
	unsubs          []storage.Unsubscribe
	emptyHooks      []func(nonEmpty bool)
	propagations    uint64
}

// New wires an engine between local and agent. Call Start to begin syncing.
func New(local, agent storage.Store, logger pslog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	e := &Engine{
		local:    local,
		agent:    agent,
		logger:   logger,
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnEmptyTransition registers a hook fired whenever a propagation crosses
// the empty/non-empty boundary on the destination store. The UI layer uses
// the non-empty edge as its reveal signal. Must be called before Start.
func (e *Engine) OnEmptyTransition(fn func(nonEmpty bool)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emptyHooks = append(e.emptyHooks, fn)
}

// MarkExternal exempts the next agent-store change from the echo guard,
// exactly once. Tool-invoked writes call this before saving so an
// agent-initiated change is reflected back even when a propagation in the
// opposite direction is mid-flight.
func (e *Engine) MarkExternal() {
	e.mu.Lock()
	e.externalPending = true
	e.mu.Unlock()
}

// Start subscribes to both stores and performs the initial local-to-agent
// propagation.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	if list, err := e.local.Load(); err == nil {
		e.lastEmpty[LocalToAgent] = list.IsEmpty()
	}
	if list, err := e.agent.Load(); err == nil {
		e.lastEmpty[AgentToLocal] = list.IsEmpty()
	}
	e.mu.Unlock()

	localUnsub := e.local.Subscribe(func(list todo.TaskList) { e.onChange(LocalToAgent, list) })
	agentUnsub := e.agent.Subscribe(func(list todo.TaskList) { e.onChange(AgentToLocal, list) })
	e.mu.Lock()
	e.unsubs = append(e.unsubs, localUnsub, agentUnsub)
	e.mu.Unlock()
	e.propagate(LocalToAgent, e.bumpVersion(LocalToAgent))
	return nil
}

// Stop unsubscribes from both stores and cancels pending timers. In-flight
// propagations run to completion.
func (e *Engine) Stop() {
	e.mu.Lock()
	for d := range e.timers {
		if e.timers[d] != nil {
			e.timers[d].Stop()
			e.timers[d] = nil
		}
		if e.states[d] == statePendingDebounce {
			e.states[d] = stateIdle
		}
	}
	unsubs := e.unsubs
	e.unsubs = nil
	e.started = false
	e.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
}

// Propagations reports how many propagation attempts have run. Test surface.
func (e *Engine) Propagations() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.propagations
}

// onChange is the change-notification entry point for one direction.
func (e *Engine) onChange(dir Direction, list todo.TaskList) {
	e.mu.Lock()
	emptyTransition := list.IsEmpty() != e.lastEmpty[dir]
	e.lastEmpty[dir] = list.IsEmpty()

	// Echo guard: while the opposite direction is propagating, its save into
	// our source store notifies us right back. Suppress unless the change
	// was explicitly marked as externally originated.
	if e.states[dir.opposite()] == statePropagating && !e.externalPending {
		e.mu.Unlock()
		return
	}

	fp := Fingerprint(list)
	if fp == e.fingerprint && !emptyTransition && e.firstDone && !e.externalPending {
		e.mu.Unlock()
		return
	}

	if emptyTransition {
		// Bypass the debounce: empty transitions drive visible UI state.
		if e.timers[dir] != nil {
			e.timers[dir].Stop()
			e.timers[dir] = nil
		}
		version := e.bumpVersionLocked(dir)
		e.mu.Unlock()
		e.propagate(dir, version)
		return
	}

	if e.timers[dir] != nil {
		e.timers[dir].Stop()
	}
	e.states[dir] = statePendingDebounce
	e.timers[dir] = time.AfterFunc(e.debounce, func() {
		e.propagate(dir, e.bumpVersion(dir))
	})
	e.mu.Unlock()
}

func (e *Engine) bumpVersion(dir Direction) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bumpVersionLocked(dir)
}

func (e *Engine) bumpVersionLocked(dir Direction) uint64 {
	e.version++
	e.activeVersion = e.version
	e.states[dir] = statePropagating
	e.externalPending = false
	e.timers[dir] = nil
	return e.version
}

func (e *Engine) source(dir Direction) storage.Store {
	if dir == AgentToLocal {
		return e.agent
	}
	return e.local
}

func (e *Engine) dest(dir Direction) storage.Store {
	if dir == AgentToLocal {
		return e.local
	}
	return e.agent
}

// propagate copies the source store's current list into the destination
// store. Failures are logged and the fingerprint is left untouched so the
// next change notification retries; nothing panics out of the engine.
func (e *Engine) propagate(dir Direction, version uint64) {
	e.mu.Lock()
	e.propagations++
	e.mu.Unlock()

	ok := e.propagateOnce(dir)

	e.mu.Lock()
	// Only the initiator of the current version clears the propagating
	// state; a stale overlapping propagation must not clobber a newer one.
	if e.activeVersion == version && e.states[dir] == statePropagating {
		e.states[dir] = stateIdle
	}
	e.mu.Unlock()
	if e.observer != nil {
		e.observer(dir.String(), ok)
	}
}

func (e *Engine) propagateOnce(dir Direction) bool {
	list, err := e.source(dir).Load()
	if err != nil {
		e.logger.Warn("sync load failed", "direction", dir.String(), "error", err)
		return false
	}
	destBefore, err := e.dest(dir).Load()
	if err != nil {
		e.logger.Warn("sync destination load failed", "direction", dir.String(), "error", err)
		return false
	}
	fp := Fingerprint(list)
	if fp == Fingerprint(destBefore) {
		// Destination already converged; record the fingerprint so the next
		// identical notification short-circuits.
		e.mu.Lock()
		e.fingerprint = fp
		e.firstDone = true
		e.mu.Unlock()
		return true
	}
	if err := e.dest(dir).Save(list); err != nil {
		e.logger.Warn("sync propagation failed", "direction", dir.String(), "error", err)
		return false
	}
	e.mu.Lock()
	e.fingerprint = fp
	e.firstDone = true
	e.lastEmpty[dir.opposite()] = list.IsEmpty()
	hooks := append([]func(bool){}, e.emptyHooks...)
	e.mu.Unlock()

	if destBefore.IsEmpty() != list.IsEmpty() {
		for _, fn := range hooks {
			fn(!list.IsEmpty())
		}
	}
	e.logger.Debug("sync propagated",
		"direction", dir.String(),
		"tasks", len(list.Tasks),
		"title", list.Title,
	)
	return true
}
