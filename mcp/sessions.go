package mcp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"pkt.systems/pslog"
)

// sessionInfo is the registry's view of one connected client.
type sessionInfo struct {
	session    *mcpsdk.ServerSession
	createdAt  time.Time
	lastActive time.Time
	subscribed map[string]struct{}
}

// sessionRegistry owns the ProtocolSession bookkeeping: one entry per
// connected client, reaped when the session's transport closes. All access
// goes through a single mutex.
//
// No idle TTL is enforced; abandoned sessions are released only on transport
// close. See DESIGN.md for the open question record.
type sessionRegistry struct {
	logger  pslog.Logger
	metrics *Metrics

	mu       sync.Mutex
	sessions map[string]*sessionInfo
}

func newSessionRegistry(logger pslog.Logger, metrics *Metrics) *sessionRegistry {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &sessionRegistry{
		logger:   logger,
		metrics:  metrics,
		sessions: make(map[string]*sessionInfo),
	}
}

func sessionKey(session *mcpsdk.ServerSession) string {
	id := strings.TrimSpace(session.ID())
	if id == "" {
		// In-memory transports carry no session id header.
		id = fmt.Sprintf("session-%p", session)
	}
	return id
}

// add registers the session and starts its reaper goroutine. Idempotent for
// an already-tracked session.
func (r *sessionRegistry) add(session *mcpsdk.ServerSession) {
	if session == nil {
		return
	}
	key := sessionKey(session)
	now := time.Now()
	r.mu.Lock()
	if _, exists := r.sessions[key]; exists {
		r.sessions[key].lastActive = now
		r.mu.Unlock()
		return
	}
	r.sessions[key] = &sessionInfo{
		session:    session,
		createdAt:  now,
		lastActive: now,
		subscribed: make(map[string]struct{}),
	}
	count := len(r.sessions)
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.sessionGauge.Set(float64(count))
	}
	r.logger.Info("session established", "session_id", key, "sessions", count)
	go r.reap(session, key)
}

// reap waits for the session's transport to close, then releases its
// registry entry and subscription set.
func (r *sessionRegistry) reap(session *mcpsdk.ServerSession, key string) {
	_ = session.Wait()
	r.mu.Lock()
	info := r.sessions[key]
	delete(r.sessions, key)
	count := len(r.sessions)
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.sessionGauge.Set(float64(count))
	}
	if info != nil {
		r.logger.Info("session closed",
			"session_id", key,
			"sessions", count,
			"lifetime", time.Since(info.createdAt).Truncate(time.Millisecond),
		)
	}
}

// touch refreshes the session's last-activity time.
func (r *sessionRegistry) touch(session *mcpsdk.ServerSession) {
	if session == nil {
		return
	}
	key := sessionKey(session)
	r.mu.Lock()
	if info := r.sessions[key]; info != nil {
		info.lastActive = time.Now()
	}
	r.mu.Unlock()
}

// setSubscribed records or clears a session's subscription to uri.
func (r *sessionRegistry) setSubscribed(session *mcpsdk.ServerSession, uri string, on bool) {
	if session == nil {
		return
	}
	key := sessionKey(session)
	r.mu.Lock()
	if info := r.sessions[key]; info != nil {
		if on {
			info.subscribed[uri] = struct{}{}
		} else {
			delete(info.subscribed, uri)
		}
	}
	r.mu.Unlock()
}

// Count reports the number of active sessions.
func (r *sessionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// handleInitialized admits a newly initialized session and recomputes the
// capability surface so per-state tool exposure is correct from the first
// tools/list the client issues.
func (s *Server) handleInitialized(_ context.Context, req *mcpsdk.InitializedRequest) {
	if req == nil || req.Session == nil {
		return
	}
	s.sessions.add(req.Session)
	s.recomputeCapabilities()
}
