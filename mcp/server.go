// Package mcp exposes the shared todo list to remote agent clients over the
// Model Context Protocol streamable HTTP transport. One MCP session is one
// logical client connection; the tool and resource surface is recomputed
// whenever configuration or task list state changes.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
	"pkt.systems/pslog"

	"github.com/digitarald/vscode-agent-todos-sub000/internal/archive"
	"github.com/digitarald/vscode-agent-todos-sub000/internal/logutil"
	"github.com/digitarald/vscode-agent-todos-sub000/internal/storage"
	"github.com/digitarald/vscode-agent-todos-sub000/internal/syncer"
	"github.com/digitarald/vscode-agent-todos-sub000/internal/todo"
)

// Config controls the MCP facade runtime behavior. Standalone marks the
// deployment mode where the server runs without a surrounding editor; it is
// fixed for the process lifetime, unlike Settings.
type Config struct {
	Listen     string
	MCPPath    string
	Standalone bool
	Settings   Settings
}

// Settings is the live-reconfigurable subset of the configuration. The
// configuration layer pushes updates through Server.ApplySettings.
type Settings struct {
	// AutoInject mirrors the auto-export setting: when on, the editor
	// injects the list into agent context itself and the read tool is
	// suppressed.
	AutoInject bool
	// EnableSubtasks gates the subtasks field on the write tool's schema.
	EnableSubtasks bool
}

// NewServerRequest wraps constructor inputs. Agent is the remote-facing
// store the tool handlers mutate; Engine is notified of externally
// originated writes so they survive the echo guard.
type NewServerRequest struct {
	Config  Config
	Logger  pslog.Logger
	Agent   storage.Store
	Archive *archive.Registry
	Engine  *syncer.Engine
	Metrics *Metrics
}

// Server is the session protocol facade.
type Server struct {
	cfg          Config
	logger       pslog.Logger
	lifecycleLog pslog.Logger
	toolLog      pslog.Logger
	resourceLog  pslog.Logger

	agent   storage.Store
	archive *archive.Registry
	engine  *syncer.Engine
	metrics *Metrics

	mcpServer   *mcpsdk.Server
	sessions    *sessionRegistry
	caps        *capabilityState
	recomputeMu sync.Mutex
	httpServer  *http.Server
	mcpath      string
	instanceID  string
	startedAt   time.Time

	unsubscribe storage.Unsubscribe
}

// NewServer constructs the facade. The agent store and archive registry are
// required; the engine may be nil in read-only assemblies (tests).
func NewServer(req NewServerRequest) (*Server, error) {
	cfg := req.Config
	applyDefaults(&cfg)
	if req.Agent == nil {
		return nil, fmt.Errorf("mcp: agent store required")
	}
	if req.Archive == nil {
		return nil, fmt.Errorf("mcp: archive registry required")
	}
	logger := req.Logger
	if logger == nil {
		logger = pslog.NewStructured(os.Stderr).With("app", "agent-todos")
	}
	metrics := req.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	s := &Server{
		cfg:          cfg,
		logger:       logger,
		lifecycleLog: logutil.WithSubsystem(logger, "mcp.lifecycle"),
		toolLog:      logutil.WithSubsystem(logger, "mcp.tools"),
		resourceLog:  logutil.WithSubsystem(logger, "mcp.resources"),
		agent:        req.Agent,
		archive:      req.Archive,
		engine:       req.Engine,
		metrics:      metrics,
		sessions:     newSessionRegistry(logutil.WithSubsystem(logger, "mcp.sessions"), metrics),
		mcpath:       cleanHTTPPath(cfg.MCPPath),
		instanceID:   xid.New().String(),
		startedAt:    time.Now(),
	}
	s.caps = newCapabilityState(cfg.Standalone, cfg.Settings)

	s.mcpServer = mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "agent-todos",
		Version: "1.0.0",
	}, &mcpsdk.ServerOptions{
		Instructions:       serverInstructions(cfg),
		InitializedHandler: s.handleInitialized,
		SubscribeHandler:   s.handleSubscribe,
		UnsubscribeHandler: s.handleUnsubscribe,
		CompletionHandler:  s.handleComplete,
	})
	s.registerResources()
	s.recomputeCapabilities()

	if list, err := s.agent.Load(); err == nil {
		s.caps.rememberList(list)
	}
	s.unsubscribe = s.agent.Subscribe(s.onListChanged)

	s.httpServer = &http.Server{
		Addr:    cfg.Listen,
		Handler: s.buildMux(),
	}
	return s, nil
}

// Handler returns the full HTTP handler (MCP endpoint, health, metrics) for
// embedding in test servers.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// MCPServer exposes the underlying SDK server for in-process transports.
func (s *Server) MCPServer() *mcpsdk.Server {
	return s.mcpServer
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	mode := "embedded"
	if s.cfg.Standalone {
		mode = "standalone"
	}
	s.lifecycleLog.Info("starting agent-todos MCP server",
		"listen", s.cfg.Listen,
		"mcp_path", s.mcpath,
		"mode", mode,
		"instance", s.instanceID,
	)
	defer func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// ApplySettings installs new live settings and recomputes the capability
// surface. Connected sessions observe the change through list_changed
// notifications without reconnecting.
func (s *Server) ApplySettings(settings Settings) {
	if !s.caps.applySettings(settings) {
		return
	}
	s.lifecycleLog.Info("settings changed",
		"auto_inject", settings.AutoInject,
		"enable_subtasks", settings.EnableSubtasks,
	)
	s.recomputeCapabilities()
}

// onListChanged reacts to agent store changes: archives the replaced list on
// title transitions, recomputes capabilities, and pushes a resource update
// for the current-list resource.
func (s *Server) onListChanged(list todo.TaskList) {
	if prev, archivable := s.caps.titleTransition(list); archivable {
		if snap, created := s.archive.Archive(prev); created {
			s.addSnapshotResource(snap)
		}
	}
	s.recomputeCapabilities()
	s.notifyCurrentChanged()
}

func (s *Server) buildMux() *http.ServeMux {
	streamable := mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return s.mcpServer
	}, nil)
	mux := http.NewServeMux()
	mux.Handle(s.mcpath, streamable)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	return mux
}

type healthResponse struct {
	Status   string `json:"status"`
	Instance string `json:"instance"`
	Mode     string `json:"mode"`
	Sessions int    `json:"sessions"`
	Uptime   string `json:"uptime"`
}

// handleHealth is a thin liveness and introspection surface, not part of the
// protocol proper.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	mode := "embedded"
	if s.cfg.Standalone {
		mode = "standalone"
	}
	resp := healthResponse{
		Status:   "ok",
		Instance: s.instanceID,
		Mode:     mode,
		Sessions: s.sessions.Count(),
		Uptime:   humanize.Time(s.startedAt),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = "127.0.0.1:7920"
	}
	if strings.TrimSpace(cfg.MCPPath) == "" {
		cfg.MCPPath = "/mcp"
	}
}

func cleanHTTPPath(raw string) string {
	p := strings.TrimSpace(raw)
	if p == "" {
		return "/mcp"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func serverInstructions(cfg Config) string {
	return strings.TrimSpace(fmt.Sprintf(`
agent-todos operating manual:
- %s replaces the entire todo list in one call; always send the complete list.
- Keep exactly one task in_progress while working; mark it completed before starting the next.
- Task order is preserved verbatim and encodes your sequencing intent.
- Subscribe to %s to be notified whenever the list changes.
- Saved lists are addressable as %s resources; discover slugs via resources/list.
`, toolWrite, currentResourceURI, savedResourcePrefix))
}
