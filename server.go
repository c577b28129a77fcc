package todos

import (
	"context"
	"fmt"
	"os"

	"pkt.systems/pslog"

	"github.com/digitarald/vscode-agent-todos-sub000/internal/archive"
	"github.com/digitarald/vscode-agent-todos-sub000/internal/logutil"
	"github.com/digitarald/vscode-agent-todos-sub000/internal/storage"
	"github.com/digitarald/vscode-agent-todos-sub000/internal/syncer"
	"github.com/digitarald/vscode-agent-todos-sub000/mcp"
)

// Server owns the full assembly: both stores, the sync engine, the snapshot
// registry and the MCP facade. Instances are independent; tests may run
// several side by side.
type Server struct {
	cfg    Config
	logger pslog.Logger

	local   storage.Store
	agent   *storage.Memory
	archive *archive.Registry
	engine  *syncer.Engine
	facade  *mcp.Server

	closeLocal func() error
}

// New constructs the assembly from cfg. The agent-facing store is always in
// memory; the local store is file-backed when cfg.TodoFile is set.
func New(cfg Config, logger pslog.Logger) (*Server, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = pslog.NewStructured(os.Stderr).With("app", "agent-todos")
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		agent:   storage.NewMemory(),
		archive: archive.NewRegistry(logutil.WithSubsystem(logger, "archive")),
	}

	if cfg.TodoFile != "" {
		file, err := storage.NewFile(cfg.TodoFile,
			logutil.WithSubsystem(logger, "storage.file"),
			storage.WithWatchDebounce(cfg.WatchDebounce),
		)
		if err != nil {
			return nil, fmt.Errorf("open todo file store: %w", err)
		}
		s.local = file
		s.closeLocal = file.Close
	} else {
		s.local = storage.NewMemory()
	}

	metrics := mcp.NewMetrics()
	s.engine = syncer.New(s.local, s.agent,
		logutil.WithSubsystem(logger, "syncer"),
		syncer.WithDebounce(cfg.SyncDebounce),
		syncer.WithObserver(metrics.ObserveSync),
	)

	facade, err := mcp.NewServer(mcp.NewServerRequest{
		Config: mcp.Config{
			Listen:     cfg.Listen,
			MCPPath:    cfg.MCPPath,
			Standalone: cfg.Standalone,
			Settings: mcp.Settings{
				AutoInject:     cfg.AutoInject,
				EnableSubtasks: cfg.EnableSubtasks,
			},
		},
		Logger:  logger,
		Agent:   s.agent,
		Archive: s.archive,
		Engine:  s.engine,
		Metrics: metrics,
	})
	if err != nil {
		return nil, err
	}
	s.facade = facade
	return s, nil
}

// ApplySettings forwards live setting changes to the facade, which
// recomputes the exposed capability surface.
func (s *Server) ApplySettings(settings mcp.Settings) {
	s.facade.ApplySettings(settings)
}

// Engine exposes the sync engine, e.g. for wiring UI reveal hooks.
func (s *Server) Engine() *syncer.Engine {
	return s.engine
}

// Facade exposes the MCP server, e.g. for in-process transports in tests.
func (s *Server) Facade() *mcp.Server {
	return s.facade
}

// Run starts the sync engine and serves the MCP endpoint until ctx is
// canceled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.engine.Start(); err != nil {
		return fmt.Errorf("start sync engine: %w", err)
	}
	defer func() {
		s.engine.Stop()
		if s.closeLocal != nil {
			_ = s.closeLocal()
		}
	}()
	return s.facade.Run(ctx)
}
