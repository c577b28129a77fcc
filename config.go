package todos

import (
	"fmt"
	"strings"
	"time"

	"github.com/digitarald/vscode-agent-todos-sub000/internal/storage"
	"github.com/digitarald/vscode-agent-todos-sub000/internal/syncer"
)

// Defaults applied by ApplyDefaults.
const (
	// DefaultListen is the TCP endpoint the MCP server binds to.
	DefaultListen = "127.0.0.1:7920"
	// DefaultMCPPath is the HTTP path for the streamable MCP endpoint.
	DefaultMCPPath = "/mcp"
	// DefaultSyncDebounce coalesces bursts of list changes before the sync
	// engine propagates between stores.
	DefaultSyncDebounce = syncer.DefaultDebounce
	// DefaultWatchDebounce coalesces filesystem events on the todo file.
	DefaultWatchDebounce = storage.DefaultWatchDebounce
)

// Config is the full service configuration. The zero value plus
// ApplyDefaults yields a standalone in-memory deployment.
type Config struct {
	// Listen is the TCP address of the HTTP endpoint group.
	Listen string
	// MCPPath is the path the streamable MCP handler is mounted under.
	MCPPath string
	// TodoFile, when set, backs the local store with a markdown document at
	// this path; empty selects the in-memory local store.
	TodoFile string
	// Standalone marks the deployment mode without a surrounding editor.
	// Fixed for the process lifetime.
	Standalone bool
	// AutoInject mirrors the editor's auto-export setting: when on, the
	// read tool is suppressed because the list reaches agents elsewhere.
	AutoInject bool
	// EnableSubtasks gates the subtasks field on the write tool schema.
	EnableSubtasks bool
	// SyncDebounce overrides the sync engine's coalescing window.
	SyncDebounce time.Duration
	// WatchDebounce overrides the todo file watcher's coalescing window.
	WatchDebounce time.Duration
}

// ApplyDefaults fills unset fields in place.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Listen) == "" {
		c.Listen = DefaultListen
	}
	if strings.TrimSpace(c.MCPPath) == "" {
		c.MCPPath = DefaultMCPPath
	}
	if c.SyncDebounce <= 0 {
		c.SyncDebounce = DefaultSyncDebounce
	}
	if c.WatchDebounce <= 0 {
		c.WatchDebounce = DefaultWatchDebounce
	}
}

// Validate reports configuration errors after defaults were applied.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return fmt.Errorf("listen address required")
	}
	if !strings.HasPrefix(c.MCPPath, "/") {
		return fmt.Errorf("mcp path must start with /: %q", c.MCPPath)
	}
	return nil
}
