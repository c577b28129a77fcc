// Package todos assembles the shared todo list service: a local store and an
// agent-facing store kept consistent by a debounced, echo-safe sync engine,
// fronted by an MCP session server that exposes the list to remote agent
// clients as tools and subscribable resources.
//
// The composition root is Server in this package; cmd/todos-mcp wires it to
// flags, environment and config file. The interesting subsystems live in
// internal/syncer (bidirectional sync), internal/storage (pluggable task
// stores), internal/archive (saved snapshots) and mcp (the protocol facade).
package todos
