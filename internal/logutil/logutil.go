// Package logutil provides small helpers for tagging pslog loggers with a
// subsystem field so log streams from the stores, the sync engine and the
// MCP facade can be told apart.
package logutil

import (
	"strings"

	"pkt.systems/pslog"
)

// SubsystemKey is the canonical key for subsystem tags.
const SubsystemKey = pslog.TrustedString("sys")

// WithSubsystem attaches a subsystem tag to every entry emitted by logger.
// A nil logger yields a tagged noop logger so call sites never nil-check.
func WithSubsystem(logger pslog.Logger, subsystem string) pslog.Logger {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	subsystem = strings.Trim(subsystem, ". ")
	if subsystem == "" {
		return logger
	}
	return logger.With(SubsystemKey, subsystem)
}
