// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to systemd journal when available (Linux systems with journald)
//   - Logs to stderr when a terminal, pipe, or file is connected
//   - Logs to both when both are available
//
// Diagnostics go to stderr, never stdout: stdout is reserved for the
// output lines of supervised child processes.
//
// # Usage
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",      // Global log level: debug, info, warn, error
//		Format: "text",      // Output format: text or json
//		Modules: map[string]string{
//			"process": "debug",  // Per-module overrides
//			"command": "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("supervisor")
//	logger.Info("Starting process", "name", name)
//
// Add contextual attributes:
//
//	logger := logging.GetLogger("process").With("process", name)
//	logger.Info("Process started")  // Includes process in all logs
//
// # Viewing Logs
//
// When running as a systemd service or on a system with journald:
//
//	journalctl -t groundcontrol              # All groundcontrol logs
//	journalctl -t groundcontrol -f           # Follow live
//	journalctl -t groundcontrol -p err       # Errors only
//
// Filter by structured fields:
//
//	journalctl -t groundcontrol MODULE=supervisor
//	journalctl -t groundcontrol PROCESS=app
package logging
