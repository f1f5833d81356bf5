// Package ui provides terminal UI components and styling for qdrant-mcp.
package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// InitLogger initializes the charm logger with default settings. Logs go to
// stderr so stdout stays free for the stdio transport.
func InitLogger() {
	log.SetOutput(os.Stderr)
	log.SetLevel(log.InfoLevel)
	log.SetReportCaller(false)
	log.SetReportTimestamp(false)
}

// SetLevel sets the log level from a configuration value. Unknown values
// fall back to info.
func SetLevel(level string) {
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetReportTimestamp(lvl == log.DebugLevel)
}

// SetDebug enables debug logging.
func SetDebug(enabled bool) {
	if enabled {
		SetLevel("debug")
	} else {
		SetLevel("info")
	}
}
