// Package walletlog provides structured, leveled logging for the wallet
// engine, the lock manager and the API server, distinguishing them from the
// indexer's plain log.Printf trail. Grounded on Klingon-tech-klingdex's pkg/logging, trimmed to the
// component-logger slice this codebase actually needs.
package walletlog

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// Logger wraps charmbracelet/log with a fixed component prefix.
type Logger struct {
	*log.Logger
}

var defaultLevel = parseLevel(os.Getenv("LOG_LEVEL"))

// New returns a logger prefixed with component, reading its level from
// LOG_LEVEL (debug/info/warn/error), defaulting to info.
func New(component string) *Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Prefix:          component,
	})
	l.SetLevel(defaultLevel)
	return &Logger{Logger: l}
}

func parseLevel(raw string) log.Level {
	switch raw {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
