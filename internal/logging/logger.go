// Package logging configures the arbor logger shared by every component.
package logging

import (
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

const timeFormat = "15:04:05"

// New returns a console logger at the given level (debug, info, warn, error).
func New(level string) arbor.ILogger {
	logger := arbor.NewLogger().WithConsoleWriter(models.WriterConfiguration{
		Type:             models.LogWriterTypeConsole,
		TimeFormat:       timeFormat,
		TextOutput:       true,
		DisableTimestamp: false,
	})
	if level = strings.TrimSpace(level); level == "" {
		level = "info"
	}
	return logger.WithLevelFromString(level)
}

// Nop returns a logger with no writers attached.
func Nop() arbor.ILogger {
	return arbor.NewLogger()
}

// OrNop returns l, or a writer-less logger when l is nil.
func OrNop(l arbor.ILogger) arbor.ILogger {
	if l == nil {
		return Nop()
	}
	return l
}
