// Package logging holds the structured logger shared by the CLI and the
// download pipeline.
package logging

import (
	"io"

	"github.com/charmbracelet/log"
)

// Logger is the subset of github.com/charmbracelet/log.Logger used by the
// library packages.
type Logger interface {
	Debug(msg any, keyvals ...any)
	Info(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
	Error(msg any, keyvals ...any)
}

// New creates the process logger. Verbose output adds timestamps and debug
// level messages.
func New(w io.Writer, verbose bool) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: verbose,
		Level:           log.InfoLevel,
	})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// Discard returns a logger that drops everything.
func Discard() Logger {
	return discard{}
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l Logger) Logger {
	if l == nil {
		return discard{}
	}
	return l
}

type discard struct{}

func (discard) Debug(any, ...any) {}
func (discard) Info(any, ...any)  {}
func (discard) Warn(any, ...any)  {}
func (discard) Error(any, ...any) {}
