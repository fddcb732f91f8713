// Package observability defines the logging capability the core consumes.
//
// The job pool, pipeline, and bundle manager never own a concrete logger:
// they accept a Logger at construction. When none is supplied, the pool and
// the app fall back to the stdlib-backed default below, the pipeline and
// the server Acceptor fall back to Noop, and the bundle manager has no
// fallback. Errors returned from user jobs and
// callbacks are logged and discarded here, never propagated across the
// package boundary.
package observability

import (
	"log"
	"os"
)

// Logger is the abstract capability the core uses to surface non-fatal
// failures: a worker job error, a dropped frame, a failed handshake. It is
// never the caller's job to treat a logged error as actionable.
type Logger interface {
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
	Fatal(format string, v ...interface{})
}

// stdLogger is the default Logger, a thin wrapper over the standard
// library's log package with one prefixed *log.Logger per level.
type stdLogger struct {
	info  *log.Logger
	warn  *log.Logger
	error *log.Logger
	fatal *log.Logger
}

// NewStdLogger returns the default Logger: INFO to stdout, WARN/ERROR/FATAL
// to stderr, each line date/time stamped.
func NewStdLogger() Logger {
	flags := log.Ldate | log.Ltime
	return &stdLogger{
		info:  log.New(os.Stdout, "INFO:  ", flags),
		warn:  log.New(os.Stderr, "WARN:  ", flags),
		error: log.New(os.Stderr, "ERROR: ", flags),
		fatal: log.New(os.Stderr, "FATAL: ", flags),
	}
}

func (l *stdLogger) Info(format string, v ...interface{})  { l.info.Printf(format, v...) }
func (l *stdLogger) Warn(format string, v ...interface{})  { l.warn.Printf(format, v...) }
func (l *stdLogger) Error(format string, v ...interface{}) { l.error.Printf(format, v...) }

// Fatal logs and exits the process with status 1. Called from the cmd/
// entrypoints and from internal/app's startup, never from the core
// packages.
func (l *stdLogger) Fatal(format string, v ...interface{}) {
	l.fatal.Printf(format, v...)
	os.Exit(1)
}

// Noop discards everything; useful in tests that don't want log noise.
type Noop struct{}

func (Noop) Info(string, ...interface{})  {}
func (Noop) Warn(string, ...interface{})  {}
func (Noop) Error(string, ...interface{}) {}
func (Noop) Fatal(string, ...interface{}) {}
