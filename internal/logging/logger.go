// Package logging holds the optional debug log written by the engine
// packages. Operational messages still go through the standard log package.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

var current atomic.Pointer[DebugLogger]

// SetDefault installs the logger behind Debugf. nil turns debug output off.
func SetDefault(l *DebugLogger) {
	current.Store(l)
}

// Enabled reports whether Debugf currently writes anywhere.
func Enabled() bool {
	return current.Load().writes()
}

// Debugf logs through the default logger, if any.
func Debugf(format string, args ...any) {
	current.Load().Log(format, args...)
}

// DebugLogger appends timestamped lines to a file. The zero value and a nil
// pointer discard everything.
type DebugLogger struct {
	out  *log.Logger
	file io.Closer
}

// NewDebugLogger opens (or creates) path for appending, creating parent
// directories. An empty path yields a logger that discards.
func NewDebugLogger(path string) (*DebugLogger, error) {
	if path == "" {
		return &DebugLogger{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	l := &DebugLogger{out: log.New(f, "", log.Ltime|log.Lmicroseconds), file: f}
	l.Log("--- morizo %s ---", time.Now().Format(time.RFC3339))
	return l, nil
}

func (l *DebugLogger) writes() bool {
	return l != nil && l.out != nil
}

// Log writes one line. log.Logger serializes concurrent writers.
func (l *DebugLogger) Log(format string, args ...any) {
	if !l.writes() {
		return
	}
	l.out.Printf(format, args...)
}

// Close closes the underlying file. Further Log calls are dropped.
func (l *DebugLogger) Close() error {
	if !l.writes() {
		return nil
	}
	l.out = nil
	return l.file.Close()
}
