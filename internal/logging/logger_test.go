package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDebugLogger_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "debug.log")

	l, err := NewDebugLogger(path)
	if err != nil {
		t.Fatalf("NewDebugLogger failed: %v", err)
	}
	SetDefault(l)
	defer SetDefault(nil)

	Debugf("[test] batch %d dispatched", 3)
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), "[test] batch 3 dispatched") {
		t.Errorf("log file missing message, got:\n%s", data)
	}
}

func TestDebugLogger_NopIsSafe(t *testing.T) {
	var nilLogger *DebugLogger
	nilLogger.Log("ignored")
	if err := nilLogger.Close(); err != nil {
		t.Errorf("Close on nil logger = %v", err)
	}

	l, err := NewDebugLogger("")
	if err != nil {
		t.Fatalf("NewDebugLogger(\"\") failed: %v", err)
	}
	l.Log("ignored")
	(&DebugLogger{}).Log("ignored")
}

func TestEnabled(t *testing.T) {
	SetDefault(nil)
	if Enabled() {
		t.Fatal("Enabled() = true with no logger")
	}

	l, err := NewDebugLogger(filepath.Join(t.TempDir(), "debug.log"))
	if err != nil {
		t.Fatalf("NewDebugLogger failed: %v", err)
	}
	SetDefault(l)
	defer SetDefault(nil)
	if !Enabled() {
		t.Error("Enabled() = false with a file logger")
	}

	l.Close()
	if Enabled() {
		t.Error("Enabled() = true after Close")
	}
	Debugf("dropped after close")
}
