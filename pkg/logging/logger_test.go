package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"testing"
)

// setupTestDir points the package at a temporary directory and resets global state.
func setupTestDir(t *testing.T) func() {
	t.Helper()

	tempDir := t.TempDir()

	origLogDir, origInitErr := logDir, initErr
	origSessionID := sessionID
	origLevel := Level(minLevel.Load())

	logDir = tempDir
	initErr = nil
	initOnce = sync.Once{}
	sessionID = ""
	sessionIDOnce = sync.Once{}
	SetLevel(LevelDebug)

	return func() {
		logDir = origLogDir
		initErr = origInitErr
		initOnce = sync.Once{}
		sessionID = origSessionID
		sessionIDOnce = sync.Once{}
		SetLevel(origLevel)
	}
}

func TestNewLogger(t *testing.T) {
	defer setupTestDir(t)()

	logger, err := NewLogger("test-component")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if logger.component != "test-component" {
		t.Errorf("Expected component 'test-component', got %q", logger.component)
	}
	if _, err := os.Stat(logger.LogPath()); os.IsNotExist(err) {
		t.Errorf("Log file does not exist at %s", logger.LogPath())
	}
	if !strings.HasSuffix(logger.LogPath(), "-postpilot.log") {
		t.Errorf("unexpected log file name %s", logger.LogPath())
	}
}

func TestLoggerFormattingAndLevels(t *testing.T) {
	defer setupTestDir(t)()

	logger, err := NewLogger("resolver")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	logger.Debugf("debug %d", 1)
	logger.Infof("info")
	SetLevel(LevelWarn)
	logger.Infof("suppressed")
	logger.Warnf("warning")
	logger.Errorf("error")

	content, err := os.ReadFile(logger.LogPath())
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	logContent := string(content)

	for _, pattern := range []string{
		"[resolver] [DEBUG] debug 1",
		"[resolver] [INFO] info",
		"[resolver] [WARN] warning",
		"[resolver] [ERROR] error",
	} {
		if !strings.Contains(logContent, pattern) {
			t.Errorf("Log content missing %q\nContent:\n%s", pattern, logContent)
		}
	}
	if strings.Contains(logContent, "suppressed") {
		t.Error("message below the configured level was written")
	}
}

func TestComponentsShareSessionFile(t *testing.T) {
	defer setupTestDir(t)()

	a, err := NewLogger("a")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := NewLogger("b")
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if a.LogPath() != b.LogPath() {
		t.Errorf("Expected same log path, got %q and %q", a.LogPath(), b.LogPath())
	}
	if GetSessionID() != GetSessionID() {
		t.Error("session ID is not stable")
	}
}

func TestParseVerbosity(t *testing.T) {
	tests := map[string]Level{
		"quiet":   LevelWarn,
		"normal":  LevelInfo,
		"":        LevelInfo,
		"verbose": LevelDebug,
		"debug":   LevelDebug,
	}
	for in, want := range tests {
		got, err := ParseVerbosity(in)
		if err != nil {
			t.Errorf("ParseVerbosity(%q) error: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseVerbosity(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseVerbosity("loud"); err == nil {
		t.Error("expected error for unknown verbosity")
	}
}

func TestNilLogger(t *testing.T) {
	var l *Logger
	l.Errorf("nil receivers are ignored")
	if _, err := l.Writer().Write([]byte("dropped")); err != nil {
		t.Errorf("nil logger writer failed: %v", err)
	}
}

func TestWriterTargetsLogFile(t *testing.T) {
	defer setupTestDir(t)()

	logger, err := NewLogger("driver")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if _, err := logger.Writer().Write([]byte("Downloading Chromium\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	content, err := os.ReadFile(logger.LogPath())
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(content), "Downloading Chromium") {
		t.Errorf("driver output missing from log file:\n%s", content)
	}

	fallback := newFallbackLogger("driver", os.ErrPermission)
	if fallback.Writer() != io.Discard {
		t.Error("fallback logger should discard raw output")
	}
}
