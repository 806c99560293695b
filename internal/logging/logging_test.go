package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog/log"
)

func TestErrorMirrorFiltersLevels(t *testing.T) {
	var buf bytes.Buffer
	m := &errorMirror{w: &buf}

	lines := []struct {
		event  string
		mirror bool
	}{
		{`{"level":"info","message":"ok"}` + "\n", false},
		{`{"level":"warn","message":"careful"}` + "\n", false},
		{`{"level":"error","message":"boom"}` + "\n", true},
		{`{"level":"fatal","message":"dead"}` + "\n", true},
	}

	for _, line := range lines {
		if _, err := m.Write([]byte(line.event)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	out := buf.String()
	if strings.Contains(out, `"ok"`) || strings.Contains(out, `"careful"`) {
		t.Errorf("non-error events leaked into error.log: %s", out)
	}
	if !strings.Contains(out, `"boom"`) || !strings.Contains(out, `"dead"`) {
		t.Errorf("error events missing from error.log: %s", out)
	}
}

func TestNewCreatesComponentFiles(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir, "info")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	for _, name := range []string{"main.log", "api.log", "sync.log", "telegram.log", "error.log"} {
		if _, err := os.Stat(filepath.Join(dir, "logs", name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestComponentWritesToItsFile(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir, "debug")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	logger := m.Component("sync")
	logger.Info().Str("symbol", "BTCUSDT").Msg("synced")
	logger.Error().Msg("cycle failed")

	data, err := os.ReadFile(filepath.Join(dir, "logs", "sync.log"))
	if err != nil {
		t.Fatalf("reading sync.log: %v", err)
	}
	if !strings.Contains(string(data), "synced") {
		t.Error("component event missing from sync.log")
	}

	errData, err := os.ReadFile(filepath.Join(dir, "logs", "error.log"))
	if err != nil {
		t.Fatalf("reading error.log: %v", err)
	}
	if !strings.Contains(string(errData), "cycle failed") {
		t.Error("error event not mirrored into error.log")
	}
	if strings.Contains(string(errData), "synced") {
		t.Error("info event leaked into error.log")
	}
}

func TestGlobalLoggerRoutesByComponent(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir, "info")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	// Packages derive their loggers from the global one.
	syncLogger := log.With().Str("component", "sync").Logger()
	syncLogger.Info().Str("symbol", "BTCUSDT").Msg("cycle done")

	data, err := os.ReadFile(filepath.Join(dir, "logs", "sync.log"))
	if err != nil {
		t.Fatalf("reading sync.log: %v", err)
	}
	if !strings.Contains(string(data), "cycle done") {
		t.Error("event logged via the global logger must reach sync.log")
	}
	if n := strings.Count(string(data), `"component"`); n != 1 {
		t.Errorf("component key appears %d times, want 1: %s", n, data)
	}

	mainData, err := os.ReadFile(filepath.Join(dir, "logs", "main.log"))
	if err != nil {
		t.Fatalf("reading main.log: %v", err)
	}
	if strings.Contains(string(mainData), "cycle done") {
		t.Error("sync event leaked into main.log")
	}
}

func TestComponentFallsBackToMain(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir, "info")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	logger := m.Component("nonexistent")
	logger.Info().Msg("routed to main")

	data, err := os.ReadFile(filepath.Join(dir, "logs", "main.log"))
	if err != nil {
		t.Fatalf("reading main.log: %v", err)
	}
	if !strings.Contains(string(data), "routed to main") {
		t.Error("unknown component must fall back to main.log")
	}
}
