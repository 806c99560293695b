package logging

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Component log files created under <dataDir>/logs.
var componentFiles = map[string]string{
	"main":      "main.log",
	"api":       "api.log",
	"sync":      "sync.log",
	"telegram":  "telegram.log",
	"trading":   "trading.log",
	"security":  "security.log",
	"reporting": "reporting.log",
}

const errorFile = "error.log"

// Manager owns the log files and routes every event to its component file.
type Manager struct {
	logDir  string
	files   []*os.File
	writers map[string]io.Writer
	base    zerolog.Logger
}

// New opens the component log files and installs a global logger that routes
// each event to the file named by its "component" field, so packages logging
// via log.With().Str("component", ...) land in their own file. Events without
// a component, or with an unknown one, go to main.log. Errors from any
// component are mirrored into error.log.
func New(dataDir, level string) (*Manager, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}

	m := &Manager{
		logDir:  logDir,
		writers: make(map[string]io.Writer, len(componentFiles)),
	}

	for component, name := range componentFiles {
		f, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.files = append(m.files, f)
		m.writers[component] = f
	}

	ef, err := os.OpenFile(filepath.Join(logDir, errorFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		m.Close()
		return nil, err
	}
	m.files = append(m.files, ef)

	out := io.MultiWriter(
		zerolog.ConsoleWriter{Out: os.Stderr},
		&componentRouter{writers: m.writers},
		&errorMirror{w: ef},
	)
	m.base = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	log.Logger = m.base
	zerolog.SetGlobalLevel(lvl)

	return m, nil
}

// Component returns a logger whose events carry the component field and are
// routed to the component's file.
func (m *Manager) Component(name string) zerolog.Logger {
	return m.base.With().Str("component", name).Logger()
}

// Close closes all log files.
func (m *Manager) Close() {
	for _, f := range m.files {
		f.Close()
	}
}

// componentRouter writes each event to the log file named by its component
// field. zerolog writes one event per Write call, so routing happens per line.
type componentRouter struct {
	writers map[string]io.Writer
}

func (r *componentRouter) Write(p []byte) (int, error) {
	w, ok := r.writers[eventComponent(p)]
	if !ok {
		w = r.writers["main"]
	}
	if _, err := w.Write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func eventComponent(p []byte) string {
	marker := []byte(`"component":"`)
	i := bytes.Index(p, marker)
	if i < 0 {
		return "main"
	}
	rest := p[i+len(marker):]
	j := bytes.IndexByte(rest, '"')
	if j < 0 {
		return "main"
	}
	return string(rest[:j])
}

// errorMirror forwards only error-level events into error.log. zerolog
// writes one event per Write call, so level filtering happens per line.
type errorMirror struct {
	w io.Writer
}

func (e *errorMirror) Write(p []byte) (int, error) {
	if e.w == nil {
		return len(p), nil
	}
	if !isErrorEvent(p) {
		return len(p), nil
	}
	if _, err := e.w.Write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func isErrorEvent(p []byte) bool {
	return bytes.Contains(p, []byte(`"level":"error"`)) ||
		bytes.Contains(p, []byte(`"level":"fatal"`)) ||
		bytes.Contains(p, []byte(`"level":"panic"`))
}
