// Package logging provides leveled logging and event tracing for plantsim.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - An EventLog for structured JSONL engine events (~/.plantsim/events.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

	"github.com/nvandessel/plantsim/internal/simulation"
)

// LevelTrace is a custom slog level below Debug. At this level every tick is traced.
const LevelTrace = slog.LevelDebug - 4

// EventsFile is the JSONL file written by EventLog.
const EventsFile = "events.jsonl"

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	// Label the custom trace level
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

// NewLogger creates a leveled slog.Logger writing to w.
// format is "text" (default), "json", or "pretty" (colorized console output).
func NewLogger(level, format string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)

	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl, ReplaceAttr: replaceLevel}))
	case "pretty":
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:       lvl,
			TimeFormat:  "15:04:05",
			ReplaceAttr: replaceLevel,
			NoColor:     !isTerminal(w),
		}))
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl, ReplaceAttr: replaceLevel}))
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// EventLog writes engine events to a JSONL file. It implements simulation.Observer.
// It is safe for concurrent use. A nil EventLog is safe to use; all methods are
// no-ops on nil receiver.
type EventLog struct {
	mu    sync.Mutex
	file  *os.File
	ticks bool
}

// NewEventLog creates an event log writing to dir/events.jsonl.
// At "info" level (the default), returns nil and no file is created.
// At "debug" level advisory events are written; "trace" adds every tick.
// Returns nil if the file cannot be opened. All methods are nil-safe.
func NewEventLog(dir string, level string) *EventLog {
	lvl := ParseLevel(level)
	if lvl == slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	path := filepath.Join(dir, EventsFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &EventLog{file: f, ticks: lvl <= LevelTrace}
}

type eventEntry struct {
	simulation.Event
	Tick   uint64             `json:"tick,omitempty"`
	Values map[string]float64 `json:"values,omitempty"`
}

// Observe writes ev as a single JSONL line. Tick events are only written at trace
// level. Safe to call on nil receiver.
func (el *EventLog) Observe(ev simulation.Event) {
	if el == nil {
		return
	}
	if ev.Kind == simulation.EventTick && !el.ticks {
		return
	}

	entry := eventEntry{Event: ev}
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}
	entry.Time = entry.Time.UTC()
	if ev.Snapshot != nil {
		entry.Tick = ev.Snapshot.Tick
		entry.Values = ev.Snapshot.Values()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	el.mu.Lock()
	defer el.mu.Unlock()
	if el.file == nil {
		return
	}
	_, _ = el.file.Write(data)
}

// Close closes the underlying file. Safe to call on nil receiver.
func (el *EventLog) Close() {
	if el == nil {
		return
	}

	el.mu.Lock()
	defer el.mu.Unlock()

	if el.file == nil {
		return
	}
	el.file.Close()
	el.file = nil
}
