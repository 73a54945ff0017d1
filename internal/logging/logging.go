// Package logging builds the process logger and the line sinks the provisioner narrates into.
package logging

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"driveprov/internal/config"
)

// New returns a zerolog logger writing JSON lines to w, or human-readable
// lines when cfg.Format is "console". Timestamps use loc.
func New(cfg config.LogConfig, w io.Writer, loc *time.Location) zerolog.Logger {
	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	if loc == nil {
		loc = time.UTC
	}
	zerolog.TimestampFunc = func() time.Time { return time.Now().In(loc) }
	zerolog.TimeFieldFormat = time.RFC3339Nano

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Sink forwards narration lines to a zerolog logger at info level.
type Sink struct {
	logger zerolog.Logger
}

// NewSink wraps logger as a line sink.
func NewSink(logger zerolog.Logger) *Sink {
	return &Sink{logger: logger}
}

func (s *Sink) Log(line string) {
	s.logger.Info().Msg(line)
}

// Lines collects narration lines in memory, optionally forwarding each one.
// It is safe for concurrent use.
type Lines struct {
	mu    sync.Mutex
	lines []string
	next  interface{ Log(string) }
}

// NewLines returns an empty collector. next may be nil.
func NewLines(next interface{ Log(string) }) *Lines {
	return &Lines{next: next}
}

func (l *Lines) Log(line string) {
	l.mu.Lock()
	l.lines = append(l.lines, line)
	l.mu.Unlock()
	if l.next != nil {
		l.next.Log(line)
	}
}

// Lines returns a copy of everything logged so far.
func (l *Lines) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}
