// Package log provides a small leveled logger used by every package in this
// module. It follows the same shape as btcsuite's btclog: packages hold a
// package-level Logger that defaults to Disabled until the caller installs
// a real one with UseLogger, so library code never forces log output on an
// embedding application.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents a severity level for log messages.
type Level uint32

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
	LevelOff
)

var levelStrs = [...]string{"TRC", "DBG", "INF", "WRN", "ERR", "CRT", "OFF"}

// String returns the string representation of the log level.
func (l Level) String() string {
	if l >= Level(len(levelStrs)) {
		return "OFF"
	}
	return levelStrs[l]
}

// LevelFromString returns a level based on the input string s. If the input
// can't be interpreted as a valid log level, the info level and false is
// returned.
func LevelFromString(s string) (l Level, ok bool) {
	switch strings.ToLower(s) {
	case "trace", "trc":
		return LevelTrace, true
	case "debug", "dbg":
		return LevelDebug, true
	case "info", "inf":
		return LevelInfo, true
	case "warn", "wrn":
		return LevelWarn, true
	case "error", "err":
		return LevelError, true
	case "critical", "crt":
		return LevelCritical, true
	case "off":
		return LevelOff, true
	default:
		return LevelInfo, false
	}
}

// Logger is the interface every package in this module logs through.
type Logger interface {
	Tracef(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Criticalf(format string, args ...interface{})

	Level() Level
	SetLevel(level Level)
}

// Disabled is a Logger that discards everything. It's the zero-cost default
// every package-level `log` variable starts out as.
var Disabled Logger = &slogger{level: levelOffPtr(), handler: nil}

func levelOffPtr() *Level {
	l := LevelOff
	return &l
}

// slogger implements Logger on top of log/slog, matching the subsystem tag
// + timestamp formatting used across this module's CLI output.
type slogger struct {
	mu      sync.Mutex
	level   *Level
	handler slog.Handler
	tag     string
}

// NewBackend creates a Logger that writes to w with the given subsystem tag.
func NewBackend(w io.Writer, tag string) Logger {
	if w == nil {
		return Disabled
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	lvl := LevelInfo
	return &slogger{level: &lvl, handler: h, tag: tag}
}

// NewDefaultBackend creates a Logger writing to stderr, used when a caller
// hasn't wired anything more specific (e.g. command-line tools).
func NewDefaultBackend(tag string) Logger {
	return NewBackend(os.Stderr, tag)
}

func (s *slogger) log(lvl Level, format string, args ...interface{}) {
	s.mu.Lock()
	cur := *s.level
	h := s.handler
	s.mu.Unlock()
	if h == nil || lvl < cur {
		return
	}
	msg := fmt.Sprintf(format, args...)
	rec := slog.NewRecord(time.Now(), slog.Level(int(lvl)-int(LevelInfo))*4, msg, 0)
	if s.tag != "" {
		rec.AddAttrs(slog.String("subsystem", s.tag))
	}
	_ = h.Handle(nil, rec)
}

func (s *slogger) Tracef(format string, args ...interface{})    { s.log(LevelTrace, format, args...) }
func (s *slogger) Debugf(format string, args ...interface{})    { s.log(LevelDebug, format, args...) }
func (s *slogger) Infof(format string, args ...interface{})     { s.log(LevelInfo, format, args...) }
func (s *slogger) Warnf(format string, args ...interface{})     { s.log(LevelWarn, format, args...) }
func (s *slogger) Errorf(format string, args ...interface{})    { s.log(LevelError, format, args...) }
func (s *slogger) Criticalf(format string, args ...interface{}) { s.log(LevelCritical, format, args...) }

func (s *slogger) Level() Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.level
}

func (s *slogger) SetLevel(level Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.level = level
}
