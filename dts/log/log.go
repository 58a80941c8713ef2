// Package log provides DTS's structured logger: a logrus.Logger
// wrapped with the run-flag/debug-category gating of spec.md §3/§6
// and a bounded ring buffer so nodeStat/getQLog can surface recent
// log lines without re-reading the log file.
package log

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Category is one of the debug categories §6 lists as environment
// variables (DTS_DBG, XFER_DBG, PTCP_DBG, SEM_DBG, CMD_DBG, TIME_DBG).
type Category string

const (
	CatDTS   Category = "DTS_DBG"
	CatXfer  Category = "XFER_DBG"
	CatPTCP  Category = "PTCP_DBG"
	CatSem   Category = "SEM_DBG"
	CatCmd   Category = "CMD_DBG"
	CatTimer Category = "TIME_DBG"
)

// Enabled reports whether a debug category is active, either via its
// environment variable or a same-named sentinel file under /tmp.
func Enabled(c Category) bool {
	if os.Getenv(string(c)) != "" {
		return true
	}
	_, err := os.Stat("/tmp/" + string(c))
	return err == nil
}

// Logger wraps a logrus.Logger with the DTS run flags and a bounded
// ring of recent lines, one per node.
type Logger struct {
	*logrus.Logger

	mu      sync.Mutex
	ring    []string
	ringCap int
}

// New creates a Logger writing to stderr (logrus' default output),
// sized to keep the last capacity lines in its ring buffer (512 when
// capacity is zero or negative).
func New(capacity int) *Logger {
	base := logrus.New()
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if capacity <= 0 {
		capacity = 512
	}
	l := &Logger{Logger: base, ringCap: capacity}
	base.AddHook(l)
	return l
}

// SetVerbose raises the logger to Info level (spec.md "verbose" flag).
func (l *Logger) SetVerbose(v bool) {
	if v {
		l.SetLevel(logrus.InfoLevel)
	} else {
		l.SetLevel(logrus.WarnLevel)
	}
}

// SetDebug raises the logger to Debug level (spec.md "debug" flag).
func (l *Logger) SetDebug(d bool) {
	if d {
		l.SetLevel(logrus.DebugLevel)
	}
}

// SetTrace raises the logger to Trace level (spec.md "trace" flag).
func (l *Logger) SetTrace(t bool) {
	if t {
		l.SetLevel(logrus.TraceLevel)
	}
}

// Levels implements logrus.Hook.
func (l *Logger) Levels() []logrus.Level { return logrus.AllLevels }

// Fire implements logrus.Hook, appending the formatted line to the
// bounded ring buffer.
func (l *Logger) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ring = append(l.ring, line)
	if len(l.ring) > l.ringCap {
		l.ring = l.ring[len(l.ring)-l.ringCap:]
	}
	return nil
}

// Clear empties the ring buffer (eraseQLog, spec.md §6).
func (l *Logger) Clear() {
	l.mu.Lock()
	l.ring = nil
	l.mu.Unlock()
}

// Recent returns a copy of the most recent log lines, oldest first.
func (l *Logger) Recent() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.ring))
	copy(out, l.ring)
	return out
}

// For returns a logger scoped to a named component (queue, node, xfer),
// matching the {%s}: prefix style the reference's dtsLog() used.
func (l *Logger) For(component, name string) *logrus.Entry {
	return l.WithField(component, name)
}
