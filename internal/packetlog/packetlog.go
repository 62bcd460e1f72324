// Package packetlog writes one NDJSON record per protocol message. A
// Logger plugs into a connection as its hnmp.Tracer.
package packetlog

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/Zereker/hnmp"
)

// Record is one NDJSON line.
type Record struct {
	RunID     string   `json:"run_id"`
	ConnID    string   `json:"conn_id"`
	Timestamp string   `json:"ts"`
	Direction string   `json:"direction"`
	Tag       string   `json:"tag"`
	Fields    int      `json:"fields"`
	Data      []string `json:"data,omitempty"`
}

// Logger appends records to a file. A nil *Logger discards everything.
type Logger struct {
	runID       string
	includeData bool
	now         func() time.Time

	mu sync.Mutex
	c  io.Closer
	w  *bufio.Writer
}

var _ hnmp.Tracer = (*Logger)(nil)

// Option configures a Logger.
type Option func(*Logger)

// WithData records message fields too. Off by default: LOGIN carries a
// password.
func WithData() Option {
	return func(l *Logger) {
		l.includeData = true
	}
}

// New opens path for appending.
func New(path, runID string, opts ...Option) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return newLogger(f, f, runID, opts...), nil
}

// NewWriter writes records to w.
func NewWriter(w io.Writer, runID string, opts ...Option) *Logger {
	return newLogger(w, nil, runID, opts...)
}

func newLogger(w io.Writer, c io.Closer, runID string, opts ...Option) *Logger {
	l := &Logger{
		runID: runID,
		now:   time.Now,
		c:     c,
		w:     bufio.NewWriterSize(w, 64*1024),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Close flushes buffered records and closes the file opened by New.
// Records logged afterwards are dropped.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w != nil {
		_ = l.w.Flush()
		l.w = nil
	}
	if l.c != nil {
		return l.c.Close()
	}
	return nil
}

// Trace implements hnmp.Tracer.
func (l *Logger) Trace(connID string, dir hnmp.Direction, m hnmp.Message) {
	if l == nil {
		return
	}
	rec := Record{
		RunID:     l.runID,
		ConnID:    connID,
		Timestamp: l.now().UTC().Format(time.RFC3339Nano),
		Direction: string(dir),
		Tag:       m.Type.String(),
		Fields:    len(m.Data),
	}
	if l.includeData {
		rec.Data = m.Data
	}
	l.Log(rec)
}

// Log writes rec as one JSON line and flushes it.
func (l *Logger) Log(rec Record) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.w == nil {
		return
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_, _ = l.w.Write(append(line, '\n'))
	_ = l.w.Flush()
}
