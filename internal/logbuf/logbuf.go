// Package logbuf captures recent slog records in memory so the API can
// serve them without a log aggregation dependency.
package logbuf

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Entry is a single captured log record.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Buffer is a thread-safe ring buffer of log entries.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	filled  bool
}

// New creates a buffer holding up to size entries.
func New(size int) *Buffer {
	return &Buffer{entries: make([]Entry, size)}
}

// Write appends an entry, evicting the oldest once the buffer is full.
func (b *Buffer) Write(e Entry) {
	b.mu.Lock()
	b.entries[b.next] = e
	b.next++
	if b.next == len(b.entries) {
		b.next = 0
		b.filled = true
	}
	b.mu.Unlock()
}

// Query returns entries at or above minLevel recorded after since, oldest
// first. A zero since matches everything; limit <= 0 means no limit, and a
// positive limit keeps the newest matches.
func (b *Buffer) Query(since time.Time, minLevel slog.Level, limit int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	start, n := 0, b.next
	if b.filled {
		start, n = b.next, len(b.entries)
	}

	var out []Entry
	for i := 0; i < n; i++ {
		e := b.entries[(start+i)%len(b.entries)]
		if !since.IsZero() && e.Time.Before(since) {
			continue
		}
		if LevelFromString(e.Level) < minLevel {
			continue
		}
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// LevelFromString maps a level name to its slog.Level, defaulting to info.
func LevelFromString(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Handler is an slog.Handler that tees records into a Buffer before
// delegating to an inner handler. The buffer captures every level; the
// inner handler keeps its own filter.
type Handler struct {
	inner  slog.Handler
	buf    *Buffer
	bound  []slog.Attr
	groups []string
}

// NewHandler wraps inner so records are also captured into buf.
func NewHandler(inner slog.Handler, buf *Buffer) *Handler {
	return &Handler{inner: inner, buf: buf}
}

func (h *Handler) Enabled(context.Context, slog.Level) bool { return true }

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]any)
	add := func(a slog.Attr) {
		key := a.Key
		for _, g := range h.groups {
			key = g + "." + key
		}
		v := a.Value.Resolve().Any()
		// Errors stringify so they don't serialize to {}.
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		attrs[key] = v
	}
	for _, a := range h.bound {
		add(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		add(a)
		return true
	})
	if len(attrs) == 0 {
		attrs = nil
	}

	h.buf.Write(Entry{
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
		Attrs:   attrs,
	})

	if h.inner.Enabled(ctx, r.Level) {
		return h.inner.Handle(ctx, r)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{
		inner:  h.inner.WithAttrs(attrs),
		buf:    h.buf,
		bound:  append(h.bound[:len(h.bound):len(h.bound)], attrs...),
		groups: h.groups,
	}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{
		inner:  h.inner.WithGroup(name),
		buf:    h.buf,
		bound:  h.bound,
		groups: append(h.groups[:len(h.groups):len(h.groups)], name),
	}
}
