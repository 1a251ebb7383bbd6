// Package logbuf keeps the most recent log lines in memory so the operator
// UI can tail the service log over HTTP without touching the log file.
package logbuf

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Handler is a slog.Handler that retains the latest records in a fixed-size
// ring, newest first, and forwards every record to the next handler.
type Handler struct {
	next slog.Handler

	mu      sync.Mutex
	entries []string
	max     int
}

func NewHandler(next slog.Handler, max int) *Handler {
	if max <= 0 {
		max = 50
	}
	return &Handler{next: next, max: max}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	line := record.Time.Format("2006-01-02 15:04:05") + " " + record.Level.String() + " " + record.Message
	record.Attrs(func(a slog.Attr) bool {
		line += fmt.Sprintf(" %s=%v", a.Key, a.Value)
		return true
	})

	h.mu.Lock()
	h.entries = append([]string{line}, h.entries...)
	if len(h.entries) > h.max {
		h.entries = h.entries[:h.max]
	}
	h.mu.Unlock()

	return h.next.Handle(ctx, record)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	// The tail buffer is shared across derived handlers on purpose: the
	// operator wants one chronological view of the whole service.
	return &sharedHandler{parent: h, next: h.next.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &sharedHandler{parent: h, next: h.next.WithGroup(name)}
}

// Tail returns the retained lines, newest first.
func (h *Handler) Tail() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.entries))
	copy(out, h.entries)
	return out
}

type sharedHandler struct {
	parent *Handler
	next   slog.Handler
}

func (s *sharedHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return s.next.Enabled(ctx, level)
}

func (s *sharedHandler) Handle(ctx context.Context, record slog.Record) error {
	line := record.Time.Format("2006-01-02 15:04:05") + " " + record.Level.String() + " " + record.Message
	record.Attrs(func(a slog.Attr) bool {
		line += fmt.Sprintf(" %s=%v", a.Key, a.Value)
		return true
	})

	s.parent.mu.Lock()
	s.parent.entries = append([]string{line}, s.parent.entries...)
	if len(s.parent.entries) > s.parent.max {
		s.parent.entries = s.parent.entries[:s.parent.max]
	}
	s.parent.mu.Unlock()

	return s.next.Handle(ctx, record)
}

func (s *sharedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &sharedHandler{parent: s.parent, next: s.next.WithAttrs(attrs)}
}

func (s *sharedHandler) WithGroup(name string) slog.Handler {
	return &sharedHandler{parent: s.parent, next: s.next.WithGroup(name)}
}
