// Package logging configures the process-wide slog logger and carries
// per-task correlation ids through context so every line emitted while
// handling one webhook or build shares a log_context value.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"git.home.luguber.info/inful/dawbrn/internal/logfields"
)

// Options controls logger construction. Verbosity and Quietness are
// repeat counts from the CLI; each step moves the threshold one slog
// level band.
type Options struct {
	Verbosity int
	Quietness int
	File      string
	Silent    bool
	Format    string // "text" or "json"
}

// Level resolves the slog threshold from the verbosity counters.
func (o Options) Level() slog.Level {
	return slog.LevelInfo + slog.Level(4*(o.Quietness-o.Verbosity))
}

// Setup installs the default logger. The returned closer releases the
// log file, if one was opened.
func Setup(opts Options) (io.Closer, error) {
	var sinks []io.Writer
	if !opts.Silent {
		sinks = append(sinks, os.Stderr)
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, f)
		closer = f
	}

	var out io.Writer = io.Discard
	switch len(sinks) {
	case 1:
		out = sinks[0]
	default:
		if len(sinks) > 1 {
			out = io.MultiWriter(sinks...)
		}
	}

	hopts := &slog.HandlerOptions{Level: opts.Level()}
	var inner slog.Handler
	if opts.Format == "json" {
		inner = slog.NewJSONHandler(out, hopts)
	} else {
		inner = slog.NewTextHandler(out, hopts)
	}

	slog.SetDefault(slog.New(NewContextHandler(inner)))
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// contextHandler decorates another handler, stamping records with the
// correlation id found in the logging context, if any.
type contextHandler struct {
	inner slog.Handler
}

// NewContextHandler wraps inner so records pick up the context's
// correlation id automatically.
func NewContextHandler(inner slog.Handler) slog.Handler {
	return &contextHandler{inner: inner}
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, rec slog.Record) error {
	if id := IDFromContext(ctx); id != "" {
		rec.AddAttrs(logfields.LogContext(id))
	}
	return h.inner.Handle(ctx, rec)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{inner: h.inner.WithGroup(name)}
}
