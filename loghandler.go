package tailgate

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// LogHandler is a [slog.Handler] that publishes log records into a
// [Frontend], so the host's own logging shows up in every log stream.
//
// Each record becomes a message segment, tagged [FormatError] for errors and
// [FormatWarning] for warnings, followed by an untagged segment holding the
// attributes as key=value pairs.
type LogHandler struct {
	frontend *Frontend
	level    slog.Leveler
	attrs    string
	group    string
}

// NewLogHandler returns a handler publishing into f. A nil opts logs at
// Info and above.
func NewLogHandler(f *Frontend, opts *slog.HandlerOptions) *LogHandler {
	h := &LogHandler{frontend: f, level: slog.LevelInfo}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}
	return h
}

// Enabled implements [slog.Handler].
func (h *LogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements [slog.Handler].
func (h *LogHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&b, h.group, a)
		return true
	})
	b.WriteByte('\n')

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	h.frontend.Publish(ts, slogLevel(r.Level),
		Segment{Text: r.Message, Format: slogFormat(r.Level)},
		Segment{Text: b.String()},
	)
	return nil
}

// WithAttrs implements [slog.Handler].
func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := *h
	var b strings.Builder
	b.WriteString(h.attrs)
	for _, a := range attrs {
		appendAttr(&b, h.group, a)
	}
	h2.attrs = b.String()
	return &h2
}

// WithGroup implements [slog.Handler].
func (h *LogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.group = h.group + name + "."
	return &h2
}

func appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		if len(attrs) == 0 {
			return
		}
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range attrs {
			appendAttr(b, prefix, ga)
		}
		return
	}

	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	s := a.Value.String()
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		s = strconv.Quote(s)
	}
	b.WriteString(s)
}

// slogLevel maps slog levels onto the frontend's level scale.
func slogLevel(l slog.Level) int {
	switch {
	case l >= slog.LevelError:
		return LevelError
	case l >= slog.LevelWarn:
		return LevelWarning
	case l >= slog.LevelInfo:
		return LevelInfo
	default:
		return LevelDebug
	}
}

func slogFormat(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return FormatError
	case l >= slog.LevelWarn:
		return FormatWarning
	default:
		return FormatNone
	}
}

// TeeHandler sends each record to several handlers.
type TeeHandler struct {
	handlers []slog.Handler
}

// NewTeeHandler returns a handler writing to every handler in hs.
func NewTeeHandler(hs ...slog.Handler) *TeeHandler {
	return &TeeHandler{handlers: hs}
}

// Enabled reports whether any handler is enabled for level.
func (t *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle implements [slog.Handler].
func (t *TeeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithAttrs implements [slog.Handler].
func (t *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &TeeHandler{handlers: hs}
}

// WithGroup implements [slog.Handler].
func (t *TeeHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &TeeHandler{handlers: hs}
}
