package trace

import (
	"context"
	"log/slog"
	"time"
)

// Span times one operation within a trace.
type Span struct {
	Name  string
	Ctx   Context
	Start time.Time
	End   time.Time
	Attrs map[string]any
	Err   error
}

// StartSpan opens a span as a child of the trace in ctx, or as a new root.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	tc := New()
	if parent, ok := FromContext(ctx); ok && parent.TraceID != "" {
		tc = NewChild(parent)
	}
	s := &Span{Name: name, Ctx: tc, Start: time.Now(), Attrs: map[string]any{}}
	return WithContext(ctx, tc), s
}

// SetAttr records an attribute logged when the span ends.
func (s *Span) SetAttr(key string, val any) {
	s.Attrs[key] = val
}

// Finish closes the span without logging it.
func (s *Span) Finish() {
	if s.End.IsZero() {
		s.End = time.Now()
	}
}

// EndErr closes the span and logs it: at debug on success, warn on failure.
func (s *Span) EndErr(err error) {
	s.Finish()
	s.Err = err
	if err != nil {
		slog.Warn("span failed", "span", s, "error", err)
		return
	}
	slog.Debug("span finished", "span", s)
}

// Duration is zero until the span is closed.
func (s *Span) Duration() time.Duration {
	if s.End.IsZero() {
		return 0
	}
	return s.End.Sub(s.Start)
}

// LogValue implements slog.LogValuer.
func (s *Span) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("name", s.Name),
		slog.Duration("duration", s.Duration()),
	}
	args := s.Ctx.args()
	for i := 0; i+1 < len(args); i += 2 {
		attrs = append(attrs, slog.Any(args[i].(string), args[i+1]))
	}
	for k, v := range s.Attrs {
		attrs = append(attrs, slog.Any(k, v))
	}
	return slog.GroupValue(attrs...)
}
