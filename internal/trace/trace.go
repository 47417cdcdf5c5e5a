// Package trace correlates log lines belonging to one capture run. A trace spans a single
// StartCapture: the run ID is its trace ID, and each remote call is a child span.
package trace

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Context holds trace identifiers for a single span. TraceID is 32 hex digits and
// SpanID 16, matching W3C trace context.
type Context struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	RunID        string
}

type ctxKey struct{}

// New creates a root context with fresh IDs.
func New() Context {
	return Context{TraceID: newTraceID(), SpanID: newSpanID()}
}

// ForRun starts the trace for a capture run. A UUID run ID doubles as the trace ID.
func ForRun(runID string) Context {
	tc := New()
	tc.RunID = runID
	if id := strings.ReplaceAll(runID, "-", ""); isHex(id, 32) {
		tc.TraceID = strings.ToLower(id)
	}
	return tc
}

// NewChild derives a span of the same trace and run.
func NewChild(parent Context) Context {
	return Context{
		TraceID:      parent.TraceID,
		SpanID:       newSpanID(),
		ParentSpanID: parent.SpanID,
		RunID:        parent.RunID,
	}
}

// FromContext returns the trace stored in ctx.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

// WithContext stores tc in ctx.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// WithRun attaches a run-scoped trace to ctx.
func WithRun(ctx context.Context, runID string) context.Context {
	return WithContext(ctx, ForRun(runID))
}

// RunID returns the run the context belongs to, if any.
func RunID(ctx context.Context) string {
	tc, _ := FromContext(ctx)
	return tc.RunID
}

// EnsureContext returns ctx unchanged when it already carries a trace, otherwise a copy
// with a new root trace.
func EnsureContext(ctx context.Context) (context.Context, Context) {
	if tc, ok := FromContext(ctx); ok {
		return ctx, tc
	}
	tc := New()
	return WithContext(ctx, tc), tc
}

// Logger returns the default logger annotated with the trace in ctx.
func Logger(ctx context.Context) *slog.Logger {
	tc, ok := FromContext(ctx)
	if !ok {
		return slog.Default()
	}
	return slog.Default().With(tc.args()...)
}

// args renders the identifiers as slog key/value pairs, omitting empty ones.
func (c Context) args() []any {
	out := make([]any, 0, 8)
	out = append(out, "trace_id", c.TraceID, "span_id", c.SpanID)
	if c.ParentSpanID != "" {
		out = append(out, "parent_span_id", c.ParentSpanID)
	}
	if c.RunID != "" {
		out = append(out, "run_id", c.RunID)
	}
	return out
}

func newTraceID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")
}

func newSpanID() string {
	return newTraceID()[:16]
}

func isHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
