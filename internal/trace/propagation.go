package trace

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Header keys used to propagate trace identifiers over HTTP. Outgoing requests carry
// both the X- headers and W3C traceparent so Google APIs join the same trace.
const (
	TraceIDKey      = "X-Trace-Id"
	SpanIDKey       = "X-Span-Id"
	ParentSpanIDKey = "X-Parent-Span-Id"
	TraceparentKey  = "Traceparent"
)

// Inject writes tc into h.
func Inject(h http.Header, tc Context) {
	h.Set(TraceIDKey, tc.TraceID)
	h.Set(SpanIDKey, tc.SpanID)
	if tc.ParentSpanID != "" {
		h.Set(ParentSpanIDKey, tc.ParentSpanID)
	}
	if isHex(tc.TraceID, 32) && isHex(tc.SpanID, 16) {
		h.Set(TraceparentKey, "00-"+tc.TraceID+"-"+tc.SpanID+"-01")
	}
}

// Extract reads the caller's trace from h and returns a server-side child of it. The X-
// headers win over traceparent. ok is false when h carries no trace.
func Extract(h http.Header) (Context, bool) {
	parent := Context{TraceID: h.Get(TraceIDKey), SpanID: h.Get(SpanIDKey)}
	if parent.TraceID == "" {
		var ok bool
		if parent, ok = parseTraceparent(h.Get(TraceparentKey)); !ok {
			return New(), false
		}
	}
	return NewChild(parent), true
}

// parseTraceparent accepts "version-traceid-spanid-flags".
func parseTraceparent(v string) (Context, bool) {
	parts := strings.Split(strings.TrimSpace(v), "-")
	if len(parts) != 4 || !isHex(parts[0], 2) || !isHex(parts[1], 32) || !isHex(parts[2], 16) {
		return Context{}, false
	}
	if strings.Trim(parts[1], "0") == "" {
		return Context{}, false
	}
	return Context{TraceID: strings.ToLower(parts[1]), SpanID: strings.ToLower(parts[2])}, true
}

// Middleware attaches a trace to every request and echoes its ID in the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc, _ := Extract(r.Header)
		w.Header().Set(TraceIDKey, tc.TraceID)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), tc)))
	})
}

// ExtractFromJSON reads trace_id from a websocket command frame.
func ExtractFromJSON(data []byte) (Context, bool) {
	var msg struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.TraceID == "" {
		return New(), false
	}
	return Context{TraceID: msg.TraceID, SpanID: newSpanID()}, true
}

// Transport is an http.RoundTripper that opens a span per outgoing request and
// propagates it to the remote service.
type Transport struct {
	Name string
	Base http.RoundTripper
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(name string, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Name: name, Base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := StartSpan(req.Context(), t.Name+" "+req.Method)
	span.SetAttr("host", req.URL.Host)
	span.SetAttr("path", req.URL.Path)

	out := req.Clone(ctx)
	Inject(out.Header, span.Ctx)

	resp, err := t.Base.RoundTrip(out)
	if resp != nil {
		span.SetAttr("status", resp.StatusCode)
	}
	span.EndErr(err)
	return resp, err
}
