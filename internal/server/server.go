package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/GriffinCanCode/vets/internal/config"
	apperrors "github.com/GriffinCanCode/vets/internal/errors"
	"github.com/GriffinCanCode/vets/internal/history"
	"github.com/GriffinCanCode/vets/internal/metrics"
	"github.com/GriffinCanCode/vets/internal/pipeline"
	"github.com/GriffinCanCode/vets/internal/screen"
	"github.com/GriffinCanCode/vets/internal/trace"
)

// Controller is the pipeline surface the server drives. *pipeline.Driver implements it.
type Controller interface {
	StartCapture(ctx context.Context, req pipeline.Request) (string, error)
	Cancel(ctx context.Context) error
	Snapshot() pipeline.Snapshot
}

// WindowLister enumerates capturable windows.
type WindowLister interface {
	Windows(ctx context.Context) ([]string, error)
}

// HistoryReader returns recent batches.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

// Options wires a Server.
type Options struct {
	Controller   Controller
	Windows      WindowLister
	History      HistoryReader // nil when history is disabled
	Capture      config.Capture
	Presentation config.Presentation
	Origins      []string
	RateLimit    int
}

type subscriber struct {
	conn    *websocket.Conn
	limiter *rateLimiter
	send    chan any
}

// Server handles HTTP and WebSocket connections and implements pipeline.Presenter.
type Server struct {
	opts Options
	mu   sync.RWMutex
	subs map[*websocket.Conn]*subscriber
}

var _ pipeline.Presenter = (*Server)(nil)

// New creates a server. The controller may be attached later with SetController.
func New(opts Options) *Server {
	return &Server{
		opts: opts,
		subs: make(map[*websocket.Conn]*subscriber),
	}
}

// SetController attaches the pipeline once it exists; the pipeline itself needs the
// server as its presenter, so construction is two-phase.
func (s *Server) SetController(c Controller) {
	s.mu.Lock()
	s.opts.Controller = c
	s.mu.Unlock()
}

func (s *Server) controller() Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts.Controller
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("GET /api/windows", s.handleWindows)
	mux.HandleFunc("POST /api/capture", s.handleCapture(false))
	mux.HandleFunc("POST /api/preview", s.handleCapture(true))
	mux.HandleFunc("POST /api/cancel", s.handleCancel)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/preferences", s.handlePreferences)
	mux.Handle("GET /metrics", metrics.Handler())

	// Apply middleware: trace -> CORS
	return s.corsMiddleware(trace.Middleware(mux))
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or "" to omit it.
func (s *Server) allowOrigin(origin string) string {
	if len(s.opts.Origins) == 0 || slices.Contains(s.opts.Origins, "*") {
		return "*"
	}
	if slices.Contains(s.opts.Origins, origin) {
		return origin
	}
	return ""
}

func (s *Server) originPatterns() []string {
	if len(s.opts.Origins) == 0 {
		return []string{"*"}
	}
	return s.opts.Origins
}

// request fills a pipeline request from a capture message and the configured defaults.
func (s *Server) request(msg CaptureMessage, preview bool) pipeline.Request {
	req := pipeline.Request{
		Window:  msg.Window,
		Margins: screen.Margins(s.opts.Capture.Margins),
		Preview: preview,
	}
	if req.Window == "" {
		req.Window = s.opts.Capture.Window
	}
	if msg.Margins != nil {
		req.Margins = *msg.Margins
	}
	return req
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns(),
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := &subscriber{
		conn:    conn,
		limiter: newRateLimiter(s.opts.RateLimit, RateLimitWindow),
		send:    make(chan any, SendBuffer),
	}
	s.mu.Lock()
	s.subs[conn] = sub
	n := len(s.subs)
	s.mu.Unlock()
	metrics.Subscribers.Set(float64(n))

	defer func() {
		s.mu.Lock()
		delete(s.subs, conn)
		n := len(s.subs)
		s.mu.Unlock()
		metrics.Subscribers.Set(float64(n))
	}()

	log := trace.Logger(ctx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	go s.writeLoop(ctx, sub)
	sub.enqueue(PreferencesMessage{Type: TypePreferences, Preferences: s.opts.Presentation})
	if c := s.controller(); c != nil {
		sub.enqueue(StatusMessage{Type: TypeStatus, Status: c.Snapshot().Status})
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !sub.limiter.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			sub.enqueue(ErrorMessage{Type: TypeError, Message: "rate limit exceeded", Code: apperrors.CodeRateLimited.String()})
			continue
		}

		msgCtx := ctx
		if tc, ok := trace.ExtractFromJSON(data); ok {
			msgCtx = trace.WithContext(ctx, trace.NewChild(tc))
		} else {
			msgCtx, _ = trace.EnsureContext(ctx)
		}
		s.handleMessage(msgCtx, sub, data)
	}
}

func (s *Server) handleMessage(ctx context.Context, sub *subscriber, data []byte) {
	var base Message
	if err := json.Unmarshal(data, &base); err != nil {
		sub.enqueue(ErrorMessage{Type: TypeError, Message: "malformed message", Code: apperrors.CodeInvalidArgument.String()})
		return
	}

	c := s.controller()
	if c == nil {
		sub.enqueue(ErrorMessage{Type: TypeError, Message: "pipeline is not running", Code: apperrors.CodeUnavailable.String()})
		return
	}

	switch base.Type {
	case TypeCapture, TypePreview:
		var msg CaptureMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sub.enqueue(ErrorMessage{Type: TypeError, Message: "malformed capture message", Code: apperrors.CodeInvalidArgument.String()})
			return
		}
		runID, err := c.StartCapture(ctx, s.request(msg, base.Type == TypePreview))
		if err != nil {
			// Rejections already reach every subscriber through ShowFailure.
			trace.Logger(ctx).Debug("capture rejected", "error", err)
			return
		}
		sub.enqueue(AcceptedMessage{Type: TypeAccepted, RunID: runID})
	case TypeCancel:
		if err := c.Cancel(ctx); err != nil {
			sub.enqueue(ErrorMessage{Type: TypeError, Message: err.Error(), Code: apperrors.CodeOf(err).String()})
		}
	default:
		sub.enqueue(ErrorMessage{Type: TypeError, Message: "unknown message type " + base.Type, Code: apperrors.CodeInvalidArgument.String()})
	}
}

func (s *Server) writeLoop(ctx context.Context, sub *subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sub.send:
			wctx, cancel := context.WithTimeout(ctx, WriteTimeout)
			err := wsjson.Write(wctx, sub.conn, msg)
			cancel()
			if err != nil {
				slog.Debug("websocket write error", "error", err)
				return
			}
		}
	}
}

// enqueue hands msg to the writer without blocking; a full buffer drops the message.
func (sub *subscriber) enqueue(msg any) bool {
	select {
	case sub.send <- msg:
		return true
	default:
		return false
	}
}

// broadcast delivers msg to every subscriber without blocking the caller.
func (s *Server) broadcast(msg any) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if !sub.enqueue(msg) {
			slog.Warn("subscriber too slow, dropping message", "type", fmt.Sprintf("%T", msg))
		}
	}
}

// ShowBatch implements pipeline.Presenter.
func (s *Server) ShowBatch(packets []pipeline.TranslationPacket) {
	s.broadcast(BatchMessage{Type: TypeBatch, Packets: packets})
}

// ShowPreview implements pipeline.Presenter.
func (s *Server) ShowPreview(image []byte) {
	s.broadcast(PreviewMessage{Type: TypePreview, Image: image})
}

// ShowStatus implements pipeline.Presenter.
func (s *Server) ShowStatus(status string) {
	s.broadcast(StatusMessage{Type: TypeStatus, Status: status})
}

// ShowFailure implements pipeline.Presenter.
func (s *Server) ShowFailure(f pipeline.Failure) {
	s.broadcast(FailureMessage{Type: TypeFailure, RunID: f.RunID, Message: f.Message, Severity: f.Severity, Code: f.Code})
}

// Subscribers returns the number of connected websocket clients.
func (s *Server) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
