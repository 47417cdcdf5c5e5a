package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/vets/internal/config"
	apperrors "github.com/GriffinCanCode/vets/internal/errors"
	"github.com/GriffinCanCode/vets/internal/history"
	"github.com/GriffinCanCode/vets/internal/pipeline"
	"github.com/GriffinCanCode/vets/internal/screen"
)

type fakeController struct {
	mu       sync.Mutex
	requests []pipeline.Request
	startErr error
	cancels  int
	snapshot pipeline.Snapshot
}

func (c *fakeController) StartCapture(_ context.Context, req pipeline.Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.startErr != nil {
		return "", c.startErr
	}
	return "run-1", nil
}

func (c *fakeController) Cancel(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancels++
	if c.snapshot.State == pipeline.Idle {
		return apperrors.New(apperrors.CodeInvalidArgument, "no capture in progress")
	}
	return nil
}

func (c *fakeController) Snapshot() pipeline.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

func (c *fakeController) Requests() []pipeline.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]pipeline.Request(nil), c.requests...)
}

type fakeWindows struct {
	titles []string
	err    error
}

func (f fakeWindows) Windows(context.Context) ([]string, error) { return f.titles, f.err }

func newTestServer(ctrl *fakeController, opts ...func(*Options)) *Server {
	o := Options{
		Controller: ctrl,
		Windows:    fakeWindows{titles: []string{"Notepad", "Game"}},
		Capture: config.Capture{
			Window:  "Game",
			Margins: config.Margins{Up: 30, Down: 10},
		},
		Presentation: config.Presentation{Font: "Noto Sans CJK JP", FontSize: 18, ShowRomaji: true},
	}
	for _, fn := range opts {
		fn(&o)
	}
	return New(o)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCORSMiddleware(t *testing.T) {
	s := newTestServer(&fakeController{})
	handler := s.corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := do(t, handler, http.MethodOptions, "/test", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))

	restricted := newTestServer(&fakeController{}, func(o *Options) { o.Origins = []string{"http://localhost:5173"} })
	handler = restricted.corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiterRefillsPerWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := newRateLimiter(2, time.Second)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow())
	assert.True(t, rl.allow())
	assert.False(t, rl.allow())

	now = now.Add(250 * time.Millisecond)
	assert.False(t, rl.allow())

	now = now.Add(time.Second)
	assert.True(t, rl.allow())
	assert.True(t, rl.allow())
	assert.False(t, rl.allow())
}

func TestCaptureUsesConfiguredDefaults(t *testing.T) {
	ctrl := &fakeController{}
	h := newTestServer(ctrl).Handler()

	rec := do(t, h, http.MethodPost, "/api/capture", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted AcceptedMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.Equal(t, "run-1", accepted.RunID)

	rec = do(t, h, http.MethodPost, "/api/preview", `{"window":"Notepad","margins":{"left":5}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	reqs := ctrl.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, pipeline.Request{Window: "Game", Margins: screen.Margins{Up: 30, Down: 10}}, reqs[0])
	assert.Equal(t, pipeline.Request{Window: "Notepad", Margins: screen.Margins{Left: 5}, Preview: true}, reqs[1])
}

func TestCaptureErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperrors.New(apperrors.CodePipelineBusy, pipeline.MsgBusy), http.StatusConflict},
		{apperrors.New(apperrors.CodeNoWindowSelected, pipeline.MsgNoWindow), http.StatusBadRequest},
		{apperrors.New(apperrors.CodeUnavailable, "stopped"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		h := newTestServer(&fakeController{startErr: tt.err}).Handler()
		rec := do(t, h, http.MethodPost, "/api/capture", "{}")
		assert.Equal(t, tt.want, rec.Code, apperrors.CodeOf(tt.err).String())

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, apperrors.CodeOf(tt.err).String(), body["code"])
	}

	h := newTestServer(&fakeController{}).Handler()
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/capture", "{not json").Code)
}

func TestWindowsEndpoint(t *testing.T) {
	h := newTestServer(&fakeController{}).Handler()
	rec := do(t, h, http.MethodGet, "/api/windows", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"windows":["Notepad","Game"]}`, rec.Body.String())

	h = newTestServer(&fakeController{}, func(o *Options) {
		o.Windows = fakeWindows{err: apperrors.New(apperrors.CodeCaptureFailed, "xdotool missing")}
	}).Handler()
	assert.Equal(t, http.StatusInternalServerError, do(t, h, http.MethodGet, "/api/windows", "").Code)
}

func TestStatusAndCancel(t *testing.T) {
	ctrl := &fakeController{snapshot: pipeline.Snapshot{State: pipeline.Idle, Status: pipeline.IdleStatus}}
	h := newTestServer(ctrl).Handler()

	rec := do(t, h, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "idle", snap["state"])
	assert.Equal(t, pipeline.IdleStatus, snap["status"])

	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/api/cancel", "").Code)

	ctrl.mu.Lock()
	ctrl.snapshot.State = pipeline.Reading
	ctrl.mu.Unlock()
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/cancel", "").Code)
}

func TestHistoryEndpoint(t *testing.T) {
	h := newTestServer(&fakeController{}).Handler()
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/api/history", "").Code)

	store, err := history.Open(context.Background(), history.MemoryPath)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Insert(context.Background(), []history.Entry{
		{RunID: "a", Window: "Game", Packets: []pipeline.TranslationPacket{{Source: "猫", Romanized: "neko", Translated: "cat"}}},
		{RunID: "b", Window: "Game", Packets: []pipeline.TranslationPacket{{Source: "犬", Romanized: "inu", Translated: "dog"}}},
	}))

	h = newTestServer(&fakeController{}, func(o *Options) { o.History = store }).Handler()
	rec := do(t, h, http.MethodGet, "/api/history?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Entries []history.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "b", body.Entries[0].RunID)
	assert.Equal(t, "dog", body.Entries[0].Packets[0].Translated)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/history?limit=zero", "").Code)
}

func TestPreferencesAndMetrics(t *testing.T) {
	h := newTestServer(&fakeController{}).Handler()

	rec := do(t, h, http.MethodGet, "/api/preferences", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"font":"Noto Sans CJK JP","font_size":18,"show_romaji":true}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func readType(t *testing.T, ctx context.Context, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	for {
		var msg map[string]any
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		if msg["type"] == want {
			return msg
		}
	}
}

func TestWebSocketPresenter(t *testing.T) {
	ctrl := &fakeController{snapshot: pipeline.Snapshot{Status: pipeline.IdleStatus}}
	s := newTestServer(ctrl)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	prefs := readType(t, ctx, conn, TypePreferences)
	assert.Equal(t, "Noto Sans CJK JP", prefs["preferences"].(map[string]any)["font"])
	readType(t, ctx, conn, TypeStatus)

	require.Eventually(t, func() bool { return s.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, wsjson.Write(ctx, conn, CaptureMessage{Type: TypeCapture, Window: "Notepad"}))
	accepted := readType(t, ctx, conn, TypeAccepted)
	assert.Equal(t, "run-1", accepted["run_id"])

	s.ShowBatch([]pipeline.TranslationPacket{{Source: "こんにちは", Romanized: "kon'nichiha", Translated: "Hello"}})
	batch := readType(t, ctx, conn, TypeBatch)
	packets := batch["packets"].([]any)
	require.Len(t, packets, 1)
	assert.Equal(t, "kon'nichiha", packets[0].(map[string]any)["romanized"])

	s.ShowFailure(pipeline.Failure{Message: pipeline.MsgNoWindow, Severity: apperrors.Warning, Code: apperrors.CodeNoWindowSelected})
	failure := readType(t, ctx, conn, TypeFailure)
	assert.Equal(t, "warning", failure["severity"])
	assert.Equal(t, "NO_WINDOW_SELECTED", failure["code"])

	require.NoError(t, wsjson.Write(ctx, conn, Message{Type: "bogus"}))
	errMsg := readType(t, ctx, conn, TypeError)
	assert.Contains(t, errMsg["message"], "bogus")

	require.Len(t, ctrl.Requests(), 1)
	assert.Equal(t, "Notepad", ctrl.Requests()[0].Window)
}

func TestBroadcastNeverBlocks(t *testing.T) {
	s := newTestServer(&fakeController{})
	slow := &subscriber{send: make(chan any, 1), limiter: newRateLimiter(1, time.Second)}
	s.subs[nil] = slow

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			s.ShowStatus("Reading")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow subscriber")
	}
	assert.Len(t, slow.send, 1)
}
