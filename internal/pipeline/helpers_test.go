package pipeline

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/vets/internal/ocr"
	"github.com/GriffinCanCode/vets/internal/screen"
)

type recordingPresenter struct {
	mu       sync.Mutex
	batches  [][]TranslationPacket
	previews [][]byte
	statuses []string
	failures []Failure
}

func (p *recordingPresenter) ShowBatch(packets []TranslationPacket) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, packets)
}

func (p *recordingPresenter) ShowPreview(image []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.previews = append(p.previews, image)
}

func (p *recordingPresenter) ShowStatus(status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, status)
}

func (p *recordingPresenter) ShowFailure(f Failure) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = append(p.failures, f)
}

func (p *recordingPresenter) Batches() [][]TranslationPacket {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]TranslationPacket(nil), p.batches...)
}

func (p *recordingPresenter) Failures() []Failure {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Failure(nil), p.failures...)
}

func (p *recordingPresenter) Statuses() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.statuses...)
}

type recordedBatch struct {
	runID, window string
	packets       []TranslationPacket
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []recordedBatch
}

func (r *fakeRecorder) Record(runID, window string, packets []TranslationPacket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, recordedBatch{runID, window, packets})
}

func (r *fakeRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// funcCapturer adapts a function to Capturer and counts calls.
type funcCapturer struct {
	calls atomic.Int32
	fn    func(ctx context.Context, title string) ([]byte, error)
}

func (c *funcCapturer) Capture(ctx context.Context, title string, _ screen.Margins) ([]byte, error) {
	c.calls.Add(1)
	return c.fn(ctx, title)
}

func staticCapturer(png []byte) *funcCapturer {
	return &funcCapturer{fn: func(context.Context, string) ([]byte, error) { return png, nil }}
}

// blockingCapturer waits for ctx to end and reports its error.
func blockingCapturer() *funcCapturer {
	return &funcCapturer{fn: func(ctx context.Context, _ string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
}

type fakeRecognizer struct {
	mu     sync.Mutex
	blocks []ocr.TextBlock
	err    error
	block  bool
	images [][]byte
}

func (r *fakeRecognizer) Recognize(ctx context.Context, image []byte) ([]ocr.TextBlock, error) {
	r.mu.Lock()
	r.images = append(r.images, image)
	blocks, err, block := r.blocks, r.err, r.block
	r.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return blocks, err
}

func (r *fakeRecognizer) Images() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.images...)
}

// recognizerFunc maps each image to its blocks.
type recognizerFunc func(png []byte) []ocr.TextBlock

func (f recognizerFunc) Recognize(_ context.Context, image []byte) ([]ocr.TextBlock, error) {
	return f(image), nil
}

type fakeTranslator struct {
	calls atomic.Int32
	fn    func(text string) (string, error)
}

func (t *fakeTranslator) Translate(_ context.Context, text string) (string, error) {
	t.calls.Add(1)
	return t.fn(text)
}

func dictionary(entries map[string]string) *fakeTranslator {
	return &fakeTranslator{fn: func(text string) (string, error) { return entries[text], nil }}
}

type prefixRomanizer struct{}

func (prefixRomanizer) Romanize(text string) string { return "r:" + text }

func blocks(texts ...string) []ocr.TextBlock {
	out := make([]ocr.TextBlock, len(texts))
	for i, s := range texts {
		out[i] = ocr.TextBlock{Text: s, Languages: []string{"ja"}}
	}
	return out
}

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 5), B: 0x40, A: 0xff})
		}
	}
	return img
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	png, err := screen.EncodePNG(testImage(w, h))
	require.NoError(t, err)
	return png
}

// fakeSource is a screen.Source with a fixed window list and image.
type fakeSource struct {
	titles []string
	img    image.Image
}

func (s fakeSource) Windows(context.Context) ([]string, error) { return s.titles, nil }

func (s fakeSource) Grab(context.Context, string) (image.Image, error) { return s.img, nil }

type harness struct {
	m         *Machine
	presenter *recordingPresenter
	recorder  *fakeRecorder
	capturer  *funcCapturer
	ocr       *fakeRecognizer
	trans     *fakeTranslator
}

func newHarness(t *testing.T, capturer *funcCapturer, rec *fakeRecognizer, tr *fakeTranslator, tweak func(*Config)) *harness {
	t.Helper()
	h := &harness{
		presenter: &recordingPresenter{},
		recorder:  &fakeRecorder{},
		capturer:  capturer,
		ocr:       rec,
		trans:     tr,
	}
	cfg := Config{
		Capturer:  capturer,
		Reader:    NewReader(ReaderConfig{OCR: rec, Translator: tr, Romanizer: prefixRomanizer{}}),
		Presenter: h.presenter,
		Recorder:  h.recorder,
		Workers:   4,
	}
	if tweak != nil {
		tweak(&cfg)
	}
	h.m = NewMachine(cfg)
	t.Cleanup(h.m.Shutdown)
	return h
}

// tickUntil ticks the machine until cond holds or the test times out.
func tickUntil(t *testing.T, m *Machine, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		require.True(t, time.Now().Before(deadline), "condition not reached; state=%s", m.State())
		m.Tick(10 * time.Millisecond)
		time.Sleep(time.Millisecond)
	}
}

// waitQueued waits for a worker to enqueue without ticking.
func waitQueued(t *testing.T, n func() int) {
	t.Helper()
	require.Eventually(t, func() bool { return n() > 0 }, 3*time.Second, time.Millisecond)
}

func idle(m *Machine) func() bool { return func() bool { return m.State() == Idle } }
