package pipeline

import (
	"context"
	stderrors "errors"

	apperrors "github.com/GriffinCanCode/vets/internal/errors"
	"github.com/GriffinCanCode/vets/internal/ocr"
	"github.com/GriffinCanCode/vets/internal/screen"
)

// Messages surfaced to the user for expected conditions.
const (
	MsgNoWindow   = "Please select a target window!"
	MsgBusy       = "A capture is already in progress"
	MsgEmptyBatch = "No text found or credentials may be stale"
	MsgTimedOut   = "Capture timed out"
	MsgCancelled  = "Capture cancelled"
	MsgPoolFull   = "No worker available, try again shortly"
)

// NoWindow is the placeholder a window selector reports when nothing is chosen.
const NoWindow = "None"

// Request describes one capture.
type Request struct {
	Window  string         `json:"window"`
	Margins screen.Margins `json:"margins"`
	Preview bool           `json:"preview"`
}

// CaptureResult hands a cropped PNG from the capture worker to the consumer.
type CaptureResult struct {
	RunID   string
	Image   []byte
	Preview bool
	// PreviewPath is where a preview was written, empty when it was not saved.
	PreviewPath string
}

// TranslationPacket is one recognized paragraph with its romanization and translation.
type TranslationPacket struct {
	Source     string `json:"source"`
	Romanized  string `json:"romanized"`
	Translated string `json:"translated"`
}

// BatchResult carries a finished batch in paragraph discovery order.
type BatchResult struct {
	RunID   string
	Packets []TranslationPacket
	Reused  bool
}

// Progress reports that Done of Total blocks have been translated.
type Progress struct {
	RunID string `json:"run_id"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
}

// Failure is a warning or fatal condition ending a run.
type Failure struct {
	RunID    string             `json:"run_id,omitempty"`
	Message  string             `json:"message"`
	Severity apperrors.Severity `json:"severity"`
	Code     apperrors.Code     `json:"code"`
	Err      error              `json:"-"`
}

// NewFailure classifies err. Context errors without a code become Cancelled or Timeout.
func NewFailure(runID string, err error) Failure {
	code := apperrors.CodeOf(err)
	msg := err.Error()
	if appErr, ok := apperrors.As(err); ok && appErr.Message != "" {
		msg = appErr.Message
	}
	if code == apperrors.CodeUnknown {
		switch {
		case stderrors.Is(err, context.Canceled):
			code, msg = apperrors.CodeCancelled, MsgCancelled
		case stderrors.Is(err, context.DeadlineExceeded):
			code, msg = apperrors.CodeTimeout, MsgTimedOut
		default:
			code = apperrors.CodeInternal
		}
	}
	return Failure{RunID: runID, Message: msg, Severity: code.Severity(), Code: code, Err: err}
}

// Presenter receives everything the pipeline shows. Implementations must not block.
type Presenter interface {
	ShowBatch(packets []TranslationPacket)
	ShowPreview(image []byte)
	ShowStatus(status string)
	ShowFailure(f Failure)
}

// Recorder persists completed batches. Record must not block.
type Recorder interface {
	Record(runID, window string, packets []TranslationPacket)
}

// Capturer grabs and crops a window.
type Capturer interface {
	Capture(ctx context.Context, title string, m screen.Margins) ([]byte, error)
}

// Recognizer turns a PNG into paragraphs.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) ([]ocr.TextBlock, error)
}

// Translator translates one paragraph.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Romanizer is a pure text transform.
type Romanizer interface {
	Romanize(text string) string
}

// Presenters fans out to several presenters in order.
type Presenters []Presenter

func (ps Presenters) ShowBatch(packets []TranslationPacket) {
	for _, p := range ps {
		p.ShowBatch(packets)
	}
}

func (ps Presenters) ShowPreview(image []byte) {
	for _, p := range ps {
		p.ShowPreview(image)
	}
}

func (ps Presenters) ShowStatus(status string) {
	for _, p := range ps {
		p.ShowStatus(status)
	}
}

func (ps Presenters) ShowFailure(f Failure) {
	for _, p := range ps {
		p.ShowFailure(f)
	}
}

// LogPresenter writes pipeline output to a slog logger. Used headless and by the CLI.
type LogPresenter struct {
	Logger interface {
		Info(msg string, args ...any)
		Warn(msg string, args ...any)
		Error(msg string, args ...any)
	}
}

func (p LogPresenter) ShowBatch(packets []TranslationPacket) {
	for i, pk := range packets {
		p.Logger.Info("packet", "index", i, "source", pk.Source, "romanized", pk.Romanized, "translated", pk.Translated)
	}
}

func (p LogPresenter) ShowPreview(image []byte) {
	p.Logger.Info("preview", "bytes", len(image))
}

func (p LogPresenter) ShowStatus(string) {}

func (p LogPresenter) ShowFailure(f Failure) {
	if f.Severity == apperrors.Warning {
		p.Logger.Warn(f.Message, "code", f.Code.String(), "run_id", f.RunID)
		return
	}
	p.Logger.Error(f.Message, "code", f.Code.String(), "run_id", f.RunID, "error", f.Err)
}
