package pipeline

import (
	"context"
	"fmt"

	apperrors "github.com/GriffinCanCode/vets/internal/errors"
	"github.com/GriffinCanCode/vets/internal/ocr"
	"github.com/GriffinCanCode/vets/internal/trace"
)

// SourceLanguage is the language kept by the non-target filter.
const SourceLanguage = "ja"

// ReaderConfig wires the recognition/translation worker.
type ReaderConfig struct {
	OCR        Recognizer
	Translator Translator
	Romanizer  Romanizer
	// FilterNonTarget drops paragraphs not detected as SourceLanguage.
	FilterNonTarget bool
	// Deduper is optional.
	Deduper *Deduper
}

// Reader recognizes, romanizes and translates one capture.
type Reader struct {
	cfg ReaderConfig
}

// NewReader creates a reader.
func NewReader(cfg ReaderConfig) *Reader {
	return &Reader{cfg: cfg}
}

// Read produces the batch for one PNG captured from window. The returned bool is true when the
// previous batch was reused. progress is called after each translated block.
func (r *Reader) Read(ctx context.Context, window string, png []byte, progress func(done, total int)) ([]TranslationPacket, bool, error) {
	if r.cfg.Deduper == nil {
		packets, err := r.read(ctx, png, progress)
		return packets, false, err
	}

	frame := r.cfg.Deduper.Frame(window, png)
	if packets, ok := r.cfg.Deduper.Lookup(frame); ok {
		trace.Logger(ctx).Debug("frame unchanged, reusing batch", "packets", len(packets))
		return packets, true, nil
	}
	packets, err := r.read(ctx, png, progress)
	if err == nil {
		r.cfg.Deduper.Remember(frame, packets)
	}
	return packets, false, err
}

func (r *Reader) read(ctx context.Context, png []byte, progress func(done, total int)) ([]TranslationPacket, error) {
	blocks, err := r.cfg.OCR.Recognize(ctx, png)
	if err != nil {
		return nil, err
	}
	if r.cfg.FilterNonTarget {
		blocks = ocr.FilterLanguage(blocks, SourceLanguage)
	}
	if len(blocks) == 0 {
		return nil, apperrors.New(apperrors.CodeEmptyResult, MsgEmptyBatch)
	}

	packets := make([]TranslationPacket, 0, len(blocks))
	for i, b := range blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		translated, err := r.cfg.Translator.Translate(ctx, b.Text)
		if err != nil {
			if appErr, ok := apperrors.As(err); ok {
				return nil, appErr.WithMetadata("block", fmt.Sprint(i))
			}
			return nil, apperrors.Wrapf(err, apperrors.CodeTranslationFailed, "translating block %d", i)
		}
		packets = append(packets, TranslationPacket{
			Source:     b.Text,
			Romanized:  r.cfg.Romanizer.Romanize(b.Text),
			Translated: translated,
		})
		if progress != nil {
			progress(i+1, len(blocks))
		}
	}
	return packets, nil
}

// readJob runs a Reader for one run and pushes exactly one BatchResult or one Failure.
type readJob struct {
	reader *Reader
	queues *Queues
}

func (j readJob) run(ctx context.Context, runID, window string, png []byte) {
	ctx, span := trace.StartSpan(ctx, "pipeline.read")
	packets, reused, err := j.reader.Read(ctx, window, png, func(done, total int) {
		j.queues.Progress.Push(Progress{RunID: runID, Done: done, Total: total})
	})
	span.SetAttr("packets", len(packets))
	span.SetAttr("reused", reused)
	span.EndErr(err)

	if err != nil {
		j.queues.Failures.Push(NewFailure(runID, err))
		return
	}
	j.queues.Batches.Push(BatchResult{RunID: runID, Packets: packets, Reused: reused})
}
