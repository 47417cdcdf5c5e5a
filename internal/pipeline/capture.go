package pipeline

import (
	"context"

	"github.com/GriffinCanCode/vets/internal/screen"
	"github.com/GriffinCanCode/vets/internal/trace"
)

// captureJob grabs one window and pushes exactly one CaptureResult or one Failure.
type captureJob struct {
	capturer   Capturer
	queues     *Queues
	previewDir string
}

func (j captureJob) run(ctx context.Context, runID string, req Request) {
	ctx, span := trace.StartSpan(ctx, "pipeline.capture")
	span.SetAttr("window", req.Window)

	png, err := j.capturer.Capture(ctx, req.Window, req.Margins)
	span.EndErr(err)
	if err != nil {
		j.queues.Failures.Push(NewFailure(runID, err))
		return
	}

	res := CaptureResult{RunID: runID, Image: png, Preview: req.Preview}
	if req.Preview && j.previewDir != "" {
		if path, err := screen.SavePreview(j.previewDir, req.Window, png); err != nil {
			trace.Logger(ctx).Warn("saving preview failed", "error", err)
		} else {
			trace.Logger(ctx).Debug("preview saved", "path", path)
			res.PreviewPath = path
		}
	}

	j.queues.Captures.Push(res)
}
