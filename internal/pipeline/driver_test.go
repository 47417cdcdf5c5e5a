package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/GriffinCanCode/vets/internal/errors"
)

func startDriver(t *testing.T, h *harness) (*Driver, context.CancelFunc) {
	t.Helper()
	d := NewDriver(h.m, 2*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-d.Done()
	})
	return d, cancel
}

func TestDriverRunsCapture(t *testing.T) {
	rec := &fakeRecognizer{blocks: blocks("猫")}
	h := newHarness(t, staticCapturer(testPNG(t, 8, 8)), rec, dictionary(map[string]string{"猫": "cat"}), nil)
	d, _ := startDriver(t, h)

	runID, err := d.StartCapture(context.Background(), Request{Window: "Game"})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	require.Eventually(t, func() bool {
		s := d.Snapshot()
		return s.State == Idle && len(s.LastBatch) == 1
	}, 3*time.Second, 2*time.Millisecond)

	snap := d.Snapshot()
	assert.Equal(t, runID, snap.RunID)
	assert.Equal(t, "cat", snap.LastBatch[0].Translated)
	assert.Nil(t, snap.LastFailure)
	require.Len(t, h.presenter.Batches(), 1)
}

func TestDriverRejectsAndCancels(t *testing.T) {
	h := newHarness(t, blockingCapturer(), &fakeRecognizer{}, dictionary(nil), nil)
	d, _ := startDriver(t, h)

	_, err := d.StartCapture(context.Background(), Request{Window: ""})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNoWindowSelected))

	err = d.Cancel(context.Background())
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidArgument))

	_, err = d.StartCapture(context.Background(), Request{Window: "Game"})
	require.NoError(t, err)
	assert.Equal(t, Capturing, d.Snapshot().State)

	require.NoError(t, d.Cancel(context.Background()))
	snap := d.Snapshot()
	assert.Equal(t, Idle, snap.State)
	require.NotNil(t, snap.LastFailure)
	assert.Equal(t, apperrors.CodeCancelled, snap.LastFailure.Code)
}

func TestDriverStopped(t *testing.T) {
	h := newHarness(t, blockingCapturer(), &fakeRecognizer{}, dictionary(nil), nil)
	d, cancel := startDriver(t, h)

	_, err := d.StartCapture(context.Background(), Request{Window: "Game"})
	require.NoError(t, err)

	cancel()
	<-d.Done()

	_, err = d.StartCapture(context.Background(), Request{Window: "Game"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnavailable))
}
