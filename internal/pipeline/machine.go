// Package pipeline implements the capture → read → present state machine.
//
// Workers run on a bounded pool and hand results to the consumer through queues. The consumer
// owns the Machine and calls Tick on every frame; no I/O happens inside Tick. Every queue item
// carries the RunID it was produced for, and items from a run that is no longer current are
// discarded so a cancelled or timed-out run cannot leak into the next one.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/GriffinCanCode/vets/internal/errors"
	"github.com/GriffinCanCode/vets/internal/metrics"
	"github.com/GriffinCanCode/vets/internal/syncx"
	"github.com/GriffinCanCode/vets/internal/trace"
)

// Status label timing.
const (
	LabelStep  = 100 * time.Millisecond
	labelCount = 4
	labelWrap  = labelCount * LabelStep
)

// IdleStatus is shown whenever the machine returns to Idle.
const IdleStatus = "Ready"

const (
	DefaultRunTimeout    = 60 * time.Second
	DefaultWatchdogGrace = 5 * time.Second
)

var (
	capturingLabels = [labelCount]string{"Capturing", "Capturing.", "Capturing..", "Capturing..."}
	readingLabels   = [labelCount]string{"Reading", "Reading.", "Reading..", "Reading..."}
)

// StatusLabel maps the time spent in a phase to its animated label.
func StatusLabel(s State, elapsed time.Duration) string {
	idx := int((elapsed%labelWrap)/LabelStep) % labelCount
	switch s {
	case Capturing:
		return capturingLabels[idx]
	case Reading:
		return readingLabels[idx]
	default:
		return IdleStatus
	}
}

// Config wires a Machine.
type Config struct {
	Capturer  Capturer
	Reader    *Reader
	Presenter Presenter
	Recorder  Recorder // optional

	Order         syncx.Order
	Workers       int
	RunTimeout    time.Duration
	WatchdogGrace time.Duration
	PreviewDir    string
}

type run struct {
	id     string
	req    Request
	ctx    context.Context
	cancel context.CancelFunc
}

// Machine is the pipeline state machine. All methods must be called from one goroutine.
type Machine struct {
	cfg     Config
	queues  *Queues
	pool    *Pool
	capture captureJob
	read    readJob

	state        State
	run          *run
	lastRunID    string
	elapsed      time.Duration
	phaseElapsed time.Duration
	runElapsed   time.Duration
	status       string
	progress     Progress
	lastBatch    []TranslationPacket
	previewPath  string
	lastFailure  *Failure
}

// NewMachine creates an idle machine.
func NewMachine(cfg Config) *Machine {
	if cfg.Workers < 1 {
		cfg.Workers = 2
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	if cfg.WatchdogGrace <= 0 {
		cfg.WatchdogGrace = DefaultWatchdogGrace
	}
	if cfg.Presenter == nil {
		cfg.Presenter = Presenters(nil)
	}

	q := NewQueues(cfg.Order)
	return &Machine{
		cfg:     cfg,
		queues:  q,
		pool:    NewPool(cfg.Workers),
		capture: captureJob{capturer: cfg.Capturer, queues: q, previewDir: cfg.PreviewDir},
		read:    readJob{reader: cfg.Reader, queues: q},
		status:  IdleStatus,
	}
}

// State returns the current phase.
func (m *Machine) State() State { return m.state }

// Queues exposes the hand-off queues.
func (m *Machine) Queues() *Queues { return m.queues }

// StartCapture begins a run for req. parent bounds the run's lifetime and should outlive the
// caller's request. Rejections are shown as warnings and leave the machine untouched.
func (m *Machine) StartCapture(parent context.Context, req Request) (string, error) {
	if m.state != Idle {
		return "", m.reject(apperrors.New(apperrors.CodePipelineBusy, MsgBusy))
	}
	if req.Window == "" || req.Window == NoWindow {
		return "", m.reject(apperrors.New(apperrors.CodeNoWindowSelected, MsgNoWindow))
	}

	id := uuid.NewString()
	ctx, cancel := context.WithTimeout(trace.WithRun(parent, id), m.cfg.RunTimeout)
	if err := m.fire(EventStart); err != nil {
		cancel()
		return "", err
	}

	r := &run{id: id, req: req, ctx: ctx, cancel: cancel}
	m.run, m.lastRunID = r, id
	m.elapsed, m.phaseElapsed, m.runElapsed = 0, 0, 0
	m.progress = Progress{RunID: id}
	m.lastFailure = nil
	m.previewPath = ""
	m.setStatus(StatusLabel(Capturing, 0))

	trace.Logger(ctx).Info("capture started", "window", req.Window, "preview", req.Preview)

	if !m.pool.TryGo(func() { m.capture.run(ctx, id, req) }, m.panicked(id)) {
		err := apperrors.New(apperrors.CodeUnavailable, MsgPoolFull)
		m.fail(NewFailure(id, err))
		return "", err
	}
	return id, nil
}

// Cancel aborts the in-flight run and returns to Idle.
func (m *Machine) Cancel() error {
	if m.state == Idle || m.run == nil {
		return apperrors.New(apperrors.CodeInvalidArgument, "no capture in progress")
	}
	id := m.run.id
	m.run.cancel()
	f := Failure{RunID: id, Message: MsgCancelled, Severity: apperrors.Warning, Code: apperrors.CodeCancelled}
	m.showFailure(f)
	m.finish(EventCancelled, metrics.OutcomeCancelled)
	return nil
}

// Tick advances the machine by delta. At most one transition happens per tick; when a
// result and an error are both ready, the result wins.
func (m *Machine) Tick(delta time.Duration) {
	if m.state == Idle {
		m.elapsed = 0
		return
	}

	m.elapsed = (m.elapsed + delta) % labelWrap
	m.phaseElapsed += delta
	m.runElapsed += delta

	if p, ok := popCurrent(m, m.queues.Progress, "progress", func(p Progress) string { return p.RunID }); ok && p.Done > m.progress.Done {
		m.progress = p
	}
	m.setStatus(m.label())

	switch m.state {
	case Capturing:
		if res, ok := popCurrent(m, m.queues.Captures, "captures", func(r CaptureResult) string { return r.RunID }); ok {
			m.onCapture(res)
			return
		}
	case Reading:
		if b, ok := popCurrent(m, m.queues.Batches, "batches", func(b BatchResult) string { return b.RunID }); ok {
			m.onBatch(b)
			return
		}
	}

	if f, ok := popCurrent(m, m.queues.Failures, "failures", func(f Failure) string { return f.RunID }); ok {
		m.fail(f)
		return
	}

	if m.runElapsed > m.cfg.RunTimeout+m.cfg.WatchdogGrace {
		m.run.cancel()
		m.fail(Failure{RunID: m.run.id, Message: MsgTimedOut, Severity: apperrors.Fatal, Code: apperrors.CodeTimeout})
	}
}

// Shutdown cancels any run and waits for workers to return.
func (m *Machine) Shutdown() {
	if m.run != nil {
		m.run.cancel()
	}
	m.pool.Wait()
}

func (m *Machine) onCapture(res CaptureResult) {
	log := trace.Logger(m.run.ctx)
	if res.Preview {
		log.Debug("showing preview", "bytes", len(res.Image))
		m.previewPath = res.PreviewPath
		m.cfg.Presenter.ShowPreview(res.Image)
		m.finish(EventPreviewed, metrics.OutcomePreview)
		return
	}

	if err := m.fire(EventCaptured); err != nil {
		m.fail(NewFailure(res.RunID, err))
		return
	}
	m.setStatus(m.label())

	r := m.run
	if !m.pool.TryGo(func() { m.read.run(r.ctx, r.id, r.req.Window, res.Image) }, m.panicked(r.id)) {
		m.fail(NewFailure(r.id, apperrors.New(apperrors.CodeUnavailable, MsgPoolFull)))
	}
}

func (m *Machine) onBatch(b BatchResult) {
	trace.Logger(m.run.ctx).Info("batch ready", "packets", len(b.Packets), "reused", b.Reused)
	m.cfg.Presenter.ShowBatch(b.Packets)
	if m.cfg.Recorder != nil && !b.Reused {
		m.cfg.Recorder.Record(b.RunID, m.run.req.Window, b.Packets)
	}
	m.lastBatch = b.Packets
	m.finish(EventPresented, metrics.OutcomeSuccess)
}

// fail surfaces f and returns to Idle.
func (m *Machine) fail(f Failure) {
	m.showFailure(f)
	outcome := metrics.OutcomeFatal
	switch {
	case f.Code == apperrors.CodeCancelled:
		outcome = metrics.OutcomeCancelled
	case f.Severity == apperrors.Warning:
		outcome = metrics.OutcomeWarning
	}
	m.finish(EventFailed, outcome)
}

func (m *Machine) showFailure(f Failure) {
	log := slog.Default()
	if m.run != nil {
		log = trace.Logger(m.run.ctx)
	}
	if f.Severity == apperrors.Warning {
		log.Warn("run ended with warning", "code", f.Code.String(), "message", f.Message)
	} else {
		log.Error("run failed", "code", f.Code.String(), "message", f.Message, "error", f.Err)
	}
	m.lastFailure = &f
	m.cfg.Presenter.ShowFailure(f)
}

func (m *Machine) reject(err *apperrors.AppError) error {
	metrics.Runs.WithLabelValues(metrics.OutcomeRejected).Inc()
	f := NewFailure("", err)
	slog.Warn("capture rejected", "code", f.Code.String(), "state", m.state.String())
	m.cfg.Presenter.ShowFailure(f)
	return err
}

// finish fires ev, which must lead to Idle, and releases the run.
func (m *Machine) finish(ev Event, outcome string) {
	if err := m.fire(ev); err != nil {
		slog.Error("finishing run", "error", err)
		m.state = Idle
	}
	if m.run != nil {
		m.run.cancel()
		m.run = nil
	}
	metrics.Runs.WithLabelValues(outcome).Inc()
	m.elapsed, m.runElapsed = 0, 0
	m.setStatus(IdleStatus)
}

func (m *Machine) fire(ev Event) error {
	to, err := next(m.state, ev)
	if err != nil {
		return err
	}
	if m.state != Idle {
		metrics.PhaseDuration.WithLabelValues(m.state.String()).Observe(m.phaseElapsed.Seconds())
	}
	slog.Debug("pipeline transition", "from", m.state.String(), "event", ev.String(), "to", to.String())
	m.state = to
	m.phaseElapsed = 0
	return nil
}

func (m *Machine) label() string {
	s := StatusLabel(m.state, m.elapsed)
	if m.state == Reading && m.progress.Total > 0 {
		s += fmt.Sprintf(" (%d/%d)", m.progress.Done, m.progress.Total)
	}
	return s
}

func (m *Machine) setStatus(s string) {
	if s == m.status {
		return
	}
	m.status = s
	m.cfg.Presenter.ShowStatus(s)
}

// panicked reports a worker panic as a failure of runID.
func (m *Machine) panicked(runID string) func(error) {
	return func(err error) {
		m.queues.Failures.Push(NewFailure(runID, err))
	}
}

// popCurrent pops the next item belonging to the current run, discarding stale ones.
func popCurrent[T any](m *Machine, q *syncx.Queue[T], name string, runOf func(T) string) (T, bool) {
	for {
		v, ok := q.TryPop()
		if !ok {
			return v, false
		}
		id := runOf(v)
		if m.run != nil && id == m.run.id {
			return v, true
		}
		metrics.StaleItems.WithLabelValues(name).Inc()
		slog.Debug("dropping stale item", "queue", name, "run_id", id)
	}
}

// Snapshot is a read-only view of the machine for other goroutines.
type Snapshot struct {
	State       State               `json:"state"`
	Status      string              `json:"status"`
	RunID       string              `json:"run_id,omitempty"`
	Window      string              `json:"window,omitempty"`
	Progress    Progress            `json:"progress"`
	Pending     int                 `json:"pending"`
	LastBatch   []TranslationPacket `json:"last_batch,omitempty"`
	LastFailure *Failure            `json:"last_failure,omitempty"`
	PreviewPath string              `json:"preview_path,omitempty"`
}

// Snapshot copies the observable state.
func (m *Machine) Snapshot() Snapshot {
	s := Snapshot{
		State:       m.state,
		Status:      m.status,
		RunID:       m.lastRunID,
		Progress:    m.progress,
		Pending:     m.queues.Pending(),
		LastBatch:   m.lastBatch,
		PreviewPath: m.previewPath,
	}
	if m.run != nil {
		s.Window = m.run.req.Window
	}
	if m.lastFailure != nil {
		f := *m.lastFailure
		s.LastFailure = &f
	}
	return s
}
