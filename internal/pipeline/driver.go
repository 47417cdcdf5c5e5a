package pipeline

import (
	"context"
	"log/slog"
	"time"

	apperrors "github.com/GriffinCanCode/vets/internal/errors"
	"github.com/GriffinCanCode/vets/internal/syncx"
)

type commandKind int

const (
	cmdStart commandKind = iota
	cmdCancel
)

type command struct {
	kind  commandKind
	req   Request
	reply chan commandResult
}

type commandResult struct {
	runID string
	err   error
}

// Driver owns a Machine on a single consumer goroutine. Other goroutines submit commands
// and read snapshots; they never touch the Machine directly.
type Driver struct {
	m        *Machine
	interval time.Duration
	cmds     chan command
	snap     *syncx.Latest[Snapshot]
	done     chan struct{}
}

// NewDriver creates a driver ticking every interval.
func NewDriver(m *Machine, interval time.Duration) *Driver {
	if interval <= 0 {
		interval = time.Second / 60
	}
	return &Driver{
		m:        m,
		interval: interval,
		cmds:     make(chan command),
		snap:     syncx.NewLatest(m.Snapshot()),
		done:     make(chan struct{}),
	}
}

// Run is the consumer loop. It returns when ctx is cancelled, after in-flight workers exit.
func (d *Driver) Run(ctx context.Context) error {
	defer close(d.done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	slog.Info("pipeline driver started", "interval", d.interval)
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			d.m.Shutdown()
			d.publish()
			slog.Info("pipeline driver stopped")
			return nil
		case c := <-d.cmds:
			var res commandResult
			switch c.kind {
			case cmdStart:
				res.runID, res.err = d.m.StartCapture(ctx, c.req)
			case cmdCancel:
				res.err = d.m.Cancel()
			}
			d.publish()
			c.reply <- res
		case now := <-ticker.C:
			d.m.Tick(now.Sub(last))
			last = now
			d.publish()
		}
	}
}

// StartCapture asks the consumer to begin a run and returns its RunID.
func (d *Driver) StartCapture(ctx context.Context, req Request) (string, error) {
	res, err := d.submit(ctx, command{kind: cmdStart, req: req})
	if err != nil {
		return "", err
	}
	return res.runID, res.err
}

// Cancel asks the consumer to abort the in-flight run.
func (d *Driver) Cancel(ctx context.Context) error {
	res, err := d.submit(ctx, command{kind: cmdCancel})
	if err != nil {
		return err
	}
	return res.err
}

// Snapshot returns the state published after the last tick or command.
func (d *Driver) Snapshot() Snapshot {
	return d.snap.Load()
}

// Done is closed once Run has returned.
func (d *Driver) Done() <-chan struct{} {
	return d.done
}

func (d *Driver) submit(ctx context.Context, c command) (commandResult, error) {
	c.reply = make(chan commandResult, 1)
	select {
	case d.cmds <- c:
	case <-d.done:
		return commandResult{}, apperrors.New(apperrors.CodeUnavailable, "pipeline is not running")
	case <-ctx.Done():
		return commandResult{}, apperrors.Wrap(ctx.Err(), apperrors.CodeCancelled, "submitting command")
	}
	select {
	case res := <-c.reply:
		return res, nil
	case <-ctx.Done():
		return commandResult{}, apperrors.Wrap(ctx.Err(), apperrors.CodeCancelled, "waiting for command")
	}
}

func (d *Driver) publish() {
	d.snap.Publish(d.m.Snapshot())
}
