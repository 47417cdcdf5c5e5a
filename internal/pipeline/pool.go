package pipeline

import (
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/GriffinCanCode/vets/internal/errors"
)

// Pool runs workers on a bounded number of goroutines. Submission never blocks.
type Pool struct {
	g *errgroup.Group
}

// NewPool creates a pool of at most limit concurrent workers.
func NewPool(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	g := new(errgroup.Group)
	g.SetLimit(limit)
	return &Pool{g: g}
}

// TryGo starts fn if a slot is free. A panic in fn is reported through onPanic.
func (p *Pool) TryGo(fn func(), onPanic func(error)) bool {
	return p.g.TryGo(func() error {
		defer func() {
			if r := recover(); r != nil {
				err := apperrors.New(apperrors.CodeInternal, fmt.Sprintf("worker panic: %v", r))
				slog.Error("worker panicked", "panic", r)
				if onPanic != nil {
					onPanic(err)
				}
			}
		}()
		fn()
		return nil
	})
}

// Wait blocks until every started worker has returned.
func (p *Pool) Wait() {
	_ = p.g.Wait()
}
