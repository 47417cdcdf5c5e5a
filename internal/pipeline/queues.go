package pipeline

import "github.com/GriffinCanCode/vets/internal/syncx"

// Queues are the hand-off points between workers and the consumer.
type Queues struct {
	Captures *syncx.Queue[CaptureResult]
	Batches  *syncx.Queue[BatchResult]
	Failures *syncx.Queue[Failure]
	Progress *syncx.Queue[Progress]
}

// NewQueues creates four empty queues sharing one drain order.
func NewQueues(order syncx.Order) *Queues {
	return &Queues{
		Captures: syncx.NewQueue[CaptureResult](order),
		Batches:  syncx.NewQueue[BatchResult](order),
		Failures: syncx.NewQueue[Failure](order),
		Progress: syncx.NewQueue[Progress](order),
	}
}

// Pending is the total number of queued items.
func (q *Queues) Pending() int {
	return q.Captures.Len() + q.Batches.Len() + q.Failures.Len() + q.Progress.Len()
}
