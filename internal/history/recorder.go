package history

import (
	"context"
	"sync"
	"time"

	"github.com/GriffinCanCode/vets/internal/metrics"
	"github.com/GriffinCanCode/vets/internal/pipeline"
	"github.com/GriffinCanCode/vets/internal/trace"
)

// Recorder defaults.
const (
	DefaultBatchSize  = 16
	DefaultFlushDelay = 500 * time.Millisecond
	writeTimeout      = 10 * time.Second
)

// Recorder accumulates completed batches and writes them to the store in the background.
// Record never blocks on disk, so the pipeline consumer can call it directly.
type Recorder struct {
	store      *Store
	maxSize    int
	flushDelay time.Duration
	maxEntries int

	mu      sync.Mutex
	items   []Entry
	timer   *time.Timer
	stopped bool
	wg      sync.WaitGroup
	writeMu sync.Mutex
}

var _ pipeline.Recorder = (*Recorder)(nil)

// NewRecorder creates a recorder writing to store and pruning it to maxEntries.
func NewRecorder(store *Store, maxSize int, flushDelay time.Duration, maxEntries int) *Recorder {
	if maxSize <= 0 {
		maxSize = DefaultBatchSize
	}
	if flushDelay <= 0 {
		flushDelay = DefaultFlushDelay
	}
	return &Recorder{
		store:      store,
		maxSize:    maxSize,
		flushDelay: flushDelay,
		maxEntries: maxEntries,
		items:      make([]Entry, 0, maxSize),
	}
}

// Record queues a batch for storage.
func (r *Recorder) Record(runID, window string, packets []pipeline.TranslationPacket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		metrics.HistoryWrites.WithLabelValues("dropped").Inc()
		return
	}

	r.items = append(r.items, Entry{
		RunID:     runID,
		Window:    window,
		CreatedAt: time.Now(),
		Packets:   append([]pipeline.TranslationPacket(nil), packets...),
	})

	if len(r.items) >= r.maxSize {
		r.flushLocked()
		return
	}

	if r.timer == nil {
		r.timer = time.AfterFunc(r.flushDelay, r.timerFlush)
	} else {
		r.timer.Reset(r.flushDelay)
	}
}

func (r *Recorder) timerFlush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked()
}

func (r *Recorder) flushLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if len(r.items) == 0 {
		return
	}
	items := r.items
	r.items = make([]Entry, 0, r.maxSize)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.write(items)
	}()
}

func (r *Recorder) write(items []Entry) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	ctx, span := trace.StartSpan(ctx, "history_flush")
	span.SetAttr("count", len(items))

	log := trace.Logger(ctx)
	err := r.store.Insert(ctx, items)
	span.EndErr(err)
	if err != nil {
		metrics.HistoryWrites.WithLabelValues("error").Add(float64(len(items)))
		log.Warn("history write failed", "error", err, "count", len(items))
		return
	}
	metrics.HistoryWrites.WithLabelValues("ok").Add(float64(len(items)))

	if r.maxEntries > 0 {
		if removed, err := r.store.Prune(ctx, r.maxEntries); err != nil {
			log.Warn("history prune failed", "error", err)
		} else if removed > 0 {
			log.Debug("history pruned", "removed", removed)
		}
	}
}

// Flush forces immediate write of pending items.
func (r *Recorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked()
}

// Stop flushes remaining items and waits for pending writes.
func (r *Recorder) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.flushLocked()
	r.mu.Unlock()
	r.wg.Wait()
}
