package pipeline

import (
	"crypto/sha256"
	"log/slog"
	"sync"

	"github.com/corona10/goimagehash"

	"github.com/GriffinCanCode/vets/internal/metrics"
	"github.com/GriffinCanCode/vets/internal/screen"
)

// DefaultDedupeDistance restricts reuse to byte-identical captures.
const DefaultDedupeDistance = 0

// Frame identifies one capture for dedupe.
type Frame struct {
	Window string
	Digest [sha256.Size]byte
	Hash   *goimagehash.ImageHash // nil unless fuzzy matching is enabled
}

// Deduper remembers the last translated capture and its batch.
type Deduper struct {
	mu          sync.Mutex
	maxDistance int
	last        *Frame
	lastBatch   []TranslationPacket
}

// NewDeduper creates a deduper. Distance 0 reuses only identical captures from the same
// window; a positive distance also accepts perceptual-hash neighbours. Negative values
// fall back to the default.
func NewDeduper(maxDistance int) *Deduper {
	if maxDistance < 0 {
		maxDistance = DefaultDedupeDistance
	}
	return &Deduper{maxDistance: maxDistance}
}

// Frame fingerprints a PNG captured from window.
func (d *Deduper) Frame(window string, png []byte) Frame {
	f := Frame{Window: window, Digest: sha256.Sum256(png)}
	if d.maxDistance == 0 {
		return f
	}
	img, err := screen.DecodeImage(png)
	if err != nil {
		return f
	}
	if hash, err := goimagehash.PerceptionHash(img); err == nil {
		f.Hash = hash
	}
	return f
}

// Lookup returns a copy of the previous batch when f matches the last frame.
func (d *Deduper) Lookup(f Frame) ([]TranslationPacket, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.last == nil || len(d.lastBatch) == 0 || d.last.Window != f.Window {
		return nil, false
	}
	if d.last.Digest != f.Digest {
		if !d.near(f) {
			return nil, false
		}
	}

	slog.Debug("reusing previous batch for unchanged frame", "window", f.Window)
	metrics.DedupeHits.Inc()
	out := make([]TranslationPacket, len(d.lastBatch))
	copy(out, d.lastBatch)
	return out, true
}

func (d *Deduper) near(f Frame) bool {
	if d.maxDistance == 0 || d.last.Hash == nil || f.Hash == nil {
		return false
	}
	dist, err := d.last.Hash.Distance(f.Hash)
	return err == nil && dist <= d.maxDistance
}

// Remember stores the batch produced for f.
func (d *Deduper) Remember(f Frame, packets []TranslationPacket) {
	if len(packets) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = &f
	d.lastBatch = append([]TranslationPacket(nil), packets...)
}

// Reset forgets the last frame.
func (d *Deduper) Reset() {
	d.mu.Lock()
	d.last, d.lastBatch = nil, nil
	d.mu.Unlock()
}
