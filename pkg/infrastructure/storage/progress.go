package storage

import (
	"sync"

	"github.com/WangYihang/crcns-mirror/pkg/domain/entity"
)

// Progress carries the latest progress value of one transfer. It holds at
// most one pending value: a slow reader skips intermediate values but
// always observes the last one published before Close.
type Progress struct {
	ch     chan float64
	mu     sync.Mutex
	last   float64
	closed bool
}

// NewProgress creates an open progress channel
func NewProgress() *Progress {
	return &Progress{ch: make(chan float64, 1)}
}

// Publish records fraction. Values lower than the last published one are
// dropped so readers only ever see non-decreasing progress.
func (p *Progress) Publish(fraction float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || fraction < p.last {
		return
	}
	p.last = fraction
	select {
	case <-p.ch:
	default:
	}
	p.ch <- fraction
}

// Close ends the stream
func (p *Progress) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		p.closed = true
		close(p.ch)
	}
}

// C returns the receive side
func (p *Progress) C() <-chan float64 {
	return p.ch
}

// Last returns the last published value
func (p *Progress) Last() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// ProgressRegistry maps acquisition keys to their progress channels
type ProgressRegistry struct {
	mu      sync.Mutex
	entries map[entity.AcquisitionKey]*Progress
}

// NewProgressRegistry creates an empty registry
func NewProgressRegistry() *ProgressRegistry {
	return &ProgressRegistry{entries: make(map[entity.AcquisitionKey]*Progress)}
}

// Register returns the progress of key, creating a fresh one when the key
// is new or its previous transfer has finished.
func (r *ProgressRegistry) Register(key entity.AcquisitionKey) *Progress {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.entries[key]; ok && !p.isClosed() {
		return p
	}
	p := NewProgress()
	r.entries[key] = p
	return p
}

// Get returns the progress of key
func (r *ProgressRegistry) Get(key entity.AcquisitionKey) (*Progress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.entries[key]
	return p, ok
}

// Keys returns every registered key
func (r *ProgressRegistry) Keys() []entity.AcquisitionKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]entity.AcquisitionKey, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	return keys
}

func (p *Progress) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
