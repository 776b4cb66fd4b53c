package telemetry

import (
	"fmt"
	"sync"
)

// History is a thread-safe ring buffer retaining the most recent samples.
// Once full, every insert evicts the oldest sample.
type History struct {
	capacity int

	mu    sync.Mutex
	items []Telemetry
	start int // index of the oldest sample
	size  int
}

// NewHistory creates a history holding up to capacity samples.
// Returns an error if capacity is not positive.
func NewHistory(capacity int) (*History, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid history capacity: %d", capacity)
	}
	return &History{
		capacity: capacity,
		items:    make([]Telemetry, capacity),
	}, nil
}

// Add appends a sample, evicting the oldest one when the buffer is full.
// Returns an error if the sample is nil.
func (h *History) Add(t *Telemetry) error {
	if t == nil {
		return fmt.Errorf("cannot add nil telemetry")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.size < h.capacity {
		h.items[(h.start+h.size)%h.capacity] = *t
		h.size++
		return nil
	}

	h.items[h.start] = *t
	h.start = (h.start + 1) % h.capacity
	return nil
}

// Latest returns a copy of the newest sample, or nil when empty
func (h *History) Latest() *Telemetry {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.size == 0 {
		return nil
	}
	t := h.items[(h.start+h.size-1)%h.capacity]
	return &t
}

// Snapshot returns up to n of the newest samples, oldest first.
// A non-positive n returns everything retained.
func (h *History) Snapshot(n int) []Telemetry {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.size == 0 {
		return nil
	}
	if n <= 0 || n > h.size {
		n = h.size
	}

	results := make([]Telemetry, 0, n)
	for i := h.size - n; i < h.size; i++ {
		results = append(results, h.items[(h.start+i)%h.capacity])
	}
	return results
}

// IsFull returns true if the buffer has reached its capacity
func (h *History) IsFull() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size >= h.capacity
}

// Len returns the number of retained samples
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

// Cap returns the maximum number of retained samples
func (h *History) Cap() int {
	return h.capacity
}

// Clear removes all samples
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.items)
	h.start = 0
	h.size = 0
}
