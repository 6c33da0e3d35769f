package prefetch

import (
	"sync"
	"time"
)

// DefaultHistorySize bounds the interaction history.
const DefaultHistorySize = 20

// Interaction is one recorded use of a key.
type Interaction struct {
	Key string
	At  time.Time
}

// History is a bounded FIFO of interactions; the oldest is dropped first.
type History struct {
	mu   sync.Mutex
	buf  []Interaction
	size int
}

// NewHistory returns a history holding at most size interactions
// (DefaultHistorySize when size <= 0).
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{buf: make([]Interaction, 0, size), size: size}
}

// Add appends it, dropping the oldest interaction when full.
func (h *History) Add(it Interaction) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.buf) == h.size {
		copy(h.buf, h.buf[1:])
		h.buf = h.buf[:h.size-1]
	}
	h.buf = append(h.buf, it)
}

// Snapshot returns a copy, oldest first.
func (h *History) Snapshot() []Interaction {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Interaction, len(h.buf))
	copy(out, h.buf)
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.buf)
}
