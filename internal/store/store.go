// Package store holds the bounded, insertion-ordered buffer of
// enriched messages shared between the ingestion path (sole writer)
// and the history/broadcast readers.
package store

import (
	"sync"

	"github.com/you/slack-mirror/internal/core"
)

// Store is the message buffer contract: FIFO eviction at capacity,
// ordered snapshots, safe under concurrent Append/Snapshot.
type Store interface {
	Append(msg core.Message) error
	Snapshot() ([]core.Message, error)
}

// Ring is the in-memory backend: a fixed-capacity circular buffer.
type Ring struct {
	mu    sync.Mutex
	buf   []core.Message
	start int
	count int
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{buf: make([]core.Message, capacity)}
}

// Append adds msg, evicting the oldest entry when full. O(1).
func (r *Ring) Append(msg core.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = msg
		r.count++
		return nil
	}
	r.buf[r.start] = msg
	r.start = (r.start + 1) % len(r.buf)
	return nil
}

// Snapshot returns the current contents in arrival order.
func (r *Ring) Snapshot() ([]core.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]core.Message, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out, nil
}

// Len reports the number of buffered messages.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Capacity reports the fixed buffer capacity.
func (r *Ring) Capacity() int {
	return len(r.buf)
}
