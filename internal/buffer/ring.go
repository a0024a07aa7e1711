// Package buffer provides a bounded, thread-safe store of the most
// recent events. When the buffer is full the oldest event is evicted.
package buffer

import (
	"sync"
	"sync/atomic"
	"time"

	"hostmend/internal/schema"
)

// DefaultCapacity is used when no capacity is configured.
const DefaultCapacity = 1000

// Ring is a fixed-capacity circular buffer of events in insertion order.
// Insert never fails; once the capacity is reached each insert evicts
// the oldest retained event.
type Ring struct {
	buffer []*schema.Event
	size   int
	head   int // index of the oldest retained event
	count  int
	mu     sync.Mutex

	// Counters (accessed atomically)
	totalInserted uint64
	totalEvicted  uint64
}

// NewRing creates a Ring with the specified capacity. Non-positive
// capacities fall back to DefaultCapacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{
		buffer: make([]*schema.Event, capacity),
		size:   capacity,
	}
}

// Insert appends an event, evicting the oldest entry when full.
func (r *Ring) Insert(event *schema.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == r.size {
		// Overwrite the oldest slot.
		r.buffer[r.head] = event
		r.head = (r.head + 1) % r.size
		atomic.AddUint64(&r.totalEvicted, 1)
	} else {
		r.buffer[(r.head+r.count)%r.size] = event
		r.count++
	}
	atomic.AddUint64(&r.totalInserted, 1)
}

// Snapshot returns the retained events oldest-first. The returned slice
// is a copy and reflects the buffer state at call time.
func (r *Ring) Snapshot() []*schema.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*schema.Event, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buffer[(r.head+i)%r.size]
	}
	return out
}

// Within returns the retained events, oldest-first, whose timestamp is
// no older than now minus window.
func (r *Ring) Within(window time.Duration, now time.Time) []*schema.Event {
	cutoff := now.Add(-window)

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*schema.Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		e := r.buffer[(r.head+i)%r.size]
		if !e.Timestamp.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the current number of retained events.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the fixed capacity.
func (r *Ring) Cap() int {
	return r.size
}

// Metrics returns buffer statistics.
func (r *Ring) Metrics() Metrics {
	return Metrics{
		Inserted: atomic.LoadUint64(&r.totalInserted),
		Evicted:  atomic.LoadUint64(&r.totalEvicted),
		Retained: r.Len(),
		Capacity: r.size,
	}
}

// Metrics holds statistics about buffer operations.
type Metrics struct {
	Inserted uint64 `json:"inserted"`
	Evicted  uint64 `json:"evicted"`
	Retained int    `json:"retained"`
	Capacity int    `json:"capacity"`
}
