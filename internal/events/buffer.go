package events

import "sync"

// RingBuffer keeps the most recent events in memory.
type RingBuffer struct {
	mu     sync.RWMutex
	events []Event
	start  int
	count  int
}

func NewRingBuffer(size int) *RingBuffer {
	if size < 1 {
		size = 1
	}
	return &RingBuffer{events: make([]Event, size)}
}

// Add stores e, overwriting the oldest event once the buffer is full.
func (rb *RingBuffer) Add(e Event) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.count < len(rb.events) {
		rb.events[(rb.start+rb.count)%len(rb.events)] = e
		rb.count++
		return
	}
	rb.events[rb.start] = e
	rb.start = (rb.start + 1) % len(rb.events)
}

// Last returns the n newest events, oldest first. n <= 0 returns all.
func (rb *RingBuffer) Last(n int) []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n <= 0 || n > rb.count {
		n = rb.count
	}
	out := make([]Event, 0, n)
	for i := rb.count - n; i < rb.count; i++ {
		out = append(out, rb.events[(rb.start+i)%len(rb.events)])
	}
	return out
}

// Snapshot returns every buffered event, oldest first.
func (rb *RingBuffer) Snapshot() []Event {
	return rb.Last(0)
}

func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	clear(rb.events)
	rb.start, rb.count = 0, 0
}
