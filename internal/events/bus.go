// Package events provides the process-wide broadcast channel for resolution
// change notifications.
package events

import (
	"sync"
	"time"
)

// Envelope wraps a published value with its sequence number and timestamp.
// Sequence numbers are monotonic per bus and drive late-client replay.
type Envelope[T any] struct {
	Seq int64
	At  time.Time

	Payload T
}

// Bus is a one-to-many broadcast primitive. Delivery to every subscriber
// registered at publish time is synchronous and complete before Publish
// returns. A small ring buffer retains recent envelopes for late clients.
type Bus[T any] struct {
	mu      sync.Mutex
	nextSeq int64

	ring  []Envelope[T]
	start int
	size  int

	subs      map[int]func(Envelope[T])
	nextSubID int
}

// NewBus creates a bus retaining the last capacity envelopes.
func NewBus[T any](capacity int) *Bus[T] {
	if capacity <= 0 {
		capacity = 64
	}
	return &Bus[T]{
		ring: make([]Envelope[T], capacity),
		subs: map[int]func(Envelope[T]){},
	}
}

// Publish delivers v to all current subscribers before returning, and
// returns the envelope's sequence number. Subscribers added or cancelled
// during delivery do not affect the in-flight fan-out.
func (b *Bus[T]) Publish(v T) int64 {
	b.mu.Lock()
	b.nextSeq++
	ev := Envelope[T]{
		Seq:     b.nextSeq,
		At:      time.Now().UTC(),
		Payload: v,
	}
	b.pushLocked(ev)

	targets := make([]func(Envelope[T]), 0, len(b.subs))
	for _, fn := range b.subs {
		targets = append(targets, fn)
	}
	b.mu.Unlock()

	for _, fn := range targets {
		fn(ev)
	}
	return ev.Seq
}

// Subscribe registers fn for future publishes and returns a cancel handle.
// Cancelling twice is safe.
func (b *Bus[T]) Subscribe(fn func(Envelope[T])) (cancel func()) {
	b.mu.Lock()
	id := b.nextSubID
	b.nextSubID++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// SnapshotSince returns buffered envelopes with Seq > seq, oldest first.
// seq 0 returns the full buffer.
func (b *Bus[T]) SnapshotSince(seq int64) []Envelope[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Envelope[T], 0, b.size)
	for i := 0; i < b.size; i++ {
		ev := b.ring[(b.start+i)%len(b.ring)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}

// Stream bridges the bus to a channel consumer, such as an SSE handler.
// Envelopes that do not fit the buffer are dropped for that consumer only;
// the returned stop function cancels the subscription and closes the channel.
func (b *Bus[T]) Stream(buffer int) (<-chan Envelope[T], func()) {
	if buffer <= 0 {
		buffer = 128
	}
	ch := make(chan Envelope[T], buffer)

	var mu sync.Mutex
	closed := false

	cancel := b.Subscribe(func(ev Envelope[T]) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- ev:
		default:
		}
	})

	stop := func() {
		cancel()
		mu.Lock()
		if !closed {
			closed = true
			close(ch)
		}
		mu.Unlock()
	}
	return ch, stop
}

func (b *Bus[T]) pushLocked(ev Envelope[T]) {
	capacity := len(b.ring)
	if b.size < capacity {
		b.ring[(b.start+b.size)%capacity] = ev
		b.size++
		return
	}
	// Overwrite oldest.
	b.ring[b.start] = ev
	b.start = (b.start + 1) % capacity
}
