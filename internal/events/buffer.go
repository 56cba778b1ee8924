package events

import (
	"sync"
)

// Buffer is a thread-safe event queue that doubles its capacity when
// it reaches 70% full, so a burst of transitions never drops an event
// and never blocks the poller.
type Buffer struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []Event
	head     int
	tail     int
	count    int
	capacity int
	closed   bool
}

// NewBuffer creates a buffer with the given initial capacity.
func NewBuffer(initialCapacity int) *Buffer {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	b := &Buffer{
		buf:      make([]Event, initialCapacity),
		capacity: initialCapacity,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Publish appends an event. Returns false if the buffer is closed.
func (b *Buffer) Publish(ev Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := (b.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold {
		b.grow()
	}

	b.buf[b.tail] = ev
	b.tail = (b.tail + 1) % b.capacity
	b.count++

	b.cond.Signal()
	return true
}

// Receive blocks until an event is available or the buffer is closed
// and drained.
func (b *Buffer) Receive() (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}
	if b.count == 0 {
		return Event{}, false
	}
	return b.pop(), true
}

// Drain removes up to max buffered events without blocking. max <= 0
// drains everything.
func (b *Buffer) Drain(max int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	n := b.count
	if max > 0 && max < n {
		n = max
	}
	out := make([]Event, n)
	for i := range out {
		out[i] = b.pop()
	}
	return out
}

// Close stops accepting events. Receivers drain what remains, then get
// a closed signal.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// pop removes the head event. Must be called with the lock held and
// count > 0.
func (b *Buffer) pop() Event {
	ev := b.buf[b.head]
	b.buf[b.head] = Event{}
	b.head = (b.head + 1) % b.capacity
	b.count--
	return ev
}

// grow doubles capacity, unwrapping the ring. Must be called with the
// lock held.
func (b *Buffer) grow() {
	newBuf := make([]Event, b.capacity*2)
	if b.count > 0 {
		if b.head < b.tail {
			copy(newBuf, b.buf[b.head:b.tail])
		} else {
			n := copy(newBuf, b.buf[b.head:])
			copy(newBuf[n:], b.buf[:b.tail])
		}
	}
	b.buf = newBuf
	b.head = 0
	b.tail = b.count
	b.capacity *= 2
}
