package game

import (
	"runtime"
	"sync/atomic"
)

// cacheLineSize is the typical CPU cache line size (64 bytes on x86-64)
const cacheLineSize = 64

// padding keeps producer and consumer cursors on separate cache lines
type padding [cacheLineSize]byte

// InputQueue is a bounded lock-free MPSC ring buffer (Vyukov). Any number of
// goroutines may push; only the tick goroutine pops.
//
// Every slot carries a sequence number so the consumer never reads a slot a
// producer has claimed but not yet written.
type InputQueue[T any] struct {
	_pad0 padding

	head  atomic.Uint64 // next slot to claim (producers)
	_pad1 padding

	tail  atomic.Uint64 // next slot to read (consumer)
	_pad2 padding

	mask  uint64
	slots []queueSlot[T]
}

type queueSlot[T any] struct {
	seq  atomic.Uint64
	item T
}

// NewInputQueue creates a queue. capacity is rounded up to a power of 2.
func NewInputQueue[T any](capacity int) *InputQueue[T] {
	size := 1
	for size < capacity {
		size <<= 1
	}

	q := &InputQueue[T]{
		mask:  uint64(size - 1),
		slots: make([]queueSlot[T], size),
	}
	for i := range q.slots {
		q.slots[i].seq.Store(uint64(i))
	}
	return q
}

// TryPush adds an item, returning false if the queue is full.
// Safe for multiple concurrent producers.
func (q *InputQueue[T]) TryPush(item T) bool {
	for {
		head := q.head.Load()
		slot := &q.slots[head&q.mask]
		seq := slot.seq.Load()

		switch {
		case seq == head:
			if q.head.CompareAndSwap(head, head+1) {
				slot.item = item
				slot.seq.Store(head + 1)
				return true
			}
		case seq < head:
			return false // Queue full
		}

		// Another producer won, retry
		runtime.Gosched()
	}
}

// TryPop removes an item, returning false if the queue is empty or the next
// item is still being written. Single consumer only.
func (q *InputQueue[T]) TryPop() (T, bool) {
	var zero T

	tail := q.tail.Load()
	slot := &q.slots[tail&q.mask]
	if slot.seq.Load() != tail+1 {
		return zero, false
	}

	item := slot.item
	slot.item = zero
	slot.seq.Store(tail + q.mask + 1)
	q.tail.Store(tail + 1)
	return item, true
}

// DrainTo pops up to len(buf) items into buf and returns how many were written.
func (q *InputQueue[T]) DrainTo(buf []T) int {
	count := 0
	for count < len(buf) {
		item, ok := q.TryPop()
		if !ok {
			break
		}
		buf[count] = item
		count++
	}
	return count
}

// Len returns the approximate number of queued items
func (q *InputQueue[T]) Len() int {
	head := q.head.Load()
	tail := q.tail.Load()
	if head < tail {
		return 0
	}
	return int(head - tail)
}

// Cap returns the queue capacity
func (q *InputQueue[T]) Cap() int {
	return int(q.mask + 1)
}
