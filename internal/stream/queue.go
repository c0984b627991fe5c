// ABOUTME: Bounded frame queue with non-blocking put
// ABOUTME: A full queue drops the incoming frame instead of blocking the producer
package stream

import "sync"

// FrameQueue is a fixed-capacity FIFO of frames. Producers never block:
// TryPut drops the new frame when the queue is full. Consumers range over
// Frames until the queue is closed and drained.
type FrameQueue struct {
	mu     sync.RWMutex
	ch     chan []byte
	closed bool
}

// NewFrameQueue creates a queue holding at most capacity frames
func NewFrameQueue(capacity int) *FrameQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &FrameQueue{ch: make(chan []byte, capacity)}
}

// TryPut enqueues frame without blocking. It returns false when the queue is
// full or closed, in which case the frame is discarded.
func (q *FrameQueue) TryPut(frame []byte) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return false
	}

	select {
	case q.ch <- frame:
		return true
	default:
		return false
	}
}

// Frames returns the channel consumers receive from. It is closed once the
// queue is closed and every queued frame has been received.
func (q *FrameQueue) Frames() <-chan []byte {
	return q.ch
}

// Close stops accepting frames. Frames already queued remain readable.
// Safe to call repeatedly and concurrently with TryPut.
func (q *FrameQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Closed reports whether Close has been called
func (q *FrameQueue) Closed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.closed
}

// Len returns the number of queued frames
func (q *FrameQueue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity
func (q *FrameQueue) Cap() int {
	return cap(q.ch)
}
