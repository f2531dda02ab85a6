package engine

import "sync"

// frameQueue is a FIFO of frames waiting for the Run loop.
//
// The queue is unbounded so producers such as a tracker callback never
// block on a slow step. The signal channel lets Run wait on it alongside
// context cancellation.
type frameQueue struct {
	mu     sync.Mutex
	frames []Frame
	closed bool
	signal chan struct{} // buffered, size 1
}

func newFrameQueue() *frameQueue {
	return &frameQueue{
		frames: make([]Frame, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends f. Returns false if the queue is closed.
func (q *frameQueue) Enqueue(f Frame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.frames = append(q.frames, f)

	// Buffer of 1 coalesces signals
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front frame without blocking.
func (q *frameQueue) TryDequeue() (Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.frames) == 0 {
		return Frame{}, false
	}
	f := q.frames[0]
	// Release the observation maps held by the backing array
	q.frames[0] = Frame{}
	if len(q.frames) == 1 {
		q.frames = q.frames[:0]
	} else {
		q.frames = q.frames[1:]
	}
	return f, true
}

// Wait returns a channel that fires when frames may be available. It is
// closed when the queue is closed.
func (q *frameQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued frames.
func (q *frameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Close stops accepting frames and wakes waiters.
func (q *frameQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

func (q *frameQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
