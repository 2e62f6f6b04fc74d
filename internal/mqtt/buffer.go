package mqtt

import (
	"sync"
	"time"
)

// Received is an inbound message kept for diagnostics.
type Received struct {
	At      time.Time
	Topic   string
	Payload string
}

// ringBuffer is a fixed-capacity FIFO that overwrites its oldest entry when full.
// Not safe for concurrent use; Recorder synchronizes it.
type ringBuffer struct {
	buf      []Received
	capacity int
	head     int // next write position
	count    int
	dropped  int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{
		buf:      make([]Received, capacity),
		capacity: capacity,
	}
}

func (r *ringBuffer) push(msg Received) {
	r.buf[r.head] = msg
	r.head = (r.head + 1) % r.capacity
	if r.count == r.capacity {
		r.dropped++
		return
	}
	r.count++
}

// items returns the contents oldest first without draining.
func (r *ringBuffer) items() []Received {
	if r.count == 0 {
		return nil
	}
	out := make([]Received, r.count)
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(start+i)%r.capacity]
	}
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}

// maxRecordedPayload bounds the bytes kept per message.
const maxRecordedPayload = 512

// Recorder keeps the most recent inbound messages.
type Recorder struct {
	mu  sync.Mutex
	buf *ringBuffer
}

// NewRecorder returns a Recorder holding up to capacity messages.
func NewRecorder(capacity int) *Recorder {
	if capacity < 1 {
		capacity = 1
	}
	return &Recorder{buf: newRingBuffer(capacity)}
}

// Record stores a message, truncating long payloads.
func (r *Recorder) Record(at time.Time, topic string, payload []byte) {
	p := payload
	if len(p) > maxRecordedPayload {
		p = p[:maxRecordedPayload]
	}
	r.mu.Lock()
	r.buf.push(Received{At: at, Topic: topic, Payload: string(p)})
	r.mu.Unlock()
}

// Recent returns the recorded messages, oldest first.
func (r *Recorder) Recent() []Received {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.items()
}

// Len returns the number of messages held.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.len()
}

// Dropped returns how many messages were overwritten.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.dropped
}
