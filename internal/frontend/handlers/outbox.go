package handlers

import (
	"fmt"
	"sync"
)

// DefaultOutboxSize bounds an Outbox when no size is configured.
const DefaultOutboxSize = 64

// Outbox queues encoded frames for one connection. A writer goroutine owned by
// the transport drains Frames and performs the actual I/O.
type Outbox struct {
	connID string
	frames chan []byte
	mu     sync.Mutex
	closed bool
}

// NewOutbox creates an Outbox for connID.
//
// Precondition: connID must be non-empty.
// Postcondition: Returns an open Outbox holding at most size frames; size <= 0
// selects DefaultOutboxSize.
func NewOutbox(connID string, size int) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	return &Outbox{
		connID: connID,
		frames: make(chan []byte, size),
	}
}

// ConnID returns the owning connection's identifier.
func (o *Outbox) ConnID() string {
	return o.connID
}

// Push enqueues frame without blocking.
//
// Postcondition: frame is queued, or an error is returned if the outbox is
// closed or full.
func (o *Outbox) Push(frame []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("outbox %s is closed", o.connID)
	}
	select {
	case o.frames <- frame:
		return nil
	default:
		return fmt.Errorf("outbox %s buffer full", o.connID)
	}
}

// Frames returns the read side drained by the transport's writer.
func (o *Outbox) Frames() <-chan []byte {
	return o.frames
}

// Close closes the frame channel. Further Push calls return an error.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.frames)
	}
}

// IsClosed reports whether Close has been called.
func (o *Outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
