package transport

import (
	"context"
	"fmt"
	"sync"

	"mcu-image-pipeline/internal/buffer"
	"mcu-image-pipeline/internal/protocol"
)

// Frame is a transmitted image captured by Loopback.
type Frame struct {
	Header  protocol.Header
	Payload []byte
}

// Loopback is an in-memory Link. Inbound frames are queued by the test or
// simulation; a nil entry makes one poll find nothing.
type Loopback struct {
	mu          sync.Mutex
	inbound     [][]byte
	sent        []Frame
	transmitErr error
	polls       int
}

// NewLoopback creates a Loopback with the given inbound frames.
func NewLoopback(frames ...[]byte) *Loopback {
	l := &Loopback{}
	l.Queue(frames...)
	return l
}

// Queue appends inbound frames.
func (l *Loopback) Queue(frames ...[]byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, f := range frames {
		if f == nil {
			l.inbound = append(l.inbound, nil)
			continue
		}
		l.inbound = append(l.inbound, append([]byte(nil), f...))
	}
}

// FailTransmits makes every following Transmit fail with err until cleared
// with nil.
func (l *Loopback) FailTransmits(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transmitErr = err
}

// Sent returns copies of the transmitted frames in order.
func (l *Loopback) Sent() []Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Frame, len(l.sent))
	copy(out, l.sent)
	return out
}

// Polls returns how many times TryReceive was called.
func (l *Loopback) Polls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.polls
}

func (l *Loopback) TryReceive(ctx context.Context, into buffer.Image) error {
	if err := ctx.Err(); err != nil {
		return &TransportError{Op: "receive", Err: err}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.polls++

	if len(l.inbound) == 0 {
		return ErrNoFrame
	}
	frame := l.inbound[0]
	l.inbound = l.inbound[1:]

	if frame == nil {
		return ErrNoFrame
	}
	if len(frame) != into.Size() {
		return &TransportError{
			Op:  "receive",
			Err: fmt.Errorf("%w: got %d bytes, want %d for %s", ErrIncompleteFrame, len(frame), into.Size(), into),
		}
	}
	copy(into.Pixels(), frame)
	return nil
}

func (l *Loopback) Transmit(ctx context.Context, img buffer.Image) error {
	if err := ctx.Err(); err != nil {
		return &TransportError{Op: "transmit", Err: err}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.transmitErr != nil {
		return &TransportError{Op: "transmit", Err: l.transmitErr}
	}
	l.sent = append(l.sent, Frame{
		Header:  protocol.HeaderFor(protocol.WriteRequest, img),
		Payload: append([]byte(nil), img.Pixels()...),
	})
	return nil
}
