// Package transport moves pixel buffers between the device and the host.
package transport

import (
	"context"
	"errors"
	"fmt"

	"mcu-image-pipeline/internal/buffer"
)

var (
	// ErrNoFrame means nothing was available; the caller skips, not retries.
	ErrNoFrame = errors.New("no frame available")

	// ErrIncompleteFrame means a frame started but did not finish in time.
	ErrIncompleteFrame = errors.New("incomplete frame")

	// ErrTransport matches every *TransportError.
	ErrTransport = errors.New("transport error")
)

// TransportError wraps a failure of the underlying link. A frame that hits
// one is lost; there is no retry.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// Link is the device's connection to the host.
type Link interface {
	// TryReceive fills into.Pixels() with one complete frame shaped like into.
	// It does not wait for a frame to be produced: it returns ErrNoFrame when
	// none is available and never leaves a partial frame reported as success.
	TryReceive(ctx context.Context, into buffer.Image) error

	// Transmit sends img as one complete frame. Failures are reported as
	// *TransportError.
	Transmit(ctx context.Context, img buffer.Image) error
}
