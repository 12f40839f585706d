package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"mcu-image-pipeline/internal/buffer"
	"mcu-image-pipeline/internal/protocol"
)

// NoTimeout makes reads block until data arrives.
var NoTimeout = serial.NoTimeout

// drainWindow is how long ConnPort waits for more stale bytes while draining.
const drainWindow = 5 * time.Millisecond

// Port is a byte stream with a read timeout. A read that times out returns
// (0, nil). go.bug.st/serial ports satisfy it directly.
type Port interface {
	io.ReadWriter
	SetReadTimeout(t time.Duration) error
	// ResetInputBuffer discards bytes received but not yet read.
	ResetInputBuffer() error
}

// OpenSerial opens a UART at baudRate, 8 data bits, no parity, one stop bit.
func OpenSerial(name string, baudRate int) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	return port, nil
}

// Serial is the device side of the framed link: it asks the host for each
// frame with a read request and announces each result with a write header.
type Serial struct {
	port        Port
	pollTimeout time.Duration
	logger      logrus.FieldLogger
}

// NewSerial creates a Link over port. pollTimeout bounds how long a receive
// waits for the first payload byte before reporting ErrNoFrame.
func NewSerial(port Port, pollTimeout time.Duration, logger logrus.FieldLogger) *Serial {
	return &Serial{
		port:        port,
		pollTimeout: pollTimeout,
		logger:      logger,
	}
}

func (s *Serial) TryReceive(ctx context.Context, into buffer.Image) error {
	const op = "receive"

	if err := ctx.Err(); err != nil {
		return &TransportError{Op: op, Err: err}
	}
	// Late bytes from an earlier skipped or stalled frame must not become the
	// head of this one.
	if err := s.port.ResetInputBuffer(); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("drain input: %w", err)}
	}
	if err := protocol.WriteHeader(s.port, protocol.HeaderFor(protocol.ReadRequest, into)); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("send read request: %w", err)}
	}
	if err := s.port.SetReadTimeout(s.pollTimeout); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("set read timeout: %w", err)}
	}

	dst := into.Pixels()
	got := 0
	for got < len(dst) {
		if err := ctx.Err(); err != nil {
			return &TransportError{Op: op, Err: err}
		}
		n, err := s.port.Read(dst[got:])
		got += n
		if err != nil {
			return &TransportError{Op: op, Err: err}
		}
		if n == 0 {
			if got == 0 {
				return ErrNoFrame
			}
			s.logger.WithFields(logrus.Fields{
				"received": got,
				"expected": len(dst),
			}).Warn("Frame stopped mid-payload")
			return &TransportError{
				Op:  op,
				Err: fmt.Errorf("%w: %d of %d bytes", ErrIncompleteFrame, got, len(dst)),
			}
		}
	}

	s.logger.WithFields(logrus.Fields{
		"shape": into.String(),
		"bytes": got,
	}).Debug("Frame received")
	return nil
}

func (s *Serial) Transmit(ctx context.Context, img buffer.Image) error {
	const op = "transmit"

	if err := ctx.Err(); err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if err := protocol.WriteHeader(s.port, protocol.HeaderFor(protocol.WriteRequest, img)); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("send header: %w", err)}
	}
	if _, err := s.port.Write(img.Pixels()); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("send payload: %w", err)}
	}

	s.logger.WithFields(logrus.Fields{
		"shape": img.String(),
		"bytes": img.Size(),
	}).Debug("Frame transmitted")
	return nil
}

// ConnPort adapts a net.Conn to Port, turning read deadlines into timeouts.
// The simulation runs device and host over net.Pipe through it.
type ConnPort struct {
	net.Conn
	timeout time.Duration
}

// NewConnPort wraps conn with blocking reads.
func NewConnPort(conn net.Conn) *ConnPort {
	return &ConnPort{Conn: conn, timeout: NoTimeout}
}

func (c *ConnPort) SetReadTimeout(t time.Duration) error {
	c.timeout = t
	return nil
}

// ResetInputBuffer reads and drops whatever the peer sends until the line
// stays quiet for a short window.
func (c *ConnPort) ResetInputBuffer() error {
	buf := make([]byte, 256)
	for {
		if err := c.Conn.SetReadDeadline(time.Now().Add(drainWindow)); err != nil {
			return err
		}
		n, err := c.Conn.Read(buf)
		if errors.Is(err, os.ErrDeadlineExceeded) || (err == nil && n == 0) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (c *ConnPort) Read(p []byte) (int, error) {
	var deadline time.Time
	if c.timeout >= 0 {
		deadline = time.Now().Add(c.timeout)
	}
	if err := c.Conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}
	n, err := c.Conn.Read(p)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return n, nil
	}
	return n, err
}
