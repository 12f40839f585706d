package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"mcu-image-pipeline/internal/buffer"
	"mcu-image-pipeline/internal/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func gray(t *testing.T, width, height int) buffer.Image {
	t.Helper()
	img, err := buffer.NewImage(make([]byte, width*height), width, height, buffer.Gray8)
	require.NoError(t, err)
	return img
}

func TestLoopbackReceive(t *testing.T) {
	ctx := context.Background()
	l := NewLoopback([]byte{1, 2, 3, 4}, nil, []byte{1, 2})
	into := gray(t, 2, 2)

	require.NoError(t, l.TryReceive(ctx, into))
	assert.Equal(t, []byte{1, 2, 3, 4}, into.Pixels())

	assert.ErrorIs(t, l.TryReceive(ctx, into), ErrNoFrame)

	err := l.TryReceive(ctx, into)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, ErrIncompleteFrame)

	assert.ErrorIs(t, l.TryReceive(ctx, into), ErrNoFrame, "empty queue")
	assert.Equal(t, 4, l.Polls())
}

func TestLoopbackTransmit(t *testing.T) {
	ctx := context.Background()
	l := NewLoopback()
	img := gray(t, 2, 1)
	copy(img.Pixels(), []byte{0, 255})

	require.NoError(t, l.Transmit(ctx, img))

	boom := errors.New("line down")
	l.FailTransmits(boom)
	err := l.Transmit(ctx, img)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, boom)

	l.FailTransmits(nil)
	img.Pixels()[0] = 9
	require.NoError(t, l.Transmit(ctx, img))

	sent := l.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, []byte{0, 255}, sent[0].Payload, "payload is copied at send time")
	assert.Equal(t, protocol.Header{Request: protocol.WriteRequest, Height: 1, Width: 2, Encoding: buffer.Gray8}, sent[1].Header)
}

func TestLoopbackCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := NewLoopback([]byte{1})
	assert.ErrorIs(t, l.TryReceive(ctx, gray(t, 1, 1)), context.Canceled)
	assert.ErrorIs(t, l.Transmit(ctx, gray(t, 1, 1)), ErrTransport)
}

// pipePair returns a device-side Serial and the raw host end of a net.Pipe.
func pipePair(t *testing.T, pollTimeout time.Duration) (*Serial, net.Conn) {
	t.Helper()
	device, host := net.Pipe()
	t.Cleanup(func() {
		device.Close()
		host.Close()
	})
	logger, _ := test.NewNullLogger()
	return NewSerial(NewConnPort(device), pollTimeout, logger), host
}

func TestSerialReceiveFrame(t *testing.T) {
	link, host := pipePair(t, time.Second)
	into := gray(t, 3, 2)

	done := make(chan error, 1)
	go func() {
		s := protocol.NewScanner(host)
		h, err := s.Next()
		if err != nil {
			done <- err
			return
		}
		if h.Request != protocol.ReadRequest || h.Width != 3 || h.Height != 2 {
			done <- errors.New("unexpected request header")
			return
		}
		_, err = host.Write([]byte{1, 2, 3, 4, 5, 6})
		done <- err
	}()

	require.NoError(t, link.TryReceive(context.Background(), into))
	require.NoError(t, <-done)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, into.Pixels())
}

func TestSerialReceiveNothing(t *testing.T) {
	link, host := pipePair(t, 20*time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := protocol.NewScanner(host).Next()
		done <- err
	}()

	err := link.TryReceive(context.Background(), gray(t, 2, 2))
	assert.ErrorIs(t, err, ErrNoFrame)
	require.NoError(t, <-done)
}

func TestSerialReceiveIncomplete(t *testing.T) {
	link, host := pipePair(t, 50*time.Millisecond)

	done := make(chan error, 1)
	go func() {
		if _, err := protocol.NewScanner(host).Next(); err != nil {
			done <- err
			return
		}
		_, err := host.Write([]byte{1, 2})
		done <- err
	}()

	err := link.TryReceive(context.Background(), gray(t, 2, 2))
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, ErrIncompleteFrame)
	require.NoError(t, <-done)
}

func TestSerialTransmit(t *testing.T) {
	link, host := pipePair(t, time.Second)
	img := gray(t, 2, 2)
	copy(img.Pixels(), []byte{0, 255, 255, 0})

	type result struct {
		header  protocol.Header
		payload []byte
		err     error
	}
	done := make(chan result, 1)
	go func() {
		s := protocol.NewScanner(host)
		h, err := s.Next()
		if err != nil {
			done <- result{err: err}
			return
		}
		payload, err := s.ReadPayload(h, nil)
		done <- result{header: h, payload: payload, err: err}
	}()

	require.NoError(t, link.Transmit(context.Background(), img))
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, protocol.WriteRequest, res.header.Request)
	assert.Equal(t, []byte{0, 255, 255, 0}, res.payload)
}

func TestSerialTransmitClosedLink(t *testing.T) {
	link, host := pipePair(t, time.Second)
	require.NoError(t, host.Close())

	err := link.Transmit(context.Background(), gray(t, 1, 1))
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestConnPortTimeout(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	port := NewConnPort(a)
	require.NoError(t, port.SetReadTimeout(10*time.Millisecond))
	n, err := port.Read(make([]byte, 4))
	assert.Equal(t, 0, n)
	assert.NoError(t, err)
}

func TestNewSerialUsesLogger(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	device, host := net.Pipe()
	defer device.Close()
	defer host.Close()
	link := NewSerial(NewConnPort(device), time.Second, logger)

	go func() {
		_, _ = io.Copy(io.Discard, host)
	}()
	require.NoError(t, link.Transmit(context.Background(), gray(t, 1, 1)))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "Frame transmitted", hook.LastEntry().Message)
}

// scriptedPort answers the n-th read request with answers[n]. Bytes in
// late[n] arrive only after a read has timed out, like a slow host.
type scriptedPort struct {
	answers  [][]byte
	late     [][]byte
	inbox    []byte
	requests int
	resets   int
}

func (p *scriptedPort) Write(b []byte) (int, error) {
	if len(b) >= 3 && b[0] == 'S' && b[1] == 'T' && b[2] == byte(protocol.ReadRequest) {
		if p.requests < len(p.answers) {
			p.inbox = append(p.inbox, p.answers[p.requests]...)
		}
		p.requests++
	}
	return len(b), nil
}

func (p *scriptedPort) Read(b []byte) (int, error) {
	if len(p.inbox) == 0 {
		if i := p.requests - 1; i >= 0 && i < len(p.late) {
			p.inbox = append(p.inbox, p.late[i]...)
			p.late[i] = nil
		}
		return 0, nil
	}
	n := copy(b, p.inbox)
	p.inbox = p.inbox[n:]
	return n, nil
}

func (p *scriptedPort) SetReadTimeout(time.Duration) error { return nil }

func (p *scriptedPort) ResetInputBuffer() error {
	p.resets++
	p.inbox = nil
	return nil
}

func TestSerialDropsStaleBytes(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()

	t.Run("tail of a stalled frame", func(t *testing.T) {
		port := &scriptedPort{
			answers: [][]byte{{5, 5}, {9, 9, 9, 9}},
			late:    [][]byte{{1, 1}},
		}
		link := NewSerial(port, time.Millisecond, logger)

		assert.ErrorIs(t, link.TryReceive(ctx, gray(t, 2, 2)), ErrIncompleteFrame)

		into := gray(t, 2, 2)
		require.NoError(t, link.TryReceive(ctx, into))
		assert.Equal(t, []byte{9, 9, 9, 9}, into.Pixels())
	})

	t.Run("late answer to a skipped frame", func(t *testing.T) {
		port := &scriptedPort{
			answers: [][]byte{nil, {8, 8, 8, 8}},
			late:    [][]byte{{7, 7, 7, 7}},
		}
		link := NewSerial(port, time.Millisecond, logger)

		assert.ErrorIs(t, link.TryReceive(ctx, gray(t, 2, 2)), ErrNoFrame)

		into := gray(t, 2, 2)
		require.NoError(t, link.TryReceive(ctx, into))
		assert.Equal(t, []byte{8, 8, 8, 8}, into.Pixels())
		assert.Equal(t, 2, port.resets)
	})
}

func TestConnPortResetInputBuffer(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	written := make(chan error, 1)
	go func() {
		_, err := b.Write([]byte{1, 2, 3})
		written <- err
	}()

	port := NewConnPort(a)
	require.NoError(t, port.SetReadTimeout(time.Second))
	first := make([]byte, 1)
	n, err := port.Read(first)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// The rest of the write is still pending on the pipe.
	require.NoError(t, port.ResetInputBuffer())
	require.NoError(t, <-written)

	require.NoError(t, port.SetReadTimeout(10*time.Millisecond))
	n, err = port.Read(make([]byte, 4))
	assert.Equal(t, 0, n)
	assert.NoError(t, err)
}
