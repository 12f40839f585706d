// Package protocol implements the frame header exchanged with the host.
//
// A header is eight bytes:
//
//	'S' 'T' | request (1) | height u16 LE | width u16 LE | format (1)
//
// After a ReadRequest header the host sends height*width*format payload bytes
// to the device; after a WriteRequest header the device sends them to the host.
package protocol

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"mcu-image-pipeline/internal/buffer"
)

// Request tells the host which way the next payload travels.
type Request uint8

const (
	// ReadRequest asks the host to send an image to the device.
	ReadRequest Request = 'R'
	// WriteRequest announces an image sent by the device.
	WriteRequest Request = 'W'
)

func (r Request) String() string {
	switch r {
	case ReadRequest:
		return "device-reads"
	case WriteRequest:
		return "device-writes"
	default:
		return fmt.Sprintf("request(%d)", uint8(r))
	}
}

// HeaderSize is the encoded size of a Header.
const HeaderSize = 8

var marker = [2]byte{'S', 'T'}

// ErrBadHeader is returned for a header with an unknown request or format.
var ErrBadHeader = errors.New("bad frame header")

// Header describes the payload that follows it.
type Header struct {
	Request  Request
	Height   uint16
	Width    uint16
	Encoding buffer.Encoding
}

// HeaderFor builds the header announcing img.
func HeaderFor(r Request, img buffer.Image) Header {
	return Header{
		Request:  r,
		Height:   uint16(img.Height()),
		Width:    uint16(img.Width()),
		Encoding: img.Encoding(),
	}
}

// PayloadSize returns height*width*bytes-per-pixel.
func (h Header) PayloadSize() int {
	return int(h.Height) * int(h.Width) * h.Encoding.BytesPerPixel()
}

// Validate checks the request and encoding and rejects empty frames.
func (h Header) Validate() error {
	if h.Request != ReadRequest && h.Request != WriteRequest {
		return fmt.Errorf("%w: unknown request %d", ErrBadHeader, uint8(h.Request))
	}
	if !h.Encoding.Valid() {
		return fmt.Errorf("%w: unknown format %d", ErrBadHeader, uint8(h.Encoding))
	}
	if h.Height == 0 || h.Width == 0 {
		return fmt.Errorf("%w: empty frame %dx%d", ErrBadHeader, h.Width, h.Height)
	}
	return nil
}

// MarshalBinary encodes the header.
func (h Header) MarshalBinary() ([]byte, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	b := make([]byte, HeaderSize)
	b[0], b[1] = marker[0], marker[1]
	b[2] = byte(h.Request)
	binary.LittleEndian.PutUint16(b[3:], h.Height)
	binary.LittleEndian.PutUint16(b[5:], h.Width)
	b[7] = byte(h.Encoding)
	return b, nil
}

// UnmarshalBinary decodes exactly one header.
func (h *Header) UnmarshalBinary(b []byte) error {
	if len(b) != HeaderSize {
		return fmt.Errorf("%w: length %d", ErrBadHeader, len(b))
	}
	if b[0] != marker[0] || b[1] != marker[1] {
		return fmt.Errorf("%w: missing start marker", ErrBadHeader)
	}
	decoded := Header{
		Request:  Request(b[2]),
		Height:   binary.LittleEndian.Uint16(b[3:]),
		Width:    binary.LittleEndian.Uint16(b[5:]),
		Encoding: buffer.Encoding(b[7]),
	}
	if err := decoded.Validate(); err != nil {
		return err
	}
	*h = decoded
	return nil
}

// WriteHeader encodes h to w.
func WriteHeader(w io.Writer, h Header) error {
	b, err := h.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Scanner finds headers in a byte stream, skipping noise before the marker.
type Scanner struct {
	r *bufio.Reader
}

// NewScanner wraps r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReader(r)}
}

// Next blocks until a valid header arrives. Bytes that do not start a valid
// header are discarded.
func (s *Scanner) Next() (Header, error) {
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return Header{}, err
		}
		if b != marker[0] {
			continue
		}
		next, err := s.r.Peek(1)
		if err != nil {
			return Header{}, err
		}
		if next[0] != marker[1] {
			continue
		}

		raw := make([]byte, HeaderSize)
		raw[0] = b
		if _, err := io.ReadFull(s.r, raw[1:]); err != nil {
			return Header{}, err
		}
		var h Header
		if err := h.UnmarshalBinary(raw); err != nil {
			if errors.Is(err, ErrBadHeader) {
				continue
			}
			return Header{}, err
		}
		return h, nil
	}
}

// ReadPayload reads exactly h.PayloadSize() bytes following a header.
func (s *Scanner) ReadPayload(h Header, dst []byte) ([]byte, error) {
	n := h.PayloadSize()
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]
	if _, err := io.ReadFull(s.r, dst); err != nil {
		return nil, err
	}
	return dst, nil
}
