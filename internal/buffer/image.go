// Package buffer holds the pixel buffer descriptor and the fixed workspace arena.
package buffer

import (
	"fmt"
	"math"
	"unsafe"
)

// Encoding is the pixel encoding of a buffer. Its value is the number of bytes
// per pixel, which is also the format byte used on the wire.
type Encoding uint8

const (
	Gray8  Encoding = 1 // single channel, 8 bit
	RGB565 Encoding = 2 // packed 5/6/5, little-endian uint16
	RGB888 Encoding = 3 // packed 24 bit
)

// MaxDimension is the largest width or height a descriptor accepts. The wire
// header carries dimensions as uint16.
const MaxDimension = math.MaxUint16

// Valid reports whether e is a known encoding.
func (e Encoding) Valid() bool {
	return e == Gray8 || e == RGB565 || e == RGB888
}

// BytesPerPixel returns the storage size of one pixel.
func (e Encoding) BytesPerPixel() int {
	return int(e)
}

func (e Encoding) String() string {
	switch e {
	case Gray8:
		return "gray8"
	case RGB565:
		return "rgb565"
	case RGB888:
		return "rgb888"
	default:
		return fmt.Sprintf("encoding(%d)", uint8(e))
	}
}

// ParseEncoding maps a name produced by String back to an Encoding.
func ParseEncoding(name string) (Encoding, error) {
	switch name {
	case "gray8", "grayscale":
		return Gray8, nil
	case "rgb565":
		return RGB565, nil
	case "rgb888":
		return RGB888, nil
	}
	return 0, Invalid("parse encoding", "unknown encoding %q", name)
}

// Image describes a pixel buffer it does not own. It is only built through
// NewImage and is immutable afterwards; operations may overwrite the contents
// of the referenced bytes when the image is their output.
type Image struct {
	pix    []byte
	width  int
	height int
	enc    Encoding
}

// NewImage validates the dimensions and encoding and returns a view over the
// first Size() bytes of buf.
func NewImage(buf []byte, width, height int, enc Encoding) (Image, error) {
	const op = "new image"

	if width <= 0 || height <= 0 {
		return Image{}, Invalid(op, "dimensions must be positive, got %dx%d", width, height)
	}
	if width > MaxDimension || height > MaxDimension {
		return Image{}, Invalid(op, "dimensions %dx%d exceed %d", width, height, MaxDimension)
	}
	if !enc.Valid() {
		return Image{}, Invalid(op, "unsupported encoding %s", enc)
	}

	size := width * height * enc.BytesPerPixel()
	if len(buf) < size {
		return Image{}, Invalid(op, "buffer holds %d bytes, %dx%d %s needs %d", len(buf), width, height, enc, size)
	}

	return Image{
		pix:    buf[:size:size],
		width:  width,
		height: height,
		enc:    enc,
	}, nil
}

// Width returns the width in pixels.
func (img Image) Width() int { return img.width }

// Height returns the height in pixels.
func (img Image) Height() int { return img.height }

// Encoding returns the pixel encoding.
func (img Image) Encoding() Encoding { return img.enc }

// Size returns the byte size: bytes per pixel x width x height.
func (img Image) Size() int { return len(img.pix) }

// PixelCount returns width x height.
func (img Image) PixelCount() int { return img.width * img.height }

// Pixels returns the bounds-checked view over the referenced bytes.
func (img Image) Pixels() []byte { return img.pix }

// IsZero reports whether img was never built by NewImage.
func (img Image) IsZero() bool { return img.pix == nil }

// SameShape reports whether both images have identical width and height.
func (img Image) SameShape(other Image) bool {
	return img.width == other.width && img.height == other.height
}

// Overlaps reports whether the two views share at least one byte.
func (img Image) Overlaps(other Image) bool {
	return overlaps(img.pix, other.pix)
}

func overlaps(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	pa := uintptr(unsafe.Pointer(&a[0]))
	pb := uintptr(unsafe.Pointer(&b[0]))
	return pa < pb+uintptr(len(b)) && pb < pa+uintptr(len(a))
}

func (img Image) String() string {
	return fmt.Sprintf("%dx%d %s", img.width, img.height, img.enc)
}

// RequireEncoding returns a *ValidationError naming op when img is not enc.
func RequireEncoding(op, role string, img Image, enc Encoding) error {
	if img.IsZero() {
		return Invalid(op, "%s image is not initialized", role)
	}
	if img.enc != enc {
		return Invalid(op, "%s image must be %s, got %s", role, enc, img.enc)
	}
	return nil
}

// RequireSameShape returns a *ValidationError naming op when the dimensions differ.
func RequireSameShape(op string, in, out Image) error {
	if !in.SameShape(out) {
		return Invalid(op, "dimension mismatch: input %dx%d, output %dx%d", in.width, in.height, out.width, out.height)
	}
	return nil
}
