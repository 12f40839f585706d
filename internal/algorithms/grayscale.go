package algorithms

import (
	"encoding/binary"

	"mcu-image-pipeline/internal/buffer"
)

// Luma weights in thousandths (ITU-R BT.601).
const (
	lumaR     = 299
	lumaG     = 587
	lumaB     = 114
	lumaScale = 1000
)

// RGB565Luma converts one packed 5/6/5 pixel to 8-bit luminance using
// integer truncation.
func RGB565Luma(pixel uint16) uint8 {
	r := uint32((pixel>>11)&0x1F) << 3
	g := uint32((pixel>>5)&0x3F) << 2
	b := uint32(pixel&0x1F) << 3
	return uint8((lumaR*r + lumaG*g + lumaB*b) / lumaScale)
}

// ToGrayscale reduces an RGB565 image to single-channel luminance.
func ToGrayscale(in, out buffer.Image) error {
	const op = "to grayscale"

	if err := buffer.RequireEncoding(op, "input", in, buffer.RGB565); err != nil {
		return err
	}
	if err := buffer.RequireEncoding(op, "output", out, buffer.Gray8); err != nil {
		return err
	}
	if err := buffer.RequireSameShape(op, in, out); err != nil {
		return err
	}

	src, dst := in.Pixels(), out.Pixels()
	for i := range dst {
		dst[i] = RGB565Luma(binary.LittleEndian.Uint16(src[2*i:]))
	}
	return nil
}
