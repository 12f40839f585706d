package host

import (
	"encoding/binary"
	"fmt"

	"mcu-image-pipeline/internal/buffer"
)

// SyntheticSource renders a test card instead of reading files: a bright
// disc on a dark background with a little deterministic noise. The path is
// ignored.
type SyntheticSource struct{}

func (SyntheticSource) Load(_ string, width, height int, enc buffer.Encoding) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if !enc.Valid() {
		return nil, fmt.Errorf("unsupported encoding: %s", enc)
	}

	pix := make([]byte, width*height*enc.BytesPerPixel())
	cx, cy := width/2, height/2
	r := min(width, height) / 3

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			noise := (x*7 + y*13) % 16
			dx, dy := x-cx, y-cy
			inside := dx*dx+dy*dy <= r*r

			i := y*width + x
			switch enc {
			case buffer.Gray8:
				if inside {
					pix[i] = uint8(190 + noise)
				} else {
					pix[i] = uint8(40 + noise)
				}
			case buffer.RGB565:
				var red, green, blue int
				if inside {
					red, green, blue = 31, 40+noise, 4
				} else {
					red, green, blue = 2, 8+noise, 20
				}
				binary.LittleEndian.PutUint16(pix[2*i:], uint16(red<<11|green<<5|blue))
			case buffer.RGB888:
				v := uint8(40 + noise)
				if inside {
					v = uint8(190 + noise)
				}
				pix[3*i], pix[3*i+1], pix[3*i+2] = v, v, v
			}
		}
	}
	return pix, nil
}
