// Morphological operations over single-channel images
package algorithms

import (
	"mcu-image-pipeline/internal/buffer"
)

// DefaultKernelSize is the structuring element used by the device stages.
const DefaultKernelSize = 3

// MaxKernelSize bounds the structuring element to the firmware's uint8 width.
const MaxKernelSize = 255

// ValidateKernelSize accepts odd sizes in [1, MaxKernelSize].
func ValidateKernelSize(op string, kernelSize int) error {
	if kernelSize < 1 || kernelSize > MaxKernelSize {
		return buffer.Invalid(op, "kernel size must be between 1 and %d, got %d", MaxKernelSize, kernelSize)
	}
	if kernelSize%2 == 0 {
		return buffer.Invalid(op, "kernel size must be odd, got %d", kernelSize)
	}
	return nil
}

func validateMorphology(op string, in, out buffer.Image, kernelSize int) error {
	if err := buffer.RequireEncoding(op, "input", in, buffer.Gray8); err != nil {
		return err
	}
	if err := buffer.RequireEncoding(op, "output", out, buffer.Gray8); err != nil {
		return err
	}
	if err := buffer.RequireSameShape(op, in, out); err != nil {
		return err
	}
	return ValidateKernelSize(op, kernelSize)
}

// Erode sets each interior pixel of out to the minimum of its kernelSize x
// kernelSize neighbourhood in in. Pixels within kernelSize/2 of an edge are
// copied unchanged. in and out must be distinct buffers.
func Erode(in, out buffer.Image, kernelSize int) error {
	const op = "erosion"
	if err := validateMorphology(op, in, out, kernelSize); err != nil {
		return err
	}
	if in.Overlaps(out) {
		return buffer.Invalid(op, "input and output must not overlap")
	}
	neighborhood(in, out, kernelSize, false)
	return nil
}

// Dilate is Erode with the neighbourhood maximum.
func Dilate(in, out buffer.Image, kernelSize int) error {
	const op = "dilation"
	if err := validateMorphology(op, in, out, kernelSize); err != nil {
		return err
	}
	if in.Overlaps(out) {
		return buffer.Invalid(op, "input and output must not overlap")
	}
	neighborhood(in, out, kernelSize, true)
	return nil
}

// Open erodes in into scratch, then dilates scratch into out.
// out may be in itself.
func Open(in, out buffer.Image, kernelSize int, scratch []byte) error {
	return compose("opening", in, out, kernelSize, scratch, false)
}

// Close dilates in into scratch, then erodes scratch into out.
// out may be in itself.
func Close(in, out buffer.Image, kernelSize int, scratch []byte) error {
	return compose("closing", in, out, kernelSize, scratch, true)
}

func compose(op string, in, out buffer.Image, kernelSize int, scratch []byte, dilateFirst bool) error {
	if err := validateMorphology(op, in, out, kernelSize); err != nil {
		return err
	}
	if len(scratch) < in.Size() {
		return &buffer.CapacityError{Op: op, Need: in.Size(), Capacity: len(scratch)}
	}

	tmp, err := buffer.NewImage(scratch, in.Width(), in.Height(), buffer.Gray8)
	if err != nil {
		return err
	}
	if tmp.Overlaps(in) || tmp.Overlaps(out) {
		return buffer.Invalid(op, "scratch must not overlap the input or output")
	}

	neighborhood(in, tmp, kernelSize, dilateFirst)
	neighborhood(tmp, out, kernelSize, !dilateFirst)
	return nil
}

// neighborhood runs the min (erosion) or max (dilation) scan. Inputs are
// already validated.
func neighborhood(in, out buffer.Image, kernelSize int, takeMax bool) {
	width, height := in.Width(), in.Height()
	half := kernelSize / 2
	src, dst := in.Pixels(), out.Pixels()

	for y := 0; y < height; y++ {
		row := y * width
		for x := 0; x < width; x++ {
			if x < half || x >= width-half || y < half || y >= height-half {
				dst[row+x] = src[row+x]
				continue
			}

			var acc uint8
			if !takeMax {
				acc = 255
			}
			for ky := y - half; ky <= y+half; ky++ {
				window := src[ky*width+x-half : ky*width+x+half+1]
				for _, v := range window {
					if takeMax {
						if v > acc {
							acc = v
						}
					} else if v < acc {
						acc = v
					}
				}
			}
			dst[row+x] = acc
		}
	}
}
