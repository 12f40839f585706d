// Otsu threshold selection and fixed-level binarization
package algorithms

import (
	"mcu-image-pipeline/internal/buffer"
)

const levels = 256

// Histogram counts pixels per intensity of a single-channel image.
func Histogram(img buffer.Image) ([levels]uint32, error) {
	var hist [levels]uint32
	if err := buffer.RequireEncoding("histogram", "input", img, buffer.Gray8); err != nil {
		return hist, err
	}
	for _, p := range img.Pixels() {
		hist[p]++
	}
	return hist, nil
}

// ComputeThreshold returns the level that maximizes the inter-class variance
// of img (Otsu's method). Class 0 holds intensities <= level. Ties keep the
// lowest level. Accumulation is float32 so results match the firmware exactly.
func ComputeThreshold(img buffer.Image) (uint8, error) {
	if err := buffer.RequireEncoding("compute threshold", "input", img, buffer.Gray8); err != nil {
		return 0, err
	}
	hist, _ := Histogram(img)
	return otsuLevel(&hist, uint32(img.PixelCount())), nil
}

func otsuLevel(hist *[levels]uint32, total uint32) uint8 {
	var prob, cumSum, cumMean [levels]float32

	prob[0] = float32(hist[0]) / float32(total)
	cumSum[0] = prob[0]
	for i := 1; i < levels; i++ {
		prob[i] = float32(hist[i]) / float32(total)
		cumSum[i] = cumSum[i-1] + prob[i]
		cumMean[i] = cumMean[i-1] + float32(i)*prob[i]
	}

	var (
		maxVariance float32
		best        uint8
	)
	for t := 0; t < levels; t++ {
		w0 := cumSum[t]
		w1 := 1 - w0
		if w0 == 0 || w1 == 0 {
			continue
		}

		mean0 := cumMean[t] / w0
		mean1 := (cumMean[levels-1] - cumMean[t]) / w1
		diff := mean0 - mean1
		variance := w0 * w1 * diff * diff

		if variance > maxVariance {
			maxVariance = variance
			best = uint8(t)
		}
	}
	return best
}

// ApplyThreshold writes 255 for every input pixel strictly above level and 0
// otherwise. in and out may be the same buffer.
func ApplyThreshold(in, out buffer.Image, level uint8) error {
	const op = "apply threshold"

	if err := buffer.RequireEncoding(op, "input", in, buffer.Gray8); err != nil {
		return err
	}
	if err := buffer.RequireEncoding(op, "output", out, buffer.Gray8); err != nil {
		return err
	}
	if err := buffer.RequireSameShape(op, in, out); err != nil {
		return err
	}

	src, dst := in.Pixels(), out.Pixels()
	for i, p := range src {
		if p > level {
			dst[i] = 255
		} else {
			dst[i] = 0
		}
	}
	return nil
}

// Binarize computes the Otsu level of in and applies it into out.
func Binarize(in, out buffer.Image) (uint8, error) {
	level, err := ComputeThreshold(in)
	if err != nil {
		return 0, err
	}
	if err := ApplyThreshold(in, out, level); err != nil {
		return 0, err
	}
	return level, nil
}
