// Concrete implementations of quality metrics
package metrics

import (
	"math"

	"mcu-image-pipeline/internal/buffer"
)

// MSE implements mean squared error
type MSE struct{}

// NewMSE creates a new MSE metric
func NewMSE() *MSE {
	return &MSE{}
}

func (m *MSE) Calculate(original, processed buffer.Image) (float64, error) {
	if err := requireComparable("mse", original, processed); err != nil {
		return 0, err
	}
	return meanSquaredError(original.Pixels(), processed.Pixels()), nil
}

func meanSquaredError(a, b []byte) float64 {
	sum := 0.0
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return sum / float64(len(a))
}

func (m *MSE) GetName() string              { return "MSE" }
func (m *MSE) GetDescription() string       { return "Mean Squared Error between pixel intensities" }
func (m *MSE) GetRange() (float64, float64) { return 0, 255 * 255 }
func (m *MSE) IsHigherBetter() bool         { return false }

// PSNR implements Peak Signal-to-Noise Ratio metric
type PSNR struct{}

// NewPSNR creates a new PSNR metric
func NewPSNR() *PSNR {
	return &PSNR{}
}

// Calculate returns +Inf for identical images.
func (p *PSNR) Calculate(original, processed buffer.Image) (float64, error) {
	if err := requireComparable("psnr", original, processed); err != nil {
		return 0, err
	}

	mse := meanSquaredError(original.Pixels(), processed.Pixels())
	if mse == 0 {
		return math.Inf(1), nil
	}

	maxVal := 255.0
	return 20 * math.Log10(maxVal/math.Sqrt(mse)), nil
}

func (p *PSNR) GetName() string { return "PSNR" }
func (p *PSNR) GetDescription() string {
	return "Peak Signal-to-Noise Ratio - measures image quality"
}
func (p *PSNR) GetRange() (float64, float64) { return 0, 100 }
func (p *PSNR) IsHigherBetter() bool         { return true }

// ForegroundRatio is the fraction of processed pixels that are white (non-zero).
// original only fixes the expected shape.
type ForegroundRatio struct{}

// NewForegroundRatio creates a new foreground ratio metric
func NewForegroundRatio() *ForegroundRatio {
	return &ForegroundRatio{}
}

func (f *ForegroundRatio) Calculate(original, processed buffer.Image) (float64, error) {
	if err := requireComparable("foreground_ratio", original, processed); err != nil {
		return 0, err
	}
	white := 0
	for _, p := range processed.Pixels() {
		if p != 0 {
			white++
		}
	}
	return float64(white) / float64(processed.PixelCount()), nil
}

func (f *ForegroundRatio) GetName() string { return "Foreground Ratio" }
func (f *ForegroundRatio) GetDescription() string {
	return "Share of foreground pixels in the processed image"
}
func (f *ForegroundRatio) GetRange() (float64, float64) { return 0, 1 }
func (f *ForegroundRatio) IsHigherBetter() bool         { return true }

// ChangedRatio is the fraction of pixels that differ between the images.
type ChangedRatio struct{}

// NewChangedRatio creates a new changed ratio metric
func NewChangedRatio() *ChangedRatio {
	return &ChangedRatio{}
}

func (c *ChangedRatio) Calculate(original, processed buffer.Image) (float64, error) {
	if err := requireComparable("changed_ratio", original, processed); err != nil {
		return 0, err
	}
	a, b := original.Pixels(), processed.Pixels()
	changed := 0
	for i := range a {
		if a[i] != b[i] {
			changed++
		}
	}
	return float64(changed) / float64(len(a)), nil
}

func (c *ChangedRatio) GetName() string { return "Changed Ratio" }
func (c *ChangedRatio) GetDescription() string {
	return "Share of pixels modified by the operation"
}
func (c *ChangedRatio) GetRange() (float64, float64) { return 0, 1 }
func (c *ChangedRatio) IsHigherBetter() bool         { return false }
