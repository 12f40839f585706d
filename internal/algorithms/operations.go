package algorithms

import (
	"mcu-image-pipeline/internal/buffer"
)

// Grayscale wraps ToGrayscale.
type Grayscale struct{}

func NewGrayscale() *Grayscale { return &Grayscale{} }

func (g *Grayscale) Apply(in, out buffer.Image, _ map[string]interface{}) (Stats, error) {
	return nil, ToGrayscale(in, out)
}

func (g *Grayscale) GetDefaultParams() map[string]interface{} { return map[string]interface{}{} }
func (g *Grayscale) GetName() string                          { return "Grayscale" }
func (g *Grayscale) GetDescription() string {
	return "RGB565 to 8-bit luminance with truncating BT.601 weights"
}
func (g *Grayscale) Validate(map[string]interface{}) error { return nil }
func (g *Grayscale) GetParameterInfo() []ParameterInfo     { return nil }

// Threshold binarizes with a fixed level.
type Threshold struct{}

func NewThreshold() *Threshold { return &Threshold{} }

func (t *Threshold) Apply(in, out buffer.Image, params map[string]interface{}) (Stats, error) {
	level, err := intParam(params, "level", 127)
	if err != nil {
		return nil, err
	}
	if err := ApplyThreshold(in, out, uint8(level)); err != nil {
		return nil, err
	}
	return Stats{"threshold": float64(level)}, nil
}

func (t *Threshold) GetDefaultParams() map[string]interface{} {
	return map[string]interface{}{"level": 127.0}
}

func (t *Threshold) GetName() string { return "Fixed Threshold" }

func (t *Threshold) GetDescription() string {
	return "Pixels above the level become 255, the rest 0"
}

func (t *Threshold) Validate(params map[string]interface{}) error {
	level, err := intParam(params, "level", 127)
	if err != nil {
		return err
	}
	if level < 0 || level > 255 {
		return buffer.Invalid("threshold", "level must be between 0 and 255, got %d", level)
	}
	return nil
}

func (t *Threshold) GetParameterInfo() []ParameterInfo {
	return []ParameterInfo{
		{
			Name:        "level",
			Type:        "int",
			Min:         0.0,
			Max:         255.0,
			Default:     127.0,
			Description: "Intensity at or below which pixels become background",
		},
	}
}

// Otsu selects the level with ComputeThreshold and applies it.
type Otsu struct{}

func NewOtsu() *Otsu { return &Otsu{} }

func (o *Otsu) Apply(in, out buffer.Image, _ map[string]interface{}) (Stats, error) {
	level, err := Binarize(in, out)
	if err != nil {
		return nil, err
	}
	return Stats{"threshold": float64(level)}, nil
}

func (o *Otsu) GetDefaultParams() map[string]interface{} { return map[string]interface{}{} }
func (o *Otsu) GetName() string                          { return "Otsu" }
func (o *Otsu) GetDescription() string {
	return "Binarization at the level maximizing inter-class variance"
}
func (o *Otsu) Validate(map[string]interface{}) error { return nil }
func (o *Otsu) GetParameterInfo() []ParameterInfo     { return nil }

// morphologyOp is shared by the four structuring-element operations.
type morphologyOp struct {
	name        string
	description string
	run         func(in, out buffer.Image, kernelSize int) error
}

func (m *morphologyOp) Apply(in, out buffer.Image, params map[string]interface{}) (Stats, error) {
	kernelSize, err := intParam(params, "kernel_size", DefaultKernelSize)
	if err != nil {
		return nil, err
	}
	return nil, m.run(in, out, kernelSize)
}

func (m *morphologyOp) GetDefaultParams() map[string]interface{} {
	return map[string]interface{}{"kernel_size": float64(DefaultKernelSize)}
}

func (m *morphologyOp) GetName() string        { return m.name }
func (m *morphologyOp) GetDescription() string { return m.description }

func (m *morphologyOp) Validate(params map[string]interface{}) error {
	kernelSize, err := intParam(params, "kernel_size", DefaultKernelSize)
	if err != nil {
		return err
	}
	return ValidateKernelSize(m.name, kernelSize)
}

func (m *morphologyOp) GetParameterInfo() []ParameterInfo {
	return []ParameterInfo{
		{
			Name:        "kernel_size",
			Type:        "int",
			Min:         1.0,
			Max:         float64(MaxKernelSize),
			Default:     float64(DefaultKernelSize),
			Description: "Odd side length of the square structuring element",
		},
	}
}

// NewErosion creates the neighbourhood-minimum operation.
func NewErosion() Algorithm {
	return &morphologyOp{
		name:        "Erosion",
		description: "Neighbourhood minimum; shrinks bright regions",
		run:         Erode,
	}
}

// NewDilation creates the neighbourhood-maximum operation.
func NewDilation() Algorithm {
	return &morphologyOp{
		name:        "Dilation",
		description: "Neighbourhood maximum; grows bright regions",
		run:         Dilate,
	}
}

// NewOpening creates erosion followed by dilation through scratch.
func NewOpening(scratch []byte) Algorithm {
	return &morphologyOp{
		name:        "Opening",
		description: "Erosion then dilation; removes small bright noise",
		run: func(in, out buffer.Image, kernelSize int) error {
			return Open(in, out, kernelSize, scratch)
		},
	}
}

// NewClosing creates dilation followed by erosion through scratch.
func NewClosing(scratch []byte) Algorithm {
	return &morphologyOp{
		name:        "Closing",
		description: "Dilation then erosion; fills small dark gaps",
		run: func(in, out buffer.Image, kernelSize int) error {
			return Close(in, out, kernelSize, scratch)
		},
	}
}
