// Named operation registry over the pixel engine
package algorithms

import (
	"fmt"
	"sort"

	"mcu-image-pipeline/internal/buffer"
)

// Stats carries scalar results of an operation, e.g. the selected threshold.
type Stats map[string]float64

// Algorithm defines the interface for image processing operations
type Algorithm interface {
	Apply(in, out buffer.Image, params map[string]interface{}) (Stats, error)
	GetDefaultParams() map[string]interface{}
	GetName() string
	GetDescription() string
	Validate(params map[string]interface{}) error
	GetParameterInfo() []ParameterInfo
}

// ParameterInfo describes a parameter of an operation
type ParameterInfo struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"` // "int", "float", "bool", "string", "enum"
	Min         interface{} `json:"min,omitempty"`
	Max         interface{} `json:"max,omitempty"`
	Default     interface{} `json:"default"`
	Description string      `json:"description"`
}

// Registry maps operation names to implementations.
type Registry struct {
	algorithms map[string]Algorithm
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{algorithms: make(map[string]Algorithm)}
}

// NewDefaultRegistry registers every engine operation. scratch backs the
// intermediate image of opening and closing.
func NewDefaultRegistry(scratch []byte) *Registry {
	r := NewRegistry()

	r.Register("grayscale", NewGrayscale())
	r.Register("threshold", NewThreshold())
	r.Register("otsu", NewOtsu())

	r.Register("erosion", NewErosion())
	r.Register("dilation", NewDilation())
	r.Register("opening", NewOpening(scratch))
	r.Register("closing", NewClosing(scratch))

	return r
}

func (r *Registry) Register(name string, algorithm Algorithm) {
	r.algorithms[name] = algorithm
}

func (r *Registry) Get(name string) (Algorithm, bool) {
	algorithm, exists := r.algorithms[name]
	return algorithm, exists
}

// Apply fills defaults into params, validates them and runs the operation.
func (r *Registry) Apply(name string, in, out buffer.Image, params map[string]interface{}) (Stats, error) {
	algorithm, exists := r.algorithms[name]
	if !exists {
		return nil, fmt.Errorf("algorithm not found: %s", name)
	}

	merged := algorithm.GetDefaultParams()
	for k, v := range params {
		merged[k] = v
	}
	if err := algorithm.Validate(merged); err != nil {
		return nil, err
	}

	return algorithm.Apply(in, out, merged)
}

func (r *Registry) ValidateParameters(name string, params map[string]interface{}) error {
	algorithm, exists := r.algorithms[name]
	if !exists {
		return fmt.Errorf("algorithm not found: %s", name)
	}

	return algorithm.Validate(params)
}

func (r *Registry) IsValidAlgorithm(name string) bool {
	_, exists := r.algorithms[name]
	return exists
}

// Names returns the registered operation names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.algorithms))
	for name := range r.algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func GetAlgorithmsByCategory() map[string][]string {
	return map[string][]string{
		"Binarization": {
			"threshold",
			"otsu",
		},
		"Color": {
			"grayscale",
		},
		"Morphology": {
			"erosion",
			"dilation",
			"opening",
			"closing",
		},
	}
}

// intParam reads an integer parameter. Values decoded from config or JSON
// arrive as float64, literals in code as int.
func intParam(params map[string]interface{}, name string, fallback int) (int, error) {
	val, ok := params[name]
	if !ok {
		return fallback, nil
	}
	switch v := val.(type) {
	case int:
		return v, nil
	case float64:
		if v != float64(int(v)) {
			return 0, buffer.Invalid("parameters", "%s must be an integer, got %v", name, v)
		}
		return int(v), nil
	default:
		return 0, buffer.Invalid("parameters", "%s must be a number, got %T", name, val)
	}
}
