package model

// Metadata describes a model artifact. It is stored as a JSON sidecar next to the
// .onnx file and is the only source of truth for which label each output
// position belongs to.
type Metadata struct {
	InputName   string   `json:"input_name,omitempty"`
	OutputName  string   `json:"output_name,omitempty"`
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	// Layout is "nhwc" or "nchw"
	Layout string `json:"layout,omitempty"`
}

const (
	defaultInputName  = "input"
	defaultOutputName = "output"
)

func (m *Metadata) inputName() string {
	if m.InputName == "" {
		return defaultInputName
	}
	return m.InputName
}

func (m *Metadata) outputName() string {
	if m.OutputName == "" {
		return defaultOutputName
	}
	return m.OutputName
}

// InputSize is the number of float32 values one input batch holds.
func (m *Metadata) InputSize() int {
	return shapeSize(m.InputShape)
}

// OutputSize is the number of float32 values one output batch holds.
func (m *Metadata) OutputSize() int {
	return shapeSize(m.OutputShape)
}

func shapeSize(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}
