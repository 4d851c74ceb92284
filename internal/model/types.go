package model

import "fmt"

// Metadata describes the model's tensors. It is read from an optional JSON file
// next to the model; missing fields are filled from the model itself.
type Metadata struct {
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
}

// Tensor is a dense row-major float32 tensor.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// NewTensor allocates a zeroed tensor of the given shape.
func NewTensor(shape ...int64) Tensor {
	return Tensor{
		Shape: append([]int64(nil), shape...),
		Data:  make([]float32, NumElements(shape)),
	}
}

// NumElements returns the product of the dimensions.
func NumElements(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}

// Rank is the number of dimensions.
func (t Tensor) Rank() int {
	return len(t.Shape)
}

// Validate checks that the data length agrees with the shape.
func (t Tensor) Validate() error {
	for _, d := range t.Shape {
		if d < 0 {
			return fmt.Errorf("negative dimension in shape %v", t.Shape)
		}
	}
	if want := NumElements(t.Shape); want != len(t.Data) {
		return fmt.Errorf("shape %v needs %d values, got %d", t.Shape, want, len(t.Data))
	}
	return nil
}
