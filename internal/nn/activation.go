package nn

import (
	"fmt"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

// stateless provides the empty state methods shared by parameter-free modules.
type stateless[B tensor.Backend] struct{}

// Parameters returns nil.
func (s stateless[B]) Parameters() []*Parameter[B] {
	return nil
}

// StateDict returns an empty map.
func (s stateless[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict is a no-op.
func (s stateless[B]) LoadStateDict(map[string]*tensor.RawTensor) error {
	return nil
}

// ReLU is a Rectified Linear Unit activation module.
//
// Applies the element-wise function: f(x) = max(0, x)
//
// Example:
//
//	relu := nn.NewReLU[Backend]()
//	output := relu.Forward(input)  // All negative values become 0
type ReLU[B tensor.Backend] struct {
	stateless[B]
}

// NewReLU creates a new ReLU activation module.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return &ReLU[B]{}
}

// Forward applies ReLU activation: f(x) = max(0, x).
func (r *ReLU[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return input.ReLU()
}

// String returns a string representation of the module.
func (r *ReLU[B]) String() string {
	return "ReLU()"
}

// LeakyReLU applies f(x) = x for x > 0 and slope*x otherwise.
type LeakyReLU[B tensor.Backend] struct {
	stateless[B]
	slope float32
}

// DefaultLeakySlope matches the PyTorch default negative slope.
const DefaultLeakySlope = 0.01

// NewLeakyReLU creates a new LeakyReLU activation module.
func NewLeakyReLU[B tensor.Backend](slope float32) *LeakyReLU[B] {
	return &LeakyReLU[B]{slope: slope}
}

// Forward applies the activation.
func (l *LeakyReLU[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return input.LeakyReLU(l.slope)
}

// String returns a string representation of the module.
func (l *LeakyReLU[B]) String() string {
	return fmt.Sprintf("LeakyReLU(negative_slope=%g)", l.slope)
}

// Flatten reshapes [batch, d1, d2, ...] into [batch, d1*d2*...].
type Flatten[B tensor.Backend] struct {
	stateless[B]
}

// NewFlatten creates a new Flatten module.
func NewFlatten[B tensor.Backend]() *Flatten[B] {
	return &Flatten[B]{}
}

// Forward flattens all non-batch dimensions.
func (f *Flatten[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) == 2 {
		return input
	}
	return input.Reshape(shape[0], -1)
}

// String returns a string representation of the module.
func (f *Flatten[B]) String() string {
	return "Flatten()"
}
