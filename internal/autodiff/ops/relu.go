package ops

import "github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"

// LeakyReLUOp records a ReLU-family activation.
//
// Backward: grad_x = outputGrad where x > 0, slope * outputGrad elsewhere.
// Plain ReLU is the slope = 0 case.
type LeakyReLUOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	slope  float32
}

// NewLeakyReLUOp creates a new LeakyReLUOp.
func NewLeakyReLUOp(input, output *tensor.RawTensor, slope float32) *LeakyReLUOp {
	return &LeakyReLUOp{input: input, output: output, slope: slope}
}

// Backward computes the input gradient.
func (op *LeakyReLUOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	inputGrad := tensor.MustRaw(op.input.Shape(), tensor.Float32, op.input.Device())
	x, g, dx := op.input.AsFloat32(), outputGrad.AsFloat32(), inputGrad.AsFloat32()
	for i := range dx {
		if x[i] > 0 {
			dx[i] = g[i]
		} else {
			dx[i] = op.slope * g[i]
		}
	}
	return []*tensor.RawTensor{inputGrad}
}

// Inputs returns the input tensor.
func (op *LeakyReLUOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the activated tensor.
func (op *LeakyReLUOp) Output() *tensor.RawTensor {
	return op.output
}
