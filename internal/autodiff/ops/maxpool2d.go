package ops

import (
	"math"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

// MaxPool2DOp records a max pooling operation for autodiff.
//
// Backward: gradients flow only to the position that held the max value of
// each pooling window. All other positions receive zero gradient.
//
// Example (2x2 pool, stride=2):
//
//	Input:  [[1, 2],  Output: [4]  Input Grad: [[0, 0],
//	         [3, 4]]                             [0, grad]]
type MaxPool2DOp struct {
	input      *tensor.RawTensor
	output     *tensor.RawTensor
	maxIndices []int // Flat indices of max positions for gradient routing
}

// NewMaxPool2DOp creates a new MaxPool2D operation.
//
// Max indices are computed here, during the forward pass, so the backward pass
// can route gradients without re-scanning the windows.
func NewMaxPool2DOp(input, output *tensor.RawTensor, kernelSize, stride int) *MaxPool2DOp {
	return &MaxPool2DOp{
		input:      input,
		output:     output,
		maxIndices: computeMaxIndices(input, output, kernelSize, stride),
	}
}

// computeMaxIndices finds which input position had max value for each output position.
// Ties resolve to the first position in row-major window order.
func computeMaxIndices(input, output *tensor.RawTensor, kernelSize, stride int) []int {
	inShape, outShape := input.Shape(), output.Shape()
	N, C, H, W := inShape[0], inShape[1], inShape[2], inShape[3]
	HOut, WOut := outShape[2], outShape[3]

	data := input.AsFloat32()
	maxIndices := make([]int, N*C*HOut*WOut)

	outIdx := 0
	for nc := 0; nc < N*C; nc++ {
		base := nc * H * W
		for oh := 0; oh < HOut; oh++ {
			for ow := 0; ow < WOut; ow++ {
				maxVal := float32(math.Inf(-1))
				maxPos := base + oh*stride*W + ow*stride
				for kh := 0; kh < kernelSize; kh++ {
					for kw := 0; kw < kernelSize; kw++ {
						idx := base + (oh*stride+kh)*W + ow*stride + kw
						if data[idx] > maxVal {
							maxVal = data[idx]
							maxPos = idx
						}
					}
				}
				maxIndices[outIdx] = maxPos
				outIdx++
			}
		}
	}

	return maxIndices
}

// Backward routes each output gradient to its max input position.
func (op *MaxPool2DOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	inputGrad := tensor.MustRaw(op.input.Shape(), tensor.Float32, op.input.Device())
	dIn := inputGrad.AsFloat32()
	for i, g := range outputGrad.AsFloat32() {
		dIn[op.maxIndices[i]] += g
	}
	return []*tensor.RawTensor{inputGrad}
}

// Inputs returns the input tensor.
func (op *MaxPool2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the pooled tensor.
func (op *MaxPool2DOp) Output() *tensor.RawTensor {
	return op.output
}
