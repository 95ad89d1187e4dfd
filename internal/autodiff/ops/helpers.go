package ops

import (
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

// reduceBroadcast reduces a gradient tensor to match the target shape.
// This is necessary when broadcasting was used in the forward pass.
//
// Example:
//
//	Forward: a[3,1] + b[3,4] -> c[3,4]  (a was broadcast along dim 1)
//	Backward: grad_c[3,4] -> grad_a[3,1] (sum along dim 1)
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape) *tensor.RawTensor {
	gradShape := grad.Shape()

	// Clone even when shapes match so every gradient owns its storage
	if gradShape.Equal(targetShape) {
		return grad.Clone()
	}

	result := tensor.MustRaw(targetShape, tensor.Float32, grad.Device())
	out := result.AsFloat32()
	in := grad.AsFloat32()

	// Each gradient element is accumulated into the target element it was
	// broadcast from (broadcast dimensions have stride 0).
	targetStrides := tensor.BroadcastStrides(targetShape, gradShape)
	gradStrides := gradShape.ComputeStrides()
	for i, v := range in {
		dst, rem := 0, i
		for d := range gradShape {
			coord := rem / gradStrides[d]
			rem %= gradStrides[d]
			dst += coord * targetStrides[d]
		}
		out[dst] += v
	}

	return result
}
