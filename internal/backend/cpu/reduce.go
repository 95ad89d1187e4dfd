package cpu

import (
	"fmt"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

// Argmax returns the index of the maximum value along dim as an int32 tensor.
// The reduced dimension is removed from the output shape. Ties resolve to the
// lowest index.
func (cpu *CPUBackend) Argmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	requireFloat32("argmax", x)

	shape := x.Shape()
	if dim < 0 {
		dim += len(shape)
	}
	if dim < 0 || dim >= len(shape) {
		panic(fmt.Sprintf("argmax: invalid dimension %d for shape %v", dim, shape))
	}

	outer := 1
	for _, d := range shape[:dim] {
		outer *= d
	}
	inner := 1
	for _, d := range shape[dim+1:] {
		inner *= d
	}
	size := shape[dim]

	outShape := make(tensor.Shape, 0, len(shape)-1)
	outShape = append(outShape, shape[:dim]...)
	outShape = append(outShape, shape[dim+1:]...)

	result := cpu.newResult("argmax", outShape, tensor.Int32)
	in, out := x.AsFloat32(), result.AsInt32()

	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			base := o*size*inner + i
			best := 0
			bestVal := in[base]
			for k := 1; k < size; k++ {
				if v := in[base+k*inner]; v > bestVal {
					bestVal = v
					best = k
				}
			}
			out[o*inner+i] = int32(best)
		}
	}

	return result
}
