package cpu

import (
	"fmt"
	"math"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

// MaxPool2D performs 2D max pooling.
//
// Input shape: [batch, channels, height, width]
// Output shape: [batch, channels, out_h, out_w]
// where out_h = (height - kernelSize) / stride + 1.
func (cpu *CPUBackend) MaxPool2D(input *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	requireFloat32("maxpool2d", input)

	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("maxpool2d: input must be 4D [N,C,H,W], got %dD", len(shape)))
	}
	if kernelSize <= 0 || stride <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid kernel=%d stride=%d", kernelSize, stride))
	}

	N, C, H, W := shape[0], shape[1], shape[2], shape[3]
	HOut := (H-kernelSize)/stride + 1
	WOut := (W-kernelSize)/stride + 1
	if HOut <= 0 || WOut <= 0 {
		panic(fmt.Sprintf("maxpool2d: kernel %d larger than input %dx%d", kernelSize, H, W))
	}

	output := cpu.newResult("maxpool2d", tensor.Shape{N, C, HOut, WOut}, tensor.Float32)
	in, out := input.AsFloat32(), output.AsFloat32()

	outIdx := 0
	for nc := 0; nc < N*C; nc++ {
		plane := in[nc*H*W : (nc+1)*H*W]
		for oh := 0; oh < HOut; oh++ {
			for ow := 0; ow < WOut; ow++ {
				maxVal := float32(math.Inf(-1))
				for kh := 0; kh < kernelSize; kh++ {
					row := (oh*stride + kh) * W
					for kw := 0; kw < kernelSize; kw++ {
						if v := plane[row+ow*stride+kw]; v > maxVal {
							maxVal = v
						}
					}
				}
				out[outIdx] = maxVal
				outIdx++
			}
		}
	}

	return output
}
