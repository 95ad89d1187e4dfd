package cpu

import (
	"fmt"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/parallel"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

// convGeometry holds the dimensions shared by the forward and backward kernels.
type convGeometry struct {
	N, CIn, H, W    int
	COut, KH, KW    int
	HOut, WOut      int
	stride, padding int
}

// newConvGeometry validates conv2d inputs and computes output dimensions.
func newConvGeometry(op string, input, kernel *tensor.RawTensor, stride, padding int) convGeometry {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()

	if len(inputShape) != 4 {
		panic(fmt.Sprintf("%s: input must be 4D [N,C,H,W], got %dD", op, len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("%s: kernel must be 4D [C_out,C_in,K_h,K_w], got %dD", op, len(kernelShape)))
	}
	if inputShape[1] != kernelShape[1] {
		panic(fmt.Sprintf("%s: input channels %d != kernel channels %d", op, inputShape[1], kernelShape[1]))
	}
	if stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("%s: invalid stride=%d padding=%d", op, stride, padding))
	}

	g := convGeometry{
		N: inputShape[0], CIn: inputShape[1], H: inputShape[2], W: inputShape[3],
		COut: kernelShape[0], KH: kernelShape[2], KW: kernelShape[3],
		stride: stride, padding: padding,
	}
	g.HOut = (g.H+2*padding-g.KH)/stride + 1
	g.WOut = (g.W+2*padding-g.KW)/stride + 1

	if g.HOut <= 0 || g.WOut <= 0 {
		panic(fmt.Sprintf("%s: invalid output dimensions: out_h=%d, out_w=%d (check stride/padding)", op, g.HOut, g.WOut))
	}
	return g
}

// Conv2D performs a direct 2D convolution (cross-correlation, as in PyTorch).
//
// Input shape: [batch, in_channels, height, width]
// Kernel shape: [out_channels, in_channels, kernel_h, kernel_w]
// Output shape: [batch, out_channels, out_h, out_w]
//
// Where out_h = (height + 2*padding - kernel_h) / stride + 1, and likewise for width.
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	requireFloat32("conv2d", input)
	requireFloat32("conv2d", kernel)
	g := newConvGeometry("conv2d", input, kernel, stride, padding)

	output := cpu.newResult("conv2d", tensor.Shape{g.N, g.COut, g.HOut, g.WOut}, tensor.Float32)
	in, k, out := input.AsFloat32(), kernel.AsFloat32(), output.AsFloat32()

	// Each (n, co) pair owns a disjoint output plane.
	parallel.ForBatch(g.N, g.COut, func(n, co int) {
		for oh := 0; oh < g.HOut; oh++ {
			for ow := 0; ow < g.WOut; ow++ {
				var sum float32
				for ci := 0; ci < g.CIn; ci++ {
					for kh := 0; kh < g.KH; kh++ {
						ih := oh*g.stride - g.padding + kh
						if ih < 0 || ih >= g.H {
							continue
						}
						for kw := 0; kw < g.KW; kw++ {
							iw := ow*g.stride - g.padding + kw
							if iw < 0 || iw >= g.W {
								continue
							}
							sum += in[((n*g.CIn+ci)*g.H+ih)*g.W+iw] * k[((co*g.CIn+ci)*g.KH+kh)*g.KW+kw]
						}
					}
				}
				out[((n*g.COut+co)*g.HOut+oh)*g.WOut+ow] = sum
			}
		}
	}, cpu.par)

	return output
}
