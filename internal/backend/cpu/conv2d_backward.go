package cpu

import (
	"fmt"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/parallel"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

// Conv2DInputBackward computes ∂L/∂input for Conv2D.
//
// Each output gradient is scattered back to every input position that
// contributed to it, weighted by the kernel:
//
//	dInput[n,ci,ih,iw] += grad[n,co,oh,ow] * kernel[co,ci,kh,kw]
//	where ih = oh*stride - padding + kh, iw = ow*stride - padding + kw
func (cpu *CPUBackend) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	g := newConvGeometry("conv2d_input_backward", input, kernel, stride, padding)
	checkConvGrad(g, grad)

	dInput := cpu.newResult("conv2d_input_backward", input.Shape(), tensor.Float32)
	k, dOut, dIn := kernel.AsFloat32(), grad.AsFloat32(), dInput.AsFloat32()

	// Samples scatter into disjoint input planes.
	parallel.For(g.N, func(n int) {
		for co := 0; co < g.COut; co++ {
			for oh := 0; oh < g.HOut; oh++ {
				for ow := 0; ow < g.WOut; ow++ {
					gv := dOut[((n*g.COut+co)*g.HOut+oh)*g.WOut+ow]
					if gv == 0 {
						continue
					}
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
								dIn[((n*g.CIn+ci)*g.H+ih)*g.W+iw] += gv * k[((co*g.CIn+ci)*g.KH+kh)*g.KW+kw]
							}
						}
					}
				}
			}
		}
	}, cpu.par)

	return dInput
}

// Conv2DKernelBackward computes ∂L/∂kernel for Conv2D.
//
//	dKernel[co,ci,kh,kw] = Σ_{n,oh,ow} grad[n,co,oh,ow] * input[n,ci,ih,iw]
func (cpu *CPUBackend) Conv2DKernelBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	g := newConvGeometry("conv2d_kernel_backward", input, kernel, stride, padding)
	checkConvGrad(g, grad)

	dKernel := cpu.newResult("conv2d_kernel_backward", kernel.Shape(), tensor.Float32)
	in, dOut, dK := input.AsFloat32(), grad.AsFloat32(), dKernel.AsFloat32()

	// Output channels accumulate into disjoint kernel slices.
	parallel.For(g.COut, func(co int) {
		for n := 0; n < g.N; n++ {
			for oh := 0; oh < g.HOut; oh++ {
				for ow := 0; ow < g.WOut; ow++ {
					gv := dOut[((n*g.COut+co)*g.HOut+oh)*g.WOut+ow]
					if gv == 0 {
						continue
					}
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
								dK[((co*g.CIn+ci)*g.KH+kh)*g.KW+kw] += gv * in[((n*g.CIn+ci)*g.H+ih)*g.W+iw]
							}
						}
					}
				}
			}
		}
	}, cpu.par)

	return dKernel
}

func checkConvGrad(g convGeometry, grad *tensor.RawTensor) {
	want := tensor.Shape{g.N, g.COut, g.HOut, g.WOut}
	if !grad.Shape().Equal(want) {
		panic(fmt.Sprintf("conv2d backward: gradient shape %v, expected %v", grad.Shape(), want))
	}
	requireFloat32("conv2d backward", grad)
}
