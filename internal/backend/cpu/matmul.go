package cpu

import (
	"fmt"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

// MatMul performs 2-D matrix multiplication: [M, K] @ [K, N] -> [M, N].
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("matmul", a)
	requireFloat32("matmul", b)

	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("matmul: expected 2D tensors, got %v and %v", aShape, bShape))
	}
	if aShape[1] != bShape[0] {
		panic(fmt.Sprintf("matmul: inner dimensions differ: %v @ %v", aShape, bShape))
	}

	M, K, N := aShape[0], aShape[1], bShape[1]
	result := cpu.newResult("matmul", tensor.Shape{M, N}, tensor.Float32)

	aData, bData, out := a.AsFloat32(), b.AsFloat32(), result.AsFloat32()

	// i-k-j loop order keeps the inner loop contiguous in both b and out
	for i := 0; i < M; i++ {
		row := out[i*N : (i+1)*N]
		for k := 0; k < K; k++ {
			aik := aData[i*K+k]
			if aik == 0 {
				continue
			}
			bRow := bData[k*N : (k+1)*N]
			for j := range row {
				row[j] += aik * bRow[j]
			}
		}
	}

	return result
}
