package tensor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/backend/cpu"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

func TestFromSlice(t *testing.T) {
	b := cpu.New()
	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, b)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3}, x.Shape())
	assert.Equal(t, tensor.Float32, x.DType())
	assert.Equal(t, tensor.CPU, x.Device())
	assert.Equal(t, "Tensor(shape=[2 3], dtype=float32, device=CPU)", x.String())

	_, err = tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{2, 2}, b)
	assert.Error(t, err)

	labels, err := tensor.FromSlice([]int32{0, 2}, tensor.Shape{2}, b)
	require.NoError(t, err)
	assert.Equal(t, tensor.Int32, labels.DType())
}

func TestCreation(t *testing.T) {
	b := cpu.New()
	assert.Equal(t, []float32{0, 0, 0}, tensor.Zeros[float32](tensor.Shape{3}, b).Data())
	assert.Equal(t, []float32{1, 1}, tensor.Ones[float32](tensor.Shape{2}, b).Data())
	assert.Equal(t, []int32{7, 7}, tensor.Full[int32](tensor.Shape{2}, 7, b).Data())
}

func TestOps(t *testing.T) {
	b := cpu.New()
	x, err := tensor.FromSlice([]float32{1, -2, 3, -4}, tensor.Shape{2, 2}, b)
	require.NoError(t, err)
	bias, err := tensor.FromSlice([]float32{10, 20}, tensor.Shape{2}, b)
	require.NoError(t, err)

	assert.Equal(t, []float32{11, 18, 13, 16}, x.Add(bias).Data())
	assert.Equal(t, []float32{0, 0, 0, 0}, x.Sub(x).Data())
	assert.Equal(t, []float32{1, 4, 9, 16}, x.Mul(x).Data())
	assert.Equal(t, []float32{2, -4, 6, -8}, x.MulScalar(2).Data())
	assert.Equal(t, []float32{2, -1, 4, -3}, x.AddScalar(1).Data())
	assert.Equal(t, []float32{1, 0, 3, 0}, x.ReLU().Data())
	assert.InDeltaSlice(t, []float32{1, -0.2, 3, -0.4}, x.LeakyReLU(0.1).Data(), 1e-6)
	assert.Equal(t, []float32{1, 3, -2, -4}, x.Transpose().Data())
	assert.Equal(t, tensor.Shape{4}, x.Reshape(4).Shape())

	// [[1 -2] [3 -4]] x [[1 -2] [3 -4]]
	assert.Equal(t, []float32{-5, 6, -9, 10}, x.MatMul(x).Data())
	assert.Equal(t, []int32{0, 0}, x.Argmax(1).Data())
}

func TestCloneDetaches(t *testing.T) {
	b := cpu.New()
	x, err := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2}, b)
	require.NoError(t, err)
	c := x.Clone()
	c.Data()[0] = 5
	assert.Equal(t, float32(1), x.Data()[0])
}
