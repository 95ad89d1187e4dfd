package cpu

import (
	"math"
	"testing"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/parallel"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

// Helper to build a float32 raw tensor from values.
func raw(t *testing.T, shape tensor.Shape, values ...float32) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	copy(r.AsFloat32(), values)
	return r
}

// Helper to check float32 slices are equal within epsilon.
func float32SliceEqual(a, b []float32) bool {
	const epsilon = 1e-5
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > epsilon {
			return false
		}
	}
	return true
}

// TestCPUBackend_New tests backend creation.
func TestCPUBackend_New(t *testing.T) {
	backend := New()
	if backend.Name() != "CPU" {
		t.Errorf("Expected name 'CPU', got '%s'", backend.Name())
	}
	if backend.Device() != tensor.CPU {
		t.Errorf("Expected device CPU, got %v", backend.Device())
	}
}

func TestCPUBackend_Elementwise(t *testing.T) {
	backend := New()
	a := raw(t, tensor.Shape{2, 2}, 1, 2, 3, 4)
	b := raw(t, tensor.Shape{2, 2}, 5, 6, 7, 8)

	tests := []struct {
		name string
		got  *tensor.RawTensor
		want []float32
	}{
		{"add", backend.Add(a, b), []float32{6, 8, 10, 12}},
		{"sub", backend.Sub(a, b), []float32{-4, -4, -4, -4}},
		{"mul", backend.Mul(a, b), []float32{5, 12, 21, 32}},
		{"mul_scalar", backend.MulScalar(a, 2), []float32{2, 4, 6, 8}},
		{"add_scalar", backend.AddScalar(a, -1), []float32{0, 1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !float32SliceEqual(tt.got.AsFloat32(), tt.want) {
				t.Errorf("got %v, want %v", tt.got.AsFloat32(), tt.want)
			}
		})
	}

	if a.AsFloat32()[0] != 1 {
		t.Error("inputs must not be modified")
	}
}

// TestCPUBackend_AddBroadcast tests [2,3] + [1,3] and [2,1] + [3].
func TestCPUBackend_AddBroadcast(t *testing.T) {
	backend := New()
	a := raw(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	row := raw(t, tensor.Shape{1, 3}, 10, 20, 30)

	got := backend.Add(a, row)
	if !float32SliceEqual(got.AsFloat32(), []float32{11, 22, 33, 14, 25, 36}) {
		t.Errorf("row broadcast: got %v", got.AsFloat32())
	}

	col := raw(t, tensor.Shape{2, 1}, 1, 2)
	vec := raw(t, tensor.Shape{3}, 10, 20, 30)
	got = backend.Add(col, vec)
	if !got.Shape().Equal(tensor.Shape{2, 3}) {
		t.Fatalf("shape = %v, want [2 3]", got.Shape())
	}
	if !float32SliceEqual(got.AsFloat32(), []float32{11, 21, 31, 12, 22, 32}) {
		t.Errorf("outer broadcast: got %v", got.AsFloat32())
	}
}

func TestCPUBackend_MatMul(t *testing.T) {
	backend := New()
	a := raw(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	b := raw(t, tensor.Shape{3, 2}, 7, 8, 9, 10, 11, 12)

	got := backend.MatMul(a, b)
	if !float32SliceEqual(got.AsFloat32(), []float32{58, 64, 139, 154}) {
		t.Errorf("got %v", got.AsFloat32())
	}
}

func TestCPUBackend_Transpose(t *testing.T) {
	backend := New()
	a := raw(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)

	got := backend.Transpose(a)
	if !got.Shape().Equal(tensor.Shape{3, 2}) {
		t.Fatalf("shape = %v", got.Shape())
	}
	if !float32SliceEqual(got.AsFloat32(), []float32{1, 4, 2, 5, 3, 6}) {
		t.Errorf("got %v", got.AsFloat32())
	}

	cube := raw(t, tensor.Shape{1, 2, 3}, 1, 2, 3, 4, 5, 6)
	perm := backend.Transpose(cube, 2, 0, 1)
	if !perm.Shape().Equal(tensor.Shape{3, 1, 2}) {
		t.Fatalf("shape = %v", perm.Shape())
	}
	if !float32SliceEqual(perm.AsFloat32(), []float32{1, 4, 2, 5, 3, 6}) {
		t.Errorf("got %v", perm.AsFloat32())
	}
}

// TestConv2D_BasicForward tests basic Conv2D forward pass.
func TestConv2D_BasicForward(t *testing.T) {
	backend := New()

	// 1 2 3
	// 4 5 6
	// 7 8 9
	input := raw(t, tensor.Shape{1, 1, 3, 3}, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	// 1 0
	// 0 1
	kernel := raw(t, tensor.Shape{1, 1, 2, 2}, 1, 0, 0, 1)

	output := backend.Conv2D(input, kernel, 1, 0)
	if !output.Shape().Equal(tensor.Shape{1, 1, 2, 2}) {
		t.Fatalf("Expected output shape [1,1,2,2], got %v", output.Shape())
	}
	if !float32SliceEqual(output.AsFloat32(), []float32{6, 8, 12, 14}) {
		t.Errorf("got %v", output.AsFloat32())
	}
}

// TestConv2D_Padding checks that zero padding keeps the spatial size.
func TestConv2D_Padding(t *testing.T) {
	backend := New()
	input := raw(t, tensor.Shape{1, 1, 2, 2}, 1, 2, 3, 4)
	kernel := raw(t, tensor.Shape{1, 1, 3, 3}, 0, 0, 0, 0, 1, 0, 0, 0, 0)

	output := backend.Conv2D(input, kernel, 1, 1)
	if !float32SliceEqual(output.AsFloat32(), []float32{1, 2, 3, 4}) {
		t.Errorf("identity kernel: got %v", output.AsFloat32())
	}
}

func TestMaxPool2D_Forward(t *testing.T) {
	backend := New()
	input := raw(t, tensor.Shape{1, 1, 4, 4},
		1, 2, 5, 6,
		3, 4, 7, 8,
		9, 10, 13, 14,
		11, 12, 15, 16,
	)

	output := backend.MaxPool2D(input, 2, 2)
	if !float32SliceEqual(output.AsFloat32(), []float32{4, 8, 12, 16}) {
		t.Errorf("got %v", output.AsFloat32())
	}
}

func TestCPUBackend_ReLU(t *testing.T) {
	backend := New()
	x := raw(t, tensor.Shape{4}, -2, -1, 0, 3)

	if got := backend.ReLU(x).AsFloat32(); !float32SliceEqual(got, []float32{0, 0, 0, 3}) {
		t.Errorf("ReLU: got %v", got)
	}
	if got := backend.LeakyReLU(x, 0.1).AsFloat32(); !float32SliceEqual(got, []float32{-0.2, -0.1, 0, 3}) {
		t.Errorf("LeakyReLU: got %v", got)
	}
}

func TestCrossEntropy_UniformLogits(t *testing.T) {
	backend := New()
	logits := raw(t, tensor.Shape{2, 4}, 0, 0, 0, 0, 1, 1, 1, 1)
	targets, _ := tensor.NewRaw(tensor.Shape{2}, tensor.Int32, tensor.CPU)
	copy(targets.AsInt32(), []int32{0, 3})

	loss := backend.CrossEntropy(logits, targets)
	if !loss.Shape().Equal(tensor.Shape{1}) {
		t.Fatalf("loss shape = %v, want [1]", loss.Shape())
	}
	if want := float32(math.Log(4)); !float32SliceEqual(loss.AsFloat32(), []float32{want}) {
		t.Errorf("loss = %f, want %f", loss.AsFloat32()[0], want)
	}
}

func TestCrossEntropy_LargeLogitsStable(t *testing.T) {
	backend := New()
	logits := raw(t, tensor.Shape{1, 2}, 1000, 0)
	targets, _ := tensor.NewRaw(tensor.Shape{1}, tensor.Int32, tensor.CPU)

	loss := backend.CrossEntropy(logits, targets).AsFloat32()[0]
	if math.IsNaN(float64(loss)) || math.IsInf(float64(loss), 0) || loss > 1e-6 {
		t.Errorf("loss = %f, want ~0", loss)
	}
}

func TestArgmax(t *testing.T) {
	backend := New()
	x := raw(t, tensor.Shape{2, 3}, 1, 9, 3, 7, 7, 2)

	rows := backend.Argmax(x, 1).AsInt32()
	if rows[0] != 1 || rows[1] != 0 {
		t.Errorf("argmax(dim=1) = %v, want [1 0] (ties to lowest index)", rows)
	}

	cols := backend.Argmax(x, -2).AsInt32()
	if len(cols) != 3 || cols[0] != 1 || cols[1] != 0 || cols[2] != 0 {
		t.Errorf("argmax(dim=0) = %v, want [1 0 0]", cols)
	}
}

// TestConv2D_ParallelMatchesSequential runs the conv kernels with and without
// workers on a batch large enough to be split.
func TestConv2D_ParallelMatchesSequential(t *testing.T) {
	const n, cin, cout, hw = 8, 2, 16, 5
	input := raw(t, tensor.Shape{n, cin, hw, hw})
	for i, v := range input.AsFloat32() {
		input.AsFloat32()[i] = float32(i%7) - v - 3
	}
	kernel := raw(t, tensor.Shape{cout, cin, 3, 3})
	for i := range kernel.AsFloat32() {
		kernel.AsFloat32()[i] = float32(i%5)*0.1 - 0.2
	}

	seq := New()
	seq.SetParallel(parallel.Config{})
	par := New()
	par.SetParallel(parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1})

	wantOut := seq.Conv2D(input, kernel, 1, 1)
	gotOut := par.Conv2D(input, kernel, 1, 1)
	if !float32SliceEqual(gotOut.AsFloat32(), wantOut.AsFloat32()) {
		t.Fatal("parallel conv2d differs from sequential")
	}

	grad := raw(t, wantOut.Shape())
	for i := range grad.AsFloat32() {
		grad.AsFloat32()[i] = float32(i%3) - 1
	}
	if !float32SliceEqual(
		par.Conv2DInputBackward(input, kernel, grad, 1, 1).AsFloat32(),
		seq.Conv2DInputBackward(input, kernel, grad, 1, 1).AsFloat32(),
	) {
		t.Error("parallel input backward differs from sequential")
	}
	if !float32SliceEqual(
		par.Conv2DKernelBackward(input, kernel, grad, 1, 1).AsFloat32(),
		seq.Conv2DKernelBackward(input, kernel, grad, 1, 1).AsFloat32(),
	) {
		t.Error("parallel kernel backward differs from sequential")
	}
}
