// Package engine binds the tensor, autodiff and nn packages to the concrete
// CPU autodiff backend used by training, attacks and evaluation.
package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/autodiff"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/backend/cpu"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/nn"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/optim"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

// Backend is the differentiable CPU backend.
type Backend = autodiff.AutodiffBackend[*cpu.CPUBackend]

// Tensor is a float32 tensor on Backend.
type Tensor = tensor.Tensor[float32, *Backend]

// Labels is an int32 class-index tensor on Backend.
type Labels = tensor.Tensor[int32, *Backend]

// Model is a classifier mapping [N, ...] inputs to [N, classes] logits.
type Model = nn.Module[*Backend]

// Parameter is a trainable model parameter.
type Parameter = nn.Parameter[*Backend]

// LossFunc reduces logits and labels to a one-element loss tensor.
type LossFunc interface {
	Forward(logits *Tensor, targets *Labels) *Tensor
}

// ErrNoGradient is returned when the input did not reach the loss.
var ErrNoGradient = errors.New("input has no gradient path to the loss")

// New returns a fresh backend with its own tape.
func New() *Backend {
	return autodiff.New(cpu.New())
}

// CrossEntropy returns the standard classification loss.
func CrossEntropy(b *Backend) LossFunc {
	return nn.NewCrossEntropyLoss(b)
}

// NoGrad runs fn with tape recording disabled and restores the previous state.
func NoGrad(b *Backend, fn func()) {
	tape := b.Tape()
	was := tape.IsRecording()
	tape.StopRecording()
	defer func() {
		if was {
			tape.StartRecording()
		}
	}()
	fn()
}

// Logits runs the model without recording.
func Logits(b *Backend, m Model, x *Tensor) *Tensor {
	var out *Tensor
	NoGrad(b, func() { out = m.Forward(x) })
	return out
}

// Predict returns the arg-max class for every row of x.
func Predict(b *Backend, m Model, x *Tensor) []int32 {
	return Logits(b, m, x).Argmax(-1).Data()
}

// Loss evaluates the loss without recording.
func Loss(b *Backend, m Model, loss LossFunc, x *Tensor, labels *Labels) float32 {
	var v float32
	NoGrad(b, func() { v = loss.Forward(m.Forward(x), labels).Data()[0] })
	return v
}

// forwardBackward records one forward pass and returns gradients of the loss.
func forwardBackward(b *Backend, m Model, loss LossFunc, x *Tensor, labels *Labels) (map[*tensor.RawTensor]*tensor.RawTensor, float32) {
	tape := b.Tape()
	was := tape.IsRecording()
	tape.Clear()
	tape.StartRecording()
	defer func() {
		tape.Clear()
		if !was {
			tape.StopRecording()
		}
	}()

	out := loss.Forward(m.Forward(x), labels)
	grads := autodiff.Backward(out, b)
	return grads, out.Data()[0]
}

// InputGradient returns ∂loss/∂x for a batch together with the loss value.
//
// The model's parameters are not modified.
func InputGradient(b *Backend, m Model, loss LossFunc, x *Tensor, labels *Labels) (*Tensor, float32, error) {
	grads, value := forwardBackward(b, m, loss, x, labels)
	g, ok := grads[x.Raw()]
	if !ok {
		return nil, value, ErrNoGradient
	}
	return tensor.New[float32](g, b), value, nil
}

// TrainStep performs one optimizer update on a batch and returns the batch loss.
//
// A non-finite loss is returned without applying the update.
func TrainStep(b *Backend, m Model, loss LossFunc, opt optim.Optimizer, x *Tensor, labels *Labels) float32 {
	grads, value := forwardBackward(b, m, loss, x, labels)
	if math.IsNaN(float64(value)) || math.IsInf(float64(value), 0) {
		return value
	}
	opt.Step(grads)
	opt.ZeroGrad()
	return value
}

// FromSlice builds a tensor on b, wrapping shape errors.
func FromSlice(b *Backend, data []float32, shape tensor.Shape) (*Tensor, error) {
	t, err := tensor.FromSlice(data, shape, b)
	if err != nil {
		return nil, fmt.Errorf("tensor %v: %w", shape, err)
	}
	return t, nil
}

// LabelsFromSlice builds a label tensor on b.
func LabelsFromSlice(b *Backend, labels []int32) *Labels {
	t, _ := tensor.FromSlice(labels, tensor.Shape{len(labels)}, b)
	return t
}
