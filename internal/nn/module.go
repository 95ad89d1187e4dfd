// Package nn implements neural network modules for the classifier engine.
//
// This package provides building blocks for constructing image classifiers:
//   - Module interface: Base interface for all NN components
//   - Parameter: Trainable parameters with gradient tracking
//   - Linear, Conv2D, MaxPool2D, Flatten: layers
//   - ReLU, LeakyReLU: activations
//   - CrossEntropyLoss: classification loss
//   - Sequential: Container for stacking layers
//   - Snapshot / Restore: copy weights out of and back into a module
//
// Design inspired by PyTorch's nn.Module but adapted for Go generics.
package nn

import (
	"fmt"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Modules can be composed to build complex architectures:
//
//	model := nn.NewSequential[Backend](
//	    nn.NewLinear(784, 128, rng, backend),
//	    nn.NewReLU[Backend](),
//	    nn.NewLinear(128, 10, rng, backend),
//	)
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters of this module.
	// Returns an empty slice for modules without trainable parameters.
	Parameters() []*Parameter[B]

	// StateDict returns parameter tensors keyed by name.
	// The returned tensors are the live parameters, not copies.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict copies values from stateDict into the module's parameters.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// paramStateDict builds a state dict from named parameters.
func paramStateDict[B tensor.Backend](params ...*Parameter[B]) map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor, len(params))
	for _, p := range params {
		if p != nil {
			stateDict[p.Name()] = p.Tensor().Raw()
		}
	}
	return stateDict
}

// loadParams copies stateDict entries into the matching parameters in place.
// Copying keeps parameter identity stable for optimizers holding references.
func loadParams[B tensor.Backend](stateDict map[string]*tensor.RawTensor, params ...*Parameter[B]) error {
	for _, p := range params {
		if p == nil {
			continue
		}
		src, ok := stateDict[p.Name()]
		if !ok {
			return fmt.Errorf("missing parameter %q", p.Name())
		}
		dst := p.Tensor().Raw()
		if !src.Shape().Equal(dst.Shape()) {
			return fmt.Errorf("parameter %q: shape %v does not match %v", p.Name(), src.Shape(), dst.Shape())
		}
		if src.DType() != dst.DType() {
			return fmt.Errorf("parameter %q: dtype %s does not match %s", p.Name(), src.DType(), dst.DType())
		}
		copy(dst.Data(), src.Data())
	}
	return nil
}
