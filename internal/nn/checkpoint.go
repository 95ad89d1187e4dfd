package nn

import (
	"fmt"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

// Snapshot returns a deep copy of a module's weights.
//
// The copy shares no storage with the module, so later training does not
// change it. Use Restore to load it back.
//
// Example:
//
//	initial := nn.Snapshot(model)
//	train(model)
//	_ = nn.Restore(model, initial) // back to initial weights
func Snapshot[B tensor.Backend](m Module[B]) map[string]*tensor.RawTensor {
	live := m.StateDict()
	snap := make(map[string]*tensor.RawTensor, len(live))
	for name, raw := range live {
		snap[name] = raw.Clone()
	}
	return snap
}

// Restore copies snapshot weights into the module in place.
//
// Every parameter of the module must be present in the snapshot with a
// matching shape. Extra snapshot entries are an error as well, since they
// indicate a snapshot taken from a different architecture.
func Restore[B tensor.Backend](m Module[B], snapshot map[string]*tensor.RawTensor) error {
	live := m.StateDict()
	if len(live) != len(snapshot) {
		return fmt.Errorf("restore: snapshot has %d tensors, module has %d", len(snapshot), len(live))
	}
	if err := m.LoadStateDict(snapshot); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	return nil
}

// NumParameters returns the total number of trainable scalars in a module.
func NumParameters[B tensor.Backend](m Module[B]) int {
	n := 0
	for _, p := range m.Parameters() {
		n += p.Tensor().NumElements()
	}
	return n
}
