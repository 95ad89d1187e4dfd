package dataset

import (
	"iter"
	"math/rand/v2"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/engine"
)

// Batch is a group of samples as tensors on an engine backend.
type Batch struct {
	X      *engine.Tensor // [N, C, H, W]
	Labels *engine.Labels // [N]
}

// Len returns the number of samples in the batch.
func (b Batch) Len() int { return b.Labels.NumElements() }

// Gather builds a batch from the samples at indices.
func Gather(b *engine.Backend, ds Dataset, indices []int) Batch {
	shape := ds.SampleShape()
	stride := shape.NumElements()
	pixels := make([]float32, 0, len(indices)*stride)
	labels := make([]int32, len(indices))
	for i, idx := range indices {
		px, l := ds.Sample(idx)
		pixels = append(pixels, px...)
		labels[i] = l
	}
	x, err := engine.FromSlice(b, pixels, append([]int{len(indices)}, shape...))
	if err != nil {
		panic(err)
	}
	return Batch{X: x, Labels: engine.LabelsFromSlice(b, labels)}
}

// Batches yields ds in batches of at most size samples. A non-nil rng
// shuffles the order; nil keeps dataset order.
func Batches(b *engine.Backend, ds Dataset, size int, rng *rand.Rand) iter.Seq[Batch] {
	return func(yield func(Batch) bool) {
		n := ds.Len()
		if n == 0 || size < 1 {
			return
		}
		var order []int
		if rng != nil {
			order = rng.Perm(n)
		} else {
			order = make([]int, n)
			for i := range order {
				order[i] = i
			}
		}
		for start := 0; start < n; start += size {
			if !yield(Gather(b, ds, order[start:min(start+size, n)])) {
				return
			}
		}
	}
}
