// Package dataset provides labelled image datasets for training and attacks.
//
// Samples are float32 images laid out as [C, H, W] with pixel values in
// [0, 1] and an int32 class label. Datasets enter the system either from a
// seeded synthetic generator or from a .born tensor file holding already
// transformed images.
package dataset

import (
	"fmt"
	"math/rand/v2"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/errdefs"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

// Dataset is a finite, indexable collection of labelled samples.
type Dataset interface {
	// Len returns the number of samples.
	Len() int
	// Sample returns the pixels and label of sample i. The pixel slice
	// must not be modified.
	Sample(i int) ([]float32, int32)
	// SampleShape returns the per-sample shape, e.g. [3, 32, 32].
	SampleShape() tensor.Shape
	// NumClasses returns the number of label classes.
	NumClasses() int
}

// InMemory is a dataset held in contiguous slices.
type InMemory struct {
	images  []float32
	labels  []int32
	shape   tensor.Shape
	classes int
	stride  int
}

// NewInMemory wraps images (len(labels) samples of the given shape) and labels.
func NewInMemory(images []float32, labels []int32, shape tensor.Shape, classes int) (*InMemory, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("%w: sample shape: %v", errdefs.ErrInvalidConfiguration, err)
	}
	if classes < 1 {
		return nil, fmt.Errorf("%w: classes must be >= 1, got %d", errdefs.ErrInvalidConfiguration, classes)
	}
	stride := shape.NumElements()
	if len(images) != len(labels)*stride {
		return nil, fmt.Errorf("%w: %d labels need %d pixels, got %d",
			errdefs.ErrInvalidConfiguration, len(labels), len(labels)*stride, len(images))
	}
	for i, l := range labels {
		if l < 0 || int(l) >= classes {
			return nil, fmt.Errorf("%w: label %d of sample %d outside [0, %d)", errdefs.ErrInvalidConfiguration, l, i, classes)
		}
	}
	return &InMemory{images: images, labels: labels, shape: shape.Clone(), classes: classes, stride: stride}, nil
}

// Len implements Dataset.
func (d *InMemory) Len() int { return len(d.labels) }

// Sample implements Dataset.
func (d *InMemory) Sample(i int) ([]float32, int32) {
	return d.images[i*d.stride : (i+1)*d.stride], d.labels[i]
}

// SampleShape implements Dataset.
func (d *InMemory) SampleShape() tensor.Shape { return d.shape }

// NumClasses implements Dataset.
func (d *InMemory) NumClasses() int { return d.classes }

// Subset is a view of selected samples of a parent dataset.
type Subset struct {
	parent  Dataset
	indices []int
}

// NewSubset returns the view of parent at indices.
func NewSubset(parent Dataset, indices []int) (*Subset, error) {
	for _, i := range indices {
		if i < 0 || i >= parent.Len() {
			return nil, fmt.Errorf("%w: index %d outside dataset of %d samples", errdefs.ErrDataExhausted, i, parent.Len())
		}
	}
	return &Subset{parent: parent, indices: indices}, nil
}

// Len implements Dataset.
func (s *Subset) Len() int { return len(s.indices) }

// Sample implements Dataset.
func (s *Subset) Sample(i int) ([]float32, int32) { return s.parent.Sample(s.indices[i]) }

// SampleShape implements Dataset.
func (s *Subset) SampleShape() tensor.Shape { return s.parent.SampleShape() }

// NumClasses implements Dataset.
func (s *Subset) NumClasses() int { return s.parent.NumClasses() }

// Split shuffles ds with rng and returns the first fraction of samples as
// train and the rest as validation. Both parts must be non-empty.
func Split(ds Dataset, fraction float64, rng *rand.Rand) (train, val *Subset, err error) {
	if !(fraction > 0 && fraction < 1) {
		return nil, nil, fmt.Errorf("%w: split fraction must be in (0, 1), got %v", errdefs.ErrInvalidConfiguration, fraction)
	}
	n := ds.Len()
	cut := int(float64(n) * fraction)
	if cut == 0 || cut == n {
		return nil, nil, fmt.Errorf("%w: %d samples cannot be split at %v", errdefs.ErrDataExhausted, n, fraction)
	}
	perm := rng.Perm(n)
	return &Subset{parent: ds, indices: perm[:cut]}, &Subset{parent: ds, indices: perm[cut:]}, nil
}

// Take returns the first n samples of ds.
func Take(ds Dataset, n int) (*Subset, error) {
	if n > ds.Len() {
		return nil, fmt.Errorf("%w: want %d samples, dataset has %d", errdefs.ErrDataExhausted, n, ds.Len())
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: take needs n >= 1, got %d", errdefs.ErrInvalidConfiguration, n)
	}
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return &Subset{parent: ds, indices: indices}, nil
}

// Materialize copies ds into a contiguous InMemory dataset.
func Materialize(ds Dataset) (*InMemory, error) {
	if m, ok := ds.(*InMemory); ok {
		return m, nil
	}
	stride := ds.SampleShape().NumElements()
	images := make([]float32, 0, ds.Len()*stride)
	labels := make([]int32, ds.Len())
	for i := range labels {
		px, l := ds.Sample(i)
		images = append(images, px...)
		labels[i] = l
	}
	return NewInMemory(images, labels, ds.SampleShape(), ds.NumClasses())
}
