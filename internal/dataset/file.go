package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/errdefs"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/serialization"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

// Tensor names and metadata keys of a dataset file.
const (
	TensorImages = "images" // [N, C, H, W] float32
	TensorLabels = "labels" // [N] int32

	metaKind    = "kind"
	metaClasses = "classes"
	kindDataset = "dataset"
)

// SaveTensorFile writes ds to path as a .born file.
func SaveTensorFile(path string, ds Dataset) error {
	m, err := Materialize(ds)
	if err != nil {
		return err
	}
	n := m.Len()
	imgShape := append(tensor.Shape{n}, m.shape...)

	images, err := tensor.NewRaw(imgShape, tensor.Float32, tensor.CPU)
	if err != nil {
		return fmt.Errorf("dataset file: %w", err)
	}
	copy(images.AsFloat32(), m.images)
	labels, err := tensor.NewRaw(tensor.Shape{n}, tensor.Int32, tensor.CPU)
	if err != nil {
		return fmt.Errorf("dataset file: %w", err)
	}
	copy(labels.AsInt32(), m.labels)

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("dataset file: %w", err)
	}
	w, err := serialization.NewBornWriter(path)
	if err != nil {
		return fmt.Errorf("dataset file: %w", err)
	}
	defer func() { _ = w.Close() }()

	header := serialization.Header{
		ModelType: kindDataset,
		Metadata: map[string]string{
			metaKind:    kindDataset,
			metaClasses: strconv.Itoa(m.classes),
		},
	}
	if err := w.WriteStateDict(map[string]*tensor.RawTensor{TensorImages: images, TensorLabels: labels}, header); err != nil {
		return fmt.Errorf("dataset file: %w", err)
	}
	if err := w.Sync(); err != nil {
		return fmt.Errorf("dataset file: %w", err)
	}
	return w.Close()
}

// LoadTensorFile reads a dataset written by SaveTensorFile.
func LoadTensorFile(path string) (*InMemory, error) {
	r, err := serialization.NewBornReader(path)
	if err != nil {
		return nil, fmt.Errorf("dataset file %s: %w", path, err)
	}
	defer func() { _ = r.Close() }()

	classes, err := strconv.Atoi(r.Metadata()[metaClasses])
	if err != nil {
		return nil, fmt.Errorf("%w: dataset file %s: classes metadata: %v", errdefs.ErrInvalidConfiguration, path, err)
	}
	images, err := r.LoadTensor(TensorImages, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("dataset file %s: %w", path, err)
	}
	labels, err := r.LoadTensor(TensorLabels, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("dataset file %s: %w", path, err)
	}
	if images.DType() != tensor.Float32 || labels.DType() != tensor.Int32 || len(images.Shape()) < 2 {
		return nil, fmt.Errorf("%w: dataset file %s: unexpected tensors %s%v, %s%v", errdefs.ErrInvalidConfiguration,
			path, images.DType(), images.Shape(), labels.DType(), labels.Shape())
	}
	return NewInMemory(images.AsFloat32(), labels.AsInt32(), images.Shape()[1:], classes)
}
