package ops

import (
	"math"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

// CrossEntropyOp represents the fused softmax cross-entropy loss.
//
// Forward:
//
//	Loss = mean(-log_softmax(logits)[targets])
//
// Backward:
//
//	∂L/∂logits = (softmax(logits) - y_one_hot) / batch_size
//
// Logits shape: [batch_size, num_classes], targets shape: [batch_size].
// Targets are class indices and receive no gradient.
type CrossEntropyOp struct {
	logits  *tensor.RawTensor
	targets *tensor.RawTensor
	output  *tensor.RawTensor
}

// NewCrossEntropyOp creates a new cross-entropy operation.
func NewCrossEntropyOp(logits, targets, output *tensor.RawTensor) *CrossEntropyOp {
	return &CrossEntropyOp{
		logits:  logits,
		targets: targets,
		output:  output,
	}
}

// Inputs returns the input tensors.
func (op *CrossEntropyOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.logits}
}

// Output returns the output tensor.
func (op *CrossEntropyOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes the gradient with respect to logits.
func (op *CrossEntropyOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	shape := op.logits.Shape()
	if len(shape) != 2 {
		panic("CrossEntropyOp: backward only supports 2D logits [batch_size, num_classes]")
	}
	batchSize, numClasses := shape[0], shape[1]

	logitsGrad := tensor.MustRaw(shape, tensor.Float32, op.logits.Device())

	logits := op.logits.AsFloat32()
	targets := op.targets.AsInt32()
	grad := logitsGrad.AsFloat32()
	scale := outputGrad.AsFloat32()[0] / float32(batchSize)

	for b := 0; b < batchSize; b++ {
		probs := softmax(logits[b*numClasses : (b+1)*numClasses])
		target := int(targets[b])
		for i, p := range probs {
			if i == target {
				p -= 1
			}
			grad[b*numClasses+i] = scale * p
		}
	}

	return []*tensor.RawTensor{logitsGrad}
}

// softmax computes softmax with numerical stability for a single sample.
func softmax(logits []float32) []float32 {
	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	probs := make([]float32, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxVal))
		probs[i] = float32(e)
		sum += e
	}
	for i := range probs {
		probs[i] = float32(float64(probs[i]) / sum)
	}
	return probs
}
