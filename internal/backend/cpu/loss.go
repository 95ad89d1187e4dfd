package cpu

import (
	"fmt"
	"math"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

// CrossEntropy computes the mean softmax cross-entropy loss.
//
//	Loss = mean_b(-log_softmax(logits[b])[targets[b]])
//
// Uses the log-sum-exp trick for numerical stability:
//
//	log_softmax(z) = z - (max(z) + log(Σ exp(z - max(z))))
//
// Logits shape: [batch_size, num_classes], targets shape: [batch_size] (int32).
// Returns a one-element tensor of shape [1].
func (cpu *CPUBackend) CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("cross_entropy", logits)

	shape := logits.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("cross_entropy: logits must be 2D [batch_size, num_classes], got %v", shape))
	}
	if targets.DType() != tensor.Int32 {
		panic(fmt.Sprintf("cross_entropy: targets must be int32, got %s", targets.DType()))
	}

	batchSize, numClasses := shape[0], shape[1]
	targetData := targets.AsInt32()
	if len(targetData) != batchSize {
		panic(fmt.Sprintf("cross_entropy: %d targets for batch of %d", len(targetData), batchSize))
	}

	data := logits.AsFloat32()
	var total float64
	for b := 0; b < batchSize; b++ {
		row := data[b*numClasses : (b+1)*numClasses]
		target := int(targetData[b])
		if target < 0 || target >= numClasses {
			panic(fmt.Sprintf("cross_entropy: target %d out of range [0, %d)", target, numClasses))
		}
		total += logSumExp(row) - float64(row[target])
	}

	result := cpu.newResult("cross_entropy", tensor.Shape{1}, tensor.Float32)
	result.AsFloat32()[0] = float32(total / float64(batchSize))
	return result
}

// logSumExp computes log(Σ exp(z)) stably.
func logSumExp(z []float32) float64 {
	maxVal := float64(z[0])
	for _, v := range z[1:] {
		maxVal = math.Max(maxVal, float64(v))
	}
	var sum float64
	for _, v := range z {
		sum += math.Exp(float64(v) - maxVal)
	}
	return maxVal + math.Log(sum)
}
