package nn

import (
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

// CrossEntropyLoss computes cross-entropy loss for multi-class classification.
//
// Mathematical Formulation:
//
//	Loss = mean(-log_softmax(logits)[target])
//
// Gradient (Backward):
//
//	∂L/∂logits = (Softmax(logits) - y_one_hot) / batch_size
//
// Usage:
//
//	criterion := nn.NewCrossEntropyLoss(backend)
//	logits := model.Forward(input)              // [batch_size, num_classes]
//	loss := criterion.Forward(logits, targets)  // targets: [batch_size] class indices
//
// Expects raw logits (unnormalized scores). The backend's fused
// implementation uses the log-sum-exp trick for numerical stability, and an
// autodiff backend records it on the tape.
type CrossEntropyLoss[B tensor.Backend] struct {
	backend B
}

// NewCrossEntropyLoss creates a new cross-entropy loss function.
func NewCrossEntropyLoss[B tensor.Backend](backend B) *CrossEntropyLoss[B] {
	return &CrossEntropyLoss[B]{
		backend: backend,
	}
}

// Forward computes the mean cross-entropy loss over the batch.
//
// Parameters:
//   - logits: Model predictions with shape [batch_size, num_classes]
//   - targets: Ground truth class indices with shape [batch_size]
//
// Returns a one-element loss tensor.
func (c *CrossEntropyLoss[B]) Forward(
	logits *tensor.Tensor[float32, B],
	targets *tensor.Tensor[int32, B],
) *tensor.Tensor[float32, B] {
	return tensor.New[float32, B](c.backend.CrossEntropy(logits.Raw(), targets.Raw()), c.backend)
}
