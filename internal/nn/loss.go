package nn

import (
	"fmt"

	"github.com/grist-ml/grist/internal/autodiff/ops"
	"github.com/grist-ml/grist/internal/tensor"
)

// Reduction selects how a loss collapses per-sample values. Training
// loops use ReductionMean; evaluation accumulates exact totals with
// ReductionSum.
type Reduction = ops.Reduction

const (
	// ReductionMean averages per-sample losses over the batch.
	ReductionMean = ops.ReductionMean
	// ReductionSum adds per-sample losses.
	ReductionSum = ops.ReductionSum
)

// NLLBackend is satisfied by backends that implement the negative log
// likelihood kernel.
type NLLBackend interface {
	NLL(logProbs, targets *tensor.RawTensor, reduction ops.Reduction) *tensor.RawTensor
}

// NLLLoss computes the negative log likelihood of int64 class targets
// under [batch, classes] log-probabilities, typically the output of a
// LogSoftmax layer.
type NLLLoss[B tensor.Backend] struct {
	reduction Reduction
}

// NewNLLLoss creates an NLLLoss with the given reduction.
func NewNLLLoss[B tensor.Backend](reduction Reduction) *NLLLoss[B] {
	return &NLLLoss[B]{reduction: reduction}
}

// Forward computes the reduced loss as a scalar [1] tensor.
func (l *NLLLoss[B]) Forward(logProbs *tensor.Tensor[float32, B], targets *tensor.Tensor[int64, B]) *tensor.Tensor[float32, B] {
	backend := logProbs.Backend()
	nllBackend, ok := any(backend).(NLLBackend)
	if !ok {
		panic("NLLLoss: backend must implement the NLL operation (wrap it with autodiff.New)")
	}
	raw := nllBackend.NLL(logProbs.Raw(), targets.Raw(), l.reduction)
	return tensor.New[float32, B](raw, backend)
}

// Reduction returns the configured reduction.
func (l *NLLLoss[B]) Reduction() Reduction {
	return l.reduction
}

// CountCorrect returns how many rows of logProbs have their argmax at
// the target class.
func CountCorrect[B tensor.Backend](logProbs *tensor.Tensor[float32, B], targets *tensor.Tensor[int64, B]) int {
	backend := logProbs.Backend()
	pred := backend.Argmax(logProbs.Raw(), 1)

	predIdx := pred.AsInt32()
	targetIdx := targets.Raw().AsInt64()
	if len(predIdx) != len(targetIdx) {
		panic(fmt.Sprintf("CountCorrect: %d predictions vs %d targets", len(predIdx), len(targetIdx)))
	}

	correct := 0
	for i := range predIdx {
		if int64(predIdx[i]) == targetIdx[i] {
			correct++
		}
	}
	return correct
}
