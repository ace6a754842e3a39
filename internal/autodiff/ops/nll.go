package ops

import (
	"fmt"

	"github.com/grist-ml/grist/internal/tensor"
)

// Reduction selects how a loss collapses per-sample values to a scalar.
type Reduction int

const (
	// ReductionMean averages per-sample losses. Used for training so the
	// gradient scale is independent of batch size.
	ReductionMean Reduction = iota
	// ReductionSum adds per-sample losses. Used for evaluation so losses
	// from uneven batches can be accumulated and averaged exactly.
	ReductionSum
)

func (r Reduction) String() string {
	switch r {
	case ReductionMean:
		return "mean"
	case ReductionSum:
		return "sum"
	default:
		return fmt.Sprintf("Reduction(%d)", int(r))
	}
}

// NLLOp records output = nll_loss(logProbs, targets).
//
// logProbs is [batch, classes] of log-probabilities, targets is [batch]
// of class indices. Targets are class labels, not differentiable, so only
// logProbs appears in Inputs.
type NLLOp struct {
	logProbs  *tensor.RawTensor
	targets   *tensor.RawTensor
	output    *tensor.RawTensor
	reduction Reduction
}

// NewNLLOp creates a new NLLOp.
func NewNLLOp(logProbs, targets, output *tensor.RawTensor, reduction Reduction) *NLLOp {
	return &NLLOp{logProbs: logProbs, targets: targets, output: output, reduction: reduction}
}

// Backward scatters the scalar output gradient into the target positions.
// dloss/dlogProbs[b,c] is -1 at c == targets[b] and 0 elsewhere, scaled by
// 1/batch for the mean reduction.
func (op *NLLOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grad, err := tensor.NewRaw(op.logProbs.Shape(), op.logProbs.DType(), backend.Device())
	if err != nil {
		panic(fmt.Sprintf("nll backward: %v", err))
	}

	batch := op.logProbs.Shape()[0]
	classes := op.logProbs.Shape()[1]
	targets := op.targets.AsInt64()

	switch op.logProbs.DType() {
	case tensor.Float32:
		scale := outputGrad.AsFloat32()[0]
		if op.reduction == ReductionMean {
			scale /= float32(batch)
		}
		dst := grad.AsFloat32()
		for b := 0; b < batch; b++ {
			dst[b*classes+int(targets[b])] = -scale
		}
	case tensor.Float64:
		scale := outputGrad.AsFloat64()[0]
		if op.reduction == ReductionMean {
			scale /= float64(batch)
		}
		dst := grad.AsFloat64()
		for b := 0; b < batch; b++ {
			dst[b*classes+int(targets[b])] = -scale
		}
	default:
		panic(fmt.Sprintf("nll backward: unsupported dtype %s", op.logProbs.DType()))
	}

	return []*tensor.RawTensor{grad}
}

// Inputs returns [logProbs].
func (op *NLLOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.logProbs} }

// Output returns the reduced loss.
func (op *NLLOp) Output() *tensor.RawTensor { return op.output }
