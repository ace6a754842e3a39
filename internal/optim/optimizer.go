// Package optim implements optimization algorithms for training.
//
// Usage:
//
//	optimizer := optim.NewSGD(model.Parameters(), optim.SGDConfig{LR: 0.01, Momentum: 0.5}, backend)
//
//	for batch := range batches {
//	    backend.Tape().Clear()
//	    loss := lossFn.Forward(model.Forward(batch.Images), batch.Labels)
//	    grads := autodiff.Backward(loss, backend)
//	    optimizer.Step(grads)
//	    optimizer.ZeroGrad()
//	}
package optim

import (
	"github.com/grist-ml/grist/internal/nn"
	"github.com/grist-ml/grist/internal/tensor"
)

// Optimizer is the base interface for optimization algorithms.
type Optimizer interface {
	// Step updates all parameters in place from the gradient map
	// produced by a backward pass. Parameters without a gradient are
	// skipped.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float32
}

// getGradient looks up the gradient recorded for a parameter's tensor.
func getGradient[B tensor.Backend](param *nn.Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) *tensor.RawTensor {
	if param == nil {
		return nil
	}
	return grads[param.Tensor().Raw()]
}
