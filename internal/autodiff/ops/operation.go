// Package ops defines the differentiable operations recorded on the
// gradient tape. Each operation keeps references to its forward inputs
// and output and knows how to turn an output gradient into input
// gradients.
package ops

import "github.com/grist-ml/grist/internal/tensor"

// Operation is one node of the recorded computation graph.
type Operation interface {
	// Backward computes gradients for the inputs given the output
	// gradient, in input order. A nil entry means no gradient flows to
	// that input.
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors of this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the tensor produced by this operation.
	Output() *tensor.RawTensor
}
