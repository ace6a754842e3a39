// Package nn implements neural network modules.
//
// Building blocks:
//   - Module interface: base interface for all components
//   - Parameter: trainable parameter with gradient tracking
//   - Linear: fully connected layer
//   - ReLU, LogSoftmax: activations
//   - NLLLoss: negative log likelihood loss
//   - Sequential: container for stacking layers
package nn

import (
	"github.com/grist-ml/grist/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Modules compose into architectures:
//
//	model := nn.NewSequential[B](
//	    nn.NewLinear(784, 128, rng, backend),
//	    nn.NewReLU[B](),
//	    nn.NewLinear(128, 10, rng, backend),
//	    nn.NewLogSoftmax[B](),
//	)
type Module[B tensor.Backend] interface {
	// Forward computes the module output for the given input.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters, empty for
	// parameterless modules such as activations.
	Parameters() []*Parameter[B]
}

// Sequential chains modules, feeding each output into the next module.
type Sequential[B tensor.Backend] struct {
	modules []Module[B]
}

// NewSequential creates a Sequential container from the given modules.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return &Sequential[B]{modules: modules}
}

// Forward runs the input through every module in order.
func (s *Sequential[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	out := input
	for _, m := range s.modules {
		out = m.Forward(out)
	}
	return out
}

// Parameters returns the parameters of all contained modules.
func (s *Sequential[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, m := range s.modules {
		params = append(params, m.Parameters()...)
	}
	return params
}
