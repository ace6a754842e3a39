package nn

import (
	"github.com/grist-ml/grist/internal/tensor"
)

// Parameter is a trainable tensor with an associated gradient.
//
// The gradient is nil until a backward pass assigns it, and the
// optimizer clears it again with ZeroGrad between steps.
type Parameter[B tensor.Backend] struct {
	name   string
	tensor *tensor.Tensor[float32, B]
	grad   *tensor.Tensor[float32, B]
}

// NewParameter creates a trainable parameter from an initialized tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{name: name, tensor: t}
}

// Name returns the parameter name, e.g. "weight" or "bias".
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] {
	return p.tensor
}

// Grad returns the gradient, nil before the first backward pass.
func (p *Parameter[B]) Grad() *tensor.Tensor[float32, B] {
	return p.grad
}

// SetGrad assigns the gradient after a backward pass.
func (p *Parameter[B]) SetGrad(grad *tensor.Tensor[float32, B]) {
	p.grad = grad
}

// ZeroGrad clears the gradient so the next step does not accumulate
// into stale values.
func (p *Parameter[B]) ZeroGrad() {
	p.grad = nil
}
