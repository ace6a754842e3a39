// Package autodiff provides automatic differentiation capabilities.
//
// This package implements reverse-mode automatic differentiation
// (backpropagation) using a gradient tape. It wraps any backend to add
// autodiff capabilities.
//
// Example:
//
//	import (
//	    "github.com/grist-ml/grist/autodiff"
//	    "github.com/grist-ml/grist/backend/cpu"
//	    "github.com/grist-ml/grist/tensor"
//	)
//
//	func main() {
//	    // Wrap CPU backend with autodiff
//	    base := cpu.New()
//	    backend := autodiff.New(base)
//	    backend.Tape().StartRecording()
//
//	    x := tensor.Ones[float32](tensor.Shape{2, 3}, backend)
//	    y := x.Mul(x)  // Operations recorded on tape
//
//	    // Compute gradients
//	    grads := autodiff.Backward(y, backend)
//	    _ = grads[x.Raw()]
//	}
package autodiff

import (
	"github.com/grist-ml/grist/internal/autodiff"
	"github.com/grist-ml/grist/internal/tensor"
)

// Backend is the autodiff-enabled backend.
type Backend[B tensor.Backend] = autodiff.AutodiffBackend[B]

// New creates a new autodiff backend wrapping the given backend.
//
// Example:
//
//	base := cpu.New()
//	backend := autodiff.New(base)
func New[B tensor.Backend](backend B) *Backend[B] {
	return autodiff.New(backend)
}

// GradientTape records operations for automatic differentiation.
type GradientTape = autodiff.GradientTape

// NewGradientTape creates a new gradient tape.
func NewGradientTape() *GradientTape {
	return autodiff.NewGradientTape()
}

// BackwardCapable interface for backends that support backpropagation.
type BackwardCapable = autodiff.BackwardCapable

// Backward computes gradients via backpropagation, seeding the output
// gradient with ones. The result maps each input raw tensor to its
// gradient.
func Backward[T tensor.DType, B BackwardCapable](t *tensor.Tensor[T, B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	return autodiff.Backward(t, backend)
}
