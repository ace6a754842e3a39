package autodiff

import (
	"fmt"

	"github.com/grist-ml/grist/internal/tensor"
)

// BackwardCapable is satisfied by backends that carry a gradient tape.
type BackwardCapable interface {
	tensor.Backend
	GetTape() *GradientTape
}

// GetTape returns the gradient tape. Implements BackwardCapable.
func (b *AutodiffBackend[B]) GetTape() *GradientTape {
	return b.tape
}

// Backward computes gradients for t by replaying the backend's tape in
// reverse, seeding the output gradient with ones. Returns a map from
// forward RawTensor to its gradient.
//
//	grads := autodiff.Backward(loss, backend)
//	wGrad := grads[w.Raw()]
func Backward[T tensor.DType, B BackwardCapable](t *tensor.Tensor[T, B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	tape := backend.GetTape()
	if tape.NumOps() == 0 {
		panic("backward: no operations recorded (call Tape().StartRecording() before the forward pass)")
	}

	seed, err := tensor.OnesLike(t.Raw())
	if err != nil {
		panic(fmt.Sprintf("backward: %v", err))
	}

	return tape.Backward(seed, backend)
}
