package nn

import (
	"github.com/grist-ml/grist/internal/tensor"
)

// ReLUBackend is satisfied by backends that implement the ReLU kernel.
type ReLUBackend interface {
	ReLU(*tensor.RawTensor) *tensor.RawTensor
}

// ReLU applies the element-wise rectifier f(x) = max(0, x).
type ReLU[B tensor.Backend] struct{}

// NewReLU creates a ReLU activation module.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return &ReLU[B]{}
}

// Forward applies the rectifier.
func (r *ReLU[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	backend := input.Backend()
	reluBackend, ok := any(backend).(ReLUBackend)
	if !ok {
		panic("ReLU: backend must implement the ReLU operation (wrap it with autodiff.New)")
	}
	return tensor.New[float32, B](reluBackend.ReLU(input.Raw()), backend)
}

// Parameters returns nil, ReLU has no trainable parameters.
func (r *ReLU[B]) Parameters() []*Parameter[B] {
	return nil
}

// LogSoftmax normalizes each row of [batch, classes] logits to
// log-probabilities. Placing it last in a model pairs with NLLLoss.
type LogSoftmax[B tensor.Backend] struct{}

// NewLogSoftmax creates a LogSoftmax module over the last axis.
func NewLogSoftmax[B tensor.Backend]() *LogSoftmax[B] {
	return &LogSoftmax[B]{}
}

// Forward applies log-softmax along the last axis.
func (l *LogSoftmax[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return input.LogSoftmax(-1)
}

// Parameters returns nil.
func (l *LogSoftmax[B]) Parameters() []*Parameter[B] {
	return nil
}
