// Package model defines the digit classification network.
package model

import (
	"math/rand"

	"github.com/grist-ml/grist/internal/nn"
	"github.com/grist-ml/grist/internal/tensor"
)

// Input and output dimensions of the classifier.
const (
	InputSize  = 784 // 28x28 grayscale image, flattened
	HiddenSize = 128
	NumClasses = 10
)

// DigitNet is a two-layer MLP over flattened 28x28 images. Forward
// returns log-probabilities, so it pairs with NLLLoss directly.
type DigitNet[B tensor.Backend] struct {
	layers *nn.Sequential[B]
}

// NewDigitNet builds the network with Xavier-initialized weights drawn
// from the given random source.
func NewDigitNet[B tensor.Backend](rng *rand.Rand, backend B) *DigitNet[B] {
	return &DigitNet[B]{
		layers: nn.NewSequential[B](
			nn.NewLinear(InputSize, HiddenSize, rng, backend),
			nn.NewReLU[B](),
			nn.NewLinear(HiddenSize, NumClasses, rng, backend),
			nn.NewLogSoftmax[B](),
		),
	}
}

// Forward maps [batch, 784] images to [batch, 10] log-probabilities.
func (m *DigitNet[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return m.layers.Forward(input)
}

// Parameters returns the trainable parameters of both linear layers.
func (m *DigitNet[B]) Parameters() []*nn.Parameter[B] {
	return m.layers.Parameters()
}
