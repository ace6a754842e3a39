// Package nn provides neural network building blocks: modules, layers,
// activations, losses and parameter initialization.
package nn

import (
	"math/rand"

	"github.com/grist-ml/grist/internal/nn"
	"github.com/grist-ml/grist/internal/tensor"
)

// Module interface defines the common interface for all neural network modules.
type Module[B tensor.Backend] = nn.Module[B]

// Parameter represents a trainable parameter in a neural network.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// NewParameter creates a new parameter with the given name and tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// Layers

// Linear represents a fully connected (dense) layer.
type Linear[B tensor.Backend] = nn.Linear[B]

// NewLinear creates a new linear layer with Xavier initialization drawn
// from rng.
//
// Example:
//
//	backend := cpu.New()
//	rng := rand.New(rand.NewSource(1))
//	layer := nn.NewLinear(784, 128, rng, backend)
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, rng *rand.Rand, backend B) *Linear[B] {
	return nn.NewLinear(inFeatures, outFeatures, rng, backend)
}

// Activations

// ReLU represents the Rectified Linear Unit activation function.
type ReLU[B tensor.Backend] = nn.ReLU[B]

// NewReLU creates a new ReLU activation layer.
//
// Example:
//
//	relu := nn.NewReLU[B]()
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return nn.NewReLU[B]()
}

// LogSoftmax applies log-softmax over the last dimension.
type LogSoftmax[B tensor.Backend] = nn.LogSoftmax[B]

// NewLogSoftmax creates a new LogSoftmax layer.
func NewLogSoftmax[B tensor.Backend]() *LogSoftmax[B] {
	return nn.NewLogSoftmax[B]()
}

// Loss Functions

// Reduction selects how a loss collapses per-sample values.
type Reduction = nn.Reduction

// Reduction constants.
const (
	ReductionMean = nn.ReductionMean
	ReductionSum  = nn.ReductionSum
)

// NLLLoss represents the negative log-likelihood loss over log
// probabilities, the classification loss paired with LogSoftmax.
type NLLLoss[B tensor.Backend] = nn.NLLLoss[B]

// NewNLLLoss creates a new NLL loss function.
//
// Example:
//
//	criterion := nn.NewNLLLoss[B](nn.ReductionMean)
//	loss := criterion.Forward(logProbs, labels)
func NewNLLLoss[B tensor.Backend](reduction Reduction) *NLLLoss[B] {
	return nn.NewNLLLoss[B](reduction)
}

// CountCorrect returns how many argmax predictions match the targets.
//
// Example:
//
//	correct := nn.CountCorrect(logProbs, labels)
func CountCorrect[B tensor.Backend](logProbs *tensor.Tensor[float32, B], targets *tensor.Tensor[int64, B]) int {
	return nn.CountCorrect(logProbs, targets)
}

// Sequential

// Sequential represents a sequential container of modules.
type Sequential[B tensor.Backend] = nn.Sequential[B]

// NewSequential creates a new sequential model.
//
// Example:
//
//	backend := cpu.New()
//	rng := rand.New(rand.NewSource(1))
//	model := nn.NewSequential(
//	    nn.NewLinear(784, 128, rng, backend),
//	    nn.NewReLU[B](),
//	    nn.NewLinear(128, 10, rng, backend),
//	    nn.NewLogSoftmax[B](),
//	)
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return nn.NewSequential(modules...)
}

// Initialization functions

// Xavier initializes a tensor using Xavier/Glorot uniform initialization.
//
// Example:
//
//	weights := nn.Xavier(784, 128, tensor.Shape{128, 784}, rng, backend)
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, rng *rand.Rand, backend B) *tensor.Tensor[float32, B] {
	return nn.Xavier(fanIn, fanOut, shape, rng, backend)
}

// Zeros initializes a tensor with zeros (for biases).
//
// Example:
//
//	bias := nn.Zeros(tensor.Shape{128}, backend)
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return nn.Zeros(shape, backend)
}
