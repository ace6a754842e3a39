package nn

import (
	"fmt"
	"math/rand"

	"github.com/grist-ml/grist/internal/tensor"
)

// Linear implements a fully connected layer: y = x @ Wᵀ + b.
//
// Shapes:
//   - x: [batch, inFeatures]
//   - W: [outFeatures, inFeatures], Xavier initialized
//   - b: [outFeatures], zero initialized
//   - y: [batch, outFeatures]
type Linear[B tensor.Backend] struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter[B]
	bias        *Parameter[B]
	backend     B
}

// NewLinear creates a Linear layer with Xavier weights and zero biases
// drawn from the given random source.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, rng *rand.Rand, backend B) *Linear[B] {
	weightShape := tensor.Shape{outFeatures, inFeatures}
	weight := NewParameter("weight", Xavier(inFeatures, outFeatures, weightShape, rng, backend))
	bias := NewParameter("bias", Zeros(tensor.Shape{outFeatures}, backend))

	return &Linear[B]{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      weight,
		bias:        bias,
		backend:     backend,
	}
}

// Forward computes y = x @ Wᵀ + b.
func (l *Linear[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if shape.Rank() != 2 {
		panic(fmt.Sprintf("Linear.Forward: expected 2D input [batch, features], got %v", shape))
	}
	if shape[1] != l.inFeatures {
		panic(fmt.Sprintf("Linear.Forward: expected %d input features, got %d", l.inFeatures, shape[1]))
	}

	wT := l.weight.Tensor().Transpose() // [inFeatures, outFeatures]
	output := input.MatMul(wT)

	// Bias broadcasts as a [1, outFeatures] row over the batch.
	bRow := l.bias.Tensor().Reshape(1, l.outFeatures)
	return output.Add(bRow)
}

// Parameters returns [weight, bias].
func (l *Linear[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{l.weight, l.bias}
}

// Weight returns the weight parameter.
func (l *Linear[B]) Weight() *Parameter[B] { return l.weight }

// Bias returns the bias parameter.
func (l *Linear[B]) Bias() *Parameter[B] { return l.bias }

// InFeatures returns the input feature count.
func (l *Linear[B]) InFeatures() int { return l.inFeatures }

// OutFeatures returns the output feature count.
func (l *Linear[B]) OutFeatures() int { return l.outFeatures }
