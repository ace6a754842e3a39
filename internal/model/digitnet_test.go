package model_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grist-ml/grist/internal/autodiff"
	"github.com/grist-ml/grist/internal/backend/cpu"
	"github.com/grist-ml/grist/internal/model"
	"github.com/grist-ml/grist/internal/tensor"
)

func TestDigitNet_ForwardShape(t *testing.T) {
	backend := autodiff.New(cpu.New())
	net := model.NewDigitNet(rand.New(rand.NewSource(1)), backend)

	input := tensor.Zeros[float32](tensor.Shape{16, model.InputSize}, backend)
	output := net.Forward(input)

	assert.True(t, output.Shape().Equal(tensor.Shape{16, model.NumClasses}))
}

func TestDigitNet_OutputsLogProbabilities(t *testing.T) {
	backend := autodiff.New(cpu.New())
	net := model.NewDigitNet(rand.New(rand.NewSource(2)), backend)

	input := tensor.Zeros[float32](tensor.Shape{3, model.InputSize}, backend)
	for i := range input.Data() {
		input.Data()[i] = float32(i%7) * 0.01
	}
	output := net.Forward(input)

	data := output.Data()
	for r := 0; r < 3; r++ {
		var sum float64
		for c := 0; c < model.NumClasses; c++ {
			v := data[r*model.NumClasses+c]
			require.LessOrEqual(t, v, float32(0), "log-probabilities must be non-positive")
			sum += math.Exp(float64(v))
		}
		assert.InDelta(t, 1.0, sum, 1e-5, "row %d", r)
	}
}

func TestDigitNet_ParameterCount(t *testing.T) {
	backend := autodiff.New(cpu.New())
	net := model.NewDigitNet(rand.New(rand.NewSource(1)), backend)

	params := net.Parameters()
	require.Len(t, params, 4)

	total := 0
	for _, p := range params {
		total += p.Tensor().NumElements()
	}
	// 784*128 + 128 + 128*10 + 10
	assert.Equal(t, 101770, total)
}

func TestDigitNet_SeedReproducible(t *testing.T) {
	backend := autodiff.New(cpu.New())
	a := model.NewDigitNet(rand.New(rand.NewSource(5)), backend)
	b := model.NewDigitNet(rand.New(rand.NewSource(5)), backend)

	assert.Equal(t, a.Parameters()[0].Tensor().Data(), b.Parameters()[0].Tensor().Data())
}
