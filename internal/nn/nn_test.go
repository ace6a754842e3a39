package nn_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grist-ml/grist/internal/autodiff"
	"github.com/grist-ml/grist/internal/backend/cpu"
	"github.com/grist-ml/grist/internal/nn"
	"github.com/grist-ml/grist/internal/tensor"
)

func TestLinear_ForwardShape(t *testing.T) {
	backend := autodiff.New(cpu.New())
	rng := rand.New(rand.NewSource(1))
	layer := nn.NewLinear(784, 128, rng, backend)

	input := tensor.Zeros[float32](tensor.Shape{32, 784}, backend)
	output := layer.Forward(input)

	assert.True(t, output.Shape().Equal(tensor.Shape{32, 128}),
		"output shape %v", output.Shape())
}

func TestLinear_KnownValues(t *testing.T) {
	backend := autodiff.New(cpu.New())
	rng := rand.New(rand.NewSource(1))
	layer := nn.NewLinear(2, 2, rng, backend)

	// Overwrite the random init with known weights.
	copy(layer.Weight().Tensor().Data(), []float32{1, 2, 3, 4})
	copy(layer.Bias().Tensor().Data(), []float32{10, 20})

	input, err := tensor.FromSlice([]float32{1, 1}, tensor.Shape{1, 2}, backend)
	require.NoError(t, err)

	output := layer.Forward(input)

	// y = x @ Wᵀ + b = [1+2, 3+4] + [10, 20]
	assert.InDelta(t, 13, output.At(0, 0), 1e-6)
	assert.InDelta(t, 27, output.At(0, 1), 1e-6)
}

func TestLinear_XavierBounds(t *testing.T) {
	backend := autodiff.New(cpu.New())
	rng := rand.New(rand.NewSource(42))
	layer := nn.NewLinear(100, 50, rng, backend)

	bound := math.Sqrt(6.0 / 150.0)
	for _, w := range layer.Weight().Tensor().Data() {
		require.LessOrEqual(t, math.Abs(float64(w)), bound)
	}
	for _, b := range layer.Bias().Tensor().Data() {
		require.Zero(t, b)
	}
}

func TestLinear_RejectsBadInput(t *testing.T) {
	backend := autodiff.New(cpu.New())
	rng := rand.New(rand.NewSource(1))
	layer := nn.NewLinear(4, 2, rng, backend)

	bad := tensor.Zeros[float32](tensor.Shape{3, 5}, backend)
	assert.Panics(t, func() { layer.Forward(bad) })
}

func TestReLU_Forward(t *testing.T) {
	backend := autodiff.New(cpu.New())
	relu := nn.NewReLU[*autodiff.AutodiffBackend[*cpu.CPUBackend]]()

	input, err := tensor.FromSlice([]float32{-2, -0.5, 0, 1.5}, tensor.Shape{4}, backend)
	require.NoError(t, err)

	output := relu.Forward(input)
	assert.Equal(t, []float32{0, 0, 0, 1.5}, output.Data())
	assert.Nil(t, relu.Parameters())
}

func TestLogSoftmax_RowsSumToOne(t *testing.T) {
	backend := autodiff.New(cpu.New())
	ls := nn.NewLogSoftmax[*autodiff.AutodiffBackend[*cpu.CPUBackend]]()

	input, err := tensor.FromSlice([]float32{1, 2, 3, 10, 20, 30}, tensor.Shape{2, 3}, backend)
	require.NoError(t, err)

	output := ls.Forward(input)
	data := output.Data()
	for r := 0; r < 2; r++ {
		var sum float64
		for c := 0; c < 3; c++ {
			sum += math.Exp(float64(data[r*3+c]))
		}
		assert.InDelta(t, 1.0, sum, 1e-5, "row %d", r)
	}
}

func TestNLLLoss_MeanMatchesManual(t *testing.T) {
	backend := autodiff.New(cpu.New())
	lossFn := nn.NewNLLLoss[*autodiff.AutodiffBackend[*cpu.CPUBackend]](nn.ReductionMean)

	logProbs, err := tensor.FromSlice([]float32{
		-0.1, -2.5,
		-3.0, -0.05,
	}, tensor.Shape{2, 2}, backend)
	require.NoError(t, err)
	targets, err := tensor.FromSlice([]int64{0, 1}, tensor.Shape{2}, backend)
	require.NoError(t, err)

	loss := lossFn.Forward(logProbs, targets)
	assert.InDelta(t, (0.1+0.05)/2, float64(loss.At(0)), 1e-6)
}

func TestSequential_ComposesAndCollectsParameters(t *testing.T) {
	backend := autodiff.New(cpu.New())
	rng := rand.New(rand.NewSource(1))

	model := nn.NewSequential[*autodiff.AutodiffBackend[*cpu.CPUBackend]](
		nn.NewLinear(4, 3, rng, backend),
		nn.NewReLU[*autodiff.AutodiffBackend[*cpu.CPUBackend]](),
		nn.NewLinear(3, 2, rng, backend),
		nn.NewLogSoftmax[*autodiff.AutodiffBackend[*cpu.CPUBackend]](),
	)

	input := tensor.Zeros[float32](tensor.Shape{5, 4}, backend)
	output := model.Forward(input)

	assert.True(t, output.Shape().Equal(tensor.Shape{5, 2}))
	assert.Len(t, model.Parameters(), 4) // two weights, two biases
}

func TestCountCorrect(t *testing.T) {
	backend := autodiff.New(cpu.New())

	logProbs, err := tensor.FromSlice([]float32{
		-0.1, -3.0, -4.0, // pred 0
		-2.0, -0.2, -3.0, // pred 1
		-1.0, -0.9, -0.8, // pred 2
	}, tensor.Shape{3, 3}, backend)
	require.NoError(t, err)
	targets, err := tensor.FromSlice([]int64{0, 1, 0}, tensor.Shape{3}, backend)
	require.NoError(t, err)

	assert.Equal(t, 2, nn.CountCorrect(logProbs, targets))
}
