package nn

import (
	"math"
	"math/rand"

	"github.com/grist-ml/grist/internal/tensor"
)

// Xavier initializes a weight tensor with the Glorot uniform
// distribution U(-sqrt(6/(fanIn+fanOut)), +sqrt(6/(fanIn+fanOut))),
// keeping activation variance roughly constant across layers.
//
// The caller supplies the random source so runs are reproducible from
// a seed flag.
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, rng *rand.Rand, backend B) *tensor.Tensor[float32, B] {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))

	t, err := tensor.NewRaw(shape, tensor.Float32, backend.Device())
	if err != nil {
		panic(err)
	}

	data := t.AsFloat32()
	for i := range data {
		data[i] = float32((rng.Float64()*2 - 1) * bound)
	}

	return tensor.New[float32, B](t, backend)
}

// Zeros creates a zero-filled tensor, the usual bias initialization.
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Zeros[float32](shape, backend)
}
