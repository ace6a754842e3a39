package cpu

import (
	"fmt"
	"math"

	"github.com/grist-ml/grist/internal/tensor"
)

// LogSoftmax computes log(softmax(x)) along dim using the log-sum-exp
// trick: log_softmax(z) = z - max(z) - log(Σ exp(z - max(z))).
// Supports 2D tensors along their last dimension and 1D tensors.
func (c *CPUBackend) LogSoftmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	ndim := len(shape)
	if dim < 0 {
		dim += ndim
	}
	if !(ndim == 1 && dim == 0) && !(ndim == 2 && dim == 1) {
		panic(fmt.Sprintf("logsoftmax: unsupported shape %v with dim %d", shape, dim))
	}

	rows, cols := 1, shape[ndim-1]
	if ndim == 2 {
		rows = shape[0]
	}

	result := mustNewRaw(shape, x.DType(), c.device, "logsoftmax")
	switch x.DType() {
	case tensor.Float32:
		src, dst := x.AsFloat32(), result.AsFloat32()
		for r := 0; r < rows; r++ {
			logSoftmaxRow32(dst[r*cols:(r+1)*cols], src[r*cols:(r+1)*cols])
		}
	case tensor.Float64:
		src, dst := x.AsFloat64(), result.AsFloat64()
		for r := 0; r < rows; r++ {
			logSoftmaxRow64(dst[r*cols:(r+1)*cols], src[r*cols:(r+1)*cols])
		}
	default:
		panic(fmt.Sprintf("logsoftmax: unsupported dtype %s", x.DType()))
	}
	return result
}

func logSoftmaxRow32(dst, src []float32) {
	maxVal := src[0]
	for _, v := range src[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float64
	for _, v := range src {
		sum += math.Exp(float64(v - maxVal))
	}
	logSum := float32(math.Log(sum))
	for i, v := range src {
		dst[i] = v - maxVal - logSum
	}
}

func logSoftmaxRow64(dst, src []float64) {
	maxVal := src[0]
	for _, v := range src[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float64
	for _, v := range src {
		sum += math.Exp(v - maxVal)
	}
	logSum := math.Log(sum)
	for i, v := range src {
		dst[i] = v - maxVal - logSum
	}
}
