package cpu

import (
	"fmt"
	"math"

	"github.com/grist-ml/grist/internal/tensor"
)

// Sum reduces the whole tensor to a scalar of shape [1].
func (c *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	result := mustNewRaw(tensor.Shape{1}, x.DType(), c.device, "sum")
	switch x.DType() {
	case tensor.Float32:
		var total float32
		for _, v := range x.AsFloat32() {
			total += v
		}
		result.AsFloat32()[0] = total
	case tensor.Float64:
		var total float64
		for _, v := range x.AsFloat64() {
			total += v
		}
		result.AsFloat64()[0] = total
	case tensor.Int32:
		var total int32
		for _, v := range x.AsInt32() {
			total += v
		}
		result.AsInt32()[0] = total
	case tensor.Int64:
		var total int64
		for _, v := range x.AsInt64() {
			total += v
		}
		result.AsInt64()[0] = total
	default:
		panic(fmt.Sprintf("sum: unsupported dtype %s", x.DType()))
	}
	return result
}

// Argmax returns the index of the maximum value along dim as an int32
// tensor. Supports 1D tensors (dim 0, scalar-like result of shape [1])
// and 2D tensors reduced along their last dimension.
func (c *CPUBackend) Argmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	ndim := len(shape)
	if dim < 0 {
		dim += ndim
	}

	switch {
	case ndim == 1 && dim == 0:
		result := mustNewRaw(tensor.Shape{1}, tensor.Int32, c.device, "argmax")
		result.AsInt32()[0] = argmaxRow(x, 0, shape[0])
		return result
	case ndim == 2 && dim == 1:
		rows, cols := shape[0], shape[1]
		result := mustNewRaw(tensor.Shape{rows}, tensor.Int32, c.device, "argmax")
		out := result.AsInt32()
		for r := 0; r < rows; r++ {
			out[r] = argmaxRow(x, r*cols, cols)
		}
		return result
	default:
		panic(fmt.Sprintf("argmax: unsupported shape %v with dim %d", shape, dim))
	}
}

func argmaxRow(x *tensor.RawTensor, offset, length int) int32 {
	best := 0
	switch x.DType() {
	case tensor.Float32:
		data := x.AsFloat32()[offset : offset+length]
		bestVal := float32(math.Inf(-1))
		for i, v := range data {
			if v > bestVal {
				bestVal = v
				best = i
			}
		}
	case tensor.Float64:
		data := x.AsFloat64()[offset : offset+length]
		bestVal := math.Inf(-1)
		for i, v := range data {
			if v > bestVal {
				bestVal = v
				best = i
			}
		}
	default:
		panic(fmt.Sprintf("argmax: unsupported dtype %s", x.DType()))
	}
	return int32(best)
}
