package ops

import (
	"fmt"

	"github.com/grist-ml/grist/internal/tensor"
)

// reduceBroadcast sums an output gradient back down to the shape of an
// input that was broadcast during the forward pass. Axes where the input
// had size 1 (or was missing a leading axis) accumulate.
func reduceBroadcast(grad *tensor.RawTensor, target tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	if grad.Shape().Equal(target) {
		return grad
	}

	result, err := tensor.NewRaw(target, grad.DType(), backend.Device())
	if err != nil {
		panic(fmt.Sprintf("reduceBroadcast: %v", err))
	}

	gradShape := grad.Shape()
	gradStrides := gradShape.ComputeStrides()
	targetStrides := broadcastStrides(target, gradShape)
	n := gradShape.NumElements()

	switch grad.DType() {
	case tensor.Float32:
		src, dst := grad.AsFloat32(), result.AsFloat32()
		for i := 0; i < n; i++ {
			dst[mapOffset(i, gradShape, gradStrides, targetStrides)] += src[i]
		}
	case tensor.Float64:
		src, dst := grad.AsFloat64(), result.AsFloat64()
		for i := 0; i < n; i++ {
			dst[mapOffset(i, gradShape, gradStrides, targetStrides)] += src[i]
		}
	default:
		panic(fmt.Sprintf("reduceBroadcast: unsupported dtype %s", grad.DType()))
	}

	return result
}

func mapOffset(i int, shape tensor.Shape, strides, targetStrides []int) int {
	rem := i
	off := 0
	for d := range shape {
		idx := rem / strides[d]
		rem %= strides[d]
		off += idx * targetStrides[d]
	}
	return off
}

// broadcastStrides maps axes of the broadcast shape to strides in the
// source shape, stride 0 where the source repeats.
func broadcastStrides(src, dst tensor.Shape) []int {
	strides := make([]int, len(dst))
	srcStrides := src.ComputeStrides()
	offset := len(dst) - len(src)
	for d := range dst {
		sd := d - offset
		if sd < 0 || src[sd] == 1 {
			strides[d] = 0
		} else {
			strides[d] = srcStrides[sd]
		}
	}
	return strides
}

// negate returns -x.
func negate(x *tensor.RawTensor, backend tensor.Backend) *tensor.RawTensor {
	return backend.MulScalar(x, float32(-1))
}
