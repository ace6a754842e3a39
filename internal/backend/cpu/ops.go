package cpu

import (
	"fmt"

	"github.com/grist-ml/grist/internal/tensor"
)

// kernel selects the binary operation applied element-wise.
type kernel int

const (
	addKernel kernel = iota
	subKernel
	mulKernel
	divKernel
)

// binaryOp dispatches an element-wise binary operation with broadcasting.
// When shapes match and the left operand is the only reference to its
// buffer, the operation is performed in place.
func (c *CPUBackend) binaryOp(name string, a, b *tensor.RawTensor, k kernel) *tensor.RawTensor {
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("%s: dtype mismatch %s vs %s", name, a.DType(), b.DType()))
	}

	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	if !needsBroadcast && a.Shape().Equal(b.Shape()) {
		if a.IsUnique() {
			applyInplace(a, b, k)
			return a
		}
		result := mustNewRaw(outShape, a.DType(), c.device, name)
		applySameShape(result, a, b, k)
		return result
	}

	result := mustNewRaw(outShape, a.DType(), c.device, name)
	applyBroadcast(result, a, b, outShape, k)
	return result
}

func mustNewRaw(shape tensor.Shape, dtype tensor.DataType, device tensor.Device, op string) *tensor.RawTensor {
	result, err := tensor.NewRaw(shape, dtype, device)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", op, err))
	}
	return result
}

type element interface {
	~float32 | ~float64 | ~int32 | ~int64
}

func combine[T element](x, y T, k kernel) T {
	switch k {
	case addKernel:
		return x + y
	case subKernel:
		return x - y
	case mulKernel:
		return x * y
	case divKernel:
		return x / y
	default:
		panic("unknown kernel")
	}
}

func applySameShape(dst, a, b *tensor.RawTensor, k kernel) {
	switch a.DType() {
	case tensor.Float32:
		forEach(dst.AsFloat32(), a.AsFloat32(), b.AsFloat32(), k)
	case tensor.Float64:
		forEach(dst.AsFloat64(), a.AsFloat64(), b.AsFloat64(), k)
	case tensor.Int32:
		forEach(dst.AsInt32(), a.AsInt32(), b.AsInt32(), k)
	case tensor.Int64:
		forEach(dst.AsInt64(), a.AsInt64(), b.AsInt64(), k)
	default:
		panic(fmt.Sprintf("binary op: unsupported dtype %s", a.DType()))
	}
}

func applyInplace(a, b *tensor.RawTensor, k kernel) {
	switch a.DType() {
	case tensor.Float32:
		forEach(a.AsFloat32(), a.AsFloat32(), b.AsFloat32(), k)
	case tensor.Float64:
		forEach(a.AsFloat64(), a.AsFloat64(), b.AsFloat64(), k)
	case tensor.Int32:
		forEach(a.AsInt32(), a.AsInt32(), b.AsInt32(), k)
	case tensor.Int64:
		forEach(a.AsInt64(), a.AsInt64(), b.AsInt64(), k)
	default:
		panic(fmt.Sprintf("binary op: unsupported dtype %s", a.DType()))
	}
}

func forEach[T element](dst, a, b []T, k kernel) {
	for i := range dst {
		dst[i] = combine(a[i], b[i], k)
	}
}

func applyBroadcast(dst, a, b *tensor.RawTensor, outShape tensor.Shape, k kernel) {
	switch a.DType() {
	case tensor.Float32:
		forEachBroadcast(dst.AsFloat32(), a.AsFloat32(), b.AsFloat32(), a.Shape(), b.Shape(), outShape, k)
	case tensor.Float64:
		forEachBroadcast(dst.AsFloat64(), a.AsFloat64(), b.AsFloat64(), a.Shape(), b.Shape(), outShape, k)
	case tensor.Int32:
		forEachBroadcast(dst.AsInt32(), a.AsInt32(), b.AsInt32(), a.Shape(), b.Shape(), outShape, k)
	case tensor.Int64:
		forEachBroadcast(dst.AsInt64(), a.AsInt64(), b.AsInt64(), a.Shape(), b.Shape(), outShape, k)
	default:
		panic(fmt.Sprintf("binary op: unsupported dtype %s", a.DType()))
	}
}

func forEachBroadcast[T element](dst, a, b []T, aShape, bShape, outShape tensor.Shape, k kernel) {
	outStrides := outShape.ComputeStrides()
	aStrides := broadcastStrides(aShape, outShape)
	bStrides := broadcastStrides(bShape, outShape)
	n := outShape.NumElements()

	for i := 0; i < n; i++ {
		rem := i
		aOff, bOff := 0, 0
		for d := range outShape {
			idx := rem / outStrides[d]
			rem %= outStrides[d]
			aOff += idx * aStrides[d]
			bOff += idx * bStrides[d]
		}
		dst[i] = combine(a[aOff], b[bOff], k)
	}
}

// broadcastStrides maps output axes to source strides, with stride 0 on
// broadcast axes so the same source element repeats.
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
