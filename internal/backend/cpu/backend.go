// Package cpu implements the pure-Go CPU backend.
package cpu

import (
	"fmt"
	"strings"

	"github.com/klauspost/cpuid/v2"

	"github.com/grist-ml/grist/internal/parallel"
	"github.com/grist-ml/grist/internal/tensor"
)

// CPUBackend implements tensor operations on the CPU.
type CPUBackend struct {
	device tensor.Device
	par    parallel.Config
}

// New creates a new CPU backend with default parallelism.
func New() *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
		par:    parallel.DefaultConfig(),
	}
}

// Name returns the backend name.
func (c *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (c *CPUBackend) Device() tensor.Device {
	return c.device
}

// Features returns a short description of the host CPU, for startup logs.
func (c *CPUBackend) Features() string {
	flags := make([]string, 0, 4)
	for _, f := range []cpuid.FeatureID{cpuid.AVX2, cpuid.AVX512F, cpuid.FMA3, cpuid.SSE42} {
		if cpuid.CPU.Has(f) {
			flags = append(flags, f.String())
		}
	}
	brand := cpuid.CPU.BrandName
	if brand == "" {
		brand = "unknown"
	}
	if len(flags) == 0 {
		return fmt.Sprintf("%s (%d cores)", brand, cpuid.CPU.LogicalCores)
	}
	return fmt.Sprintf("%s (%d cores, %s)", brand, cpuid.CPU.LogicalCores, strings.Join(flags, "/"))
}

// Add performs element-wise addition with broadcasting.
func (c *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return c.binaryOp("add", a, b, addKernel)
}

// Sub performs element-wise subtraction with broadcasting.
func (c *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return c.binaryOp("sub", a, b, subKernel)
}

// Mul performs element-wise multiplication with broadcasting.
func (c *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return c.binaryOp("mul", a, b, mulKernel)
}

// Div performs element-wise division with broadcasting.
func (c *CPUBackend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return c.binaryOp("div", a, b, divKernel)
}

// Reshape returns a tensor with the same data and a new shape.
func (c *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	if err := newShape.Validate(); err != nil {
		panic(fmt.Sprintf("reshape: invalid shape: %v", err))
	}
	if t.NumElements() != newShape.NumElements() {
		panic(fmt.Sprintf("reshape: incompatible shapes %v -> %v", t.Shape(), newShape))
	}

	result, err := tensor.NewRaw(newShape, t.DType(), t.Device())
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	copy(result.Data(), t.Data())
	return result
}

// Transpose permutes the tensor's dimensions. With no axes the dimension
// order is reversed.
func (c *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	ndim := len(shape)

	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}
	if len(axes) != ndim {
		panic(fmt.Sprintf("transpose: %d axes for %dD tensor", len(axes), ndim))
	}
	seen := make([]bool, ndim)
	for _, ax := range axes {
		if ax < 0 || ax >= ndim || seen[ax] {
			panic(fmt.Sprintf("transpose: bad axis permutation %v", axes))
		}
		seen[ax] = true
	}

	newShape := make(tensor.Shape, ndim)
	for i, ax := range axes {
		newShape[i] = shape[ax]
	}

	result, err := tensor.NewRaw(newShape, t.DType(), t.Device())
	if err != nil {
		panic(fmt.Sprintf("transpose: %v", err))
	}

	srcStrides := shape.ComputeStrides()
	dstStrides := newShape.ComputeStrides()
	n := t.NumElements()

	// Walk destination indices, gather from permuted source offsets.
	gather := func(i int) int {
		rem := i
		src := 0
		for d := 0; d < ndim; d++ {
			idx := rem / dstStrides[d]
			rem %= dstStrides[d]
			src += idx * srcStrides[axes[d]]
		}
		return src
	}

	switch t.DType() {
	case tensor.Float32:
		srcData, dstData := t.AsFloat32(), result.AsFloat32()
		for i := 0; i < n; i++ {
			dstData[i] = srcData[gather(i)]
		}
	case tensor.Float64:
		srcData, dstData := t.AsFloat64(), result.AsFloat64()
		for i := 0; i < n; i++ {
			dstData[i] = srcData[gather(i)]
		}
	case tensor.Int32:
		srcData, dstData := t.AsInt32(), result.AsInt32()
		for i := 0; i < n; i++ {
			dstData[i] = srcData[gather(i)]
		}
	case tensor.Int64:
		srcData, dstData := t.AsInt64(), result.AsInt64()
		for i := 0; i < n; i++ {
			dstData[i] = srcData[gather(i)]
		}
	default:
		panic(fmt.Sprintf("transpose: unsupported dtype %s", t.DType()))
	}

	return result
}
