package cpu

import (
	"fmt"
	"math"

	"github.com/grist-ml/grist/internal/tensor"
)

// AddScalar adds a scalar to every element.
func (c *CPUBackend) AddScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return c.scalarOp("addscalar", x, scalar, addKernel)
}

// MulScalar multiplies every element by a scalar.
func (c *CPUBackend) MulScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return c.scalarOp("mulscalar", x, scalar, mulKernel)
}

// DivScalar divides every element by a scalar.
func (c *CPUBackend) DivScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return c.scalarOp("divscalar", x, scalar, divKernel)
}

func (c *CPUBackend) scalarOp(name string, x *tensor.RawTensor, scalar any, k kernel) *tensor.RawTensor {
	s, err := toFloat64(scalar)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	result := mustNewRaw(x.Shape(), x.DType(), c.device, name)
	switch x.DType() {
	case tensor.Float32:
		src, dst := x.AsFloat32(), result.AsFloat32()
		sv := float32(s)
		for i, v := range src {
			dst[i] = combine(v, sv, k)
		}
	case tensor.Float64:
		src, dst := x.AsFloat64(), result.AsFloat64()
		for i, v := range src {
			dst[i] = combine(v, s, k)
		}
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", name, x.DType()))
	}
	return result
}

// Sqrt computes the element-wise square root.
func (c *CPUBackend) Sqrt(x *tensor.RawTensor) *tensor.RawTensor {
	result := mustNewRaw(x.Shape(), x.DType(), c.device, "sqrt")
	switch x.DType() {
	case tensor.Float32:
		src, dst := x.AsFloat32(), result.AsFloat32()
		for i, v := range src {
			dst[i] = float32(math.Sqrt(float64(v)))
		}
	case tensor.Float64:
		src, dst := x.AsFloat64(), result.AsFloat64()
		for i, v := range src {
			dst[i] = math.Sqrt(v)
		}
	default:
		panic(fmt.Sprintf("sqrt: unsupported dtype %s", x.DType()))
	}
	return result
}

func toFloat64(scalar any) (float64, error) {
	switch v := scalar.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("unsupported scalar type %T", scalar)
	}
}
