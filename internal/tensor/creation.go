package tensor

import (
	"fmt"
	"math/rand"
)

// Zeros creates a tensor filled with zeros.
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	var dummy T
	raw, err := NewRaw(shape, inferDataType(dummy), b.Device())
	if err != nil {
		panic(err)
	}
	return New[T, B](raw, b)
}

// Ones creates a tensor filled with ones.
func Ones[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return Full[T, B](shape, 1, b)
}

// Full creates a tensor filled with a specific value.
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = value
	}
	return t
}

// Randn creates a float tensor with values drawn from N(0, 1) using the
// given source. Uses math/rand rather than crypto/rand: reproducibility
// from a seed matters for training, secrecy does not.
func Randn[T DType, B Backend](shape Shape, rng *rand.Rand, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()

	var dummy T
	switch any(dummy).(type) {
	case float32:
		dataF32 := any(data).([]float32)
		for i := range dataF32 {
			dataF32[i] = float32(rng.NormFloat64())
		}
	case float64:
		dataF64 := any(data).([]float64)
		for i := range dataF64 {
			dataF64[i] = rng.NormFloat64()
		}
	default:
		panic("Randn only supports float32 and float64")
	}
	return t
}

// Arange creates a 1D float32 tensor with values start, start+1, ..., end-1.
func Arange[B Backend](start, end int, b B) *Tensor[float32, B] {
	if end <= start {
		panic("Arange: end must be greater than start")
	}
	t := Zeros[float32, B](Shape{end - start}, b)
	data := t.Data()
	for i := range data {
		data[i] = float32(start + i)
	}
	return t
}

// OnesLike creates a ones tensor matching another tensor's shape and dtype.
// Used by backward passes to seed scalar loss gradients.
func OnesLike(r *RawTensor) (*RawTensor, error) {
	out, err := NewRaw(r.Shape(), r.DType(), r.Device())
	if err != nil {
		return nil, err
	}
	switch r.DType() {
	case Float32:
		data := out.AsFloat32()
		for i := range data {
			data[i] = 1
		}
	case Float64:
		data := out.AsFloat64()
		for i := range data {
			data[i] = 1
		}
	default:
		return nil, fmt.Errorf("gradient seed requires float32 or float64, got %s", r.DType())
	}
	return out, nil
}
