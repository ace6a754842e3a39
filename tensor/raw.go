package tensor

import (
	"github.com/grist-ml/grist/internal/tensor"
)

// RawTensor is the low-level tensor representation.
//
// RawTensor provides:
//   - Shape and type information via Shape(), DType(), Device()
//   - Type-safe data access via AsFloat32(), AsInt64(), etc.
//   - Copy-on-write semantics via Clone()
//   - Reference counting for efficient memory management
//
// Most users should use the high-level Tensor[T, B] type instead.
//
// Example:
//
//	raw, _ := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32, tensor.CPU)
//	data := raw.AsFloat32()  // Type-safe access
//	clone := raw.Clone()     // Shares buffer via reference counting
type RawTensor = tensor.RawTensor

// OnesLike creates a raw tensor of ones with the same shape and dtype
// as r. Used to seed backpropagation.
func OnesLike(r *RawTensor) (*RawTensor, error) {
	return tensor.OnesLike(r)
}
