// Package tensor provides type-safe tensor operations for the grist
// training pipeline.
//
// # Overview
//
// Tensors are the fundamental data structure in grist. This package
// provides:
//   - Generic type-safe tensors (Tensor[T, B])
//   - NumPy-style broadcasting
//   - Zero-copy operations where possible
//   - Device abstraction
//
// # Basic Usage
//
//	import (
//	    "github.com/grist-ml/grist/tensor"
//	    "github.com/grist-ml/grist/backend/cpu"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
//	    y := tensor.Ones[float32](tensor.Shape{2, 3}, backend)
//
//	    z := x.Add(y)
//	    result := x.MatMul(y.Transpose())
//	}
//
// # Supported Data Types
//
// The tensor package supports the following data types via the DType
// constraint:
//   - float32, float64 (floating-point)
//   - int32, int64 (signed integers)
//   - uint8 (unsigned integers, useful for images)
//
// # Broadcasting
//
// Element-wise operations follow NumPy broadcasting rules:
//
//	a := tensor.Zeros[float32](tensor.Shape{3, 1}, backend)  // (3, 1)
//	b := tensor.Ones[float32](tensor.Shape{3, 4}, backend)   // (3, 4)
//	c := a.Add(b)                                            // (3, 4)
//
// # Memory Management
//
// Tensor buffers are reference-counted. Clone shares the buffer until
// one side writes; backends reuse uniquely-held buffers in place.
package tensor
