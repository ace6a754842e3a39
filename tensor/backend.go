package tensor

import "github.com/grist-ml/grist/internal/tensor"

// Backend defines the interface that all compute backends must implement.
// Backends handle the actual computation for tensor operations.
//
// Implementations:
//   - backend/cpu: Pure Go with row-parallel matrix multiplication
//
// Decorator backends for additional functionality:
//   - autodiff: Automatic differentiation (wraps any backend)
//
// Example:
//
//	import (
//	    "github.com/grist-ml/grist/tensor"
//	    "github.com/grist-ml/grist/backend/cpu"
//	)
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
//	y := tensor.Ones[float32](tensor.Shape{2, 3}, backend)
//	z := x.Add(y)  // Uses backend.Add under the hood
type Backend interface {
	// Element-wise binary operations with broadcasting.
	Add(a, b *RawTensor) *RawTensor // Element-wise addition.
	Sub(a, b *RawTensor) *RawTensor // Element-wise subtraction.
	Mul(a, b *RawTensor) *RawTensor // Element-wise multiplication.
	Div(a, b *RawTensor) *RawTensor // Element-wise division.

	// Matrix operations.
	MatMul(a, b *RawTensor) *RawTensor // 2D matrix multiplication.

	// Shape operations.
	Reshape(t *RawTensor, newShape Shape) *RawTensor // Reshape tensor.
	Transpose(t *RawTensor, axes ...int) *RawTensor  // Transpose dimensions.

	// Scalar operations (element-wise with scalar).
	AddScalar(x *RawTensor, scalar any) *RawTensor // Add scalar.
	MulScalar(x *RawTensor, scalar any) *RawTensor // Multiply by scalar.
	DivScalar(x *RawTensor, scalar any) *RawTensor // Divide by scalar.

	// Math operations (element-wise).
	Sqrt(x *RawTensor) *RawTensor // Square root.

	// Reduction operations.
	Sum(x *RawTensor) *RawTensor             // Total sum (scalar result).
	Argmax(x *RawTensor, dim int) *RawTensor // Index of maximum value along dimension.

	// Activation functions.
	LogSoftmax(x *RawTensor, dim int) *RawTensor // Numerically stable log-softmax along dimension.

	// Metadata.
	Name() string   // Backend name (e.g., "CPU").
	Device() Device // Device type.
}

// Compile-time check that internal Backend implements public Backend.
var _ Backend = tensor.Backend(nil)
