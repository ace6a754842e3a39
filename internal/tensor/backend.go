package tensor

// Backend is the interface every compute backend implements. The surface
// covers what the classification pipeline needs; shape and dtype errors
// inside operations are programmer errors and panic.
type Backend interface {
	// Element-wise binary operations with NumPy-style broadcasting.
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Matrix multiplication for 2D tensors: (M, K) @ (K, N) -> (M, N).
	MatMul(a, b *RawTensor) *RawTensor

	// Shape operations.
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor

	// Element-wise scalar operations.
	AddScalar(x *RawTensor, scalar any) *RawTensor
	MulScalar(x *RawTensor, scalar any) *RawTensor
	DivScalar(x *RawTensor, scalar any) *RawTensor

	// Element-wise math.
	Sqrt(x *RawTensor) *RawTensor

	// Reductions.
	Sum(x *RawTensor) *RawTensor
	Argmax(x *RawTensor, dim int) *RawTensor

	// LogSoftmax along a dimension, computed with the log-sum-exp trick.
	LogSoftmax(x *RawTensor, dim int) *RawTensor

	// Metadata.
	Name() string
	Device() Device
}
