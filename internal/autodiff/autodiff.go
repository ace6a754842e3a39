// Package autodiff implements reverse-mode automatic differentiation
// using the decorator pattern.
//
// AutodiffBackend wraps any tensor.Backend and records the forward
// operations on a GradientTape. Walking the tape backwards applies the
// chain rule and accumulates a gradient for every tensor that influenced
// the output.
//
// Usage:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	x, _ := tensor.FromSlice([]float32{2}, tensor.Shape{1}, backend)
//	y := x.Mul(x)
//	grads := autodiff.Backward(y, backend)
package autodiff

import (
	"fmt"

	"github.com/grist-ml/grist/internal/autodiff/ops"
	"github.com/grist-ml/grist/internal/tensor"
)

// AutodiffBackend wraps a Backend and adds gradient tracking.
type AutodiffBackend[B tensor.Backend] struct {
	inner B
	tape  *GradientTape
}

// New creates an AutodiffBackend wrapping the given backend.
func New[B tensor.Backend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control (start/stop
// recording, clearing between training steps).
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend.
func (b *AutodiffBackend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Device returns the compute device.
func (b *AutodiffBackend[B]) Device() tensor.Device {
	return b.inner.Device()
}

// Add performs element-wise addition and records the operation.
func (b *AutodiffBackend[B]) Add(x, y *tensor.RawTensor) *tensor.RawTensor {
	// Pin the operands so the inner backend cannot reuse their buffers
	// in place. The tape holds references to forward tensors and an
	// in-place result would corrupt the recorded graph.
	defer x.ForceNonUnique()()
	defer y.ForceNonUnique()()

	result := b.inner.Add(x, y)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewAddOp(x, y, result))
	}
	return result
}

// Sub performs element-wise subtraction and records the operation.
func (b *AutodiffBackend[B]) Sub(x, y *tensor.RawTensor) *tensor.RawTensor {
	defer x.ForceNonUnique()()
	defer y.ForceNonUnique()()

	result := b.inner.Sub(x, y)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewSubOp(x, y, result))
	}
	return result
}

// Mul performs element-wise multiplication and records the operation.
func (b *AutodiffBackend[B]) Mul(x, y *tensor.RawTensor) *tensor.RawTensor {
	defer x.ForceNonUnique()()
	defer y.ForceNonUnique()()

	result := b.inner.Mul(x, y)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewMulOp(x, y, result))
	}
	return result
}

// Div performs element-wise division and records the operation.
func (b *AutodiffBackend[B]) Div(x, y *tensor.RawTensor) *tensor.RawTensor {
	defer x.ForceNonUnique()()
	defer y.ForceNonUnique()()

	result := b.inner.Div(x, y)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewDivOp(x, y, result))
	}
	return result
}

// MatMul performs matrix multiplication and records the operation.
func (b *AutodiffBackend[B]) MatMul(x, y *tensor.RawTensor) *tensor.RawTensor {
	defer x.ForceNonUnique()()
	defer y.ForceNonUnique()()

	result := b.inner.MatMul(x, y)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewMatMulOp(x, y, result))
	}
	return result
}

// Reshape reshapes a tensor and records the operation so gradients flow
// back through the shape change (a Linear bias is reshaped to [1, out]
// before broadcasting, and its gradient must reach the flat parameter).
func (b *AutodiffBackend[B]) Reshape(x *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	result := b.inner.Reshape(x, newShape)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewReshapeOp(x, result))
	}
	return result
}

// Transpose permutes tensor axes and records the operation.
func (b *AutodiffBackend[B]) Transpose(x *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	if len(axes) == 0 {
		axes = make([]int, x.Shape().Rank())
		for i := range axes {
			axes[i] = len(axes) - 1 - i
		}
	}

	result := b.inner.Transpose(x, axes...)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewTransposeOp(x, result, axes))
	}
	return result
}

// LogSoftmax computes log-softmax along dim and records the operation.
func (b *AutodiffBackend[B]) LogSoftmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	result := b.inner.LogSoftmax(x, dim)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewLogSoftmaxOp(x, result))
	}
	return result
}

// ReLU computes max(x, 0) and records the operation.
func (b *AutodiffBackend[B]) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	result, err := tensor.NewRaw(x.Shape(), x.DType(), b.Device())
	if err != nil {
		panic(fmt.Sprintf("relu: %v", err))
	}

	switch x.DType() {
	case tensor.Float32:
		src, dst := x.AsFloat32(), result.AsFloat32()
		for i, v := range src {
			if v > 0 {
				dst[i] = v
			}
		}
	case tensor.Float64:
		src, dst := x.AsFloat64(), result.AsFloat64()
		for i, v := range src {
			if v > 0 {
				dst[i] = v
			}
		}
	default:
		panic(fmt.Sprintf("relu: unsupported dtype %s", x.DType()))
	}

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewReLUOp(x, result))
	}
	return result
}

// NLL computes the negative log likelihood loss from [batch, classes]
// log-probabilities and [batch] int64 class indices, reduced to a scalar
// by the given reduction. The operation is recorded with gradients
// flowing to logProbs only.
func (b *AutodiffBackend[B]) NLL(logProbs, targets *tensor.RawTensor, reduction ops.Reduction) *tensor.RawTensor {
	defer logProbs.ForceNonUnique()()

	if logProbs.Shape().Rank() != 2 {
		panic(fmt.Sprintf("nll: log-probabilities must be [batch, classes], got %v", logProbs.Shape()))
	}
	if targets.DType() != tensor.Int64 {
		panic(fmt.Sprintf("nll: targets must be int64, got %s", targets.DType()))
	}
	batch := logProbs.Shape()[0]
	classes := logProbs.Shape()[1]
	if targets.Shape().NumElements() != batch {
		panic(fmt.Sprintf("nll: %d targets for batch of %d", targets.Shape().NumElements(), batch))
	}

	result, err := tensor.NewRaw(tensor.Shape{1}, logProbs.DType(), b.Device())
	if err != nil {
		panic(fmt.Sprintf("nll: %v", err))
	}

	idx := targets.AsInt64()
	var total float64
	switch logProbs.DType() {
	case tensor.Float32:
		lp := logProbs.AsFloat32()
		for i := 0; i < batch; i++ {
			c := int(idx[i])
			if c < 0 || c >= classes {
				panic(fmt.Sprintf("nll: target %d out of range [0, %d)", c, classes))
			}
			total -= float64(lp[i*classes+c])
		}
	case tensor.Float64:
		lp := logProbs.AsFloat64()
		for i := 0; i < batch; i++ {
			c := int(idx[i])
			if c < 0 || c >= classes {
				panic(fmt.Sprintf("nll: target %d out of range [0, %d)", c, classes))
			}
			total -= lp[i*classes+c]
		}
	default:
		panic(fmt.Sprintf("nll: unsupported dtype %s", logProbs.DType()))
	}

	if reduction == ops.ReductionMean {
		total /= float64(batch)
	}

	switch logProbs.DType() {
	case tensor.Float32:
		result.AsFloat32()[0] = float32(total)
	case tensor.Float64:
		result.AsFloat64()[0] = total
	}

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewNLLOp(logProbs, targets, result, reduction))
	}
	return result
}

// AddScalar adds a scalar without recording. Scalar ops only appear in
// optimizer updates, which run outside the recorded graph.
func (b *AutodiffBackend[B]) AddScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return b.inner.AddScalar(x, scalar)
}

// MulScalar multiplies by a scalar without recording.
func (b *AutodiffBackend[B]) MulScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return b.inner.MulScalar(x, scalar)
}

// DivScalar divides by a scalar without recording.
func (b *AutodiffBackend[B]) DivScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return b.inner.DivScalar(x, scalar)
}

// Sqrt computes the element-wise square root without recording.
func (b *AutodiffBackend[B]) Sqrt(x *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.Sqrt(x)
}

// Sum reduces to a scalar without recording.
func (b *AutodiffBackend[B]) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.Sum(x)
}

// Argmax returns indices of maxima without recording; argmax has no
// useful gradient.
func (b *AutodiffBackend[B]) Argmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	return b.inner.Argmax(x, dim)
}
