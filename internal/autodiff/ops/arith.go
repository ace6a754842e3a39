package ops

import "github.com/grist-ml/grist/internal/tensor"

// AddOp records output = a + b.
//
// d(a+b)/da = d(a+b)/db = 1, so the output gradient flows to both inputs,
// reduced along any broadcast axes.
type AddOp struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

// NewAddOp creates a new AddOp.
func NewAddOp(a, b, output *tensor.RawTensor) *AddOp {
	return &AddOp{inputs: []*tensor.RawTensor{a, b}, output: output}
}

// Backward computes input gradients for addition.
func (op *AddOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	return []*tensor.RawTensor{
		reduceBroadcast(outputGrad, a.Shape(), backend),
		reduceBroadcast(outputGrad, b.Shape(), backend),
	}
}

// Inputs returns [a, b].
func (op *AddOp) Inputs() []*tensor.RawTensor { return op.inputs }

// Output returns a + b.
func (op *AddOp) Output() *tensor.RawTensor { return op.output }

// SubOp records output = a - b.
type SubOp struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

// NewSubOp creates a new SubOp.
func NewSubOp(a, b, output *tensor.RawTensor) *SubOp {
	return &SubOp{inputs: []*tensor.RawTensor{a, b}, output: output}
}

// Backward computes input gradients for subtraction.
func (op *SubOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	return []*tensor.RawTensor{
		reduceBroadcast(outputGrad, a.Shape(), backend),
		reduceBroadcast(negate(outputGrad, backend), b.Shape(), backend),
	}
}

// Inputs returns [a, b].
func (op *SubOp) Inputs() []*tensor.RawTensor { return op.inputs }

// Output returns a - b.
func (op *SubOp) Output() *tensor.RawTensor { return op.output }

// MulOp records output = a * b (element-wise).
//
// d(a*b)/da = b and d(a*b)/db = a.
type MulOp struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

// NewMulOp creates a new MulOp.
func NewMulOp(a, b, output *tensor.RawTensor) *MulOp {
	return &MulOp{inputs: []*tensor.RawTensor{a, b}, output: output}
}

// Backward computes input gradients for element-wise multiplication.
// Operands are pinned so the backend cannot reuse their buffers in place.
func (op *MulOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	defer outputGrad.ForceNonUnique()()
	defer a.ForceNonUnique()()
	defer b.ForceNonUnique()()
	return []*tensor.RawTensor{
		reduceBroadcast(backend.Mul(outputGrad, b), a.Shape(), backend),
		reduceBroadcast(backend.Mul(outputGrad, a), b.Shape(), backend),
	}
}

// Inputs returns [a, b].
func (op *MulOp) Inputs() []*tensor.RawTensor { return op.inputs }

// Output returns a * b.
func (op *MulOp) Output() *tensor.RawTensor { return op.output }

// DivOp records output = a / b (element-wise).
//
// d(a/b)/da = 1/b and d(a/b)/db = -a/b².
type DivOp struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

// NewDivOp creates a new DivOp.
func NewDivOp(a, b, output *tensor.RawTensor) *DivOp {
	return &DivOp{inputs: []*tensor.RawTensor{a, b}, output: output}
}

// Backward computes input gradients for element-wise division.
func (op *DivOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	defer outputGrad.ForceNonUnique()()
	defer a.ForceNonUnique()()
	defer b.ForceNonUnique()()

	gradA := backend.Div(outputGrad, b)
	// grad_b = -outputGrad * a / b²
	gradB := negate(backend.Div(backend.Mul(outputGrad, a), backend.Mul(b, b)), backend)

	return []*tensor.RawTensor{
		reduceBroadcast(gradA, a.Shape(), backend),
		reduceBroadcast(gradB, b.Shape(), backend),
	}
}

// Inputs returns [a, b].
func (op *DivOp) Inputs() []*tensor.RawTensor { return op.inputs }

// Output returns a / b.
func (op *DivOp) Output() *tensor.RawTensor { return op.output }
