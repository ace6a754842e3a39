package ops

import "github.com/grist-ml/grist/internal/tensor"

// MatMulOp records output = a @ b.
//
// d(A@B)/dA = outputGrad @ Bᵀ and d(A@B)/dB = Aᵀ @ outputGrad.
type MatMulOp struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

// NewMatMulOp creates a new MatMulOp.
func NewMatMulOp(a, b, output *tensor.RawTensor) *MatMulOp {
	return &MatMulOp{inputs: []*tensor.RawTensor{a, b}, output: output}
}

// Backward computes input gradients for matrix multiplication.
func (op *MatMulOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	defer outputGrad.ForceNonUnique()()
	defer a.ForceNonUnique()()
	defer b.ForceNonUnique()()

	gradA := backend.MatMul(outputGrad, backend.Transpose(b, 1, 0))
	gradB := backend.MatMul(backend.Transpose(a, 1, 0), outputGrad)

	return []*tensor.RawTensor{gradA, gradB}
}

// Inputs returns [a, b].
func (op *MatMulOp) Inputs() []*tensor.RawTensor { return op.inputs }

// Output returns a @ b.
func (op *MatMulOp) Output() *tensor.RawTensor { return op.output }
