package ops

import (
	"fmt"

	"github.com/grist-ml/grist/internal/tensor"
)

// ReLUOp records output = max(input, 0).
type ReLUOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewReLUOp creates a new ReLUOp.
func NewReLUOp(input, output *tensor.RawTensor) *ReLUOp {
	return &ReLUOp{input: input, output: output}
}

// Backward masks the output gradient where the input was non-positive.
func (op *ReLUOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grad, err := tensor.NewRaw(op.input.Shape(), op.input.DType(), backend.Device())
	if err != nil {
		panic(fmt.Sprintf("relu backward: %v", err))
	}

	switch op.input.DType() {
	case tensor.Float32:
		in, g, dst := op.input.AsFloat32(), outputGrad.AsFloat32(), grad.AsFloat32()
		for i := range in {
			if in[i] > 0 {
				dst[i] = g[i]
			}
		}
	case tensor.Float64:
		in, g, dst := op.input.AsFloat64(), outputGrad.AsFloat64(), grad.AsFloat64()
		for i := range in {
			if in[i] > 0 {
				dst[i] = g[i]
			}
		}
	default:
		panic(fmt.Sprintf("relu backward: unsupported dtype %s", op.input.DType()))
	}

	return []*tensor.RawTensor{grad}
}

// Inputs returns [input].
func (op *ReLUOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns max(input, 0).
func (op *ReLUOp) Output() *tensor.RawTensor { return op.output }
