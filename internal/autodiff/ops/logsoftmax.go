package ops

import (
	"fmt"
	"math"

	"github.com/grist-ml/grist/internal/tensor"
)

// LogSoftmaxOp records output = log_softmax(input) along the last axis.
//
// With y = log_softmax(x), dx = dy - softmax(x) * sum(dy). The softmax is
// recovered from the stored output as exp(y), so the forward input is not
// needed for the backward pass.
type LogSoftmaxOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewLogSoftmaxOp creates a new LogSoftmaxOp.
func NewLogSoftmaxOp(input, output *tensor.RawTensor) *LogSoftmaxOp {
	return &LogSoftmaxOp{input: input, output: output}
}

// Backward computes the input gradient row by row.
func (op *LogSoftmaxOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grad, err := tensor.NewRaw(op.input.Shape(), op.input.DType(), backend.Device())
	if err != nil {
		panic(fmt.Sprintf("logsoftmax backward: %v", err))
	}

	shape := op.input.Shape()
	cols := shape[len(shape)-1]
	rows := shape.NumElements() / cols

	switch op.input.DType() {
	case tensor.Float32:
		out, g, dst := op.output.AsFloat32(), outputGrad.AsFloat32(), grad.AsFloat32()
		for r := 0; r < rows; r++ {
			logSoftmaxBackwardRow32(out[r*cols:(r+1)*cols], g[r*cols:(r+1)*cols], dst[r*cols:(r+1)*cols])
		}
	case tensor.Float64:
		out, g, dst := op.output.AsFloat64(), outputGrad.AsFloat64(), grad.AsFloat64()
		for r := 0; r < rows; r++ {
			logSoftmaxBackwardRow64(out[r*cols:(r+1)*cols], g[r*cols:(r+1)*cols], dst[r*cols:(r+1)*cols])
		}
	default:
		panic(fmt.Sprintf("logsoftmax backward: unsupported dtype %s", op.input.DType()))
	}

	return []*tensor.RawTensor{grad}
}

func logSoftmaxBackwardRow32(out, grad, dst []float32) {
	var sum float32
	for _, g := range grad {
		sum += g
	}
	for i := range dst {
		dst[i] = grad[i] - float32(math.Exp(float64(out[i])))*sum
	}
}

func logSoftmaxBackwardRow64(out, grad, dst []float64) {
	var sum float64
	for _, g := range grad {
		sum += g
	}
	for i := range dst {
		dst[i] = grad[i] - math.Exp(out[i])*sum
	}
}

// Inputs returns [input].
func (op *LogSoftmaxOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns log_softmax(input).
func (op *LogSoftmaxOp) Output() *tensor.RawTensor { return op.output }
