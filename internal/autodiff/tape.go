package autodiff

import (
	"github.com/grist-ml/grist/internal/autodiff/ops"
	"github.com/grist-ml/grist/internal/tensor"
)

// GradientTape records operations during the forward pass and replays
// them in reverse to compute gradients.
//
// Usage:
//
//	tape := NewGradientTape()
//	tape.StartRecording()
//	// ... forward pass ...
//	grads := tape.Backward(outputGrad, backend)
type GradientTape struct {
	operations []ops.Operation
	recording  bool
}

// NewGradientTape creates a new gradient tape.
func NewGradientTape() *GradientTape {
	return &GradientTape{
		operations: make([]ops.Operation, 0, 64),
	}
}

// StartRecording enables operation recording.
func (t *GradientTape) StartRecording() {
	t.recording = true
}

// StopRecording disables operation recording.
func (t *GradientTape) StopRecording() {
	t.recording = false
}

// IsRecording reports whether the tape is currently recording.
func (t *GradientTape) IsRecording() bool {
	return t.recording
}

// Record appends an operation if the tape is recording.
func (t *GradientTape) Record(op ops.Operation) {
	if t.recording {
		t.operations = append(t.operations, op)
	}
}

// Clear drops all recorded operations. Recording state is preserved, so
// a training loop can Clear between steps without restarting the tape.
func (t *GradientTape) Clear() {
	t.operations = t.operations[:0]
}

// NumOps returns the number of recorded operations.
func (t *GradientTape) NumOps() int {
	return len(t.operations)
}

// Backward walks the tape in reverse, applying the chain rule at each
// operation and accumulating gradients where a tensor feeds several
// operations. Returns a map from forward tensor to its gradient.
func (t *GradientTape) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) map[*tensor.RawTensor]*tensor.RawTensor {
	grads := make(map[*tensor.RawTensor]*tensor.RawTensor)
	if len(t.operations) == 0 {
		return grads
	}

	// The gradient ops themselves must not land on the tape.
	wasRecording := t.recording
	t.recording = false
	defer func() { t.recording = wasRecording }()

	last := t.operations[len(t.operations)-1]
	grads[last.Output()] = outputGrad

	for i := len(t.operations) - 1; i >= 0; i-- {
		op := t.operations[i]
		opGrad, ok := grads[op.Output()]
		if !ok {
			// Nothing downstream used this output, no gradient flows.
			continue
		}
		inputGrads := op.Backward(opGrad, backend)
		for j, input := range op.Inputs() {
			if j >= len(inputGrads) || inputGrads[j] == nil {
				continue
			}
			if existing, exists := grads[input]; exists {
				grads[input] = backend.Add(existing, inputGrads[j])
			} else {
				grads[input] = inputGrads[j]
			}
		}
	}

	return grads
}
