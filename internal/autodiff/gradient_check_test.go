package autodiff_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/grist-ml/grist/internal/autodiff"
	"github.com/grist-ml/grist/internal/autodiff/ops"
	"github.com/grist-ml/grist/internal/backend/cpu"
	"github.com/grist-ml/grist/internal/tensor"
)

// lossAt evaluates mean NLL of log_softmax(logits) with one logit bumped
// by delta, for finite-difference checks.
func lossAt(logits []float32, shape tensor.Shape, targets []int64, bump int, delta float32) float32 {
	backend := autodiff.New(cpu.New())

	data := make([]float32, len(logits))
	copy(data, logits)
	data[bump] += delta

	x, _ := tensor.FromSlice(data, shape, backend)
	tg, _ := tensor.FromSlice(targets, tensor.Shape{len(targets)}, backend)

	logProbs := backend.LogSoftmax(x.Raw(), -1)
	loss := backend.NLL(logProbs, tg.Raw(), ops.ReductionMean)
	return loss.AsFloat32()[0]
}

// TestGradientCheck_LogSoftmaxNLL compares autodiff gradients of the full
// classification loss against central finite differences at every logit.
func TestGradientCheck_LogSoftmaxNLL(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	shape := tensor.Shape{3, 4}
	logits := make([]float32, shape.NumElements())
	for i := range logits {
		logits[i] = float32(rng.NormFloat64())
	}
	targets := []int64{1, 3, 0}

	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, _ := tensor.FromSlice(logits, shape, backend)
	tg, _ := tensor.FromSlice(targets, tensor.Shape{3}, backend)
	logProbs := backend.LogSoftmax(x.Raw(), -1)
	loss := backend.NLL(logProbs, tg.Raw(), ops.ReductionMean)

	seed, err := tensor.OnesLike(loss)
	if err != nil {
		t.Fatal(err)
	}
	grads := backend.Tape().Backward(seed, backend)
	grad := grads[x.Raw()].AsFloat32()

	const epsilon = 1e-2
	for i := range logits {
		plus := lossAt(logits, shape, targets, i, epsilon)
		minus := lossAt(logits, shape, targets, i, -epsilon)
		numerical := (plus - minus) / (2 * epsilon)
		if math.Abs(float64(grad[i]-numerical)) > 1e-2 {
			t.Errorf("logit %d: autodiff grad %f, numerical %f", i, grad[i], numerical)
		}
	}
}

// TestGradientCheck_LinearLayer checks gradients through x@Wᵀ + bias.
func TestGradientCheck_LinearLayer(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)
	w, _ := tensor.FromSlice([]float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}, tensor.Shape{2, 3}, backend)
	bias, _ := tensor.FromSlice([]float32{1, -1}, tensor.Shape{2}, backend)

	wt := backend.Transpose(w.Raw(), 1, 0)
	y := backend.MatMul(x.Raw(), wt)
	biasRow := backend.Reshape(bias.Raw(), tensor.Shape{1, 2})
	out := backend.Add(y, biasRow)

	seed, err := tensor.OnesLike(out)
	if err != nil {
		t.Fatal(err)
	}
	grads := backend.Tape().Backward(seed, backend)

	// With outputGrad = ones: dL/dW[o,i] = sum_b x[b,i], dL/dbias = batch.
	wGrad := grads[w.Raw()]
	if wGrad == nil {
		t.Fatal("no gradient reached W through the transpose")
	}
	wantW := []float32{5, 7, 9, 5, 7, 9}
	gotW := wGrad.AsFloat32()
	for i := range wantW {
		if math.Abs(float64(gotW[i]-wantW[i])) > 1e-5 {
			t.Errorf("wGrad[%d] = %f, want %f", i, gotW[i], wantW[i])
		}
	}

	bGrad := grads[bias.Raw()]
	if bGrad == nil {
		t.Fatal("no gradient reached the bias through the reshape")
	}
	if !bGrad.Shape().Equal(tensor.Shape{2}) {
		t.Fatalf("bias grad shape = %v, want [2]", bGrad.Shape())
	}
	for i, v := range bGrad.AsFloat32() {
		if math.Abs(float64(v-2)) > 1e-5 {
			t.Errorf("biasGrad[%d] = %f, want 2", i, v)
		}
	}
}
