package autodiff_test

import (
	"math"
	"testing"

	"github.com/grist-ml/grist/internal/autodiff"
	"github.com/grist-ml/grist/internal/autodiff/ops"
	"github.com/grist-ml/grist/internal/backend/cpu"
	"github.com/grist-ml/grist/internal/tensor"
)

func TestAutodiffBackend_Name(t *testing.T) {
	backend := autodiff.New(cpu.New())
	if backend.Name() != "Autodiff(CPU)" {
		t.Errorf("Name() = %s, want Autodiff(CPU)", backend.Name())
	}
}

func TestAutodiffBackend_Device(t *testing.T) {
	backend := autodiff.New(cpu.New())
	if backend.Device() != tensor.CPU {
		t.Errorf("Device() = %v, want %v", backend.Device(), tensor.CPU)
	}
}

func TestTape_Recording(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tape := backend.Tape()

	if tape.IsRecording() {
		t.Error("tape should not be recording initially")
	}
	tape.StartRecording()
	if !tape.IsRecording() {
		t.Error("tape should be recording after StartRecording()")
	}
	tape.StopRecording()
	if tape.IsRecording() {
		t.Error("tape should not be recording after StopRecording()")
	}
}

func TestTape_ClearPreservesRecordingState(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tape := backend.Tape()
	tape.StartRecording()

	a, _ := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2}, backend)
	b, _ := tensor.FromSlice([]float32{3, 4}, tensor.Shape{2}, backend)
	backend.Add(a.Raw(), b.Raw())

	if tape.NumOps() == 0 {
		t.Fatal("tape should have recorded the Add")
	}

	tape.Clear()
	if tape.NumOps() != 0 {
		t.Errorf("tape should be empty after Clear(), got %d ops", tape.NumOps())
	}
	if !tape.IsRecording() {
		t.Error("Clear() must preserve recording state")
	}
}

func TestTape_NotRecordingSkipsOps(t *testing.T) {
	backend := autodiff.New(cpu.New())

	a, _ := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2}, backend)
	b, _ := tensor.FromSlice([]float32{3, 4}, tensor.Shape{2}, backend)
	backend.Add(a.Raw(), b.Raw())

	if backend.Tape().NumOps() != 0 {
		t.Errorf("ops recorded while tape stopped: %d", backend.Tape().NumOps())
	}
}

func TestBackward_Mul(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, _ := tensor.FromSlice([]float32{2, 3}, tensor.Shape{2}, backend)
	y := x.Mul(x) // y = x², dy/dx = 2x

	grads := autodiff.Backward(y, backend)
	grad := grads[x.Raw()]
	if grad == nil {
		t.Fatal("no gradient for x")
	}

	want := []float32{4, 6}
	got := grad.AsFloat32()
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("grad[%d] = %f, want %f", i, got[i], want[i])
		}
	}
}

func TestBackward_AccumulatesReusedTensor(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	// z = x*y + x, dz/dx = y + 1
	x, _ := tensor.FromSlice([]float32{2}, tensor.Shape{1}, backend)
	y, _ := tensor.FromSlice([]float32{5}, tensor.Shape{1}, backend)
	z := x.Mul(y).Add(x)

	grads := autodiff.Backward(z, backend)
	gx := grads[x.Raw()].AsFloat32()[0]
	if math.Abs(float64(gx-6)) > 1e-6 {
		t.Errorf("dz/dx = %f, want 6", gx)
	}
	gy := grads[y.Raw()].AsFloat32()[0]
	if math.Abs(float64(gy-2)) > 1e-6 {
		t.Errorf("dz/dy = %f, want 2", gy)
	}
}

func TestBackward_MatMul(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	a, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2}, backend)
	b, _ := tensor.FromSlice([]float32{5, 6, 7, 8}, tensor.Shape{2, 2}, backend)
	c := a.MatMul(b)

	grads := autodiff.Backward(c, backend)

	// With outputGrad = ones, dC/dA = ones @ Bᵀ.
	wantA := []float32{11, 15, 11, 15}
	gotA := grads[a.Raw()].AsFloat32()
	for i := range wantA {
		if math.Abs(float64(gotA[i]-wantA[i])) > 1e-5 {
			t.Errorf("gradA[%d] = %f, want %f", i, gotA[i], wantA[i])
		}
	}

	// dC/dB = Aᵀ @ ones.
	wantB := []float32{4, 4, 6, 6}
	gotB := grads[b.Raw()].AsFloat32()
	for i := range wantB {
		if math.Abs(float64(gotB[i]-wantB[i])) > 1e-5 {
			t.Errorf("gradB[%d] = %f, want %f", i, gotB[i], wantB[i])
		}
	}
}

func TestBackward_BroadcastAddReducesBiasGrad(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{3, 2}, backend)
	bias, _ := tensor.FromSlice([]float32{10, 20}, tensor.Shape{1, 2}, backend)
	y := x.Add(bias)

	grads := autodiff.Backward(y, backend)

	grad := grads[bias.Raw()]
	if !grad.Shape().Equal(tensor.Shape{1, 2}) {
		t.Fatalf("bias grad shape = %v, want [1 2]", grad.Shape())
	}
	// Each bias element fed 3 rows.
	got := grad.AsFloat32()
	for i := range got {
		if math.Abs(float64(got[i]-3)) > 1e-6 {
			t.Errorf("bias grad[%d] = %f, want 3", i, got[i])
		}
	}
}

func TestBackward_ReLUMasksGradient(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, _ := tensor.FromSlice([]float32{-1, 0, 2, 3}, tensor.Shape{4}, backend)
	out := backend.ReLU(x.Raw())

	wantFwd := []float32{0, 0, 2, 3}
	for i, v := range out.AsFloat32() {
		if v != wantFwd[i] {
			t.Errorf("relu[%d] = %f, want %f", i, v, wantFwd[i])
		}
	}

	seed, err := tensor.OnesLike(out)
	if err != nil {
		t.Fatal(err)
	}
	grads := backend.Tape().Backward(seed, backend)
	want := []float32{0, 0, 1, 1}
	got := grads[x.Raw()].AsFloat32()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("grad[%d] = %f, want %f", i, got[i], want[i])
		}
	}
}

func TestBackward_Transpose(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	a, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)
	at := backend.Transpose(a.Raw(), 1, 0)
	if !at.Shape().Equal(tensor.Shape{3, 2}) {
		t.Fatalf("transpose shape = %v", at.Shape())
	}

	seed, err := tensor.OnesLike(at)
	if err != nil {
		t.Fatal(err)
	}
	grads := backend.Tape().Backward(seed, backend)
	grad := grads[a.Raw()]
	if !grad.Shape().Equal(tensor.Shape{2, 3}) {
		t.Errorf("grad shape = %v, want [2 3]", grad.Shape())
	}
}

func TestNLL_MeanForwardAndBackward(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	logits, _ := tensor.FromSlice([]float32{
		1, 2, 3,
		3, 1, 0,
	}, tensor.Shape{2, 3}, backend)
	targets, _ := tensor.FromSlice([]int64{2, 0}, tensor.Shape{2}, backend)

	logProbs := backend.LogSoftmax(logits.Raw(), -1)
	loss := backend.NLL(logProbs, targets.Raw(), ops.ReductionMean)

	// Reference values from log-softmax of the two rows.
	lp := logProbs.AsFloat32()
	wantLoss := -(lp[0*3+2] + lp[1*3+0]) / 2
	gotLoss := loss.AsFloat32()[0]
	if math.Abs(float64(gotLoss-wantLoss)) > 1e-6 {
		t.Errorf("loss = %f, want %f", gotLoss, wantLoss)
	}

	seed, err := tensor.OnesLike(loss)
	if err != nil {
		t.Fatal(err)
	}
	grads := backend.Tape().Backward(seed, backend)
	grad := grads[logits.Raw()]
	if grad == nil {
		t.Fatal("no gradient reached the logits")
	}

	// d(nll∘log_softmax)/dlogits = (softmax - onehot) / batch.
	got := grad.AsFloat32()
	oneHot := []float32{0, 0, 1, 1, 0, 0}
	for i := range got {
		softmax := float32(math.Exp(float64(lp[i])))
		want := (softmax - oneHot[i]) / 2
		if math.Abs(float64(got[i]-want)) > 1e-5 {
			t.Errorf("grad[%d] = %f, want %f", i, got[i], want)
		}
	}
}

func TestNLL_SumReduction(t *testing.T) {
	backend := autodiff.New(cpu.New())

	logProbs, _ := tensor.FromSlice([]float32{
		-0.5, -1.5,
		-2.0, -0.2,
	}, tensor.Shape{2, 2}, backend)
	targets, _ := tensor.FromSlice([]int64{0, 1}, tensor.Shape{2}, backend)

	loss := backend.NLL(logProbs.Raw(), targets.Raw(), ops.ReductionSum)
	got := loss.AsFloat32()[0]
	if math.Abs(float64(got-0.7)) > 1e-6 {
		t.Errorf("sum loss = %f, want 0.7", got)
	}
}
