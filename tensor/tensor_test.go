package tensor_test

import (
	"testing"

	"github.com/grist-ml/grist/internal/backend/cpu"
	"github.com/grist-ml/grist/tensor"
)

// TestBackendInterface verifies that cpu.CPUBackend implements tensor.Backend.
func TestBackendInterface(_ *testing.T) {
	var _ tensor.Backend = (*cpu.CPUBackend)(nil)
}

// TestRawTensorAPI verifies the RawTensor type alias exposes the expected API.
func TestRawTensorAPI(t *testing.T) {
	raw, err := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}

	if shape := raw.Shape(); !shape.Equal(tensor.Shape{2, 3}) {
		t.Errorf("Shape() = %v, want [2 3]", shape)
	}
	if dtype := raw.DType(); dtype != tensor.Float32 {
		t.Errorf("DType() = %v, want Float32", dtype)
	}
	if device := raw.Device(); device != tensor.CPU {
		t.Errorf("Device() = %v, want CPU", device)
	}
	if n := raw.NumElements(); n != 6 {
		t.Errorf("NumElements() = %d, want 6", n)
	}
	if data := raw.AsFloat32(); len(data) != 6 {
		t.Errorf("AsFloat32() length = %d, want 6", len(data))
	}
}

// TestCreationFunctions exercises the public creation wrappers end to end.
func TestCreationFunctions(t *testing.T) {
	backend := cpu.New()

	x := tensor.Zeros[float32](tensor.Shape{2, 2}, backend)
	for i, v := range x.Data() {
		if v != 0 {
			t.Errorf("Zeros[%d] = %v, want 0", i, v)
		}
	}

	y := tensor.Full[float32](tensor.Shape{2, 2}, 3, backend)
	z := x.Add(y)
	for i, v := range z.Data() {
		if v != 3 {
			t.Errorf("Add result[%d] = %v, want 3", i, v)
		}
	}

	fs, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2}, backend)
	if err != nil {
		t.Fatalf("FromSlice failed: %v", err)
	}
	if got := fs.At(1, 0); got != 3 {
		t.Errorf("At(1, 0) = %v, want 3", got)
	}
}

// TestBroadcastShapes verifies the public broadcasting helper.
func TestBroadcastShapes(t *testing.T) {
	shape, broadcast, err := tensor.BroadcastShapes(tensor.Shape{3, 1}, tensor.Shape{3, 4})
	if err != nil {
		t.Fatalf("BroadcastShapes failed: %v", err)
	}
	if !shape.Equal(tensor.Shape{3, 4}) {
		t.Errorf("broadcast shape = %v, want [3 4]", shape)
	}
	if !broadcast {
		t.Error("expected broadcasting to be required")
	}
}
