package tensor

import (
	"testing"
)

func TestNewRawRejectsInvalidShape(t *testing.T) {
	if _, err := NewRaw(Shape{2, 0}, Float32, CPU); err == nil {
		t.Error("expected error for zero dimension")
	}
	if _, err := NewRaw(Shape{-1, 3}, Float32, CPU); err == nil {
		t.Error("expected error for negative dimension")
	}
}

func TestRawTensorAsFloat32(t *testing.T) {
	raw, _ := NewRaw(Shape{2, 3}, Float32, CPU)
	data := raw.AsFloat32()

	if len(data) != 6 {
		t.Errorf("AsFloat32 length = %d, want 6", len(data))
	}

	// Modify and verify zero-copy.
	data[0] = 42
	if raw.AsFloat32()[0] != 42 {
		t.Error("AsFloat32 should return zero-copy slice")
	}
}

func TestRawTensorAsInt64(t *testing.T) {
	raw, _ := NewRaw(Shape{3, 2}, Int64, CPU)
	data := raw.AsInt64()

	if len(data) != 6 {
		t.Errorf("AsInt64 length = %d, want 6", len(data))
	}

	data[0] = 42
	if raw.AsInt64()[0] != 42 {
		t.Error("AsInt64 should return zero-copy slice")
	}
}

func TestRawTensorAsUint8(t *testing.T) {
	raw, _ := NewRaw(Shape{4, 4}, Uint8, CPU)
	data := raw.AsUint8()

	if len(data) != 16 {
		t.Errorf("AsUint8 length = %d, want 16", len(data))
	}

	data[0] = 255
	if raw.AsUint8()[0] != 255 {
		t.Error("AsUint8 should return zero-copy slice")
	}
}

func TestRawTensorDTypeMismatchPanics(t *testing.T) {
	raw, _ := NewRaw(Shape{2}, Float32, CPU)
	defer func() {
		if recover() == nil {
			t.Error("AsInt64 on a float32 tensor should panic")
		}
	}()
	raw.AsInt64()
}

func TestRawTensorCloneIsShared(t *testing.T) {
	raw, _ := NewRaw(Shape{2, 2}, Float32, CPU)
	raw.AsFloat32()[0] = 1.0

	clone := raw.Clone()

	if clone.AsFloat32()[0] != 1.0 {
		t.Error("Clone should share data initially")
	}
	if raw.IsUnique() || clone.IsUnique() {
		t.Error("after Clone(), neither tensor should be unique")
	}

	clone.Release()
	if !raw.IsUnique() {
		t.Error("releasing the clone should make the original unique again")
	}
}

func TestRawTensorForceNonUnique(t *testing.T) {
	raw, _ := NewRaw(Shape{2, 2}, Float32, CPU)

	if !raw.IsUnique() {
		t.Error("new RawTensor should be unique initially")
	}

	unpin := raw.ForceNonUnique()
	if raw.IsUnique() {
		t.Error("pinned tensor must not report unique")
	}

	unpin()
	if !raw.IsUnique() {
		t.Error("unpinning should restore uniqueness")
	}
}

func TestRawTensorStrides(t *testing.T) {
	raw, _ := NewRaw(Shape{2, 3, 4}, Float32, CPU)
	strides := raw.Strides()
	want := []int{12, 4, 1}
	for i, s := range strides {
		if s != want[i] {
			t.Errorf("Strides()[%d] = %d, want %d", i, s, want[i])
		}
	}
}
