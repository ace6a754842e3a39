package tensor

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Device identifies the compute device a tensor lives on.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	default:
		return "Unknown"
	}
}

// buffer is a reference-counted byte buffer shared between tensor views.
// Backends may update a tensor in place when refCount == 1.
type buffer struct {
	data     []byte
	refCount atomic.Int32
}

func newBuffer(size int) *buffer {
	b := &buffer{data: make([]byte, size)}
	b.refCount.Store(1)
	return b
}

func (b *buffer) addRef() { b.refCount.Add(1) }

func (b *buffer) release() {
	if b.refCount.Add(-1) == 0 {
		b.data = nil
	}
}

// RawTensor is the untyped tensor representation shared by all backends.
type RawTensor struct {
	buf    *buffer
	shape  Shape
	stride []int
	dtype  DataType
	device Device
}

// NewRaw allocates a zero-initialized RawTensor.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	return &RawTensor{
		buf:    newBuffer(shape.NumElements() * dtype.Size()),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,
	}, nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape { return r.shape }

// Strides returns the row-major memory strides.
func (r *RawTensor) Strides() []int { return r.stride }

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType { return r.dtype }

// Device returns the tensor's compute device.
func (r *RawTensor) Device() Device { return r.device }

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int { return r.shape.NumElements() }

// Data returns the raw byte slice backing the tensor.
func (r *RawTensor) Data() []byte { return r.buf.data }

// AsFloat32 interprets the buffer as []float32. Panics on dtype mismatch.
func (r *RawTensor) AsFloat32() []float32 {
	if r.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", r.dtype))
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&r.buf.data[0])), r.NumElements())
}

// AsFloat64 interprets the buffer as []float64. Panics on dtype mismatch.
func (r *RawTensor) AsFloat64() []float64 {
	if r.dtype != Float64 {
		panic(fmt.Sprintf("tensor dtype is %s, not float64", r.dtype))
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&r.buf.data[0])), r.NumElements())
}

// AsInt32 interprets the buffer as []int32. Panics on dtype mismatch.
func (r *RawTensor) AsInt32() []int32 {
	if r.dtype != Int32 {
		panic(fmt.Sprintf("tensor dtype is %s, not int32", r.dtype))
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&r.buf.data[0])), r.NumElements())
}

// AsInt64 interprets the buffer as []int64. Panics on dtype mismatch.
func (r *RawTensor) AsInt64() []int64 {
	if r.dtype != Int64 {
		panic(fmt.Sprintf("tensor dtype is %s, not int64", r.dtype))
	}
	return unsafe.Slice((*int64)(unsafe.Pointer(&r.buf.data[0])), r.NumElements())
}

// AsUint8 interprets the buffer as []uint8. Panics on dtype mismatch.
func (r *RawTensor) AsUint8() []uint8 {
	if r.dtype != Uint8 {
		panic(fmt.Sprintf("tensor dtype is %s, not uint8", r.dtype))
	}
	return r.buf.data
}

// Clone creates a shallow copy sharing the underlying buffer.
// The reference count protects the buffer from premature in-place reuse.
func (r *RawTensor) Clone() *RawTensor {
	r.buf.addRef()
	return &RawTensor{
		buf:    r.buf,
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
		device: r.device,
	}
}

// Release decrements the reference count, freeing the buffer at zero.
func (r *RawTensor) Release() { r.buf.release() }

// IsUnique reports whether this tensor is the only reference to its buffer,
// which permits in-place optimizations in backends.
func (r *RawTensor) IsUnique() bool { return r.buf.refCount.Load() == 1 }

// ForceNonUnique pins the buffer so backends cannot modify it in place.
// The autodiff backend uses this to keep forward-pass inputs intact for
// the backward pass. The returned function must be deferred to unpin.
func (r *RawTensor) ForceNonUnique() func() {
	r.buf.addRef()
	return r.buf.release
}
