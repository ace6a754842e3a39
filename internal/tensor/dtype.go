// Package tensor provides the core tensor types for the Grist training pipeline.
package tensor

// DType is a constraint for supported tensor element types.
type DType interface {
	~float32 | ~float64 | ~int32 | ~int64 | ~uint8
}

// DataType carries runtime type information for tensors.
type DataType int

// Supported data types.
const (
	Float32 DataType = iota
	Float64
	Int32
	Int64
	Uint8
)

// Size returns the byte size of one element.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	case Uint8:
		return 1
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	default:
		return "unknown"
	}
}

// ParseDataType maps a type name to its DataType. Used when decoding
// dataset schemas.
func ParseDataType(name string) (DataType, bool) {
	switch name {
	case "float32":
		return Float32, true
	case "float64":
		return Float64, true
	case "int32":
		return Int32, true
	case "int64":
		return Int64, true
	case "uint8":
		return Uint8, true
	default:
		return 0, false
	}
}

// inferDataType infers the runtime DataType from a generic type parameter.
func inferDataType[T DType](dummy T) DataType {
	switch any(dummy).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	default:
		panic("unsupported type")
	}
}
