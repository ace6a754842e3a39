package recordio

import (
	"fmt"

	"github.com/grist-ml/grist/internal/tensor"
)

// Row maps field names to values. Multi-element fields hold a typed
// slice ([]float32, []float64, []int32, []int64 or []uint8), scalar
// fields hold the single element of the same kinds.
type Row map[string]any

// Clone returns a shallow copy. Slice values still share memory with
// the original row.
func (r Row) Clone() Row {
	clone := make(Row, len(r))
	for k, v := range r {
		clone[k] = v
	}
	return clone
}

// TransformSpec rewrites rows between decoding and delivery. Fn runs
// first (nil means identity), then RemovedFields are deleted, so a
// transform may still read fields that never reach the consumer.
type TransformSpec struct {
	Fn            func(Row) Row
	RemovedFields []string
}

func (t TransformSpec) apply(row Row) Row {
	if t.Fn != nil {
		row = t.Fn(row)
	}
	for _, name := range t.RemovedFields {
		delete(row, name)
	}
	return row
}

// valueElements reports how many elements a row value holds.
func valueElements(v any) (int, error) {
	switch x := v.(type) {
	case []float32:
		return len(x), nil
	case []float64:
		return len(x), nil
	case []int32:
		return len(x), nil
	case []int64:
		return len(x), nil
	case []uint8:
		return len(x), nil
	case float32, float64, int32, int64, uint8:
		return 1, nil
	default:
		return 0, fmt.Errorf("unsupported row value type %T", v)
	}
}

// valueDataType reports the dtype of a row value.
func valueDataType(v any) (tensor.DataType, error) {
	switch v.(type) {
	case []float32, float32:
		return tensor.Float32, nil
	case []float64, float64:
		return tensor.Float64, nil
	case []int32, int32:
		return tensor.Int32, nil
	case []int64, int64:
		return tensor.Int64, nil
	case []uint8, uint8:
		return tensor.Uint8, nil
	default:
		return 0, fmt.Errorf("unsupported row value type %T", v)
	}
}
