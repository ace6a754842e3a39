// Package dataload batches dataset rows into tensors.
//
// DataLoader pulls rows from a recordio.Reader (or any RowSource) and
// collates batchSize of them into one tensor per field: multi-element
// values become [batch, elements] tensors, scalar values become [batch]
// tensors. The final batch may hold fewer rows; an empty batch is never
// delivered.
package dataload

import (
	"errors"
	"fmt"
	"io"

	"github.com/grist-ml/grist/internal/recordio"
	"github.com/grist-ml/grist/internal/tensor"
)

// RowSource yields rows until io.EOF. recordio.Reader implements it.
type RowSource interface {
	Next() (recordio.Row, error)
	Close() error
}

// Batch holds one collated batch of rows as per-field tensors.
type Batch struct {
	Size   int
	fields map[string]*tensor.RawTensor
}

// Field returns the tensor collated for the named field.
func (b *Batch) Field(name string) (*tensor.RawTensor, bool) {
	t, ok := b.fields[name]
	return t, ok
}

// MustField returns the tensor for the named field or panics. Use when
// the schema guarantees the field exists.
func (b *Batch) MustField(name string) *tensor.RawTensor {
	t, ok := b.fields[name]
	if !ok {
		panic(fmt.Sprintf("batch has no field %q", name))
	}
	return t
}

// DataLoader batches rows from a RowSource.
type DataLoader struct {
	source    RowSource
	batchSize int
	err       error
}

// New creates a DataLoader reading batches of batchSize rows.
func New(source RowSource, batchSize int) (*DataLoader, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("dataload: batch size must be positive, got %d", batchSize)
	}
	return &DataLoader{source: source, batchSize: batchSize}, nil
}

// Next collates the next batch. Returns io.EOF once the source is
// exhausted; a short final batch is delivered before that.
func (d *DataLoader) Next() (*Batch, error) {
	if d.err != nil {
		return nil, d.err
	}

	rows := make([]recordio.Row, 0, d.batchSize)
	for len(rows) < d.batchSize {
		row, err := d.source.Next()
		if errors.Is(err, io.EOF) {
			d.err = io.EOF
			break
		}
		if err != nil {
			d.err = err
			return nil, err
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, d.err
	}
	return collate(rows)
}

// Close releases the underlying source.
func (d *DataLoader) Close() error {
	return d.source.Close()
}

// collate builds one tensor per field from a slice of rows. Every row
// must carry the same fields with the same value type and length.
func collate(rows []recordio.Row) (*Batch, error) {
	batch := &Batch{
		Size:   len(rows),
		fields: make(map[string]*tensor.RawTensor),
	}

	for name := range rows[0] {
		t, err := collateField(name, rows)
		if err != nil {
			return nil, err
		}
		batch.fields[name] = t
	}
	return batch, nil
}

func collateField(name string, rows []recordio.Row) (*tensor.RawTensor, error) {
	first, ok := rows[0][name]
	if !ok {
		return nil, fmt.Errorf("collate: row 0 missing field %q", name)
	}

	dt, err := valueDataType(first)
	if err != nil {
		return nil, fmt.Errorf("collate field %q: %w", name, err)
	}
	elems, scalar := valueSize(first)

	shape := tensor.Shape{len(rows), elems}
	if scalar {
		shape = tensor.Shape{len(rows)}
	}
	out, err := tensor.NewRaw(shape, dt, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("collate field %q: %w", name, err)
	}

	for i, row := range rows {
		v, ok := row[name]
		if !ok {
			return nil, fmt.Errorf("collate: row %d missing field %q", i, name)
		}
		if err := copyValue(out, i*elems, elems, v); err != nil {
			return nil, fmt.Errorf("collate field %q row %d: %w", name, i, err)
		}
	}
	return out, nil
}

// valueSize returns the element count of a value and whether it is a
// scalar (collated to a rank-1 batch tensor).
func valueSize(v any) (int, bool) {
	switch x := v.(type) {
	case []float32:
		return len(x), false
	case []float64:
		return len(x), false
	case []int32:
		return len(x), false
	case []int64:
		return len(x), false
	case []uint8:
		return len(x), false
	default:
		return 1, true
	}
}

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
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}

func copyValue(out *tensor.RawTensor, offset, elems int, v any) error {
	vdt, err := valueDataType(v)
	if err != nil {
		return err
	}
	if vdt != out.DType() {
		return fmt.Errorf("value dtype %s, batch dtype %s", vdt, out.DType())
	}

	switch x := v.(type) {
	case []float32:
		if len(x) != elems {
			return lengthErr(len(x), elems)
		}
		copy(out.AsFloat32()[offset:], x)
	case float32:
		out.AsFloat32()[offset] = x
	case []float64:
		if len(x) != elems {
			return lengthErr(len(x), elems)
		}
		copy(out.AsFloat64()[offset:], x)
	case float64:
		out.AsFloat64()[offset] = x
	case []int32:
		if len(x) != elems {
			return lengthErr(len(x), elems)
		}
		copy(out.AsInt32()[offset:], x)
	case int32:
		out.AsInt32()[offset] = x
	case []int64:
		if len(x) != elems {
			return lengthErr(len(x), elems)
		}
		copy(out.AsInt64()[offset:], x)
	case int64:
		out.AsInt64()[offset] = x
	case []uint8:
		if len(x) != elems {
			return lengthErr(len(x), elems)
		}
		copy(out.AsUint8()[offset:], x)
	case uint8:
		out.AsUint8()[offset] = x
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
	return nil
}

func lengthErr(got, want int) error {
	return fmt.Errorf("value has %d elements, want %d", got, want)
}
