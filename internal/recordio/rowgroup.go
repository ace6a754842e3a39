package recordio

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/grist-ml/grist/internal/tensor"
)

// Row-group file layout:
//
//	magic "GRG1" | uint32 index length | JSON column index | column chunks
//
// The index lists one entry per schema field with the chunk's byte
// offset (relative to the end of the index) and length. Chunks store
// row-major little-endian values, all rows of a column contiguously.
var rowGroupMagic = [4]byte{'G', 'R', 'G', '1'}

type columnIndex struct {
	Columns []columnEntry `json:"columns"`
}

type columnEntry struct {
	Name   string `json:"name"`
	Offset int64  `json:"offset"`
	Length int64  `json:"length"`
}

// rowGroup is one decoded row-group file held in memory.
type rowGroup struct {
	meta    *Metadata
	rows    int
	columns map[string][]byte
}

func writeRowGroup(path string, meta *Metadata, rows []Row) error {
	if len(rows) == 0 {
		return fmt.Errorf("write row group %s: no rows", path)
	}

	index := columnIndex{Columns: make([]columnEntry, 0, len(meta.Fields))}
	var chunks [][]byte
	var offset int64

	for _, field := range meta.Fields {
		chunk, err := encodeColumn(field, rows)
		if err != nil {
			return fmt.Errorf("write row group %s: %w", path, err)
		}
		index.Columns = append(index.Columns, columnEntry{
			Name:   field.Name,
			Offset: offset,
			Length: int64(len(chunk)),
		})
		chunks = append(chunks, chunk)
		offset += int64(len(chunk))
	}

	indexBytes, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("write row group %s: marshal index: %w", path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write row group: %w", err)
	}
	defer f.Close()

	var header [8]byte
	copy(header[:4], rowGroupMagic[:])
	binary.LittleEndian.PutUint32(header[4:], uint32(len(indexBytes)))
	if _, err := f.Write(header[:]); err != nil {
		return fmt.Errorf("write row group %s: %w", path, err)
	}
	if _, err := f.Write(indexBytes); err != nil {
		return fmt.Errorf("write row group %s: %w", path, err)
	}
	for _, chunk := range chunks {
		if _, err := f.Write(chunk); err != nil {
			return fmt.Errorf("write row group %s: %w", path, err)
		}
	}
	return f.Close()
}

// openRowGroup reads and validates one row-group file. Chunk lengths
// are checked against the schema and row count up front so a corrupt
// file fails at open instead of mid-stream.
func openRowGroup(path string, meta *Metadata, rows int) (*rowGroup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open row group: %w", err)
	}
	if len(data) < 8 || [4]byte(data[:4]) != rowGroupMagic {
		return nil, fmt.Errorf("open row group %s: bad magic", path)
	}

	indexLen := int(binary.LittleEndian.Uint32(data[4:8]))
	if 8+indexLen > len(data) {
		return nil, fmt.Errorf("open row group %s: truncated index", path)
	}
	var index columnIndex
	if err := json.Unmarshal(data[8:8+indexLen], &index); err != nil {
		return nil, fmt.Errorf("open row group %s: parse index: %w", path, err)
	}

	body := data[8+indexLen:]
	columns := make(map[string][]byte, len(index.Columns))
	for _, entry := range index.Columns {
		if entry.Offset < 0 || entry.Length < 0 || entry.Offset+entry.Length > int64(len(body)) {
			return nil, fmt.Errorf("open row group %s: column %s out of bounds", path, entry.Name)
		}
		columns[entry.Name] = body[entry.Offset : entry.Offset+entry.Length]
	}

	for _, field := range meta.Fields {
		chunk, ok := columns[field.Name]
		if !ok {
			return nil, fmt.Errorf("open row group %s: missing column %s", path, field.Name)
		}
		dt, err := field.DataType()
		if err != nil {
			return nil, err
		}
		want := rows * field.NumElements() * dt.Size()
		if len(chunk) != want {
			return nil, fmt.Errorf("open row group %s: column %s is %d bytes, want %d",
				path, field.Name, len(chunk), want)
		}
	}

	return &rowGroup{meta: meta, rows: rows, columns: columns}, nil
}

// rowAt decodes row i into a fresh Row.
func (g *rowGroup) rowAt(i int) Row {
	row := make(Row, len(g.meta.Fields))
	for _, field := range g.meta.Fields {
		dt, _ := field.DataType()
		k := field.NumElements()
		chunk := g.columns[field.Name]
		start := i * k * dt.Size()
		raw := chunk[start : start+k*dt.Size()]

		value := decodeValues(raw, dt, k)
		if len(field.Shape) == 0 {
			row[field.Name] = scalarOf(value)
		} else {
			row[field.Name] = value
		}
	}
	return row
}

func encodeColumn(field Field, rows []Row) ([]byte, error) {
	dt, err := field.DataType()
	if err != nil {
		return nil, err
	}
	k := field.NumElements()
	chunk := make([]byte, 0, len(rows)*k*dt.Size())

	for i, row := range rows {
		v, ok := row[field.Name]
		if !ok {
			return nil, fmt.Errorf("row %d: missing field %s", i, field.Name)
		}
		n, err := valueElements(v)
		if err != nil {
			return nil, fmt.Errorf("row %d field %s: %w", i, field.Name, err)
		}
		if n != k {
			return nil, fmt.Errorf("row %d field %s: %d elements, schema wants %d", i, field.Name, n, k)
		}
		vdt, err := valueDataType(v)
		if err != nil {
			return nil, fmt.Errorf("row %d field %s: %w", i, field.Name, err)
		}
		if vdt != dt {
			return nil, fmt.Errorf("row %d field %s: dtype %s, schema wants %s", i, field.Name, vdt, dt)
		}
		chunk = appendValues(chunk, v)
	}
	return chunk, nil
}

func appendValues(dst []byte, v any) []byte {
	switch x := v.(type) {
	case []float32:
		for _, e := range x {
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(e))
		}
	case float32:
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(x))
	case []float64:
		for _, e := range x {
			dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(e))
		}
	case float64:
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(x))
	case []int32:
		for _, e := range x {
			dst = binary.LittleEndian.AppendUint32(dst, uint32(e))
		}
	case int32:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(x))
	case []int64:
		for _, e := range x {
			dst = binary.LittleEndian.AppendUint64(dst, uint64(e))
		}
	case int64:
		dst = binary.LittleEndian.AppendUint64(dst, uint64(x))
	case []uint8:
		dst = append(dst, x...)
	case uint8:
		dst = append(dst, x)
	}
	return dst
}

func decodeValues(raw []byte, dt tensor.DataType, n int) any {
	switch dt {
	case tensor.Float32:
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return out
	case tensor.Float64:
		out := make([]float64, n)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
		}
		return out
	case tensor.Int32:
		out := make([]int32, n)
		for i := range out {
			out[i] = int32(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return out
	case tensor.Int64:
		out := make([]int64, n)
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint64(raw[i*8:]))
		}
		return out
	case tensor.Uint8:
		out := make([]uint8, n)
		copy(out, raw)
		return out
	default:
		panic(fmt.Sprintf("decode: unsupported dtype %s", dt))
	}
}

func scalarOf(value any) any {
	switch x := value.(type) {
	case []float32:
		return x[0]
	case []float64:
		return x[0]
	case []int32:
		return x[0]
	case []int64:
		return x[0]
	case []uint8:
		return x[0]
	default:
		return value
	}
}
