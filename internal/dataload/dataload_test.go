package dataload_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grist-ml/grist/internal/dataload"
	"github.com/grist-ml/grist/internal/recordio"
	"github.com/grist-ml/grist/internal/tensor"
)

// sliceSource feeds a fixed set of rows.
type sliceSource struct {
	rows   []recordio.Row
	pos    int
	closed bool
}

func (s *sliceSource) Next() (recordio.Row, error) {
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

func makeRows(n int) []recordio.Row {
	rows := make([]recordio.Row, n)
	for i := range rows {
		rows[i] = recordio.Row{
			"image": []float32{float32(i), float32(i) + 0.5},
			"digit": int64(i % 10),
		}
	}
	return rows
}

func TestDataLoader_Batches(t *testing.T) {
	src := &sliceSource{rows: makeRows(7)}
	dl, err := dataload.New(src, 3)
	require.NoError(t, err)

	sizes := []int{}
	for {
		batch, err := dl.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		sizes = append(sizes, batch.Size)
	}
	// 7 rows in batches of 3: two full batches plus a short final one.
	assert.Equal(t, []int{3, 3, 1}, sizes)
}

func TestDataLoader_CollatesShapesAndValues(t *testing.T) {
	src := &sliceSource{rows: makeRows(4)}
	dl, err := dataload.New(src, 4)
	require.NoError(t, err)

	batch, err := dl.Next()
	require.NoError(t, err)

	images := batch.MustField("image")
	assert.True(t, images.Shape().Equal(tensor.Shape{4, 2}))
	assert.Equal(t, tensor.Float32, images.DType())
	assert.InDelta(t, 2.5, images.AsFloat32()[5], 1e-6) // row 2, element 1

	digits := batch.MustField("digit")
	assert.True(t, digits.Shape().Equal(tensor.Shape{4}))
	assert.Equal(t, tensor.Int64, digits.DType())
	assert.Equal(t, []int64{0, 1, 2, 3}, digits.AsInt64())

	_, err = dl.Next()
	assert.Equal(t, io.EOF, err)
}

func TestDataLoader_NeverEmitsEmptyBatch(t *testing.T) {
	src := &sliceSource{rows: makeRows(4)}
	dl, err := dataload.New(src, 2)
	require.NoError(t, err)

	batches := 0
	for {
		_, err := dl.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		batches++
	}
	assert.Equal(t, 2, batches)
}

func TestDataLoader_RejectsBadBatchSize(t *testing.T) {
	_, err := dataload.New(&sliceSource{}, 0)
	require.Error(t, err)
}

func TestDataLoader_MixedDTypeFails(t *testing.T) {
	rows := makeRows(2)
	rows[1]["digit"] = float32(1) // row 0 says int64
	dl, err := dataload.New(&sliceSource{rows: rows}, 2)
	require.NoError(t, err)

	_, err = dl.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dtype")
}

func TestDataLoader_Close(t *testing.T) {
	src := &sliceSource{rows: makeRows(1)}
	dl, err := dataload.New(src, 1)
	require.NoError(t, err)
	require.NoError(t, dl.Close())
	assert.True(t, src.closed)
}

func TestDataLoader_MissingFieldFails(t *testing.T) {
	rows := makeRows(2)
	delete(rows[1], "digit")
	dl, err := dataload.New(&sliceSource{rows: rows}, 2)
	require.NoError(t, err)

	_, err = dl.Next()
	require.Error(t, err)
}
