package recordio_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/grist-ml/grist/internal/recordio"
)

var digitSchema = []recordio.Field{
	{Name: "image", DType: "uint8", Shape: []int{4}},
	{Name: "digit", DType: "int64"},
	{Name: "idx", DType: "int64"},
}

// writeDataset builds a small dataset of n rows where image[j] = i+j and
// digit = i % 10.
func writeDataset(t *testing.T, dir string, n, rowGroupSize int) {
	t.Helper()
	w, err := recordio.NewWriter(dir, digitSchema, recordio.WithRowGroupSize(rowGroupSize))
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		img := []uint8{uint8(i), uint8(i + 1), uint8(i + 2), uint8(i + 3)}
		require.NoError(t, w.Append(recordio.Row{
			"image": img,
			"digit": int64(i % 10),
			"idx":   int64(i),
		}))
	}
	require.NoError(t, w.Close())
}

func readAll(t *testing.T, dir string, opts ...recordio.ReaderOption) []recordio.Row {
	t.Helper()
	r, err := recordio.Open(context.Background(), dir, opts...)
	require.NoError(t, err)
	defer r.Close()

	var rows []recordio.Row
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return rows
		}
		require.NoError(t, err)
		rows = append(rows, row)
	}
}

func TestWriterReader_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, 10, 4) // two full groups and one partial

	rows := readAll(t, dir)
	require.Len(t, rows, 10)

	for i, row := range rows {
		assert.Equal(t, int64(i%10), row["digit"])
		assert.Equal(t, int64(i), row["idx"])
		assert.Equal(t, []uint8{uint8(i), uint8(i + 1), uint8(i + 2), uint8(i + 3)}, row["image"])
	}
}

func TestReader_FileURL(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, 3, 10)

	rows := readAll(t, "file://"+dir)
	assert.Len(t, rows, 3)
}

func TestReader_RejectsUnknownScheme(t *testing.T) {
	_, err := recordio.Open(context.Background(), "hdfs://namenode/dataset")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")
}

func TestReader_Epochs(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, 5, 10)

	rows := readAll(t, dir, recordio.WithEpochs(3))
	assert.Len(t, rows, 15)
	// Without shuffling each epoch repeats the same order.
	assert.Equal(t, rows[0]["idx"], rows[5]["idx"])
	assert.Equal(t, rows[4]["idx"], rows[14]["idx"])
}

func TestReader_ShuffleIsDeterministicPerSeed(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, 20, 5)

	first := readAll(t, dir, recordio.WithShuffle(11))
	second := readAll(t, dir, recordio.WithShuffle(11))
	other := readAll(t, dir, recordio.WithShuffle(99))

	idx := func(rows []recordio.Row) []int64 {
		out := make([]int64, len(rows))
		for i, row := range rows {
			out[i] = row["idx"].(int64)
		}
		return out
	}

	assert.Equal(t, idx(first), idx(second))
	assert.NotEqual(t, idx(first), idx(other))

	// Every row still appears exactly once.
	seen := make(map[int64]bool)
	for _, v := range idx(first) {
		assert.False(t, seen[v], "row %d delivered twice", v)
		seen[v] = true
	}
	assert.Len(t, seen, 20)
}

func TestReader_WorkersPreserveOrder(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, 30, 4)

	serial := readAll(t, dir)
	parallel := readAll(t, dir, recordio.WithWorkers(4))

	require.Len(t, parallel, len(serial))
	for i := range serial {
		assert.Equal(t, serial[i]["idx"], parallel[i]["idx"], "row %d", i)
	}
}

func TestReader_TransformRemovesFields(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, 6, 3)

	spec := recordio.TransformSpec{
		Fn: func(row recordio.Row) recordio.Row {
			img := row["image"].([]uint8)
			norm := make([]float32, len(img))
			for i, b := range img {
				norm[i] = (float32(b)/255 - 0.1307) / 0.3081
			}
			row["image"] = norm
			return row
		},
		RemovedFields: []string{"idx"},
	}

	rows := readAll(t, dir, recordio.WithTransform(spec))
	require.Len(t, rows, 6)
	for _, row := range rows {
		_, hasIdx := row["idx"]
		assert.False(t, hasIdx, "removed field reached the consumer")
		img, ok := row["image"].([]float32)
		require.True(t, ok)
		assert.Len(t, img, 4)
	}
}

func TestReader_ContextCancel(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, 10, 5)

	ctx, cancel := context.WithCancel(context.Background())
	r, err := recordio.Open(ctx, dir, recordio.WithEpochs(1000))
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	require.NoError(t, err)
	cancel()

	// The stream must end rather than deliver all 10000 rows.
	count := 0
	for {
		_, err := r.Next()
		if err != nil {
			break
		}
		count++
	}
	assert.Less(t, count, 10000)
}

func TestOpenRowGroup_LengthMismatchFailsAtOpen(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, 4, 10)

	meta, err := recordio.LoadMetadata(dir)
	require.NoError(t, err)

	// Lie about the row count so the chunk length check trips.
	meta.RowGroups[0].Rows = 99
	path := filepath.Join(dir, recordio.MetadataFile)
	require.NoError(t, rewriteMetadata(path, meta))

	r, err := recordio.Open(context.Background(), dir)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want")
}

func TestMetadata_Validate(t *testing.T) {
	w, err := recordio.NewWriter(t.TempDir(), []recordio.Field{{Name: "x", DType: "complex128"}})
	require.Error(t, err)
	assert.Nil(t, w)

	w, err = recordio.NewWriter(t.TempDir(), []recordio.Field{
		{Name: "x", DType: "float32"},
		{Name: "x", DType: "float32"},
	})
	require.Error(t, err)
	assert.Nil(t, w)
}

func TestWriter_CloseWithoutRowsFails(t *testing.T) {
	w, err := recordio.NewWriter(t.TempDir(), digitSchema)
	require.NoError(t, err)
	require.Error(t, w.Close())
}

func rewriteMetadata(path string, meta *recordio.Metadata) error {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
