package recordio

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// DefaultRowGroupSize is how many rows a Writer packs into one
// row-group file unless configured otherwise.
const DefaultRowGroupSize = 1000

// Writer builds a dataset directory row group by row group. Close
// flushes the final partial group and writes the metadata file; a
// dataset is not readable until Close returns.
type Writer struct {
	dir          string
	meta         *Metadata
	rowGroupSize int
	pending      []Row
	closed       bool
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithRowGroupSize sets the number of rows per row-group file.
func WithRowGroupSize(n int) WriterOption {
	return func(w *Writer) {
		if n > 0 {
			w.rowGroupSize = n
		}
	}
}

// NewWriter creates the dataset directory and a Writer for the given
// schema. The dataset id is a fresh UUID.
func NewWriter(dir string, fields []Field, opts ...WriterOption) (*Writer, error) {
	meta := &Metadata{
		Version: FormatVersion,
		ID:      uuid.NewString(),
		Fields:  fields,
	}
	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("new writer: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("new writer: %w", err)
	}

	w := &Writer{
		dir:          dir,
		meta:         meta,
		rowGroupSize: DefaultRowGroupSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Append buffers one row, flushing a row group when the buffer is full.
func (w *Writer) Append(row Row) error {
	if w.closed {
		return fmt.Errorf("append: writer is closed")
	}
	w.pending = append(w.pending, row)
	if len(w.pending) >= w.rowGroupSize {
		return w.flush()
	}
	return nil
}

// Close flushes buffered rows and writes the metadata file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if len(w.pending) > 0 {
		if err := w.flush(); err != nil {
			return err
		}
	}
	if len(w.meta.RowGroups) == 0 {
		return fmt.Errorf("close: dataset %s has no rows", w.dir)
	}
	return saveMetadata(w.dir, w.meta)
}

// Metadata returns the descriptor built so far.
func (w *Writer) Metadata() *Metadata {
	return w.meta
}

func (w *Writer) flush() error {
	name := fmt.Sprintf("rowgroup-%06d.grg", len(w.meta.RowGroups))
	if err := writeRowGroup(filepath.Join(w.dir, name), w.meta, w.pending); err != nil {
		return err
	}
	w.meta.RowGroups = append(w.meta.RowGroups, RowGroupRef{File: name, Rows: len(w.pending)})
	w.pending = w.pending[:0]
	return nil
}
