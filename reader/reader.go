// Package reader provides the public API for reading and writing grist
// columnar datasets.
//
// A dataset is a directory with a _grist.yaml descriptor and a set of
// row-group files. Readers stream rows with optional shuffling,
// multi-epoch repetition, parallel decoding and per-row transforms.
//
// Example:
//
//	r, err := reader.Open(ctx, "file:///data/digits/train",
//	    reader.WithShuffle(1),
//	    reader.WithWorkers(4),
//	)
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	for {
//	    row, err := r.Next()
//	    if errors.Is(err, io.EOF) {
//	        break
//	    }
//	    ...
//	}
package reader

import (
	"context"

	"github.com/grist-ml/grist/internal/recordio"
)

// MetadataFile is the name of the dataset descriptor inside a dataset
// directory.
const MetadataFile = recordio.MetadataFile

// FormatVersion is the current dataset format version.
const FormatVersion = recordio.FormatVersion

// DefaultRowGroupSize is how many rows a Writer packs into one
// row-group file unless configured otherwise.
const DefaultRowGroupSize = recordio.DefaultRowGroupSize

// Row is one dataset record: field name to scalar or slice value.
type Row = recordio.Row

// Field describes one column of the dataset schema.
type Field = recordio.Field

// RowGroupRef points at one row-group file of a dataset.
type RowGroupRef = recordio.RowGroupRef

// Metadata is the parsed dataset descriptor.
type Metadata = recordio.Metadata

// LoadMetadata reads and validates the descriptor of the dataset at dir.
func LoadMetadata(dir string) (*Metadata, error) {
	return recordio.LoadMetadata(dir)
}

// TransformSpec rewrites rows as the reader emits them: Fn runs first,
// then RemovedFields are dropped.
type TransformSpec = recordio.TransformSpec

// Reading

// Reader streams rows from a dataset.
type Reader = recordio.Reader

// ReaderOption configures a Reader.
type ReaderOption = recordio.ReaderOption

// WithShuffle enables row-group and within-group shuffling from seed.
// The emitted order depends only on the seed, not on worker count.
func WithShuffle(seed int64) ReaderOption {
	return recordio.WithShuffle(seed)
}

// WithEpochs streams the dataset n times before EOF. Default 1.
func WithEpochs(n int) ReaderOption {
	return recordio.WithEpochs(n)
}

// WithWorkers sets how many goroutines decode row groups. Default 1.
func WithWorkers(n int) ReaderOption {
	return recordio.WithWorkers(n)
}

// WithTransform applies spec to every emitted row.
func WithTransform(spec TransformSpec) ReaderOption {
	return recordio.WithTransform(spec)
}

// Open opens the dataset at datasetURL (a file:// URL or a bare path)
// and starts streaming rows. Close the returned Reader or cancel ctx to
// stop early.
func Open(ctx context.Context, datasetURL string, opts ...ReaderOption) (*Reader, error) {
	return recordio.Open(ctx, datasetURL, opts...)
}

// Writing

// Writer builds a dataset directory row by row.
type Writer = recordio.Writer

// WriterOption configures a Writer.
type WriterOption = recordio.WriterOption

// WithRowGroupSize sets how many rows go into each row-group file.
func WithRowGroupSize(n int) WriterOption {
	return recordio.WithRowGroupSize(n)
}

// NewWriter creates a dataset at dir with the given schema.
//
// Example:
//
//	w, err := reader.NewWriter(dir, []reader.Field{
//	    {Name: "image", DType: "uint8", Shape: []int{784}},
//	    {Name: "digit", DType: "int64"},
//	})
func NewWriter(dir string, fields []Field, opts ...WriterOption) (*Writer, error) {
	return recordio.NewWriter(dir, fields, opts...)
}
