// Package dataload provides the public API for collating dataset rows
// into batched tensors.
//
// Example:
//
//	r, _ := reader.Open(ctx, datasetURL)
//	loader, err := dataload.New(r, 64)
//	if err != nil {
//	    return err
//	}
//	defer loader.Close()
//	for {
//	    batch, err := loader.Next()
//	    if errors.Is(err, io.EOF) {
//	        break
//	    }
//	    images := batch.MustField("image")
//	    ...
//	}
package dataload

import (
	"github.com/grist-ml/grist/internal/dataload"
)

// RowSource is anything that streams rows, typically a reader.Reader.
type RowSource = dataload.RowSource

// Batch holds one batch of rows collated into per-field raw tensors
// with a leading batch dimension.
type Batch = dataload.Batch

// DataLoader pulls rows from a source and collates them into batches.
type DataLoader = dataload.DataLoader

// New creates a DataLoader that emits batches of up to batchSize rows.
// The final batch may be smaller; a batch is never empty.
func New(source RowSource, batchSize int) (*DataLoader, error) {
	return dataload.New(source, batchSize)
}
