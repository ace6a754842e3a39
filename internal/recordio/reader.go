package recordio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/url"
	"path/filepath"
	"sync"
)

// ReaderOption configures a Reader.
type ReaderOption func(*readerOptions)

type readerOptions struct {
	shuffle   bool
	seed      int64
	epochs    int
	workers   int
	transform TransformSpec
}

// WithShuffle enables seeded shuffling of row-group order and of rows
// within each row group. The same seed reproduces the same order.
func WithShuffle(seed int64) ReaderOption {
	return func(o *readerOptions) {
		o.shuffle = true
		o.seed = seed
	}
}

// WithEpochs makes the reader deliver the dataset n times before
// reporting end of stream. Default 1.
func WithEpochs(n int) ReaderOption {
	return func(o *readerOptions) {
		if n > 0 {
			o.epochs = n
		}
	}
}

// WithWorkers sets the number of row-group decode goroutines. Rows are
// delivered in row-group order regardless of worker count, so the
// stream stays deterministic. Default 1.
func WithWorkers(n int) ReaderOption {
	return func(o *readerOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithTransform applies a TransformSpec to every row before delivery.
func WithTransform(spec TransformSpec) ReaderOption {
	return func(o *readerOptions) {
		o.transform = spec
	}
}

// Reader streams rows from a dataset directory.
type Reader struct {
	meta   *Metadata
	rows   <-chan Row
	errCh  <-chan error
	cancel context.CancelFunc
	err    error
}

// groupJob is one row group of one epoch, in delivery order.
type groupJob struct {
	id   int64
	file string
	rows int
	// Seed for the within-group row shuffle, derived per job so the
	// order is independent of worker scheduling.
	shuffleSeed int64
	shuffle     bool
}

type groupResult struct {
	id   int64
	rows []Row
}

// Open opens the dataset at datasetURL for streaming. Accepts file://
// URLs and bare directory paths. Close must be called to release the
// decode goroutines; cancelling ctx stops the stream as well.
func Open(ctx context.Context, datasetURL string, opts ...ReaderOption) (*Reader, error) {
	dir, err := datasetDir(datasetURL)
	if err != nil {
		return nil, err
	}

	meta, err := LoadMetadata(dir)
	if err != nil {
		return nil, err
	}

	options := readerOptions{epochs: 1, workers: 1}
	for _, opt := range opts {
		opt(&options)
	}

	ctx, cancel := context.WithCancel(ctx)
	rows := make(chan Row, 64)
	errCh := make(chan error, 1)

	go stream(ctx, cancel, dir, meta, options, rows, errCh)

	return &Reader{
		meta:   meta,
		rows:   rows,
		errCh:  errCh,
		cancel: cancel,
	}, nil
}

// Metadata returns the dataset descriptor.
func (r *Reader) Metadata() *Metadata {
	return r.meta
}

// Next returns the next row, or io.EOF when every epoch has been
// delivered. Any decode error ends the stream.
func (r *Reader) Next() (Row, error) {
	if r.err != nil {
		return nil, r.err
	}
	row, ok := <-r.rows
	if !ok {
		if err := <-r.errCh; err != nil {
			r.err = err
		} else {
			r.err = io.EOF
		}
		return nil, r.err
	}
	return row, nil
}

// Close stops the stream and releases the decode goroutines.
func (r *Reader) Close() error {
	r.cancel()
	if r.err == nil {
		r.err = io.EOF
	}
	return nil
}

func datasetDir(datasetURL string) (string, error) {
	u, err := url.Parse(datasetURL)
	if err != nil {
		return "", fmt.Errorf("dataset url %q: %w", datasetURL, err)
	}
	switch u.Scheme {
	case "":
		return filepath.Clean(datasetURL), nil
	case "file":
		if u.Path == "" {
			return "", fmt.Errorf("dataset url %q: empty path", datasetURL)
		}
		return filepath.Clean(u.Path), nil
	default:
		return "", fmt.Errorf("dataset url %q: unsupported scheme %q", datasetURL, u.Scheme)
	}
}

// stream runs the decode pipeline: a job producer, a pool of row-group
// decode workers and an aggregator that restores job order. Cancels the
// pipeline context on exit so the producer never leaks after an error.
func stream(ctx context.Context, cancel context.CancelFunc, dir string, meta *Metadata, options readerOptions, out chan<- Row, errCh chan<- error) {
	defer cancel()
	jobs := make(chan groupJob, options.workers)
	results := make(chan groupResult, options.workers)

	go produceGroupJobs(ctx, jobs, meta, options)

	var wg sync.WaitGroup
	workerErr := make(chan error, options.workers)
	for i := 0; i < options.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decodeWorker(ctx, dir, meta, options.transform, jobs, results, workerErr)
		}()
	}
	go func() {
		wg.Wait()
		close(results)
		close(workerErr)
	}()

	defer close(errCh)
	defer close(out)

	if err := aggregate(ctx, results, out); err != nil {
		errCh <- err
		return
	}
	if err := <-workerErr; err != nil && !errors.Is(err, context.Canceled) {
		errCh <- err
	}
}

func produceGroupJobs(ctx context.Context, jobs chan<- groupJob, meta *Metadata, options readerOptions) {
	defer close(jobs)

	var orderRng *rand.Rand
	if options.shuffle {
		orderRng = rand.New(rand.NewSource(options.seed))
	}

	var jobID int64
	for epoch := 0; epoch < options.epochs; epoch++ {
		order := make([]int, len(meta.RowGroups))
		for i := range order {
			order[i] = i
		}
		if orderRng != nil {
			orderRng.Shuffle(len(order), func(i, j int) {
				order[i], order[j] = order[j], order[i]
			})
		}

		for _, gi := range order {
			rg := meta.RowGroups[gi]
			job := groupJob{
				id:      jobID,
				file:    rg.File,
				rows:    rg.Rows,
				shuffle: options.shuffle,
			}
			if options.shuffle {
				job.shuffleSeed = options.seed + jobID
			}
			select {
			case <-ctx.Done():
				return
			case jobs <- job:
				jobID++
			}
		}
	}
}

func decodeWorker(ctx context.Context, dir string, meta *Metadata, transform TransformSpec, jobs <-chan groupJob, results chan<- groupResult, workerErr chan<- error) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}

			group, err := openRowGroup(filepath.Join(dir, job.file), meta, job.rows)
			if err != nil {
				workerErr <- err
				return
			}

			order := make([]int, job.rows)
			for i := range order {
				order[i] = i
			}
			if job.shuffle {
				rng := rand.New(rand.NewSource(job.shuffleSeed))
				rng.Shuffle(len(order), func(i, j int) {
					order[i], order[j] = order[j], order[i]
				})
			}

			rows := make([]Row, 0, job.rows)
			for _, ri := range order {
				rows = append(rows, transform.apply(group.rowAt(ri)))
			}

			select {
			case <-ctx.Done():
				return
			case results <- groupResult{id: job.id, rows: rows}:
			}
		}
	}
}

// aggregate emits decoded groups in job id order so the stream is
// deterministic for any worker count.
func aggregate(ctx context.Context, results <-chan groupResult, out chan<- Row) error {
	pending := make(map[int64][]Row)
	var nextID int64

	emit := func(rows []Row) bool {
		for _, row := range rows {
			select {
			case <-ctx.Done():
				return false
			case out <- row:
			}
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case result, ok := <-results:
			if !ok {
				return nil
			}
			pending[result.id] = result.rows
			for {
				rows, exists := pending[nextID]
				if !exists {
					break
				}
				if !emit(rows) {
					return nil
				}
				delete(pending, nextID)
				nextID++
			}
		}
	}
}
