// Package trainer runs the digit classification training and
// evaluation loops.
package trainer

import (
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/grist-ml/grist/internal/autodiff"
	"github.com/grist-ml/grist/internal/dataload"
	"github.com/grist-ml/grist/internal/metrics"
	"github.com/grist-ml/grist/internal/model"
	"github.com/grist-ml/grist/internal/nn"
	"github.com/grist-ml/grist/internal/optim"
	"github.com/grist-ml/grist/internal/tensor"
)

// Default field names of the digit dataset schema.
const (
	ImageField = "image"
	LabelField = "digit"
)

// Config tunes the training loop.
type Config struct {
	// LogInterval is how many batches pass between progress lines.
	// Default 10.
	LogInterval int
	// ImageField and LabelField override the dataset field names.
	ImageField string
	LabelField string
}

// Report summarizes one evaluation pass. AvgLoss and Accuracy are exact
// over the whole stream: per-batch sums are accumulated and divided by
// the total sample count once, so uneven batch sizes cannot skew them.
type Report struct {
	AvgLoss  float64
	Correct  int
	Total    int
	Accuracy float64
}

// Trainer binds a model, an optimizer and a recording backend.
type Trainer[B tensor.Backend] struct {
	backend   *autodiff.AutodiffBackend[B]
	net       *model.DigitNet[*autodiff.AutodiffBackend[B]]
	optimizer optim.Optimizer
	trainLoss *nn.NLLLoss[*autodiff.AutodiffBackend[B]]
	evalLoss  *nn.NLLLoss[*autodiff.AutodiffBackend[B]]
	window    *metrics.Window
	runID     string
	config    Config
}

// New creates a Trainer with a fresh run id.
func New[B tensor.Backend](
	backend *autodiff.AutodiffBackend[B],
	net *model.DigitNet[*autodiff.AutodiffBackend[B]],
	optimizer optim.Optimizer,
	config Config,
) *Trainer[B] {
	if config.LogInterval <= 0 {
		config.LogInterval = 10
	}
	if config.ImageField == "" {
		config.ImageField = ImageField
	}
	if config.LabelField == "" {
		config.LabelField = LabelField
	}
	return &Trainer[B]{
		backend:   backend,
		net:       net,
		optimizer: optimizer,
		trainLoss: nn.NewNLLLoss[*autodiff.AutodiffBackend[B]](nn.ReductionMean),
		evalLoss:  nn.NewNLLLoss[*autodiff.AutodiffBackend[B]](nn.ReductionSum),
		window:    &metrics.Window{},
		runID:     uuid.NewString(),
		config:    config,
	}
}

// RunID returns the id assigned to this training run.
func (t *Trainer[B]) RunID() string {
	return t.runID
}

// Train consumes the loader and performs one optimization step per
// batch: clear tape, forward, mean NLL, backward, step. The epoch
// number only labels the progress lines.
func (t *Trainer[B]) Train(loader *dataload.DataLoader, epoch int) error {
	tape := t.backend.Tape()
	tape.StartRecording()
	defer tape.StopRecording()
	defer tape.Clear()

	seen := 0
	batchIdx := 0
	for {
		dataStart := time.Now()
		batch, err := loader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("train: %w", err)
		}
		dataTime := time.Since(dataStart)

		computeStart := time.Now()
		images, labels, err := t.batchTensors(batch)
		if err != nil {
			return fmt.Errorf("train: %w", err)
		}

		tape.Clear()
		t.optimizer.ZeroGrad()

		logProbs := t.net.Forward(images)
		loss := t.trainLoss.Forward(logProbs, labels)

		grads := autodiff.Backward(loss, t.backend)
		t.optimizer.Step(grads)

		lossValue := float64(loss.At(0))
		t.window.Record(batch.Size, dataTime, time.Since(computeStart), lossValue)

		seen += batch.Size
		if batchIdx%t.config.LogInterval == 0 {
			log.Printf("Train Epoch: %d [%d]\tLoss: %.6f", epoch, seen, lossValue)
		}
		batchIdx++
	}

	snap := t.window.Snapshot()
	log.Printf("run %s epoch %d: %.1f samples/sec (data %.1fms, compute %.1fms per batch)",
		t.runID, epoch, snap.SamplesPerSec, snap.AvgDataMS, snap.AvgComputeMS)
	return nil
}

// Evaluate consumes the loader without recording gradients and returns
// exact average loss and accuracy over the stream.
func (t *Trainer[B]) Evaluate(loader *dataload.DataLoader) (Report, error) {
	tape := t.backend.Tape()
	tape.StopRecording()
	tape.Clear()

	var report Report
	var totalLoss float64

	for {
		batch, err := loader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Report{}, fmt.Errorf("evaluate: %w", err)
		}

		images, labels, err := t.batchTensors(batch)
		if err != nil {
			return Report{}, fmt.Errorf("evaluate: %w", err)
		}

		logProbs := t.net.Forward(images)
		loss := t.evalLoss.Forward(logProbs, labels)

		totalLoss += float64(loss.At(0))
		report.Correct += nn.CountCorrect(logProbs, labels)
		report.Total += batch.Size
	}

	if report.Total == 0 {
		return Report{}, fmt.Errorf("evaluate: empty stream")
	}
	report.AvgLoss = totalLoss / float64(report.Total)
	report.Accuracy = float64(report.Correct) / float64(report.Total)

	log.Printf("Evaluation: average loss: %.4f, accuracy: %d/%d (%.0f%%)",
		report.AvgLoss, report.Correct, report.Total, 100*report.Accuracy)
	return report, nil
}

// batchTensors pulls the image and label tensors out of a batch.
func (t *Trainer[B]) batchTensors(batch *dataload.Batch) (*tensor.Tensor[float32, *autodiff.AutodiffBackend[B]], *tensor.Tensor[int64, *autodiff.AutodiffBackend[B]], error) {
	imagesRaw, ok := batch.Field(t.config.ImageField)
	if !ok {
		return nil, nil, fmt.Errorf("batch has no %q field", t.config.ImageField)
	}
	if imagesRaw.DType() != tensor.Float32 {
		return nil, nil, fmt.Errorf("field %q must be float32 after transform, got %s",
			t.config.ImageField, imagesRaw.DType())
	}
	labelsRaw, ok := batch.Field(t.config.LabelField)
	if !ok {
		return nil, nil, fmt.Errorf("batch has no %q field", t.config.LabelField)
	}
	if labelsRaw.DType() != tensor.Int64 {
		return nil, nil, fmt.Errorf("field %q must be int64, got %s",
			t.config.LabelField, labelsRaw.DType())
	}

	images := tensor.New[float32](imagesRaw, t.backend)
	labels := tensor.New[int64](labelsRaw, t.backend)
	return images, labels, nil
}
