// Command grist-train trains the digit classifier on a grist dataset.
//
// The dataset directory must hold train/ and test/ partitions written
// by grist-datagen. Images are normalized with the MNIST mean and
// stddev before training, and the bookkeeping idx field is dropped at
// the reader.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"strings"

	"github.com/grist-ml/grist/internal/autodiff"
	"github.com/grist-ml/grist/internal/backend/cpu"
	"github.com/grist-ml/grist/internal/dataload"
	"github.com/grist-ml/grist/internal/model"
	"github.com/grist-ml/grist/internal/optim"
	"github.com/grist-ml/grist/internal/recordio"
	"github.com/grist-ml/grist/internal/trainer"
)

type config struct {
	datasetURL    string
	batchSize     int
	testBatchSize int
	epochs        int
	allEpochs     bool
	lr            float64
	momentum      float64
	optimizer     string
	device        string
	seed          int64
	logInterval   int
	workers       int
}

var supportedDevices = []string{"cpu"}

func main() {
	var cfg config
	flag.StringVar(&cfg.datasetURL, "dataset-url", "", "dataset root with train/ and test/ partitions (file:// or path)")
	flag.IntVar(&cfg.batchSize, "batch-size", 64, "training batch size")
	flag.IntVar(&cfg.testBatchSize, "test-batch-size", 1000, "evaluation batch size")
	flag.IntVar(&cfg.epochs, "epochs", 10, "number of training epochs")
	flag.BoolVar(&cfg.allEpochs, "all-epochs", false, "stream all epochs from one reader and evaluate once at the end")
	flag.Float64Var(&cfg.lr, "lr", 0.01, "learning rate")
	flag.Float64Var(&cfg.momentum, "momentum", 0.5, "SGD momentum")
	flag.StringVar(&cfg.optimizer, "optimizer", "sgd", "optimizer: sgd or adam")
	flag.StringVar(&cfg.device, "device", "cpu", "compute device: "+strings.Join(supportedDevices, ", "))
	flag.Int64Var(&cfg.seed, "seed", 1, "random seed")
	flag.IntVar(&cfg.logInterval, "log-interval", 10, "batches between progress lines")
	flag.IntVar(&cfg.workers, "workers", 1, "dataset decode workers")
	flag.Parse()

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func run(cfg config) error {
	if cfg.datasetURL == "" {
		return fmt.Errorf("-dataset-url is required")
	}
	if cfg.device != "cpu" {
		return fmt.Errorf("unsupported device %q (supported: %s)", cfg.device, strings.Join(supportedDevices, ", "))
	}

	inner := cpu.New()
	log.Printf("backend: %s (%s)", inner.Name(), inner.Features())
	backend := autodiff.New(inner)

	rng := rand.New(rand.NewSource(cfg.seed))
	net := model.NewDigitNet(rng, backend)

	var optimizer optim.Optimizer
	switch cfg.optimizer {
	case "sgd":
		optimizer = optim.NewSGD(net.Parameters(), optim.SGDConfig{
			LR:       float32(cfg.lr),
			Momentum: float32(cfg.momentum),
		}, backend)
	case "adam":
		optimizer = optim.NewAdam(net.Parameters(), optim.AdamConfig{
			LR: float32(cfg.lr),
		}, backend)
	default:
		return fmt.Errorf("unknown optimizer %q (sgd or adam)", cfg.optimizer)
	}

	tr := trainer.New(backend, net, optimizer, trainer.Config{LogInterval: cfg.logInterval})
	log.Printf("run %s: training on %s for %d epochs", tr.RunID(), cfg.datasetURL, cfg.epochs)

	ctx := context.Background()
	trainURL := cfg.datasetURL + "/train"
	testURL := cfg.datasetURL + "/test"

	if cfg.allEpochs {
		// One reader streams every epoch, one evaluation at the end.
		if err := trainOnce(ctx, tr, cfg, trainURL, 1, cfg.epochs); err != nil {
			return err
		}
		return evaluate(ctx, tr, cfg, testURL)
	}

	for epoch := 1; epoch <= cfg.epochs; epoch++ {
		if err := trainOnce(ctx, tr, cfg, trainURL, epoch, 1); err != nil {
			return err
		}
		if err := evaluate(ctx, tr, cfg, testURL); err != nil {
			return err
		}
	}
	return nil
}

func trainOnce(ctx context.Context, tr *trainer.Trainer[*cpu.CPUBackend], cfg config, url string, epoch, readerEpochs int) error {
	reader, err := recordio.Open(ctx, url,
		recordio.WithShuffle(cfg.seed+int64(epoch)),
		recordio.WithEpochs(readerEpochs),
		recordio.WithWorkers(cfg.workers),
		recordio.WithTransform(normalizeTransform()),
	)
	if err != nil {
		return err
	}

	loader, err := dataload.New(reader, cfg.batchSize)
	if err != nil {
		reader.Close()
		return err
	}
	defer loader.Close()

	return tr.Train(loader, epoch)
}

func evaluate(ctx context.Context, tr *trainer.Trainer[*cpu.CPUBackend], cfg config, url string) error {
	reader, err := recordio.Open(ctx, url,
		recordio.WithWorkers(cfg.workers),
		recordio.WithTransform(normalizeTransform()),
	)
	if err != nil {
		return err
	}

	loader, err := dataload.New(reader, cfg.testBatchSize)
	if err != nil {
		reader.Close()
		return err
	}
	defer loader.Close()

	_, err = tr.Evaluate(loader)
	return err
}

// normalizeTransform scales pixels to the MNIST distribution,
// (x/255 - 0.1307) / 0.3081, and drops the bookkeeping idx field.
func normalizeTransform() recordio.TransformSpec {
	return recordio.TransformSpec{
		Fn: func(row recordio.Row) recordio.Row {
			pixels, ok := row[trainer.ImageField].([]uint8)
			if !ok {
				return row
			}
			norm := make([]float32, len(pixels))
			for i, p := range pixels {
				norm[i] = (float32(p)/255 - 0.1307) / 0.3081
			}
			row[trainer.ImageField] = norm
			return row
		},
		RemovedFields: []string{"idx"},
	}
}
