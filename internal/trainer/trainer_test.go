package trainer_test

import (
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grist-ml/grist/internal/autodiff"
	"github.com/grist-ml/grist/internal/backend/cpu"
	"github.com/grist-ml/grist/internal/dataload"
	"github.com/grist-ml/grist/internal/model"
	"github.com/grist-ml/grist/internal/optim"
	"github.com/grist-ml/grist/internal/recordio"
	"github.com/grist-ml/grist/internal/trainer"
)

type sliceSource struct {
	rows []recordio.Row
	pos  int
}

func (s *sliceSource) Next() (recordio.Row, error) {
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

func (s *sliceSource) Close() error { return nil }

// syntheticRows makes separable samples: class c lights up pixel block c.
func syntheticRows(n int) []recordio.Row {
	rows := make([]recordio.Row, n)
	for i := range rows {
		class := int64(i % 4)
		img := make([]float32, model.InputSize)
		for j := 0; j < 20; j++ {
			img[int(class)*20+j] = 1
		}
		rows[i] = recordio.Row{"image": img, "digit": class}
	}
	return rows
}

func loaderOf(t *testing.T, rows []recordio.Row, batchSize int) *dataload.DataLoader {
	t.Helper()
	dl, err := dataload.New(&sliceSource{rows: rows}, batchSize)
	require.NoError(t, err)
	return dl
}

func newTrainer(t *testing.T, lr float32) (*trainer.Trainer[*cpu.CPUBackend], *autodiff.AutodiffBackend[*cpu.CPUBackend]) {
	t.Helper()
	backend := autodiff.New(cpu.New())
	rng := rand.New(rand.NewSource(1))
	net := model.NewDigitNet(rng, backend)
	opt := optim.NewSGD(net.Parameters(), optim.SGDConfig{LR: lr, Momentum: 0.5}, backend)
	return trainer.New(backend, net, opt, trainer.Config{LogInterval: 100}), backend
}

func TestEvaluate_IndependentOfBatchSize(t *testing.T) {
	tr, _ := newTrainer(t, 0.01)
	rows := syntheticRows(10)

	small, err := tr.Evaluate(loaderOf(t, rows, 3)) // uneven batches: 3,3,3,1
	require.NoError(t, err)
	large, err := tr.Evaluate(loaderOf(t, rows, 10))
	require.NoError(t, err)

	assert.InDelta(t, large.AvgLoss, small.AvgLoss, 1e-4,
		"average loss must not depend on batching")
	assert.Equal(t, large.Correct, small.Correct)
	assert.Equal(t, large.Total, small.Total)
	assert.Equal(t, 10, large.Total)
}

func TestTrain_ReducesEvalLoss(t *testing.T) {
	tr, _ := newTrainer(t, 0.1)
	rows := syntheticRows(32)

	before, err := tr.Evaluate(loaderOf(t, rows, 8))
	require.NoError(t, err)

	for epoch := 1; epoch <= 5; epoch++ {
		require.NoError(t, tr.Train(loaderOf(t, rows, 8), epoch))
	}

	after, err := tr.Evaluate(loaderOf(t, rows, 8))
	require.NoError(t, err)

	assert.Less(t, after.AvgLoss, before.AvgLoss)
	assert.GreaterOrEqual(t, after.Correct, before.Correct)
}

func TestEvaluate_EmptyStreamFails(t *testing.T) {
	tr, _ := newTrainer(t, 0.01)
	_, err := tr.Evaluate(loaderOf(t, nil, 4))
	require.Error(t, err)
}

func TestTrainer_RunID(t *testing.T) {
	a, _ := newTrainer(t, 0.01)
	b, _ := newTrainer(t, 0.01)
	assert.NotEmpty(t, a.RunID())
	assert.NotEqual(t, a.RunID(), b.RunID())
}

func TestTrain_LeavesTapeStopped(t *testing.T) {
	tr, backend := newTrainer(t, 0.01)
	require.NoError(t, tr.Train(loaderOf(t, syntheticRows(8), 4), 1))
	assert.False(t, backend.Tape().IsRecording())
	assert.Zero(t, backend.Tape().NumOps())
}
