package train

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/samcharles93/cnnlstm/internal/logger"
	"github.com/samcharles93/cnnlstm/internal/models"
	"github.com/samcharles93/cnnlstm/internal/nn"
	"github.com/samcharles93/cnnlstm/internal/sequence"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeModel struct {
	fitX, valX  [][]int
	evalX       [][]int
	fitOpts     nn.FitOptions
	evalBatch   int
	evalCalls   int
	score, acc  float64
	fitErr      error
	evaluateErr error
}

func (f *fakeModel) Fit(_ context.Context, x [][]int, _ [][]float32, opts nn.FitOptions) (nn.History, error) {
	f.fitX = x
	f.valX = opts.ValidationX
	f.fitOpts = opts
	return nn.History{Epochs: []nn.EpochStats{{Epoch: 1}}}, f.fitErr
}

func (f *fakeModel) Evaluate(_ context.Context, x [][]int, _ [][]float32, batchSize int) (float64, float64, error) {
	f.evalCalls++
	f.evalX = x
	f.evalBatch = batchSize
	return f.score, f.acc, f.evaluateErr
}

func quietContext() context.Context {
	return logger.WithContext(context.Background(), logger.Discard())
}

func raggedSplit() Split {
	return Split{
		XTrain: [][]int{{1}, {1, 2, 3, 4, 5, 6, 7}, {}},
		YTrain: [][]float32{{1}, {0}, {1}},
		XTest:  [][]int{{4, 4}, {9, 9, 9, 9, 9, 9, 9, 9, 9}},
		YTest:  [][]float32{{0}, {1}},
	}
}

func TestRunPadsBothSplits(t *testing.T) {
	f := &fakeModel{}
	opts := Options{MaxWordsInSentence: 5, Epochs: 3, BatchSize: 2, Evaluate: true}
	_, err := Run(quietContext(), f, raggedSplit(), opts)
	require.NoError(t, err)

	for _, set := range [][][]int{f.fitX, f.valX, f.evalX} {
		require.NotEmpty(t, set)
		for _, row := range set {
			assert.Len(t, row, 5)
		}
	}
	assert.Equal(t, []int{0, 0, 0, 0, 1}, f.fitX[0])
	assert.Equal(t, []int{3, 4, 5, 6, 7}, f.fitX[1])
	assert.Equal(t, 3, f.fitOpts.Epochs)
	assert.Equal(t, 2, f.fitOpts.BatchSize)
	assert.Equal(t, 2, f.evalBatch)
}

func TestRunDoesNotModifyCallerSplit(t *testing.T) {
	split := raggedSplit()
	_, err := Run(quietContext(), &fakeModel{}, split, Options{MaxWordsInSentence: 3})
	require.NoError(t, err)
	assert.Len(t, split.XTrain[1], 7)
}

func TestRunWithoutEvaluateReturnsNilPair(t *testing.T) {
	f := &fakeModel{score: 0.4, acc: 0.9}
	res, err := Run(quietContext(), f, raggedSplit(), Options{MaxWordsInSentence: 4, Epochs: 1, BatchSize: 1})
	require.NoError(t, err)
	assert.Nil(t, res.Score)
	assert.Nil(t, res.Accuracy)
	assert.Zero(t, f.evalCalls)
	assert.Len(t, res.History.Epochs, 1)
	assert.NotEmpty(t, res.RunID)
}

func TestRunWithEvaluateReturnsModelOutput(t *testing.T) {
	f := &fakeModel{score: 0.4, acc: 0.9}
	res, err := Run(quietContext(), f, raggedSplit(), Options{MaxWordsInSentence: 4, Epochs: 1, BatchSize: 1, Evaluate: true})
	require.NoError(t, err)
	require.NotNil(t, res.Score)
	require.NotNil(t, res.Accuracy)
	assert.Equal(t, 0.4, *res.Score)
	assert.Equal(t, 0.9, *res.Accuracy)
	assert.Equal(t, 1, f.evalCalls)
}

func TestRunPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")

	_, err := Run(quietContext(), &fakeModel{fitErr: boom}, raggedSplit(), Options{Evaluate: true})
	require.ErrorIs(t, err, boom)

	_, err = Run(quietContext(), &fakeModel{evaluateErr: boom}, raggedSplit(), Options{Evaluate: true})
	require.ErrorIs(t, err, boom)
}

func TestRunEndToEnd(t *testing.T) {
	cfg := models.DefaultPreModelConfig()
	cfg.MaxFeatures = 30
	cfg.EmbeddingSize = 8
	cfg.MaxWordsInSentence = 10
	cfg.NbFilter = 4
	cfg.LSTMOutputSize = 4
	m, err := models.ConstructPreModel(cfg)
	require.NoError(t, err)

	labels := []int{1, 0, 1, 0, 1, 0}
	split := Split{
		XTrain: [][]int{{1, 2, 3}, {4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}, {1, 1}, {7, 7, 7}, {1, 2}, {9}},
		YTrain: sequence.ToBinary(labels),
		XTest:  [][]int{{1, 5}, {8, 8, 8, 8}},
		YTest:  sequence.ToBinary([]int{1, 0}),
	}
	opts := Options{MaxWordsInSentence: cfg.MaxWordsInSentence, Epochs: 2, BatchSize: 3, Evaluate: true}

	ctx := quietContext()
	res, err := Run(ctx, m, split, opts)
	require.NoError(t, err)
	require.NotNil(t, res.Score)
	require.Len(t, res.History.Epochs, 2)

	xTest := sequence.Pad(split.XTest, cfg.MaxWordsInSentence, sequence.PadOptions{})
	score, acc, err := m.Evaluate(ctx, xTest, split.YTest, opts.BatchSize)
	require.NoError(t, err)
	assert.Equal(t, score, *res.Score)
	assert.Equal(t, acc, *res.Accuracy)
}

func TestRunSurfacesFrameworkErrors(t *testing.T) {
	cfg := models.DefaultCNNLSTMConfig()
	cfg.MaxFeatures = 10
	cfg.EmbeddingSize = 4
	cfg.MaxWordsInSentence = 6
	cfg.NbFilter = 2
	cfg.LSTMOutputSize = 2
	cfg.NbClass = 3
	m, err := models.ConstructCNNLSTM(cfg)
	require.NoError(t, err)

	y, err := sequence.ToCategorical([]int{0, 1}, 3)
	require.NoError(t, err)
	split := Split{
		XTrain: [][]int{{1, 2}, {3, 42}},
		YTrain: y,
		XTest:  [][]int{{1}},
		YTest:  y[:1],
	}
	_, err = Run(quietContext(), m, split, Options{MaxWordsInSentence: 6, Epochs: 1, BatchSize: 2})
	require.ErrorIs(t, err, nn.ErrTokenOutOfRange)
}
