package nn

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"strings"
	"time"

	"github.com/samcharles93/cnnlstm/internal/logger"
	"github.com/samcharles93/cnnlstm/internal/logits"
	"github.com/samcharles93/cnnlstm/internal/tensor"
)

const defaultBatchSize = 32

// Sequential is a linear stack of layers. It is not safe for concurrent use.
type Sequential struct {
	layers   []Layer
	counters map[string]int
	env      env
	rng      *rand.Rand

	loss     loss
	opt      optimizer
	built    bool
	compiled bool
}

// Option configures a Sequential.
type Option func(*Sequential)

// WithSeed makes weight initialisation, dropout masks and shuffling
// reproducible.
func WithSeed(seed int64) Option {
	return func(m *Sequential) {
		m.rng = rand.New(rand.NewSource(seed))
	}
}

// WithWorkers bounds the goroutines used to run a batch forward. Values
// below one select GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(m *Sequential) {
		m.env.workers = n
	}
}

func NewSequential(opts ...Option) *Sequential {
	m := &Sequential{
		counters: map[string]int{},
		rng:      rand.New(rand.NewSource(1337)),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.env.workers < 1 {
		m.env.workers = runtime.GOMAXPROCS(0)
	}
	m.env.rng = m.rng
	return m
}

// Add appends a layer, naming it kind_N when it has no name.
func (m *Sequential) Add(l Layer) {
	if l.Name() == "" {
		kind := strings.ToLower(l.Kind())
		m.counters[kind]++
		l.setName(fmt.Sprintf("%s_%d", kind, m.counters[kind]))
	}
	m.layers = append(m.layers, l)
	m.built = false
}

// Layers returns the topology in order.
func (m *Sequential) Layers() []Layer {
	return append([]Layer(nil), m.layers...)
}

// Compile builds every layer and binds the loss and optimizer identifiers.
// Recompiling keeps trained weights.
func (m *Sequential) Compile(lossName, optimizerName string) error {
	if len(m.layers) == 0 {
		return fmt.Errorf("compile: no layers: %w", ErrBadConfig)
	}
	l, err := lookupLoss(lossName)
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	opt, err := newOptimizer(optimizerName)
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	if !m.built {
		var shape Shape
		for _, layer := range m.layers {
			if shape, err = layer.build(shape, &m.env); err != nil {
				return fmt.Errorf("compile: %w", err)
			}
		}
		if shape.Sequence() {
			return fmt.Errorf("compile: model output %s is not flat: %w", shape, ErrShapeMismatch)
		}
		m.built = true
	}
	m.loss = l
	m.opt = opt
	m.compiled = true
	return nil
}

// OutputShape is the per-sample shape of the final layer.
func (m *Sequential) OutputShape() Shape {
	if len(m.layers) == 0 {
		return Shape{}
	}
	return m.layers[len(m.layers)-1].OutputShape()
}

func (m *Sequential) params() []*Param {
	var ps []*Param
	for _, l := range m.layers {
		ps = append(ps, l.Params()...)
	}
	return ps
}

// CountParams returns the number of trainable scalars.
func (m *Sequential) CountParams() int {
	n := 0
	for _, p := range m.params() {
		n += len(p.Value.Data)
	}
	return n
}

// Stateful reports whether any layer carries state across batches.
func (m *Sequential) Stateful() bool {
	for _, l := range m.layers {
		if s, ok := l.(*LSTM); ok && s.Stateful {
			return true
		}
	}
	return false
}

// ResetStates clears carried state in every stateful layer.
func (m *Sequential) ResetStates() {
	for _, l := range m.layers {
		if s, ok := l.(Stateful); ok {
			s.ResetStates()
		}
	}
}

// Summary renders the topology as a table of layers, output shapes and
// parameter counts.
func (m *Sequential) Summary() string {
	var sb strings.Builder
	line := strings.Repeat("_", 72)
	fmt.Fprintf(&sb, "%s\n%-34s%-24s%s\n%s\n", line, "Layer (type)", "Output Shape", "Param #", strings.Repeat("=", 72))
	for _, l := range m.layers {
		n := 0
		for _, p := range l.Params() {
			n += len(p.Value.Data)
		}
		fmt.Fprintf(&sb, "%-34s%-24s%d\n", fmt.Sprintf("%s (%s)", l.Name(), l.Kind()), l.OutputShape(), n)
	}
	fmt.Fprintf(&sb, "%s\nTotal params: %d\n", strings.Repeat("=", 72), m.CountParams())
	if m.compiled {
		fmt.Fprintf(&sb, "Loss: %s  Optimizer: %s\n", m.loss.name, m.opt.name())
	}
	sb.WriteString(line)
	sb.WriteByte('\n')
	return sb.String()
}

// EpochStats records the metrics of one training epoch.
type EpochStats struct {
	Epoch       int           `json:"epoch"`
	Loss        float64       `json:"loss"`
	Accuracy    float64       `json:"accuracy"`
	ValLoss     *float64      `json:"val_loss,omitempty"`
	ValAccuracy *float64      `json:"val_accuracy,omitempty"`
	Elapsed     time.Duration `json:"elapsed_ns"`
}

// History is the per-epoch record returned by Fit.
type History struct {
	Epochs []EpochStats `json:"epochs"`
}

// FitOptions controls Fit. A zero BatchSize selects 32; a zero Epochs
// selects one epoch.
type FitOptions struct {
	BatchSize      int
	Epochs         int
	ValidationX    [][]int
	ValidationY    [][]float32
	DisableShuffle bool
}

// Fit trains the model on padded token sequences x with targets y. Samples
// are shuffled each epoch unless the model is stateful or shuffling is
// disabled. Stateful layers are reset at the start of every epoch.
func (m *Sequential) Fit(ctx context.Context, x [][]int, y [][]float32, opts FitOptions) (History, error) {
	var hist History
	if err := m.checkData(x, y); err != nil {
		return hist, fmt.Errorf("fit: %w", err)
	}
	if opts.ValidationX != nil {
		if err := m.checkData(opts.ValidationX, opts.ValidationY); err != nil {
			return hist, fmt.Errorf("fit: validation: %w", err)
		}
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	epochs := max(opts.Epochs, 1)
	log := logger.FromContext(ctx).With("component", "fit")
	shuffle := !opts.DisableShuffle && !m.Stateful()

	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}
	params := m.params()
	for epoch := 1; epoch <= epochs; epoch++ {
		start := time.Now()
		m.ResetStates()
		if shuffle {
			m.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		var lossSum float64
		var correct int
		for lo := 0; lo < len(order); lo += batchSize {
			if err := ctx.Err(); err != nil {
				return hist, err
			}
			idx := order[lo:min(lo+batchSize, len(order))]
			bl, bc, err := m.trainBatch(idx, x, y, params)
			if err != nil {
				return hist, fmt.Errorf("fit: epoch %d: %w", epoch, err)
			}
			lossSum += bl
			correct += bc
			log.Debug("batch", "epoch", epoch, "offset", lo, "loss", bl/float64(len(idx)))
		}

		stats := EpochStats{
			Epoch:    epoch,
			Loss:     lossSum / float64(len(x)),
			Accuracy: float64(correct) / float64(len(x)),
		}
		if opts.ValidationX != nil {
			vl, va, err := m.Evaluate(ctx, opts.ValidationX, opts.ValidationY, batchSize)
			if err != nil {
				return hist, fmt.Errorf("fit: epoch %d: validation: %w", epoch, err)
			}
			stats.ValLoss = &vl
			stats.ValAccuracy = &va
		}
		stats.Elapsed = time.Since(start)
		hist.Epochs = append(hist.Epochs, stats)

		args := []any{"epoch", epoch, "of", epochs, "loss", stats.Loss, "accuracy", stats.Accuracy}
		if stats.ValLoss != nil {
			args = append(args, "val_loss", *stats.ValLoss, "val_accuracy", *stats.ValAccuracy)
		}
		log.Info("epoch complete", append(args, "elapsed", stats.Elapsed.Round(time.Millisecond))...)
	}
	return hist, nil
}

func (m *Sequential) trainBatch(idx []int, x [][]int, y [][]float32, params []*Param) (float64, int, error) {
	lossSum, correct, err := m.accumulate(idx, x, y, params)
	if err != nil {
		return 0, 0, err
	}
	m.opt.update(params)
	return lossSum, correct, nil
}

// accumulate runs one training forward and backward pass, leaving the
// batch-mean gradient in every parameter's Grad.
func (m *Sequential) accumulate(idx []int, x [][]int, y [][]float32, params []*Param) (float64, int, error) {
	for _, p := range params {
		p.Grad.Zero()
	}
	batch, err := gather(x, idx)
	if err != nil {
		return 0, 0, err
	}
	pred, err := m.forward(batch, true)
	if err != nil {
		return 0, 0, err
	}
	scale := 1 / float32(len(idx))
	grads := make([]tensor.Mat, len(idx))
	var lossSum float64
	var correct int
	for b, i := range idx {
		p := pred[b].Row(0)
		lossSum += m.loss.value(p, y[i])
		if hit(p, y[i]) {
			correct++
		}
		g := tensor.NewMat(1, len(p))
		m.loss.gradient(g.Row(0), p, y[i])
		for j := range g.Data {
			g.Data[j] *= scale
		}
		grads[b] = g
	}
	for li := len(m.layers) - 1; li >= 0 && grads != nil; li-- {
		if grads, err = m.layers[li].backward(grads); err != nil {
			return 0, 0, err
		}
	}
	return lossSum, correct, nil
}

// Evaluate returns the mean loss and accuracy over x and y in inference mode.
func (m *Sequential) Evaluate(ctx context.Context, x [][]int, y [][]float32, batchSize int) (float64, float64, error) {
	if err := m.checkData(x, y); err != nil {
		return 0, 0, fmt.Errorf("evaluate: %w", err)
	}
	pred, err := m.Predict(ctx, x, batchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("evaluate: %w", err)
	}
	var lossSum float64
	var correct int
	for i := range pred {
		lossSum += m.loss.value(pred[i], y[i])
		if hit(pred[i], y[i]) {
			correct++
		}
	}
	n := float64(len(x))
	return lossSum / n, float64(correct) / n, nil
}

// Predict returns the model output for every sequence in x.
func (m *Sequential) Predict(ctx context.Context, x [][]int, batchSize int) ([][]float32, error) {
	if !m.compiled {
		return nil, ErrNotCompiled
	}
	if len(x) == 0 {
		return nil, ErrEmptyBatch
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	out := make([][]float32, 0, len(x))
	for lo := 0; lo < len(x); lo += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hi := min(lo+batchSize, len(x))
		idx := make([]int, hi-lo)
		for i := range idx {
			idx[i] = lo + i
		}
		batch, err := gather(x, idx)
		if err != nil {
			return nil, err
		}
		pred, err := m.forward(batch, false)
		if err != nil {
			return nil, err
		}
		for b := range pred {
			out = append(out, append([]float32(nil), pred[b].Row(0)...))
		}
	}
	return out, nil
}

func (m *Sequential) forward(batch []tensor.Mat, training bool) ([]tensor.Mat, error) {
	var err error
	for _, l := range m.layers {
		if batch, err = l.forward(batch, training); err != nil {
			return nil, err
		}
	}
	return batch, nil
}

func (m *Sequential) checkData(x [][]int, y [][]float32) error {
	if !m.compiled {
		return ErrNotCompiled
	}
	if len(x) == 0 {
		return ErrEmptyBatch
	}
	if len(x) != len(y) {
		return fmt.Errorf("%d inputs but %d targets: %w", len(x), len(y), ErrShapeMismatch)
	}
	want := m.OutputShape().Features
	for i := range y {
		if len(y[i]) != want {
			return fmt.Errorf("target %d has %d values, want %d: %w", i, len(y[i]), want, ErrShapeMismatch)
		}
	}
	return nil
}

// maxExactID is the largest token id a float32 holds without rounding.
const maxExactID = 1 << 24

// gather converts the selected token sequences to [steps x 1] id matrices.
// Negative ids and ids a float32 cannot hold exactly are rejected before the
// conversion.
func gather(x [][]int, idx []int) ([]tensor.Mat, error) {
	batch := make([]tensor.Mat, len(idx))
	for b, i := range idx {
		m := tensor.NewMat(len(x[i]), 1)
		for t, id := range x[i] {
			if id < 0 || id > maxExactID {
				return nil, fmt.Errorf("sample %d: token %d: %w", i, id, ErrTokenOutOfRange)
			}
			m.Data[t] = float32(id)
		}
		batch[b] = m
	}
	return batch, nil
}

// hit reports whether a prediction matches its target: thresholded at 0.5
// for single-unit outputs, by argmax otherwise.
func hit(pred, target []float32) bool {
	return logits.Predicted(pred) == logits.Predicted(target)
}
