// Package forest wraps the random-forest classifier behind the predictor.
// Trees are grown by github.com/malaschitz/randomForest; this package adds
// named features and classes, input checks and class probabilities that
// always sum to one.
package forest

import (
	"context"
	"fmt"
	"math"

	randomforest "github.com/malaschitz/randomForest"
)

// Default training configuration constants.
const (
	defaultTrees  = 100
	ctxCheckEvery = 1024
)

// Params records how a forest was trained. It travels with the artifact.
type Params struct {
	Trees       int `json:"n_estimators"`
	LeafSize    int `json:"leaf_size"`
	MaxFeatures int `json:"max_features"`
}

// DefaultParams is 100 trees with the library's leaf size and
// sqrt(n_features) candidates per split.
func DefaultParams() Params {
	return Params{Trees: defaultTrees}
}

// Forest is a trained ensemble. It is read-only after Fit or Load and safe
// for concurrent use.
type Forest struct {
	Features []string
	Classes  []string
	Params   Params

	model *randomforest.Forest
}

// FeatureNames returns the feature order the forest was trained on.
func (f *Forest) FeatureNames() []string { return f.Features }

// ClassNames returns the class of each probability column.
func (f *Forest) ClassNames() []string { return f.Classes }

// NumTrees returns the ensemble size.
func (f *Forest) NumTrees() int {
	if f.model == nil {
		return 0
	}
	return len(f.model.Trees)
}

// Fit trains a forest on X (rows of len(features) values) and labels y,
// each an index into classes.
func Fit(ctx context.Context, X [][]float64, y []int, features, classes []string, opts ...Option) (*Forest, error) {
	if len(X) == 0 || len(y) == 0 {
		return nil, ErrEmptyTrainingSet
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("%w: %d rows, %d labels", ErrLabelMismatch, len(X), len(y))
	}
	rows := make([][]float64, len(X))
	for i, row := range X {
		if len(row) != len(features) {
			return nil, fmt.Errorf("%w: row %d has %d values for %d features", ErrFeatureMismatch, i, len(row), len(features))
		}
		for _, v := range row {
			if math.IsNaN(v) {
				return nil, fmt.Errorf("%w: row %d", ErrInvalidInput, i)
			}
		}
		if y[i] < 0 || y[i] >= len(classes) {
			return nil, fmt.Errorf("%w: label %d out of range for %d classes", ErrLabelMismatch, y[i], len(classes))
		}
		rows[i] = append([]float64(nil), row...)
	}

	p := DefaultParams()
	for _, opt := range opts {
		opt(&p)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("training cancelled: %w", err)
	}

	m := &randomforest.Forest{
		Data:      randomforest.ForestData{X: rows, Class: append([]int(nil), y...)},
		Features:  len(features),
		Classes:   len(classes),
		LeafSize:  p.LeafSize,
		MFeatures: p.MaxFeatures,
	}
	m.Train(p.Trees)
	// training rows are not needed to vote
	m.Data = randomforest.ForestData{}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("training cancelled: %w", err)
	}

	f := &Forest{
		Features: append([]string(nil), features...),
		Classes:  append([]string(nil), classes...),
		Params:   p,
		model:    m,
	}
	f.Params.LeafSize = m.LeafSize
	f.Params.MaxFeatures = m.MFeatures
	return f, nil
}

// PredictProba returns one probability row per input row, columns in
// Classes order. Each row sums to 1.
func (f *Forest) PredictProba(ctx context.Context, X [][]float64) ([][]float64, error) {
	if f.NumTrees() == 0 {
		return nil, fmt.Errorf("%w: no trees", ErrCorruptModel)
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if len(row) != len(f.Features) {
			return nil, fmt.Errorf("%w: row %d has %d values, model expects %d", ErrFeatureMismatch, i, len(row), len(f.Features))
		}
		for _, v := range row {
			if math.IsNaN(v) {
				return nil, fmt.Errorf("%w: row %d", ErrInvalidInput, i)
			}
		}
		p, err := f.vote(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = p
	}
	return out, nil
}

// vote asks every tree about row and spreads the result over Classes.
// Classes the trees never saw get zero. A malformed tree panics inside the
// library, which is reported as a corrupt model.
func (f *Forest) vote(row []float64) (p []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("%w: %v", ErrCorruptModel, r)
		}
	}()

	votes := f.model.Vote(row)
	if len(votes) > len(f.Classes) {
		return nil, fmt.Errorf("%w: %d votes for %d classes", ErrCorruptModel, len(votes), len(f.Classes))
	}
	p = make([]float64, len(f.Classes))
	sum := 0.0
	for c, v := range votes {
		if math.IsNaN(v) || v < 0 {
			return nil, fmt.Errorf("%w: invalid vote %v", ErrCorruptModel, v)
		}
		p[c] = v
		sum += v
	}
	if sum == 0 {
		return nil, fmt.Errorf("%w: trees cast no votes", ErrCorruptModel)
	}
	for c := range p {
		p[c] /= sum
	}
	return p, nil
}

// Predict returns the most probable class index per row; ties go to the
// lower index.
func (f *Forest) Predict(ctx context.Context, X [][]float64) ([]int, error) {
	proba, err := f.PredictProba(ctx, X)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(proba))
	for i, p := range proba {
		labels[i] = ArgMax(p)
	}
	return labels, nil
}

// Score returns the accuracy of Predict against y.
func (f *Forest) Score(ctx context.Context, X [][]float64, y []int) (float64, error) {
	if len(X) != len(y) {
		return 0, fmt.Errorf("%w: %d rows, %d labels", ErrLabelMismatch, len(X), len(y))
	}
	if len(X) == 0 {
		return 0, ErrEmptyTrainingSet
	}
	pred, err := f.Predict(ctx, X)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := range pred {
		if pred[i] == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(y)), nil
}

// ArgMax returns the index of the largest value, the first one on ties.
func ArgMax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}
