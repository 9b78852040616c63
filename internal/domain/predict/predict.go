// Package predict turns a cleaned feature frame into a labelled prediction
// table using a probability classifier.
package predict

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/okian/petal/internal/domain/table"
	"github.com/okian/petal/internal/domain/types"
)

// Classifier is the single capability required from a model artifact.
type Classifier interface {
	PredictProba(ctx context.Context, X [][]float64) ([][]float64, error)
}

// Labeled is implemented by classifiers that know which features they were
// trained on and which class each probability column stands for.
type Labeled interface {
	FeatureNames() []string
	ClassNames() []string
}

// Table holds per-row class probabilities and the most likely class.
type Table struct {
	Classes       []string
	Probabilities [][]float64
	Predicted     []string
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Probabilities) }

// Head returns the first n rows. The result shares storage with t.
func (t *Table) Head(n int) *Table {
	if n < 0 || n > t.Len() {
		n = t.Len()
	}
	return &Table{
		Classes:       t.Classes,
		Probabilities: t.Probabilities[:n],
		Predicted:     t.Predicted[:n],
	}
}

// Columns returns the output header: one column per class, then the
// predicted class.
func (t *Table) Columns() []string {
	cols := make([]string, 0, len(t.Classes)+1)
	cols = append(cols, t.Classes...)
	return append(cols, types.PredictedClassColumn)
}

// Records formats every row as strings in Columns order.
func (t *Table) Records() [][]string {
	out := make([][]string, t.Len())
	for i, p := range t.Probabilities {
		rec := make([]string, 0, len(p)+1)
		for _, v := range p {
			rec = append(rec, table.FormatFloat(v))
		}
		out[i] = append(rec, t.Predicted[i])
	}
	return out
}

// Counts returns how many rows were assigned to each class, in class order.
func (t *Table) Counts() []int {
	idx := make(map[string]int, len(t.Classes))
	for i, c := range t.Classes {
		idx[c] = i
	}
	counts := make([]int, len(t.Classes))
	for _, p := range t.Predicted {
		counts[idx[p]]++
	}
	return counts
}

// WriteCSV writes the table with a header row.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns()); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Records()); err != nil {
		return fmt.Errorf("write predictions: %w", err)
	}
	return nil
}

// Predictor binds the expected feature order and class names.
type Predictor struct {
	features []string
	classes  []string
}

// New returns a Predictor for the iris features and classes.
func New() *Predictor {
	return &Predictor{features: types.RequiredColumns(), classes: types.ClassNames()}
}

// Predict runs one PredictProba call over the whole frame and labels each
// row with its most probable class; ties go to the earlier class.
func (p *Predictor) Predict(ctx context.Context, model Classifier, cleaned *table.Frame) (*Table, error) {
	if model == nil {
		return nil, ErrNoModel
	}
	if cleaned == nil || !sameColumns(cleaned.Columns, p.features) {
		var got []string
		if cleaned != nil {
			got = cleaned.Columns
		}
		return nil, fmt.Errorf("%w: got %q, want %q", ErrColumnMismatch, got, p.features)
	}
	if l, ok := model.(Labeled); ok {
		if got := l.FeatureNames(); !sameColumns(got, p.features) {
			return nil, fmt.Errorf("%w: model trained on %q, want %q", ErrColumnMismatch, got, p.features)
		}
		if got := l.ClassNames(); !sameColumns(got, p.classes) {
			return nil, fmt.Errorf("%w: model classes %q, want %q", ErrShape, got, p.classes)
		}
	}
	if cleaned.Len() == 0 {
		return nil, ErrNoRows
	}

	proba, err := model.PredictProba(ctx, cleaned.Rows)
	if err != nil {
		return nil, fmt.Errorf("predict_proba: %w", err)
	}
	if len(proba) != cleaned.Len() {
		return nil, fmt.Errorf("%w: %d rows for %d inputs", ErrShape, len(proba), cleaned.Len())
	}

	out := &Table{
		Classes:       append([]string(nil), p.classes...),
		Probabilities: proba,
		Predicted:     make([]string, len(proba)),
	}
	for i, row := range proba {
		if len(row) != len(p.classes) {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrShape, i, len(row), len(p.classes))
		}
		best := 0
		for c := 1; c < len(row); c++ {
			if row[c] > row[best] {
				best = c
			}
		}
		out.Predicted[i] = p.classes[best]
	}
	return out, nil
}

// MakePredictions is Predict with the default iris predictor.
func MakePredictions(ctx context.Context, model Classifier, cleaned *table.Frame) (*Table, error) {
	return New().Predict(ctx, model, cleaned)
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
