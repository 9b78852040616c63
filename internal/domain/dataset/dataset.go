// Package dataset ships the 150-row iris measurements used to train the
// model and to build the full sample export.
package dataset

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/okian/petal/internal/domain/table"
	"github.com/okian/petal/internal/domain/types"
)

//go:embed iris.csv
var irisCSV []byte

const labelColumn = "species"

// Iris is the labelled dataset. Features follow types.RequiredColumns and
// labels index into types.ClassNames.
type Iris struct {
	Features []string
	Classes  []string
	X        [][]float64
	Y        []int
}

// Frame returns the measurements without labels.
func (d *Iris) Frame() *table.Frame {
	return &table.Frame{Columns: d.Features, Rows: d.X}
}

// Load parses the embedded dataset.
func Load() (*Iris, error) {
	raw, err := table.Read(bytes.NewReader(irisCSV))
	if err != nil {
		return nil, fmt.Errorf("read iris: %w", err)
	}
	features := types.RequiredColumns()
	classes := types.ClassNames()
	if len(raw.Header) != len(features)+1 || raw.Header[len(features)] != labelColumn {
		return nil, fmt.Errorf("iris: unexpected header %q", raw.Header)
	}
	classIndex := make(map[string]int, len(classes))
	for i, c := range classes {
		classIndex[c] = i
	}

	d := &Iris{
		Features: features,
		Classes:  classes,
		X:        make([][]float64, 0, raw.Len()),
		Y:        make([]int, 0, raw.Len()),
	}
	for i, rec := range raw.Records {
		row := make([]float64, len(features))
		for j := range features {
			v, ok := table.ParseCell(rec[j])
			if !ok {
				return nil, fmt.Errorf("iris: row %d column %q is not numeric", i+1, features[j])
			}
			row[j] = v
		}
		label, ok := classIndex[rec[len(features)]]
		if !ok {
			return nil, fmt.Errorf("iris: row %d has unknown species %q", i+1, rec[len(features)])
		}
		d.X = append(d.X, row)
		d.Y = append(d.Y, label)
	}
	return d, nil
}
