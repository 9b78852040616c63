// Package validate checks an uploaded table against the required feature
// columns and produces the cleaned numeric frame used for inference.
package validate

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/okian/petal/internal/domain/table"
	"github.com/okian/petal/internal/domain/types"
)

// Error kinds reported in Result.Kinds, in the order they were found.
const (
	KindMissingColumns = "missing_columns"
	KindNonNumeric     = "non_numeric"
)

// Result is the outcome of validating one table. Cleaned is always set so
// callers can preview it, but it must not reach inference unless Valid.
type Result struct {
	Valid   bool
	Errors  []string
	Kinds   []string
	Missing []string
	// NonNumeric maps a column to its missing/invalid cell count; only
	// columns with a positive count are present.
	NonNumeric map[string]int
	Cleaned    *table.Frame
}

// Validator checks tables against a fixed list of required columns.
type Validator struct {
	required []string
}

// New returns a Validator for the given columns. With no columns it uses
// the iris feature set.
func New(required ...string) *Validator {
	if len(required) == 0 {
		required = types.RequiredColumns()
	}
	cp := make([]string, len(required))
	copy(cp, required)
	return &Validator{required: cp}
}

// Required returns the canonical column order.
func (v *Validator) Required() []string {
	cp := make([]string, len(v.required))
	copy(cp, v.required)
	return cp
}

// Validate trims headers, reports missing columns, restricts and reorders to
// the required columns, coerces cells to numbers and reports per-column
// missing counts.
func (v *Validator) Validate(raw *table.Raw) Result {
	// trimmed name -> source index; a repeated name keeps the last one
	index := make(map[string]int, len(raw.Header))
	for i, name := range raw.Header {
		index[strings.TrimSpace(name)] = i
	}

	res := Result{NonNumeric: map[string]int{}}
	present := make([]string, 0, len(v.required))
	sources := make([]int, 0, len(v.required))
	for _, name := range v.required {
		i, ok := index[name]
		if !ok {
			res.Missing = append(res.Missing, name)
			continue
		}
		present = append(present, name)
		sources = append(sources, i)
	}
	if len(res.Missing) > 0 {
		res.Errors = append(res.Errors, missingColumnsMessage(res.Missing))
		res.Kinds = append(res.Kinds, KindMissingColumns)
	}

	cleaned := &table.Frame{Columns: present, Rows: make([][]float64, len(raw.Records))}
	for r, rec := range raw.Records {
		row := make([]float64, len(sources))
		for j, src := range sources {
			cell := ""
			if src < len(rec) {
				cell = rec[src]
			}
			val, ok := table.ParseCell(cell)
			if !ok {
				val = math.NaN()
			}
			row[j] = val
		}
		cleaned.Rows[r] = row
	}
	res.Cleaned = cleaned

	counts := cleaned.MissingCounts()
	parts := make([]string, 0, len(counts))
	for j, n := range counts {
		if n == 0 {
			continue
		}
		res.NonNumeric[present[j]] = n
		parts = append(parts, present[j]+"="+strconv.Itoa(n))
	}
	if len(parts) > 0 {
		res.Errors = append(res.Errors,
			"found missing or non-numeric values. missing counts per column: "+strings.Join(parts, ", "))
		res.Kinds = append(res.Kinds, KindNonNumeric)
	}

	res.Valid = len(res.Errors) == 0
	return res
}

func missingColumnsMessage(missing []string) string {
	quoted := make([]string, len(missing))
	for i, name := range missing {
		quoted[i] = strconv.Quote(name)
	}
	return fmt.Sprintf("missing required columns: [%s]", strings.Join(quoted, ", "))
}
