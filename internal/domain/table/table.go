// Package table reads and writes the comma-separated tables exchanged with
// users: raw uploads with string cells and cleaned numeric frames.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Raw is an uploaded table before validation. Header cells are kept exactly
// as written so previews show what the user sent.
type Raw struct {
	Header  []string
	Records [][]string
}

// Len returns the number of data rows.
func (r *Raw) Len() int { return len(r.Records) }

// Head returns the first n rows. The result shares cell storage with r.
func (r *Raw) Head(n int) *Raw {
	if n < 0 || n > len(r.Records) {
		n = len(r.Records)
	}
	return &Raw{Header: r.Header, Records: r.Records[:n]}
}

// Read parses a UTF-8 CSV with a header row. A leading byte-order mark is
// dropped. An empty stream yields a table with no columns.
func Read(src io.Reader) (*Raw, error) {
	dec := transform.NewReader(src, unicode.BOMOverride(transform.Nop))
	cr := csv.NewReader(dec)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &Raw{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if err := checkUTF8(header, 1); err != nil {
		return nil, err
	}

	raw := &Raw{Header: header}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		line, _ := cr.FieldPos(0)
		if len(rec) > len(header) {
			return nil, fmt.Errorf("%w: expected %d fields in line %d, saw %d", ErrUnreadable, len(header), line, len(rec))
		}
		if err := checkUTF8(rec, line); err != nil {
			return nil, err
		}
		for len(rec) < len(header) {
			rec = append(rec, "")
		}
		raw.Records = append(raw.Records, rec)
	}
	return raw, nil
}

func checkUTF8(rec []string, line int) error {
	for _, cell := range rec {
		if !utf8.ValidString(cell) {
			return fmt.Errorf("%w: line %d is not valid utf-8", ErrUnreadable, line)
		}
	}
	return nil
}

// Frame is a numeric table. Missing values are NaN.
type Frame struct {
	Columns []string
	Rows    [][]float64
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Rows) }

// Head returns the first n rows. The result shares row storage with f.
func (f *Frame) Head(n int) *Frame {
	if n < 0 || n > len(f.Rows) {
		n = len(f.Rows)
	}
	return &Frame{Columns: f.Columns, Rows: f.Rows[:n]}
}

// MissingCounts returns, per column, how many cells are NaN.
func (f *Frame) MissingCounts() []int {
	counts := make([]int, len(f.Columns))
	for _, row := range f.Rows {
		for j, v := range row {
			if math.IsNaN(v) {
				counts[j]++
			}
		}
	}
	return counts
}

// WriteCSV writes the frame with a header row.
func (f *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Columns); err != nil {
		return err
	}
	rec := make([]string, len(f.Columns))
	for i, row := range f.Rows {
		if len(row) != len(f.Columns) {
			return fmt.Errorf("%w: row %d has %d values for %d columns", ErrShape, i, len(row), len(f.Columns))
		}
		for j, v := range row {
			rec[j] = FormatFloat(v)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadFrame reads a CSV written by WriteCSV. Cells that do not parse become NaN.
func ReadFrame(src io.Reader) (*Frame, error) {
	raw, err := Read(src)
	if err != nil {
		return nil, err
	}
	f := &Frame{Columns: raw.Header, Rows: make([][]float64, len(raw.Records))}
	for i, rec := range raw.Records {
		row := make([]float64, len(rec))
		for j, cell := range rec {
			v, ok := ParseCell(cell)
			if !ok {
				v = math.NaN()
			}
			row[j] = v
		}
		f.Rows[i] = row
	}
	return f, nil
}

// ParseCell coerces one cell to a decimal number. Blank, unparsable and NaN
// cells report false. Go literal forms (digit separators, hex mantissas)
// are not numbers here; values past the float64 range become ±Inf.
func ParseCell(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.Contains(s, "_") {
		return 0, false
	}
	unsigned := strings.TrimLeft(s, "+-")
	if len(unsigned) > 1 && unsigned[0] == '0' && (unsigned[1] == 'x' || unsigned[1] == 'X') {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		var numErr *strconv.NumError
		if !errors.As(err, &numErr) || !errors.Is(numErr.Err, strconv.ErrRange) || !math.IsInf(v, 0) {
			return 0, false
		}
	}
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// FormatFloat renders v the way the exported files have always looked:
// shortest round-trip digits, integral values keep a ".0", NaN is blank.
func FormatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return ""
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
