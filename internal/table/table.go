// Package table holds the in-memory grid model shared by the ingestion and
// reshape stages, the fixed master schema, and the spreadsheet codec.
package table

import (
	"strconv"
	"strings"
)

// Kind classifies a cell value.
type Kind uint8

const (
	// Missing marks an absent cell.
	Missing Kind = iota
	// Text marks a string cell, including the empty string.
	Text
	// Number marks a numeric cell.
	Number
)

// Cell is a single spreadsheet value.
type Cell struct {
	Kind Kind
	Str  string
	Num  float64
}

// TextCell returns a Text cell.
func TextCell(s string) Cell { return Cell{Kind: Text, Str: s} }

// NumberCell returns a Number cell.
func NumberCell(f float64) Cell { return Cell{Kind: Number, Num: f} }

// IsBlank reports whether the cell carries no value: missing, or text made
// only of whitespace.
func (c Cell) IsBlank() bool {
	switch c.Kind {
	case Missing:
		return true
	case Text:
		return strings.TrimSpace(c.Str) == ""
	default:
		return false
	}
}

// String renders the cell the way it is used as a category key.
func (c Cell) String() string {
	switch c.Kind {
	case Text:
		return c.Str
	case Number:
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	default:
		return ""
	}
}

// Float returns the numeric value of the cell. Text cells holding a number
// are accepted; everything else reports false.
func (c Cell) Float() (float64, bool) {
	switch c.Kind {
	case Number:
		return c.Num, true
	case Text:
		f, err := strconv.ParseFloat(strings.TrimSpace(c.Str), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Row is an ordered list of cells.
type Row []Cell

// Clone returns a copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// IsBlank reports whether every cell in the row is blank.
func (r Row) IsBlank() bool {
	for _, c := range r {
		if !c.IsBlank() {
			return false
		}
	}
	return true
}

// Table is a header plus data rows.
type Table struct {
	Header []string
	Rows   []Row
}

// Width returns the widest of the header and every row.
func (t Table) Width() int {
	w := len(t.Header)
	for _, r := range t.Rows {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

// Column returns the index of the named header column or -1.
func (t Table) Column(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// At returns the cell at row r, column c, treating short rows as missing.
func (t Table) At(r, c int) Cell {
	if r < 0 || r >= len(t.Rows) {
		return Cell{}
	}
	row := t.Rows[r]
	if c < 0 || c >= len(row) {
		return Cell{}
	}
	return row[c]
}
