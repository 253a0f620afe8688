package table

import (
	"errors"
	"fmt"
)

// Identifier column names of the master table.
const (
	ColMonthYear        = "Month_year"
	ColConsultationType = "Consultation_Type"
	ColCase             = "Case"
)

// NormalizedWidth is the width every normalized raw grid is cut to before
// the extraneous trailing column is removed.
const NormalizedWidth = 36

// extraneousColumn is the trailing column some raw layouts carry (a row
// total) that never maps to a header name.
const extraneousColumn = NormalizedWidth - 1

// AgeBrackets lists the demographic age brackets in ordinal order.
var AgeBrackets = []string{
	"Under 1", "1-4", "5-9", "10-14", "15-18", "19-24", "25-29", "30-34",
	"35-39", "40-44", "45-49", "50-54", "55-59", "60-64", "65-69", "70 Over",
}

// Sexes lists the sex labels in column order.
var Sexes = []string{"Male", "Female"}

// IdentifierColumns lists the non-demographic leading columns.
var IdentifierColumns = []string{ColMonthYear, ColConsultationType, ColCase}

// MasterHeader returns the fixed master table header.
func MasterHeader() []string {
	h := make([]string, 0, len(IdentifierColumns)+len(AgeBrackets)*len(Sexes))
	h = append(h, IdentifierColumns...)
	for _, age := range AgeBrackets {
		for _, sex := range Sexes {
			h = append(h, age+" "+sex)
		}
	}
	return h
}

var (
	// ErrMalformedInput reports a workbook that cannot be read as a grid.
	ErrMalformedInput = errors.New("malformed input")
	// ErrSchemaDrift reports a table whose shape does not match the master schema.
	ErrSchemaDrift = errors.New("schema drift")
)

// SchemaDriftError describes a shape mismatch for a given source.
type SchemaDriftError struct {
	Source string
	Width  int
	Want   int
	Detail string
}

func (e *SchemaDriftError) Error() string {
	msg := fmt.Sprintf("%s: %s: got %d columns, want %d", ErrSchemaDrift, e.Source, e.Width, e.Want)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// Unwrap lets errors.Is match ErrSchemaDrift.
func (e *SchemaDriftError) Unwrap() error { return ErrSchemaDrift }

// ValidateHeader checks that header equals the master header.
func ValidateHeader(source string, header []string) error {
	want := MasterHeader()
	if len(header) != len(want) {
		return &SchemaDriftError{Source: source, Width: len(header), Want: len(want)}
	}
	for i := range want {
		if header[i] != want[i] {
			return &SchemaDriftError{
				Source: source,
				Width:  len(header),
				Want:   len(want),
				Detail: fmt.Sprintf("column %d is %q, want %q", i, header[i], want[i]),
			}
		}
	}
	return nil
}

// FitNormalized pads ragged rows, cuts the grid to NormalizedWidth columns and
// removes the extraneous trailing column. Grids narrower than
// NormalizedWidth are rejected with a SchemaDriftError.
func FitNormalized(source string, rows []Row) ([]Row, error) {
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	if width < NormalizedWidth {
		return nil, &SchemaDriftError{Source: source, Width: width, Want: NormalizedWidth}
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		fitted := make(Row, NormalizedWidth-1)
		copy(fitted, r[:min(len(r), extraneousColumn)])
		out[i] = fitted
	}
	return out, nil
}
