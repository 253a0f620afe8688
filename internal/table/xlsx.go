package table

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// ContentType is the MIME type of .xlsx workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Workbook wraps an excelize file positioned on its primary sheet.
type Workbook struct {
	file  *excelize.File
	sheet string
}

// Open opens the workbook at path. Failures wrap ErrMalformedInput.
func Open(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrMalformedInput, path, err)
	}
	return newWorkbook(f, path)
}

// OpenReader reads a workbook from r. Failures wrap ErrMalformedInput.
func OpenReader(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read workbook: %v", ErrMalformedInput, err)
	}
	return newWorkbook(f, "stream")
}

func newWorkbook(f *excelize.File, name string) (*Workbook, error) {
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if sheet == "" {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s has no sheets", ErrMalformedInput, name)
	}
	return &Workbook{file: f, sheet: sheet}, nil
}

// Close releases the workbook.
func (w *Workbook) Close() error { return w.file.Close() }

// Save writes the workbook back to the path it was opened from.
func (w *Workbook) Save() error { return w.file.Save() }

// Demerge unmerges every merged region of the primary sheet and copies the
// region's top-left value into each cell it covered. It returns the number
// of regions resolved.
func (w *Workbook) Demerge() (int, error) {
	merged, err := w.file.GetMergeCells(w.sheet)
	if err != nil {
		return 0, fmt.Errorf("%w: merged cells: %v", ErrMalformedInput, err)
	}
	for _, mc := range merged {
		start, end := mc.GetStartAxis(), mc.GetEndAxis()
		value, err := w.cell(start)
		if err != nil {
			return 0, err
		}
		if err := w.file.UnmergeCell(w.sheet, start, end); err != nil {
			return 0, fmt.Errorf("unmerge %s:%s: %w", start, end, err)
		}
		if value.Kind == Missing {
			continue
		}
		if err := w.fill(start, end, value); err != nil {
			return 0, err
		}
	}
	return len(merged), nil
}

func (w *Workbook) fill(start, end string, value Cell) error {
	c0, r0, err := excelize.CellNameToCoordinates(start)
	if err != nil {
		return err
	}
	c1, r1, err := excelize.CellNameToCoordinates(end)
	if err != nil {
		return err
	}
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			name, err := excelize.CoordinatesToCellName(c, r)
			if err != nil {
				return err
			}
			if err := w.file.SetCellValue(w.sheet, name, cellValue(value)); err != nil {
				return fmt.Errorf("fill %s: %w", name, err)
			}
		}
	}
	return nil
}

func (w *Workbook) cell(name string) (Cell, error) {
	raw, err := w.file.GetCellValue(w.sheet, name, excelize.Options{RawCellValue: true})
	if err != nil {
		return Cell{}, fmt.Errorf("%w: cell %s: %v", ErrMalformedInput, name, err)
	}
	typ, err := w.file.GetCellType(w.sheet, name)
	if err != nil {
		return Cell{}, fmt.Errorf("%w: cell type %s: %v", ErrMalformedInput, name, err)
	}
	return decodeCell(raw, typ), nil
}

// Grid reads the primary sheet as rows of raw cell values, no header assumed.
func (w *Workbook) Grid() ([]Row, error) {
	values, err := w.file.GetRows(w.sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: rows: %v", ErrMalformedInput, err)
	}
	grid := make([]Row, len(values))
	for r, line := range values {
		row := make(Row, len(line))
		for c, raw := range line {
			name, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, err
			}
			typ, err := w.file.GetCellType(w.sheet, name)
			if err != nil {
				return nil, fmt.Errorf("%w: cell type %s: %v", ErrMalformedInput, name, err)
			}
			row[c] = decodeCell(raw, typ)
		}
		grid[r] = row
	}
	return grid, nil
}

func decodeCell(raw string, typ excelize.CellType) Cell {
	switch typ {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula,
		excelize.CellTypeBool, excelize.CellTypeError, excelize.CellTypeDate:
		return TextCell(raw)
	}
	if raw == "" {
		return Cell{}
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return NumberCell(f)
	}
	return TextCell(raw)
}

func cellValue(c Cell) any {
	switch c.Kind {
	case Text:
		return c.Str
	case Number:
		return c.Num
	default:
		return nil
	}
}

// Provenance identifies the run that produced a workbook and the source
// files folded into it. It travels inside the workbook's document
// properties so it is replaced atomically with the data.
type Provenance struct {
	RunID   string
	Sources []string
}

const provenanceCategory = "clinicflow"

func (p Provenance) docProps() (*excelize.DocProperties, error) {
	sources := p.Sources
	if sources == nil {
		sources = []string{}
	}
	b, err := json.Marshal(sources)
	if err != nil {
		return nil, err
	}
	return &excelize.DocProperties{
		Category:    provenanceCategory,
		Identifier:  p.RunID,
		Description: string(b),
	}, nil
}

func provenanceOf(f *excelize.File) (Provenance, error) {
	props, err := f.GetDocProps()
	if err != nil {
		return Provenance{}, fmt.Errorf("%w: document properties: %v", ErrMalformedInput, err)
	}
	if props == nil || props.Category != provenanceCategory {
		return Provenance{}, nil
	}
	p := Provenance{RunID: props.Identifier}
	if props.Description != "" {
		if err := json.Unmarshal([]byte(props.Description), &p.Sources); err != nil {
			return Provenance{}, fmt.Errorf("%w: provenance sources: %v", ErrMalformedInput, err)
		}
	}
	return p, nil
}

// ReadTable decodes a single-sheet workbook whose first row is the header,
// along with any provenance stamped by WriteTable.
func ReadTable(r io.Reader) (Table, Provenance, error) {
	wb, err := OpenReader(r)
	if err != nil {
		return Table{}, Provenance{}, err
	}
	defer func() { _ = wb.Close() }()
	prov, err := provenanceOf(wb.file)
	if err != nil {
		return Table{}, Provenance{}, err
	}
	grid, err := wb.Grid()
	if err != nil {
		return Table{}, Provenance{}, err
	}
	if len(grid) == 0 {
		return Table{}, prov, nil
	}
	header := make([]string, len(grid[0]))
	for i, c := range grid[0] {
		header[i] = c.String()
	}
	return Table{Header: header, Rows: grid[1:]}, prov, nil
}

// WriteTable encodes t as a single-sheet workbook named sheet, stamping
// prov into the document properties.
func WriteTable(w io.Writer, sheet string, t Table, prov Provenance) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if sheet == "" {
		sheet = defaultSheet
	}
	if sheet != defaultSheet {
		if err := f.SetSheetName(defaultSheet, sheet); err != nil {
			return fmt.Errorf("name sheet: %w", err)
		}
	}
	props, err := prov.docProps()
	if err != nil {
		return fmt.Errorf("encode provenance: %w", err)
	}
	if err := f.SetDocProps(props); err != nil {
		return fmt.Errorf("document properties: %w", err)
	}
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("stream writer: %w", err)
	}
	header := make([]any, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range t.Rows {
		values := make([]any, len(row))
		for j, c := range row {
			values[j] = cellValue(c)
		}
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(axis, values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
