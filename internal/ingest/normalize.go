package ingest

import (
	"fmt"
	"path/filepath"

	"clinicflow/internal/table"
)

// placeholderColumns is the number of empty text columns prepended to every
// raw row so the layout lines up with the master header.
const placeholderColumns = 2

// prepare normalizes one raw workbook in place and returns its rows fitted
// to the master layout. A workbook with merged regions is saved back after
// the regions are resolved.
func prepare(path string) (rows []table.Row, demerged int, err error) {
	wb, err := table.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		if cerr := wb.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	demerged, err = wb.Demerge()
	if err != nil {
		return nil, 0, err
	}
	if demerged > 0 {
		if err := wb.Save(); err != nil {
			return nil, demerged, fmt.Errorf("save de-merged %s: %w", filepath.Base(path), err)
		}
	}
	grid, err := wb.Grid()
	if err != nil {
		return nil, demerged, err
	}
	normalized := normalize(grid)
	if len(normalized) == 0 {
		return nil, demerged, nil
	}
	rows, err = table.FitNormalized(filepath.Base(path), normalized)
	return rows, demerged, err
}

// normalize drops blank rows, drops the leading column and prepends the
// placeholder columns.
func normalize(grid []table.Row) []table.Row {
	out := make([]table.Row, 0, len(grid))
	for _, r := range grid {
		if r.IsBlank() {
			continue
		}
		if len(r) > 0 {
			r = r[1:]
		}
		row := make(table.Row, 0, placeholderColumns+len(r))
		for i := 0; i < placeholderColumns; i++ {
			row = append(row, table.TextCell(""))
		}
		out = append(out, append(row, r...))
	}
	return out
}

// Merge appends each batch to the rows of master, applies the master header
// and replaces absent cells with zero. An empty master (no header) starts a
// new table; otherwise its header must match the master schema.
func Merge(master table.Table, batches ...[]table.Row) (table.Table, error) {
	header := table.MasterHeader()
	if len(master.Header) > 0 {
		if err := table.ValidateHeader("master", master.Header); err != nil {
			return table.Table{}, err
		}
	}
	total := len(master.Rows)
	for _, b := range batches {
		total += len(b)
	}
	rows := make([]table.Row, 0, total)
	for _, r := range master.Rows {
		if len(r) > len(header) {
			return table.Table{}, &table.SchemaDriftError{Source: "master", Width: len(r), Want: len(header)}
		}
		// Trailing absent cells are trimmed when a workbook is read.
		fitted := make(table.Row, len(header))
		copy(fitted, r)
		rows = append(rows, fitted)
	}
	for _, b := range batches {
		for _, r := range b {
			if len(r) != len(header) {
				return table.Table{}, &table.SchemaDriftError{Source: "batch", Width: len(r), Want: len(header)}
			}
			rows = append(rows, r.Clone())
		}
	}
	for _, r := range rows {
		for c := range r {
			if r[c].Kind == table.Missing {
				r[c] = table.NumberCell(0)
			}
		}
	}
	return table.Table{Header: header, Rows: rows}, nil
}
