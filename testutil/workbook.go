package testutil

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"
)

// DemographicColumns is the number of age/sex count columns in a raw layout.
const DemographicColumns = 32

// WriteWorkbook writes rows to a fresh single-sheet workbook at path and
// merges each listed range, given as top-left and bottom-right cell names.
// Nil values leave the cell empty.
func WriteWorkbook(t testing.TB, path string, rows [][]any, merges ...[2]string) {
	t.Helper()
	f := buildWorkbook(t, rows, merges...)
	defer func() { _ = f.Close() }()
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook %s: %v", path, err)
	}
}

// WorkbookBytes returns rows encoded as a single-sheet workbook.
func WorkbookBytes(t testing.TB, rows [][]any) []byte {
	t.Helper()
	f := buildWorkbook(t, rows)
	defer func() { _ = f.Close() }()
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("encode workbook: %v", err)
	}
	return buf.Bytes()
}

func buildWorkbook(t testing.TB, rows [][]any, merges ...[2]string) *excelize.File {
	t.Helper()
	f := excelize.NewFile()
	const sheet = "Sheet1"
	for r, row := range rows {
		for c, v := range row {
			if v == nil {
				continue
			}
			name, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := f.SetCellValue(sheet, name, v); err != nil {
				t.Fatalf("set %s: %v", name, err)
			}
		}
	}
	for _, m := range merges {
		if err := f.MergeCell(sheet, m[0], m[1]); err != nil {
			t.Fatalf("merge %s:%s: %v", m[0], m[1], err)
		}
	}
	return f
}

// RawVisitRow builds one row of the raw clinic layout: a label column, the
// case category, DemographicColumns counts (zero-filled when fewer are given)
// and a trailing row total.
func RawVisitRow(label, caseName string, counts ...float64) []any {
	row := make([]any, 0, 3+DemographicColumns)
	row = append(row, label, caseName)
	total := 0.0
	for i := 0; i < DemographicColumns; i++ {
		v := 0.0
		if i < len(counts) {
			v = counts[i]
		}
		total += v
		row = append(row, v)
	}
	return append(row, total)
}
