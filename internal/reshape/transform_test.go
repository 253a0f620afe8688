package reshape

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicflow/internal/table"
)

func masterRow(month, consult, caseName table.Cell, counts ...float64) table.Row {
	row := make(table.Row, len(table.MasterHeader()))
	row[0], row[1], row[2] = month, consult, caseName
	for i := 3; i < len(row); i++ {
		row[i] = table.NumberCell(0)
	}
	for i, c := range counts {
		row[3+i] = table.NumberCell(c)
	}
	return row
}

func TestTransformWorkedExample(t *testing.T) {
	master := table.Table{
		Header: table.MasterHeader(),
		Rows:   []table.Row{masterRow(table.TextCell("2023-01-01"), table.TextCell("OPD"), table.TextCell("New"), 2, 3)},
	}
	out, err := Transform(master)
	require.NoError(t, err)
	require.Len(t, out.Records, 32)

	opd := out.ConsultationTypes.Code(table.TextCell("OPD"))
	newCase := out.Cases.Code(table.TextCell("New"))
	assert.Equal(t, 1, opd)
	assert.Equal(t, 1, newCase)

	want := []Record{
		{Period: Period{Year: 2023, Month: 1, Valid: true}, ConsultationType: opd, Case: newCase, Sex: 1, AgeRange: 0, Total: 2},
		{Period: Period{Year: 2023, Month: 1, Valid: true}, ConsultationType: opd, Case: newCase, Sex: 0, AgeRange: 0, Total: 3},
	}
	if diff := cmp.Diff(want, out.Records[:2]); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
	last := out.Records[31]
	assert.Equal(t, 15, last.AgeRange)
	assert.Equal(t, 0, last.Sex)
	assert.Equal(t, 0.0, last.Total)

	tbl := out.Table()
	assert.Equal(t, []string{"Year", "Month", "Consultation_Type", "Case", "Sex", "Age_range", "Total"}, tbl.Header)
	assert.Equal(t, table.Row{
		table.NumberCell(2023), table.NumberCell(1), table.NumberCell(1), table.NumberCell(1),
		table.NumberCell(1), table.NumberCell(0), table.NumberCell(2),
	}, tbl.Rows[0])
}

func TestTransformTotalsMatchWideCells(t *testing.T) {
	counts := make([]float64, 32)
	for i := range counts {
		counts[i] = float64(i * 3)
	}
	master := table.Table{
		Header: table.MasterHeader(),
		Rows: []table.Row{
			masterRow(table.TextCell(""), table.TextCell("OPD"), table.TextCell("New"), counts...),
			masterRow(table.NumberCell(44958), table.TextCell("IPD"), table.TextCell("Old"), 9),
		},
	}
	out, err := Transform(master)
	require.NoError(t, err)
	require.Len(t, out.Records, 64)
	for r := range master.Rows {
		for c := 0; c < 32; c++ {
			want, _ := master.At(r, 3+c).Float()
			assert.Equal(t, want, out.Records[r*32+c].Total, "row %d col %d", r, c)
			assert.Equal(t, c/2, out.Records[r*32+c].AgeRange)
			assert.Equal(t, 1-c%2, out.Records[r*32+c].Sex)
		}
	}
	// 44958 is 2023-02-01
	assert.Equal(t, Period{Year: 2023, Month: 2, Valid: true}, out.Records[32].Period)
}

func TestTransformUnparseableMonthYear(t *testing.T) {
	master := table.Table{
		Header: table.MasterHeader(),
		Rows:   []table.Row{masterRow(table.TextCell(""), table.TextCell("OPD"), table.TextCell("New"), 4)},
	}
	out, err := Transform(master)
	require.NoError(t, err)
	for _, rec := range out.Records {
		assert.False(t, rec.Period.Valid)
		assert.Equal(t, 1, rec.ConsultationType)
		assert.Equal(t, 1, rec.Case)
	}
	row := out.Table().Rows[0]
	assert.Equal(t, table.Missing, row[0].Kind)
	assert.Equal(t, table.Missing, row[1].Kind)
	assert.Equal(t, table.NumberCell(1), row[4])
}

func TestTransformCodesAreFirstSeenBijection(t *testing.T) {
	cases := []string{"Old", "New", "Old", "Referral", "New", ""}
	rows := make([]table.Row, len(cases))
	for i, c := range cases {
		rows[i] = masterRow(table.TextCell(""), table.TextCell("OPD"), table.TextCell(c))
	}
	rows = append(rows, masterRow(table.TextCell(""), table.Cell{}, table.NumberCell(0)))
	out, err := Transform(table.Table{Header: table.MasterHeader(), Rows: rows})
	require.NoError(t, err)

	assert.Equal(t, []LegendEntry{{"Old", 1}, {"New", 2}, {"Referral", 3}, {"0", 4}}, out.Cases.Legend())
	assert.Equal(t, `{"Old": 1, "New": 2, "Referral": 3, "0": 4}`, out.Cases.String())
	seen := map[int]bool{}
	for _, e := range out.Cases.Legend() {
		assert.False(t, seen[e.Code])
		seen[e.Code] = true
	}
	// blank case and missing consultation type encode to -1
	assert.Equal(t, Missing, out.Records[5*32].Case)
	assert.Equal(t, Missing, out.Records[6*32].ConsultationType)
}

func TestTransformRejectsDriftedHeaders(t *testing.T) {
	h := table.MasterHeader()
	h[1] = "Type"
	_, err := Transform(table.Table{Header: h})
	require.ErrorIs(t, err, table.ErrSchemaDrift)

	h = table.MasterHeader()
	h[10] = "Total"
	_, err = Transform(table.Table{Header: h})
	require.ErrorIs(t, err, table.ErrSchemaDrift)
	assert.Contains(t, err.Error(), `"Total"`)

	_, err = Transform(table.Table{Header: []string{"Month_year"}})
	require.ErrorIs(t, err, table.ErrSchemaDrift)
}

func TestTransformSplitsMultiWordBrackets(t *testing.T) {
	header := []string{"Month_year", "Consultation_Type", "Case", "70  &  OVER   Male", "Unknown Female", "1-4 Other"}
	row := table.Row{table.TextCell("Jan-2024"), table.TextCell("OPD"), table.TextCell("New"), table.NumberCell(1), table.TextCell("n/a"), table.Cell{}}
	out, err := Transform(table.Table{Header: header, Rows: []table.Row{row}})
	require.NoError(t, err)
	require.Len(t, out.Records, 3)
	assert.Equal(t, 15, out.Records[0].AgeRange)
	assert.Equal(t, 1, out.Records[0].Sex)
	assert.Equal(t, Missing, out.Records[1].AgeRange)
	assert.Equal(t, 0.0, out.Records[1].Total)
	assert.Equal(t, Missing, out.Records[2].Sex)
	assert.Equal(t, Period{Year: 2024, Month: 1, Valid: true}, out.Records[0].Period)
}
