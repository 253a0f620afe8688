package reshape

import (
	"fmt"
	"strings"

	"clinicflow/internal/table"
)

// Numeric table column names, in output order.
const (
	ColYear             = "Year"
	ColMonth            = "Month"
	ColConsultationType = table.ColConsultationType
	ColCase             = table.ColCase
	ColSex              = "Sex"
	ColAgeRange         = "Age_range"
	ColTotal            = "Total"
)

// NumericHeader is the numeric table header.
func NumericHeader() []string {
	return []string{ColYear, ColMonth, ColConsultationType, ColCase, ColSex, ColAgeRange, ColTotal}
}

// Record is one row of the numeric table.
type Record struct {
	Period           Period
	ConsultationType int
	Case             int
	Sex              int
	AgeRange         int
	Total            float64
}

// Output is the long-format encoding of a master table together with the
// dynamic code maps built for it.
type Output struct {
	Records           []Record
	ConsultationTypes *CodeMap
	Cases             *CodeMap
}

type demographic struct {
	column int
	sex    int
	age    int
}

// Transform melts the demographic columns of master into one record per
// (row, column) and encodes every categorical value.
func Transform(master table.Table) (Output, error) {
	ids := len(table.IdentifierColumns)
	if len(master.Header) < ids {
		return Output{}, &table.SchemaDriftError{Source: "master", Width: len(master.Header), Want: len(table.MasterHeader())}
	}
	for i, name := range table.IdentifierColumns {
		if master.Header[i] != name {
			return Output{}, &table.SchemaDriftError{
				Source: "master", Width: len(master.Header), Want: len(table.MasterHeader()),
				Detail: fmt.Sprintf("column %d is %q, want %q", i, master.Header[i], name),
			}
		}
	}
	cols := make([]demographic, 0, len(master.Header)-ids)
	for c := ids; c < len(master.Header); c++ {
		age, sex, ok := splitDemographic(master.Header[c])
		if !ok {
			return Output{}, &table.SchemaDriftError{
				Source: "master", Width: len(master.Header), Want: len(table.MasterHeader()),
				Detail: fmt.Sprintf("column %d %q is not <age bracket> <sex>", c, master.Header[c]),
			}
		}
		cols = append(cols, demographic{column: c, sex: SexCode(sex), age: AgeRangeCode(age)})
	}

	consult, cases := NewCodeMap(), NewCodeMap()
	for r := range master.Rows {
		consult.Add(master.At(r, 1))
		cases.Add(master.At(r, 2))
	}

	out := Output{
		Records:           make([]Record, 0, len(master.Rows)*len(cols)),
		ConsultationTypes: consult,
		Cases:             cases,
	}
	for r := range master.Rows {
		period := ParsePeriod(master.At(r, 0))
		ct := consult.Code(master.At(r, 1))
		cs := cases.Code(master.At(r, 2))
		for _, d := range cols {
			total, ok := master.At(r, d.column).Float()
			if !ok {
				total = 0
			}
			out.Records = append(out.Records, Record{
				Period:           period,
				ConsultationType: ct,
				Case:             cs,
				Sex:              d.sex,
				AgeRange:         d.age,
				Total:            total,
			})
		}
	}
	return out, nil
}

// splitDemographic splits "<AgeBracket> <Sex>" on whitespace; the last
// token is the sex.
func splitDemographic(header string) (age, sex string, ok bool) {
	fields := strings.Fields(header)
	if len(fields) < 2 {
		return "", "", false
	}
	return strings.Join(fields[:len(fields)-1], " "), fields[len(fields)-1], true
}

// Table renders the records as the numeric table. Unparsed periods leave
// Year and Month empty.
func (o Output) Table() table.Table {
	rows := make([]table.Row, len(o.Records))
	for i, rec := range o.Records {
		row := make(table.Row, 0, 7)
		if rec.Period.Valid {
			row = append(row, table.NumberCell(float64(rec.Period.Year)), table.NumberCell(float64(rec.Period.Month)))
		} else {
			row = append(row, table.Cell{}, table.Cell{})
		}
		row = append(row,
			table.NumberCell(float64(rec.ConsultationType)),
			table.NumberCell(float64(rec.Case)),
			table.NumberCell(float64(rec.Sex)),
			table.NumberCell(float64(rec.AgeRange)),
			table.NumberCell(rec.Total),
		)
		rows[i] = row
	}
	return table.Table{Header: NumericHeader(), Rows: rows}
}
