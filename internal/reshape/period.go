package reshape

import (
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"clinicflow/internal/table"
)

// Period is the year and month of a Month_year label. Valid is false when
// the label could not be parsed.
type Period struct {
	Year  int
	Month int
	Valid bool
}

// periodLayouts are tried in order against text labels.
var periodLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01/02/2006 15:04:05",
	"02-Jan-2006",
	"Jan-2006",
	"Jan-06",
	"Jan 2006",
	"January 2006",
	"January-2006",
	"January, 2006",
	"01/2006",
	"1/2006",
	"2006-01",
	"2006/01",
}

// ParsePeriod parses a Month_year cell. Numbers are Excel serial dates.
func ParsePeriod(c table.Cell) Period {
	switch c.Kind {
	case table.Number:
		if c.Num < 1 {
			return Period{}
		}
		t, err := excelize.ExcelDateToTime(c.Num, false)
		if err != nil {
			return Period{}
		}
		return Period{Year: t.Year(), Month: int(t.Month()), Valid: true}
	case table.Text:
		s := strings.TrimSpace(c.Str)
		if s == "" {
			return Period{}
		}
		for _, layout := range periodLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return Period{Year: t.Year(), Month: int(t.Month()), Valid: true}
			}
		}
	}
	return Period{}
}
