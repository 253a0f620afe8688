package reshape

import (
	"fmt"
	"strings"

	"clinicflow/internal/table"
)

// Missing is the code for values absent from a map.
const Missing = -1

// Fixed codes.
var (
	sexCodes = map[string]int{"Male": 1, "Female": 0}

	// ageAliases covers label variants seen for the open-ended bracket.
	ageAliases = map[string]int{"70": 15, "70 & OVER": 15}
)

// SexCode encodes a sex label.
func SexCode(label string) int {
	if c, ok := sexCodes[label]; ok {
		return c
	}
	return Missing
}

// AgeRangeCode encodes an age bracket label as its ordinal.
func AgeRangeCode(label string) int {
	for i, b := range table.AgeBrackets {
		if b == label {
			return i
		}
	}
	if c, ok := ageAliases[label]; ok {
		return c
	}
	return Missing
}

// LegendEntry is one value and its code.
type LegendEntry struct {
	Value string `json:"value"`
	Code  int    `json:"code"`
}

// CodeMap assigns codes 1..N to values in first-seen order.
type CodeMap struct {
	keys  []string
	index map[string]int
}

// NewCodeMap returns an empty map.
func NewCodeMap() *CodeMap { return &CodeMap{index: make(map[string]int)} }

// Add registers the value of c unless it is absent, blank or already known.
func (m *CodeMap) Add(c table.Cell) {
	if c.IsBlank() {
		return
	}
	v := c.String()
	if _, ok := m.index[v]; ok {
		return
	}
	m.keys = append(m.keys, v)
	m.index[v] = len(m.keys)
}

// Code returns the code of c, or Missing.
func (m *CodeMap) Code(c table.Cell) int {
	if c.IsBlank() {
		return Missing
	}
	if code, ok := m.index[c.String()]; ok {
		return code
	}
	return Missing
}

// Len returns the number of distinct values.
func (m *CodeMap) Len() int { return len(m.keys) }

// Legend lists values in code order.
func (m *CodeMap) Legend() []LegendEntry {
	out := make([]LegendEntry, len(m.keys))
	for i, k := range m.keys {
		out[i] = LegendEntry{Value: k, Code: i + 1}
	}
	return out
}

// String renders the legend as {value: code, ...}.
func (m *CodeMap) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: %d", k, i+1)
	}
	b.WriteByte('}')
	return b.String()
}
