package agent

import (
	"fmt"
	"strings"
)

// Table is a query result set. A failed execution is still a Table: the
// error text lands in Err and Columns/Rows stay empty.
type Table struct {
	Columns []string
	Rows    [][]any
	Err     string
}

// IsEmpty reports whether the table carries no rows and no error.
func (t *Table) IsEmpty() bool {
	return t == nil || (len(t.Rows) == 0 && t.Err == "")
}

// previewRows caps how many rows Preview renders.
const previewRows = 5

// Preview renders the header and up to the first five rows as aligned
// plain text. An error-bearing table renders its error instead.
func (t *Table) Preview() string {
	if t == nil {
		return ""
	}
	if t.Err != "" {
		return "Error: " + t.Err
	}
	if len(t.Columns) == 0 {
		return ""
	}

	rows := t.Rows
	if len(rows) > previewRows {
		rows = rows[:previewRows]
	}

	widths := make([]int, len(t.Columns))
	for i, c := range t.Columns {
		widths[i] = len(c)
	}
	cells := make([][]string, len(rows))
	for ri, row := range rows {
		cells[ri] = make([]string, len(t.Columns))
		for ci := range t.Columns {
			var s string
			if ci < len(row) {
				s = formatValue(row[ci])
			}
			cells[ri][ci] = s
			if len(s) > widths[ci] {
				widths[ci] = len(s)
			}
		}
	}

	var b strings.Builder
	writeRow := func(vals []string) {
		for i, v := range vals {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(v)
			if pad := widths[i] - len(v); pad > 0 && i < len(vals)-1 {
				b.WriteString(strings.Repeat(" ", pad))
			}
		}
		b.WriteByte('\n')
	}
	writeRow(t.Columns)
	for _, row := range cells {
		writeRow(row)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprint(v)
}
