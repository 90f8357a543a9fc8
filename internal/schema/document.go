// Package schema extracts database structure into renderable documents for
// the retrieval index.
package schema

import (
	"fmt"
	"strings"
)

// Column describes one table column.
type Column struct {
	Name       string
	Type       string
	PrimaryKey bool
	Nullable   bool
	Default    string
	ForeignKey string // "table.column" target, empty if none
}

// Document describes one table. Immutable after extraction; regenerated only
// when the index is rebuilt.
type Document struct {
	Schema  string
	Table   string
	Columns []Column
}

// Render flattens the document into the text block that gets chunked and
// embedded: schema and table name, then one line per column with [PK] and
// [FK → target] markers.
func (d Document) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Schema: %s\nTable: %s\nColumns:\n", d.Schema, d.Table)

	lines := make([]string, 0, len(d.Columns))
	for _, col := range d.Columns {
		line := fmt.Sprintf("%s (%s)", col.Name, col.Type)
		if col.PrimaryKey {
			line += " [PK]"
		}
		if col.ForeignKey != "" {
			line += fmt.Sprintf(" [FK → %s]", col.ForeignKey)
		}
		lines = append(lines, line)
	}
	b.WriteString(strings.Join(lines, "\n"))
	return b.String()
}
