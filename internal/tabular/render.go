package tabular

import (
	"strings"
	"unicode/utf8"
)

// Render produces an aligned plain-text view of the table, one row per
// line with no row index. Output is byte-for-byte deterministic for a
// given table, which the prompt builder relies on.
func Render(t Table) string {
	if len(t.Columns) == 0 {
		return ""
	}
	widths := make([]int, len(t.Columns))
	for i, col := range t.Columns {
		widths[i] = utf8.RuneCountInString(col)
	}
	for _, row := range t.Rows {
		for i := 0; i < len(widths) && i < len(row); i++ {
			if n := utf8.RuneCountInString(row[i]); n > widths[i] {
				widths[i] = n
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		for i, width := range widths {
			if i > 0 {
				b.WriteString("  ")
			}
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			b.WriteString(cell)
			if i < len(widths)-1 {
				b.WriteString(strings.Repeat(" ", width-utf8.RuneCountInString(cell)))
			}
		}
		b.WriteString("\n")
	}
	writeRow(t.Columns)
	for _, row := range t.Rows {
		writeRow(row)
	}
	return b.String()
}
