package compare

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/docdiff/docdiff/internal/model"
)

// renderTable draws rows as right-aligned columns separated by two spaces,
// without a row index. Widths are display widths so CJK text lines up.
func renderTable(columns []string, rows []model.Row) string {
	if len(columns) == 0 {
		return "(empty)"
	}

	cells := make([][]string, len(rows)+1)
	cells[0] = columns
	for i, row := range rows {
		line := make([]string, len(columns))
		for j, col := range columns {
			line[j] = strings.ReplaceAll(model.FormatPlain(row[col]), "\n", `\n`)
		}
		cells[i+1] = line
	}

	widths := make([]int, len(columns))
	for _, line := range cells {
		for j, v := range line {
			if w := runewidth.StringWidth(v); w > widths[j] {
				widths[j] = w
			}
		}
	}

	var sb strings.Builder
	for i, line := range cells {
		if i > 0 {
			sb.WriteByte('\n')
		}
		for j, v := range line {
			if j > 0 {
				sb.WriteString("  ")
			}
			sb.WriteString(runewidth.FillLeft(v, widths[j]))
		}
	}
	if len(rows) == 0 {
		sb.WriteString("\n(no rows)")
	}
	return sb.String()
}
