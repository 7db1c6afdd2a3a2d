package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// RenderTable lays out rows under headers in aligned columns. Short rows are
// padded with empty cells.
func RenderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if w := lipgloss.Width(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	b.WriteString(renderRow(TableHeaderStyle, headers, widths))
	for _, row := range rows {
		b.WriteString("\n")
		b.WriteString(renderRow(TableCellStyle, row, widths))
	}
	return b.String()
}

func renderRow(style lipgloss.Style, row []string, widths []int) string {
	cells := make([]string, len(widths))
	for i, w := range widths {
		var v string
		if i < len(row) {
			v = row[i]
		}
		cells[i] = TableCellStyle.Width(w + 2).Render(v)
	}
	return style.Render(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
}
