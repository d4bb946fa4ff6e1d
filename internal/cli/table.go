package cli

import (
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// columnGap separates table columns.
const columnGap = "  "

// writeTable prints headers and rows as left-aligned columns sized by display
// width, so product names in wide scripts and styled cells line up. The last
// column is not padded.
func writeTable(out io.Writer, headers []string, rows [][]string) error {
	all := make([][]string, 0, len(rows)+1)
	if len(headers) > 0 {
		all = append(all, headers)
	}
	all = append(all, rows...)

	var widths []int
	for _, row := range all {
		for col, cell := range row {
			if col >= len(widths) {
				widths = append(widths, 0)
			}
			widths[col] = max(widths[col], cellWidth(cell))
		}
	}
	if len(widths) == 0 {
		return nil
	}

	var b strings.Builder
	for _, row := range all {
		for col := range widths {
			cell := ""
			if col < len(row) {
				cell = row[col]
			}
			b.WriteString(cell)
			if col < len(widths)-1 {
				b.WriteString(strings.Repeat(" ", widths[col]-cellWidth(cell)))
				b.WriteString(columnGap)
			}
		}
		b.WriteByte('\n')
	}
	_, err := io.WriteString(out, b.String())
	return err
}

// cellWidth is the terminal width of cell, ignoring ANSI styling.
func cellWidth(cell string) int {
	return runewidth.StringWidth(stripANSI(cell))
}

// truncateCell flattens value to one line and cuts it to width display cells.
func truncateCell(value string, width int) string {
	value = strings.Join(strings.Fields(value), " ")
	return runewidth.Truncate(value, width, "…")
}

func formatYesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

// stripANSI removes CSI escape sequences such as lipgloss color codes.
func stripANSI(value string) string {
	if !strings.Contains(value, "\x1b[") {
		return value
	}
	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		if value[i] != 0x1b || i+1 >= len(value) || value[i+1] != '[' {
			b.WriteByte(value[i])
			continue
		}
		// Skip parameters up to and including the final byte.
		for i += 2; i < len(value) && (value[i] < 0x40 || value[i] > 0x7e); i++ {
		}
	}
	return b.String()
}
