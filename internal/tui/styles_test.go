package tui

import (
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/require"
)

func TestTruncateMeasuresDisplayCells(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
		want  string
	}{
		{name: "fits", in: "hello", width: 5, want: "hello"},
		{name: "ascii", in: "hello world", width: 6, want: "hello…"},
		{name: "wide", in: "東京ショップです", width: 7, want: "東京シ…"},
		{name: "newline", in: "a\nb", width: 5, want: "a b"},
		{name: "zero", in: "abc", width: 0, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.width)
			require.Equal(t, tt.want, got)
			require.LessOrEqual(t, runewidth.StringWidth(got), max(tt.width, 0))
		})
	}
}
