package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteTableAlignsWideRunes(t *testing.T) {
	var buf bytes.Buffer
	err := writeTable(&buf, []string{"ID", "NAME"}, [][]string{
		{"c1", "東京ショップ"},
		{"c22", "\x1b[1mAcme\x1b[0m"},
	})
	require.NoError(t, err)
	require.Equal(t, "ID   NAME\nc1   東京ショップ\nc22  \x1b[1mAcme\x1b[0m\n", buf.String())
}

func TestTruncateCell(t *testing.T) {
	require.Equal(t, "a b", truncateCell("a\n  b", 10))
	require.Equal(t, "hell…", truncateCell("hello world", 5))
	require.Equal(t, "東…", truncateCell("東京ショップ", 4))
}
