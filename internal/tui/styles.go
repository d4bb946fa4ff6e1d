package tui

import (
	"hash/fnv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// namePalette is an ANSI 256 palette for stable per-party name colors.
// Red and green are left for status colors.
var namePalette = []string{
	"33", "39", "45", "69", "75", "81", "87", "99",
	"111", "117", "123", "147", "153", "159", "183", "189",
}

type theme struct {
	header   lipgloss.Style
	muted    lipgloss.Style
	accent   lipgloss.Style
	selected lipgloss.Style
	unread   lipgloss.Style
	own      lipgloss.Style
	pending  lipgloss.Style
	errText  lipgloss.Style
	pane     lipgloss.Style
	active   lipgloss.Style
	badge    lipgloss.Style
}

func defaultTheme() theme {
	border := lipgloss.RoundedBorder()
	return theme{
		header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("231")).Background(lipgloss.Color("62")).Padding(0, 1),
		muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		accent:   lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
		selected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("231")).Background(lipgloss.Color("238")),
		unread:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("16")).Background(lipgloss.Color("214")).Padding(0, 1),
		own:      lipgloss.NewStyle().Foreground(lipgloss.Color("114")),
		pending:  lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("245")),
		errText:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		pane:     lipgloss.NewStyle().Border(border).BorderForeground(lipgloss.Color("240")),
		active:   lipgloss.NewStyle().Border(border).BorderForeground(lipgloss.Color("75")),
		badge:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("16")).Background(lipgloss.Color("203")).Padding(0, 1),
	}
}

// nameColors resolves deterministic per-name styles and caches them.
type nameColors struct {
	mu    sync.RWMutex
	cache map[string]lipgloss.Style
}

func newNameColors() *nameColors {
	return &nameColors{cache: make(map[string]lipgloss.Style, 32)}
}

func (c *nameColors) style(name string) lipgloss.Style {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = "unknown"
	}

	c.mu.RLock()
	if style, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		return style
	}
	c.mu.RUnlock()

	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	code := namePalette[h.Sum32()%uint32(len(namePalette))]
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(code)).Bold(true)

	c.mu.Lock()
	c.cache[key] = style
	c.mu.Unlock()
	return style
}

// truncate flattens s to one line and cuts it to width display cells.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = strings.ReplaceAll(s, "\n", " ")
	return runewidth.Truncate(s, width, "…")
}
