package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tOgg1/storechat/internal/auth"
	"github.com/tOgg1/storechat/internal/chatsync"
	"github.com/tOgg1/storechat/internal/events"
	"github.com/tOgg1/storechat/internal/models"
)

type focus int

const (
	focusList focus = iota
	focusSearch
	focusCompose
)

const actionTimeout = 15 * time.Second

type inboxEventMsg struct {
	event *events.Event
}

type actionDoneMsg struct {
	action string
	err    error
}

// Model is the inbox screen: roster with unread counts, search, the open
// thread and the composer.
type Model struct {
	engine Engine
	sub    *subscription
	badge  *Badge
	theme  theme
	names  *nameColors

	snap    chatsync.Snapshot
	visible []models.Conversation
	cursor  int
	query   string
	focus   focus
	toast   string
	confirm string

	width  int
	height int
}

// NewModel creates the inbox for engine.
func NewModel(engine Engine) *Model {
	return &Model{
		engine: engine,
		badge:  NewBadge(engine),
		theme:  defaultTheme(),
		names:  newNameColors(),
	}
}

// Open subscribes the inbox and its badge.
func (m *Model) Open() error {
	sub, err := subscribe(m.engine, "inbox", events.Filter{})
	if err != nil {
		return err
	}
	m.sub = sub
	if err := m.badge.Open(); err != nil {
		m.sub.close()
		return err
	}
	m.refresh()
	return nil
}

// Close unsubscribes both surfaces.
func (m *Model) Close() {
	m.badge.Close()
	m.sub.close()
}

func (m *Model) listen() tea.Cmd {
	if m.sub == nil {
		return nil
	}
	ch := m.sub.ch
	return func() tea.Msg {
		return inboxEventMsg{event: <-ch}
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.listen(), m.badge.Listen())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		return m, nil
	case inboxEventMsg:
		m.handleEvent(typed.event)
		m.refresh()
		return m, m.listen()
	case badgeEventMsg:
		return m, m.badge.Update(typed)
	case actionDoneMsg:
		if typed.err != nil && !errors.Is(typed.err, auth.ErrUnauthorized) {
			m.toast = fmt.Sprintf("%s failed: %v", typed.action, typed.err)
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		return m, m.handleKey(typed)
	}
	return m, nil
}

func (m *Model) handleEvent(event *events.Event) {
	if event == nil {
		return
	}
	switch event.Type {
	case events.SendFailed:
		m.toast = "message not sent, edit and press enter to retry"
	case events.RosterLoadFailed:
		m.toast = "could not load conversations"
	case events.DeleteFailed:
		m.toast = "delete failed"
	case events.SendConfirmed:
		m.toast = ""
	}
}

func (m *Model) refresh() {
	m.snap = m.engine.Snapshot()
	m.visible = m.engine.Search(m.query)
	if m.cursor >= len(m.visible) {
		m.cursor = len(m.visible) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if msg.String() == "ctrl+c" {
		return tea.Quit
	}
	if m.snap.AuthExpired {
		if msg.String() == "q" || msg.String() == "esc" {
			return tea.Quit
		}
		return nil
	}

	switch m.focus {
	case focusSearch:
		return m.handleSearchKey(msg)
	case focusCompose:
		return m.handleComposeKey(msg)
	default:
		return m.handleListKey(msg)
	}
}

func (m *Model) handleListKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()
	if key != "d" {
		m.confirm = ""
	}
	switch key {
	case "q":
		return tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.visible)-1 {
			m.cursor++
		}
	case "/":
		m.focus = focusSearch
	case "enter":
		if conv, ok := m.current(); ok {
			m.toast = ""
			return m.run("open", func(ctx context.Context) error {
				return m.engine.Select(ctx, conv.ID)
			})
		}
	case "i", "tab":
		if m.snap.Selected != "" {
			m.focus = focusCompose
		}
	case "esc":
		m.engine.Deselect()
		m.refresh()
	case "d":
		conv, ok := m.current()
		if !ok {
			return nil
		}
		if m.confirm != conv.ID {
			m.confirm = conv.ID
			m.toast = "press d again to delete"
			return nil
		}
		m.confirm = ""
		m.toast = ""
		return m.run("delete", func(ctx context.Context) error {
			return m.engine.Delete(ctx, conv.ID)
		})
	}
	return nil
}

func (m *Model) handleSearchKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEnter, tea.KeyEsc:
		m.focus = focusList
	case tea.KeyBackspace:
		if r := []rune(m.query); len(r) > 0 {
			m.query = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.query += " "
	case tea.KeyRunes:
		m.query += string(msg.Runes)
	}
	m.cursor = 0
	m.refresh()
	return nil
}

func (m *Model) handleComposeKey(msg tea.KeyMsg) tea.Cmd {
	draft := m.snap.Draft
	switch msg.Type {
	case tea.KeyEsc:
		m.focus = focusList
		return nil
	case tea.KeyEnter:
		if m.snap.SendPending {
			return nil
		}
		m.toast = ""
		return m.run("send", func(ctx context.Context) error {
			_, err := m.engine.Submit(ctx)
			return err
		})
	case tea.KeyBackspace:
		if r := []rune(draft); len(r) > 0 {
			draft = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		draft += " "
	case tea.KeyRunes:
		draft += string(msg.Runes)
	default:
		return nil
	}
	m.engine.SetDraft(draft)
	m.refresh()
	return nil
}

// run performs a network action off the UI loop.
func (m *Model) run(action string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionDoneMsg{action: action, err: fn(ctx)}
	}
}

func (m *Model) current() (models.Conversation, bool) {
	if m.cursor < 0 || m.cursor >= len(m.visible) {
		return models.Conversation{}, false
	}
	return m.visible[m.cursor], true
}

func (m *Model) View() string {
	width := m.width
	if width <= 0 {
		width = 100
	}
	height := m.height
	if height <= 0 {
		height = 30
	}

	if m.snap.AuthExpired {
		msg := m.theme.errText.Render("Your session has expired.") + "\n" +
			m.theme.muted.Render("Sign in again, then restart storechat. Press q to quit.")
		return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, msg)
	}

	header := m.renderHeader(width)
	footer := m.renderFooter()
	bodyHeight := height - lipgloss.Height(header) - lipgloss.Height(footer)
	if bodyHeight < 4 {
		bodyHeight = 4
	}

	listWidth := width / 3
	if listWidth < 24 {
		listWidth = 24
	}
	threadWidth := width - listWidth - 4
	if threadWidth < 20 {
		threadWidth = 20
	}

	listStyle, threadStyle := m.theme.active, m.theme.pane
	if m.focus == focusCompose {
		listStyle, threadStyle = m.theme.pane, m.theme.active
	}
	list := listStyle.Width(listWidth).Height(bodyHeight - 2).Render(m.renderList(listWidth, bodyHeight-2))
	thread := threadStyle.Width(threadWidth).Height(bodyHeight - 2).Render(m.renderThread(threadWidth, bodyHeight-2))
	body := lipgloss.JoinHorizontal(lipgloss.Top, list, thread)

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m *Model) renderHeader(width int) string {
	title := m.theme.header.Render("storechat")
	return title + "  " + m.badge.View(width-lipgloss.Width(title)-2)
}

func (m *Model) renderFooter() string {
	var lines []string
	if m.toast != "" {
		lines = append(lines, m.theme.errText.Render(m.toast))
	}
	var help string
	switch m.focus {
	case focusSearch:
		help = "type to filter · enter/esc done"
	case focusCompose:
		help = "enter send · esc back"
	default:
		help = "↑/↓ move · enter open · / search · i compose · dd delete · esc close · q quit"
	}
	lines = append(lines, m.theme.muted.Render(help))
	return strings.Join(lines, "\n")
}

func (m *Model) renderList(width, height int) string {
	var lines []string
	search := "/ " + m.query
	if m.focus == focusSearch {
		search = m.theme.accent.Render(search + "▏")
	} else if m.query == "" {
		search = m.theme.muted.Render("/ search")
	}
	lines = append(lines, search)

	if !m.snap.Loaded {
		lines = append(lines, m.theme.muted.Render("loading conversations…"))
		return strings.Join(lines, "\n")
	}
	if len(m.visible) == 0 {
		lines = append(lines, m.theme.muted.Render("no conversations"))
		return strings.Join(lines, "\n")
	}

	for i, conv := range m.visible {
		if len(lines)+2 > height {
			break
		}
		name := conv.Counterpart(m.snap.UserID)
		if conv.ProductName != "" {
			name += " · " + conv.ProductName
		}
		count := m.snap.Unread[conv.ID]
		badge := ""
		if count > 0 {
			badge = " " + m.theme.unread.Render(fmt.Sprintf("%d", count))
		}
		title := truncate(name, width-6)
		if i == m.cursor {
			title = m.theme.selected.Render(title)
		} else {
			title = m.names.style(name).Render(title)
		}
		if conv.ID == m.snap.Selected {
			title = "▸ " + title
		}
		lines = append(lines, title+badge)

		preview := ""
		if conv.LastMessage != nil {
			preview = conv.LastMessage.Content
			if conv.LastMessage.SenderID == m.snap.UserID {
				preview = "you: " + preview
			}
		}
		lines = append(lines, m.theme.muted.Render("  "+truncate(preview, width-4)))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderThread(width, height int) string {
	if m.snap.Selected == "" {
		return m.theme.muted.Render("select a conversation")
	}

	var lines []string
	for _, entry := range m.snap.Thread {
		msg := entry.Message
		stamp := msg.CreatedAt.Local().Format("15:04")
		line := truncate(msg.Content, width-10)
		switch {
		case entry.Pending():
			line = m.theme.pending.Render(stamp + " sending… " + line)
		case msg.SenderID == m.snap.UserID:
			line = m.theme.muted.Render(stamp) + " " + m.theme.own.Render(line)
		default:
			line = m.theme.muted.Render(stamp) + " " + line
		}
		lines = append(lines, line)
	}

	// Keep the tail visible: scroll-to-end.
	room := height - 2
	if room < 1 {
		room = 1
	}
	if len(lines) > room {
		lines = lines[len(lines)-room:]
	}

	compose := "> " + m.snap.Draft
	switch {
	case m.snap.SendPending:
		compose = m.theme.pending.Render(compose + "  (sending)")
	case m.focus == focusCompose:
		compose = m.theme.accent.Render(compose + "▏")
	default:
		compose = m.theme.muted.Render(compose)
	}
	return strings.Join(lines, "\n") + "\n\n" + compose
}
