package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tOgg1/storechat/internal/chatsync"
	"github.com/tOgg1/storechat/internal/events"
	"github.com/tOgg1/storechat/internal/models"
)

type badgeEventMsg struct {
	event *events.Event
}

// Badge is the floating notification widget: total unread plus the newest
// message from the other party. It has its own subscription to the engine.
type Badge struct {
	engine Engine
	sub    *subscription
	theme  theme
	names  *nameColors

	total   int
	latest  *models.MessagePreview
	from    string
	expired bool
}

// NewBadge creates a badge. Call Open before running it.
func NewBadge(engine Engine) *Badge {
	return &Badge{engine: engine, theme: defaultTheme(), names: newNameColors()}
}

// Open subscribes the badge to unread and roster changes.
func (b *Badge) Open() error {
	sub, err := subscribe(b.engine, "badge", events.Filter{Types: []events.Type{
		events.UnreadUpdated,
		events.RosterUpdated,
		events.AuthExpired,
	}})
	if err != nil {
		return err
	}
	b.sub = sub
	b.refresh(b.engine.Snapshot())
	return nil
}

// Close unsubscribes the badge.
func (b *Badge) Close() {
	b.sub.close()
}

// Listen waits for the next badge event.
func (b *Badge) Listen() tea.Cmd {
	if b.sub == nil {
		return nil
	}
	ch := b.sub.ch
	return func() tea.Msg {
		return badgeEventMsg{event: <-ch}
	}
}

// Update refreshes on badge events and keeps listening.
func (b *Badge) Update(msg tea.Msg) tea.Cmd {
	if _, ok := msg.(badgeEventMsg); !ok {
		return nil
	}
	b.refresh(b.engine.Snapshot())
	return b.Listen()
}

func (b *Badge) refresh(snap chatsync.Snapshot) {
	b.total = snap.TotalUnread
	b.expired = snap.AuthExpired
	b.latest = nil
	b.from = ""
	for _, conv := range snap.Conversations {
		preview := conv.LastMessage
		if preview == nil || preview.SenderID == snap.UserID {
			continue
		}
		if b.latest == nil || preview.CreatedAt.After(b.latest.CreatedAt) {
			p := *preview
			b.latest = &p
			b.from = conv.Counterpart(snap.UserID)
		}
	}
}

// Total returns the rendered unread total.
func (b *Badge) Total() int {
	return b.total
}

// View renders the badge in at most width cells.
func (b *Badge) View(width int) string {
	if b.expired {
		return b.theme.errText.Render("signed out")
	}
	if b.total == 0 {
		return b.theme.muted.Render("no unread")
	}
	out := b.theme.badge.Render(fmt.Sprintf("%d unread", b.total))
	if b.latest == nil {
		return out
	}
	from := " " + b.names.style(b.from).Render(b.from) + ": "
	room := width - lipgloss.Width(out) - lipgloss.Width(from)
	if room <= 0 {
		return out
	}
	return out + from + truncate(b.latest.Content, room)
}
