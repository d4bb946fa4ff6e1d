package tui

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/storechat/internal/auth"
	"github.com/tOgg1/storechat/internal/chatsync"
	"github.com/tOgg1/storechat/internal/events"
	"github.com/tOgg1/storechat/internal/models"
)

type fakeEngine struct {
	*events.InMemoryPublisher

	mu       sync.Mutex
	snap     chatsync.Snapshot
	selected []string
	deleted  []string
	submits  int
	submitFn func() error
}

func newFakeEngine() *fakeEngine {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &fakeEngine{
		InMemoryPublisher: events.NewInMemoryPublisher(),
		snap: chatsync.Snapshot{
			UserID: "me",
			Loaded: true,
			Conversations: []models.Conversation{
				{ID: "c1", CustomerID: "me", SellerID: "s1", SellerName: "Acme Tools", CustomerName: "Me",
					LastMessage: &models.MessagePreview{Content: "still in stock?", SenderID: "s1", CreatedAt: now}},
				{ID: "c2", CustomerID: "me", SellerID: "s2", SellerName: "Blue Shop", CustomerName: "Me",
					LastMessage: &models.MessagePreview{Content: "thanks", SenderID: "me", CreatedAt: now.Add(time.Minute)}},
			},
			Unread:      map[string]int{"c1": 3, "c2": 0},
			TotalUnread: 3,
		},
	}
}

func (f *fakeEngine) Start(context.Context) (*chatsync.Handle, error) {
	return nil, nil
}

func (f *fakeEngine) Stop(*chatsync.Handle) error {
	return nil
}

func (f *fakeEngine) Snapshot() chatsync.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeEngine) Search(query string) []models.Conversation {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Conversation
	for _, conv := range f.snap.Conversations {
		if conv.Matches(query) {
			out = append(out, conv)
		}
	}
	return out
}

func (f *fakeEngine) Select(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = append(f.selected, id)
	f.snap.Selected = id
	return nil
}

func (f *fakeEngine) Deselect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.Selected = ""
}

func (f *fakeEngine) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeEngine) SetDraft(draft string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.Draft = draft
}

func (f *fakeEngine) Submit(context.Context) (*chatsync.Attempt, error) {
	f.mu.Lock()
	f.submits++
	fn := f.submitFn
	f.mu.Unlock()
	if fn != nil {
		return nil, fn()
	}
	return nil, nil
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func openModel(t *testing.T, engine *fakeEngine) *Model {
	t.Helper()
	m := NewModel(engine)
	require.NoError(t, m.Open())
	t.Cleanup(m.Close)
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return m
}

func runCmd(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	require.NotNil(t, cmd)
	m.Update(cmd())
}

func TestModelRendersRosterAndBadge(t *testing.T) {
	engine := newFakeEngine()
	m := openModel(t, engine)

	view := m.View()
	require.Contains(t, view, "Acme Tools")
	require.Contains(t, view, "Blue Shop")
	require.Contains(t, view, "3 unread")
	require.Contains(t, view, "you: thanks")
	require.Equal(t, 2, engine.SubscriberCount())
}

func TestModelSearchFilters(t *testing.T) {
	m := openModel(t, newFakeEngine())

	m.Update(keyRunes("/"))
	m.Update(keyRunes("blue"))
	require.Len(t, m.visible, 1)
	require.Equal(t, "c2", m.visible[0].ID)

	for range "blue" {
		m.Update(tea.KeyMsg{Type: tea.KeyBackspace})
	}
	require.Len(t, m.visible, 2)
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.Equal(t, focusList, m.focus)
}

func TestModelEnterSelectsConversation(t *testing.T) {
	engine := newFakeEngine()
	m := openModel(t, engine)

	m.Update(keyRunes("j"))
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	runCmd(t, m, cmd)
	require.Equal(t, []string{"c2"}, engine.selected)
	require.Equal(t, "c2", m.snap.Selected)
}

func TestModelComposeAndSend(t *testing.T) {
	engine := newFakeEngine()
	m := openModel(t, engine)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	runCmd(t, m, cmd)

	m.Update(keyRunes("i"))
	require.Equal(t, focusCompose, m.focus)
	m.Update(keyRunes("hi"))
	m.Update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	m.Update(keyRunes("there"))
	require.Equal(t, "hi there", engine.Snapshot().Draft)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	runCmd(t, m, cmd)
	require.Equal(t, 1, engine.submits)
}

func TestModelSendDisabledWhilePending(t *testing.T) {
	engine := newFakeEngine()
	engine.snap.Selected = "c1"
	engine.snap.SendPending = true
	m := openModel(t, engine)
	m.focus = focusCompose

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
	require.Zero(t, engine.submits)
	require.Contains(t, m.View(), "(sending)")
}

func TestModelSendFailureShowsToast(t *testing.T) {
	engine := newFakeEngine()
	m := openModel(t, engine)

	m.Update(inboxEventMsg{event: &events.Event{Type: events.SendFailed, ConversationID: "c1", Content: "hello"}})
	require.Contains(t, m.View(), "message not sent")
}

func TestModelDeleteNeedsConfirmation(t *testing.T) {
	engine := newFakeEngine()
	m := openModel(t, engine)

	_, cmd := m.Update(keyRunes("d"))
	require.Nil(t, cmd)
	_, cmd = m.Update(keyRunes("d"))
	runCmd(t, m, cmd)
	require.Equal(t, []string{"c1"}, engine.deleted)
}

func TestModelAuthExpiredScreen(t *testing.T) {
	engine := newFakeEngine()
	m := openModel(t, engine)

	engine.mu.Lock()
	engine.snap.AuthExpired = true
	engine.mu.Unlock()
	m.Update(inboxEventMsg{event: &events.Event{Type: events.AuthExpired, Err: auth.ErrUnauthorized}})

	view := m.View()
	require.Contains(t, view, "session has expired")
	require.NotContains(t, view, "Acme Tools")

	_, cmd := m.Update(keyRunes("q"))
	require.NotNil(t, cmd)
}

func TestBadgeTracksLatestFromOtherParty(t *testing.T) {
	engine := newFakeEngine()
	badge := NewBadge(engine)
	require.NoError(t, badge.Open())
	defer badge.Close()

	require.Equal(t, 3, badge.Total())
	view := badge.View(80)
	require.Contains(t, view, "Acme Tools")
	require.Contains(t, view, "still in stock?")
	require.False(t, strings.Contains(view, "thanks"), "own messages are not notifications")

	engine.mu.Lock()
	engine.snap.TotalUnread = 0
	engine.mu.Unlock()
	engine.Publish(context.Background(), &events.Event{Type: events.UnreadUpdated})

	cmd := badge.Listen()
	require.NotNil(t, badge.Update(cmd()))
	require.Equal(t, 0, badge.Total())
	require.Contains(t, badge.View(80), "no unread")
}

func TestBadgeFitsWideText(t *testing.T) {
	engine := newFakeEngine()
	engine.snap.Conversations[0].SellerName = "東京ショップ"
	engine.snap.Conversations[0].LastMessage.Content = "在庫はまだありますか？明日発送できますか？"
	badge := NewBadge(engine)
	require.NoError(t, badge.Open())
	defer badge.Close()

	view := badge.View(40)
	require.Contains(t, view, "東京ショップ")
	require.LessOrEqual(t, lipgloss.Width(view), 40)
}
