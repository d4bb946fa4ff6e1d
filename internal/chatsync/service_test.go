package chatsync

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/storechat/internal/auth"
	"github.com/tOgg1/storechat/internal/models"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(minute int) time.Time {
	return baseTime.Add(time.Duration(minute) * time.Minute)
}

const (
	me    = "user-me"
	other = "user-other"
)

var errBoom = errors.New("boom")

// fakeService is an in-memory messaging service recording every call.
type fakeService struct {
	mu            sync.Mutex
	conversations []models.Conversation
	threads       map[string][]models.Message
	listErr       error
	threadErrs    map[string]error
	deleteErr     error
	sendFn        func(conversationID, content string) (models.Message, error)
	listGate      chan struct{}
	calls         []string
}

func newFakeService() *fakeService {
	return &fakeService{
		threads:    make(map[string][]models.Message),
		threadErrs: make(map[string]error),
	}
}

func (f *fakeService) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeService) callCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.calls {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeService) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeService) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	// The response reflects the server at request time, even when gated.
	f.mu.Lock()
	snapshot := models.CloneConversations(f.conversations)
	gate := f.listGate
	f.mu.Unlock()
	f.record("list")
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return snapshot, nil
}

func (f *fakeService) ListMessages(_ context.Context, conversationID string) ([]models.Message, error) {
	f.record("messages:" + conversationID)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.threadErrs[conversationID]; err != nil {
		return nil, err
	}
	return cloneMessages(f.threads[conversationID]), nil
}

func (f *fakeService) SendMessage(_ context.Context, conversationID, content string) (models.Message, error) {
	f.record("send:" + conversationID)
	if f.sendFn != nil {
		return f.sendFn(conversationID, content)
	}
	return models.Message{}, errBoom
}

func (f *fakeService) DeleteConversation(_ context.Context, conversationID string) error {
	f.record("delete:" + conversationID)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for i, conv := range f.conversations {
		if conv.ID == conversationID {
			f.conversations = append(f.conversations[:i], f.conversations[i+1:]...)
			break
		}
	}
	delete(f.threads, conversationID)
	return nil
}

func (f *fakeService) setThread(conversationID string, msgs ...models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads[conversationID] = msgs
}

func conversation(id, seller, customer string) models.Conversation {
	return models.Conversation{
		ID:           id,
		CustomerID:   me,
		SellerID:     "seller-" + id,
		CustomerName: customer,
		SellerName:   seller,
	}
}

func message(id, conversationID, sender string, minute int, read bool) models.Message {
	return models.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       sender,
		Content:        "msg " + id,
		IsRead:         read,
		CreatedAt:      at(minute),
	}
}

func validToken() auth.TokenProvider {
	return auth.StaticTokenProvider("token")
}

func requireAscending(t *testing.T, msgs []models.Message) {
	t.Helper()
	for i := 1; i < len(msgs); i++ {
		require.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt), "message %d out of order", i)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{ThreadFetchTTL: -time.Second}.withDefaults()
	require.Equal(t, DefaultConfig().RosterInterval, cfg.RosterInterval)
	require.Equal(t, DefaultConfig().ThreadInterval, cfg.ThreadInterval)
	require.Equal(t, DefaultConfig().MaxConcurrentFetches, cfg.MaxConcurrentFetches)
	require.Zero(t, cfg.ThreadFetchTTL)
}

func TestNoTokenShortCircuits(t *testing.T) {
	svc := newFakeService()
	svc.conversations = []models.Conversation{conversation("c1", "Acme", "Me")}
	svc.setThread("c1", message("m1", "c1", other, 1, false))
	tokens := auth.StaticTokenProvider("")

	store := NewConversationStore(svc, tokens, 2)
	_, err := store.Load(context.Background())
	require.ErrorIs(t, err, auth.ErrNoToken)

	tracker := NewUnreadTracker(svc, tokens, 2)
	_, err = tracker.ComputeUnread(context.Background(), svc.conversations, me)
	require.ErrorIs(t, err, auth.ErrNoToken)

	thread := NewThreadCache(svc, tokens)
	thread.Open("c1")
	pipeline := NewSendPipeline(svc, tokens, thread)
	attempt, err := pipeline.Submit(context.Background(), "c1", "hello", me)
	require.ErrorIs(t, err, auth.ErrNoToken)
	require.Equal(t, SendRolledBack, attempt.State)
	require.Empty(t, thread.Entries())

	require.Zero(t, svc.totalCalls())
}
