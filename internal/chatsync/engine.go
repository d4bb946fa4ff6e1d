package chatsync

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tOgg1/storechat/internal/auth"
	"github.com/tOgg1/storechat/internal/events"
	"github.com/tOgg1/storechat/internal/logging"
	"github.com/tOgg1/storechat/internal/models"
)

// Options configures an Engine.
type Options struct {
	Service Service
	Tokens  auth.TokenProvider

	// UserID is the current user. When empty it is read from the token's
	// subject claim on first use.
	UserID string

	Config Config

	// Publisher receives every state change. Defaults to an in-memory one.
	Publisher events.Publisher

	// Driver refreshes the engine. Defaults to a Poller built from Config.
	Driver Driver
}

// Engine is the one synchronization module shared by every UI surface. It
// owns the caches and the selection, and announces each change on its
// publisher so all subscribers render the same state.
type Engine struct {
	tokens    auth.TokenProvider
	store     *ConversationStore
	thread    *ThreadCache
	sender    *SendPipeline
	unread    *UnreadTracker
	composer  *Composer
	guard     *inflightGuard
	publisher events.Publisher
	driver    Driver
	logger    zerolog.Logger

	mu           sync.Mutex
	userID       string
	handle       *Handle
	rosterFailed bool
	authExpired  bool
}

// Snapshot is a consistent read of engine state for rendering.
type Snapshot struct {
	UserID        string
	Conversations []models.Conversation
	Loaded        bool
	Selected      string
	Thread        []models.ThreadEntry
	Unread        map[string]int
	TotalUnread   int
	Draft         string
	SendPending   bool
	AuthExpired   bool
}

// NewEngine wires the caches around one shared thread fetcher.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Service == nil {
		return nil, errors.New("chatsync: service is required")
	}
	cfg := opts.Config.withDefaults()

	fetcher := newThreadFetcher(opts.Service, opts.Tokens, cfg.ThreadFetchTTL)
	thread := newThreadCache(fetcher)

	publisher := opts.Publisher
	if publisher == nil {
		publisher = events.NewInMemoryPublisher()
	}
	driver := opts.Driver
	if driver == nil {
		driver = NewPoller(cfg)
	}

	return &Engine{
		tokens:    opts.Tokens,
		store:     newConversationStore(opts.Service, opts.Tokens, fetcher, cfg.MaxConcurrentFetches),
		thread:    thread,
		sender:    newSendPipeline(opts.Service, opts.Tokens, thread, fetcher),
		unread:    newUnreadTracker(opts.Tokens, fetcher, cfg.MaxConcurrentFetches),
		composer:  &Composer{},
		guard:     newInflightGuard(),
		publisher: publisher,
		driver:    driver,
		logger:    logging.Component("chatsync"),
		userID:    strings.TrimSpace(opts.UserID),
	}, nil
}

// Publisher returns the engine's event publisher.
func (e *Engine) Publisher() events.Publisher {
	return e.publisher
}

// Subscribe registers a surface for engine events.
func (e *Engine) Subscribe(id string, filter events.Filter, handler events.Handler) error {
	return e.publisher.Subscribe(id, filter, handler)
}

// Unsubscribe removes a surface.
func (e *Engine) Unsubscribe(id string) error {
	return e.publisher.Unsubscribe(id)
}

// Start begins background refresh. Starting a running engine returns the
// live handle.
func (e *Engine) Start(ctx context.Context) (*Handle, error) {
	e.mu.Lock()
	if e.handle != nil && e.handle.Running() {
		h := e.handle
		e.mu.Unlock()
		return h, nil
	}
	e.authExpired = false
	e.mu.Unlock()

	h, err := e.driver.Start(ctx, e)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.handle = h
	e.mu.Unlock()
	return h, nil
}

// Stop ends the refresh owned by h. In-flight results are discarded.
func (e *Engine) Stop(h *Handle) error {
	if h == nil {
		return nil
	}
	err := e.driver.Stop(h)

	e.mu.Lock()
	if e.handle == h {
		e.handle = nil
	}
	e.mu.Unlock()
	return err
}

// UserID returns the current user, deriving it from the token if needed.
func (e *Engine) UserID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.userID != "" {
		return e.userID
	}
	if e.tokens == nil {
		return ""
	}
	token, ok := e.tokens.Token()
	if !ok {
		return ""
	}
	sub, err := auth.SubjectFromToken(token)
	if err != nil {
		e.logger.Debug().Err(err).Msg("token carries no user id")
		return ""
	}
	e.userID = sub
	return sub
}

// ActiveConversation returns the selected conversation, if any.
func (e *Engine) ActiveConversation() string {
	id, _ := e.thread.Active()
	return id
}

// RefreshRoster reloads the conversation list and unread counts. It is a
// no-op while a previous roster refresh is still running.
func (e *Engine) RefreshRoster(ctx context.Context) error {
	key := inflightKey{purpose: purposeRoster}
	if !e.guard.tryAcquire(key) {
		e.logger.Debug().Msg("roster refresh in flight, skipping")
		return nil
	}
	defer e.guard.release(key)

	conversations, err := e.store.Load(ctx)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, auth.ErrNoToken) && e.firstRosterFailure() {
			e.publish(&events.Event{Type: events.RosterLoadFailed, Err: err})
		}
		return err
	}
	e.publish(&events.Event{Type: events.RosterUpdated})

	userID := e.UserID()
	if userID == "" {
		e.logger.Debug().Msg("current user unknown, skipping unread counts")
		return nil
	}
	if _, err := e.unread.ComputeUnread(ctx, conversations, userID); err != nil {
		return err
	}
	if active, _ := e.thread.Active(); active != "" {
		if through, ok := e.thread.MarkRead(active); ok {
			e.unread.MarkRead(active, through)
		}
	}
	e.publish(&events.Event{Type: events.UnreadUpdated})
	return nil
}

func (e *Engine) firstRosterFailure() bool {
	if e.store.Loaded() {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rosterFailed {
		return false
	}
	e.rosterFailed = true
	return true
}

// RefreshThread reloads the thread of conversationID if it is still the
// selection. Results arriving after the selection changed are dropped.
func (e *Engine) RefreshThread(ctx context.Context, conversationID string) error {
	active, generation := e.thread.Active()
	if conversationID == "" || conversationID != active {
		return nil
	}

	key := inflightKey{conversationID: conversationID, purpose: purposeThread}
	if !e.guard.tryAcquire(key) {
		logger := logging.WithConversation(e.logger, conversationID)
		logger.Debug().Msg("thread refresh in flight, skipping")
		return nil
	}
	defer e.guard.release(key)

	thread, err := e.thread.Load(ctx, conversationID)
	if err != nil {
		return err
	}
	if ctx.Err() != nil || !e.thread.Apply(conversationID, generation, thread) {
		logger := logging.WithConversation(e.logger, conversationID)
		logger.Debug().Msg("dropping stale thread result")
		return nil
	}
	e.publish(&events.Event{Type: events.ThreadUpdated, ConversationID: conversationID})

	if through, ok := e.thread.MarkRead(conversationID); ok {
		e.unread.MarkRead(conversationID, through)
		e.publish(&events.Event{Type: events.UnreadUpdated, ConversationID: conversationID})
	}
	return nil
}

// AuthExpired stops refresh, drops the rejected token and tells subscribers
// to show a login surface. Only the first call per session publishes.
func (e *Engine) AuthExpired(err error) {
	e.mu.Lock()
	already := e.authExpired
	e.authExpired = true
	h := e.handle
	e.mu.Unlock()

	if h != nil {
		h.cancel()
	}
	if already {
		return
	}
	auth.Invalidate(e.tokens)
	e.logger.Warn().Err(err).Msg("session expired")
	e.publish(&events.Event{Type: events.AuthExpired, Err: err})
}

// Select opens conversationID, clearing the previous thread, and loads it.
// A successful load marks the thread read.
func (e *Engine) Select(ctx context.Context, conversationID string) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		e.Deselect()
		return nil
	}

	previous, _ := e.thread.Active()
	if previous != conversationID {
		e.thread.Open(conversationID)
		if previous != "" {
			e.publish(&events.Event{Type: events.ThreadCleared, ConversationID: previous})
		}
		e.publish(&events.Event{Type: events.SelectionChanged, ConversationID: conversationID})
	}

	err := e.RefreshThread(ctx, conversationID)
	if err != nil {
		e.handleUserError(err)
		e.publish(&events.Event{Type: events.ThreadLoadFailed, ConversationID: conversationID, Err: err})
		return err
	}
	e.publish(&events.Event{Type: events.ScrollToEnd, ConversationID: conversationID})
	return nil
}

// Deselect closes the open thread.
func (e *Engine) Deselect() {
	previous, _ := e.thread.Active()
	if previous == "" {
		return
	}
	e.thread.Clear()
	e.publish(&events.Event{Type: events.ThreadCleared, ConversationID: previous})
	e.publish(&events.Event{Type: events.SelectionChanged})
}

// Delete removes conversationID optimistically. If it was selected the
// thread and selection are cleared. A failed delete is published and
// returned; the conversation is not restored.
func (e *Engine) Delete(ctx context.Context, conversationID string) error {
	if active, _ := e.thread.Active(); active != "" && active == conversationID {
		e.Deselect()
	}

	err := e.store.Remove(ctx, conversationID)
	e.unread.Forget(conversationID)
	e.publish(&events.Event{Type: events.ConversationDeleted, ConversationID: conversationID})
	e.publish(&events.Event{Type: events.RosterUpdated})
	e.publish(&events.Event{Type: events.UnreadUpdated})

	if err != nil {
		e.handleUserError(err)
		e.publish(&events.Event{Type: events.DeleteFailed, ConversationID: conversationID, Err: err})
		return err
	}
	return nil
}

// Search returns cached conversations matching query.
func (e *Engine) Search(query string) []models.Conversation {
	return e.store.ApplyFilter(query)
}

// Conversations returns the cached roster.
func (e *Engine) Conversations() []models.Conversation {
	return e.store.Conversations()
}

// Conversation returns one cached conversation.
func (e *Engine) Conversation(id string) (models.Conversation, bool) {
	return e.store.Get(id)
}

// Thread returns the open thread.
func (e *Engine) Thread() []models.ThreadEntry {
	return e.thread.Entries()
}

// UnreadCounts returns the per-conversation unread counts.
func (e *Engine) UnreadCounts() map[string]int {
	return e.unread.Counts()
}

// TotalUnread returns the badge count.
func (e *Engine) TotalUnread() int {
	return e.unread.Total()
}

// SetDraft replaces the compose input.
func (e *Engine) SetDraft(draft string) {
	e.composer.SetDraft(draft)
}

// Draft returns the compose input.
func (e *Engine) Draft() string {
	return e.composer.Draft()
}

// SendPending reports whether the send button should be disabled.
func (e *Engine) SendPending() bool {
	return e.composer.Pending()
}

// Submit sends the compose input to the selected conversation. It is a no-op
// returning (nil, nil) while a send is pending, or when the input is blank,
// nothing is selected, or the user is unknown. On failure the input is
// restored and SendFailed is published.
func (e *Engine) Submit(ctx context.Context) (*Attempt, error) {
	draft, ok := e.composer.take()
	if !ok {
		return nil, nil
	}

	conversationID := e.ActiveConversation()
	attempt := e.sender.Begin(conversationID, draft, e.UserID())
	if attempt == nil {
		e.composer.finish("")
		return nil, nil
	}
	e.composer.clear()
	e.publish(&events.Event{Type: events.SendPending, ConversationID: conversationID, Content: attempt.Content})
	e.publish(&events.Event{Type: events.ThreadUpdated, ConversationID: conversationID})
	e.publish(&events.Event{Type: events.ScrollToEnd, ConversationID: conversationID})

	err := e.sender.Complete(ctx, attempt)
	if err != nil {
		e.composer.finish(attempt.Content)
		e.handleUserError(err)
		e.publish(&events.Event{Type: events.ThreadUpdated, ConversationID: conversationID})
		e.publish(&events.Event{Type: events.SendFailed, ConversationID: conversationID, Content: attempt.Content, Err: err})
		return attempt, err
	}

	e.composer.finish("")
	e.publish(&events.Event{Type: events.ThreadUpdated, ConversationID: conversationID})
	e.publish(&events.Event{Type: events.SendConfirmed, ConversationID: conversationID, Content: attempt.Content})
	e.publish(&events.Event{Type: events.ScrollToEnd, ConversationID: conversationID})
	return attempt, nil
}

// Snapshot returns the current state for rendering.
func (e *Engine) Snapshot() Snapshot {
	selected, _ := e.thread.Active()
	counts := e.unread.Counts()

	e.mu.Lock()
	expired := e.authExpired
	e.mu.Unlock()

	return Snapshot{
		UserID:        e.UserID(),
		Conversations: e.store.Conversations(),
		Loaded:        e.store.Loaded(),
		Selected:      selected,
		Thread:        e.thread.Entries(),
		Unread:        counts,
		TotalUnread:   TotalUnread(counts),
		Draft:         e.composer.Draft(),
		SendPending:   e.composer.Pending(),
		AuthExpired:   expired,
	}
}

// handleUserError escalates an auth failure from a user action.
func (e *Engine) handleUserError(err error) {
	if auth.IsUnauthorized(err) {
		e.AuthExpired(err)
	}
}

func (e *Engine) publish(event *events.Event) {
	e.publisher.Publish(context.Background(), event)
}
