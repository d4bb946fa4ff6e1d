package chatsync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tOgg1/storechat/internal/auth"
	"github.com/tOgg1/storechat/internal/logging"
	"github.com/tOgg1/storechat/internal/models"
)

// SendState is the state of one send attempt.
type SendState int

const (
	SendComposing SendState = iota
	SendPending
	SendConfirmed
	SendRolledBack
)

func (s SendState) String() string {
	switch s {
	case SendPending:
		return "pending"
	case SendConfirmed:
		return "confirmed"
	case SendRolledBack:
		return "rolled_back"
	default:
		return "composing"
	}
}

// Attempt tracks one submission from Pending to Confirmed or RolledBack.
type Attempt struct {
	TempID         string
	ConversationID string
	SenderID       string

	// Content is the input as typed, restored to the composer on rollback.
	Content   string
	CreatedAt time.Time

	State   SendState
	Message models.Message
	Err     error
}

// SendPipeline appends locally composed messages to the open thread right
// away and reconciles them with the server response.
type SendPipeline struct {
	svc     Service
	tokens  auth.TokenProvider
	thread  *ThreadCache
	fetcher *threadFetcher
	logger  zerolog.Logger

	newID func() string
	now   func() time.Time
}

// NewSendPipeline creates a pipeline writing into thread.
func NewSendPipeline(svc Service, tokens auth.TokenProvider, thread *ThreadCache) *SendPipeline {
	return newSendPipeline(svc, tokens, thread, thread.fetcher)
}

func newSendPipeline(svc Service, tokens auth.TokenProvider, thread *ThreadCache, fetcher *threadFetcher) *SendPipeline {
	return &SendPipeline{
		svc:     svc,
		tokens:  tokens,
		thread:  thread,
		fetcher: fetcher,
		logger:  logging.Component("send-pipeline"),
		newID:   func() string { return uuid.NewString() },
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Submit runs one send to completion. It returns (nil, nil) without touching
// anything when content is blank or the conversation or sender is unknown.
// On failure the attempt is rolled back and its error returned.
func (p *SendPipeline) Submit(ctx context.Context, conversationID, content, senderID string) (*Attempt, error) {
	attempt := p.Begin(conversationID, content, senderID)
	if attempt == nil {
		return nil, nil
	}
	return attempt, p.Complete(ctx, attempt)
}

// Begin validates the input and appends a pending entry to the thread.
func (p *SendPipeline) Begin(conversationID, content, senderID string) *Attempt {
	conversationID = strings.TrimSpace(conversationID)
	senderID = strings.TrimSpace(senderID)
	if strings.TrimSpace(content) == "" || conversationID == "" || senderID == "" {
		return nil
	}

	attempt := &Attempt{
		TempID:         p.newID(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      p.now(),
		State:          SendPending,
	}
	entry := models.PendingEntry(attempt.TempID, models.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        strings.TrimSpace(content),
		IsRead:         true,
		CreatedAt:      attempt.CreatedAt,
	})
	if !p.thread.appendPending(conversationID, entry) {
		p.logger.Debug().Str("conversation_id", conversationID).Msg("thread not open, sending without optimistic entry")
	}
	return attempt
}

// Complete issues the network send for a pending attempt and confirms or
// rolls it back. A missing token rolls back without a request.
func (p *SendPipeline) Complete(ctx context.Context, attempt *Attempt) error {
	if attempt == nil || attempt.State != SendPending {
		return nil
	}
	if err := requireToken(p.tokens); err != nil {
		p.Rollback(attempt, err)
		return err
	}

	msg, err := p.svc.SendMessage(ctx, attempt.ConversationID, strings.TrimSpace(attempt.Content))
	if err != nil {
		err = fmt.Errorf("send message: %w", err)
		p.Rollback(attempt, err)
		return err
	}
	p.Confirm(attempt, msg)
	return nil
}

// Confirm replaces the pending entry with the server copy.
func (p *SendPipeline) Confirm(attempt *Attempt, msg models.Message) {
	if attempt == nil || attempt.State != SendPending {
		return
	}
	if msg.ConversationID == "" {
		msg.ConversationID = attempt.ConversationID
	}
	attempt.State = SendConfirmed
	attempt.Message = msg
	p.thread.confirm(attempt.ConversationID, attempt.TempID, msg)
	p.fetcher.invalidate(attempt.ConversationID)

	logger := logging.WithConversation(p.logger, attempt.ConversationID)
	logger.Debug().
		Str("temp_id", attempt.TempID).
		Str("message_id", msg.ID).
		Msg("send confirmed")
}

// Rollback removes the pending entry. The caller restores attempt.Content to
// the input.
func (p *SendPipeline) Rollback(attempt *Attempt, err error) {
	if attempt == nil || attempt.State != SendPending {
		return
	}
	attempt.State = SendRolledBack
	attempt.Err = err
	p.thread.rollback(attempt.ConversationID, attempt.TempID)

	logger := logging.WithConversation(p.logger, attempt.ConversationID)
	logger.Warn().
		Err(err).
		Str("temp_id", attempt.TempID).
		Msg("send rolled back")
}

// Composer is the compose input of one surface. Send is disabled while an
// attempt is pending.
type Composer struct {
	mu      sync.Mutex
	draft   string
	pending bool
}

// SetDraft replaces the input.
func (c *Composer) SetDraft(draft string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = draft
}

// Draft returns the input.
func (c *Composer) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Pending reports whether a send is in flight.
func (c *Composer) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// take claims the draft for sending. It fails while a send is pending.
func (c *Composer) take() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending {
		return "", false
	}
	c.pending = true
	return c.draft, true
}

// clear empties the input once the attempt is pending.
func (c *Composer) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = ""
}

// finish releases the pending flag, restoring content when non-empty.
func (c *Composer) finish(restore string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = false
	if restore != "" {
		c.draft = restore
	}
}
