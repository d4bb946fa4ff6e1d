// Package chatsync keeps a local view of conversations, the open thread and
// unread counts in step with the messaging REST service.
package chatsync

import (
	"context"
	"errors"
	"time"

	"github.com/tOgg1/storechat/internal/auth"
	"github.com/tOgg1/storechat/internal/models"
)

// ErrNoSelection is returned by operations that need an open conversation.
var ErrNoSelection = errors.New("no conversation selected")

// Service is the messaging backend. *chatapi.Client implements it.
type Service interface {
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	SendMessage(ctx context.Context, conversationID, content string) (models.Message, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}

// Config controls polling cadence and fetch fan-out.
type Config struct {
	// RosterInterval is how often the conversation list and unread counts refresh.
	// Default: 5s
	RosterInterval time.Duration

	// ThreadInterval is how often the selected thread refreshes.
	// Default: 3s
	ThreadInterval time.Duration

	// MaxConcurrentFetches bounds the per-tick thread fetches.
	// Default: 4
	MaxConcurrentFetches int

	// ThreadFetchTTL reuses a thread fetch for this long. Zero disables reuse.
	// Default: 1s
	ThreadFetchTTL time.Duration
}

// DefaultConfig returns the polling defaults.
func DefaultConfig() Config {
	return Config{
		RosterInterval:       5 * time.Second,
		ThreadInterval:       3 * time.Second,
		MaxConcurrentFetches: 4,
		ThreadFetchTTL:       time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.RosterInterval <= 0 {
		c.RosterInterval = def.RosterInterval
	}
	if c.ThreadInterval <= 0 {
		c.ThreadInterval = def.ThreadInterval
	}
	if c.MaxConcurrentFetches <= 0 {
		c.MaxConcurrentFetches = def.MaxConcurrentFetches
	}
	if c.ThreadFetchTTL < 0 {
		c.ThreadFetchTTL = 0
	}
	return c
}

// requireToken short-circuits sync work when no token is available.
func requireToken(tokens auth.TokenProvider) error {
	if tokens == nil {
		return nil
	}
	if _, ok := tokens.Token(); !ok {
		return auth.ErrNoToken
	}
	return nil
}

// isFatal reports errors that abort a whole batch instead of one item.
func isFatal(err error) bool {
	return auth.IsUnauthorized(err) ||
		errors.Is(err, auth.ErrNoToken) ||
		errors.Is(err, context.Canceled)
}
