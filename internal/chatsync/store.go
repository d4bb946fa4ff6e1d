package chatsync

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tOgg1/storechat/internal/auth"
	"github.com/tOgg1/storechat/internal/logging"
	"github.com/tOgg1/storechat/internal/models"
)

// ConversationStore holds the roster visible to the current user, each entry
// with the preview of its latest message attached.
type ConversationStore struct {
	svc     Service
	tokens  auth.TokenProvider
	fetcher *threadFetcher
	limit   int
	logger  zerolog.Logger

	mu            sync.RWMutex
	conversations []models.Conversation
	loaded        bool

	// loads numbers roster loads as they start; stored is the newest one
	// applied. tombstones maps a removed id to the last load number that may
	// still return it, or removalPending while the delete is in flight.
	loads      uint64
	stored     uint64
	tombstones map[string]uint64
}

const removalPending = ^uint64(0)

// NewConversationStore creates a store. limit bounds concurrent preview fetches.
func NewConversationStore(svc Service, tokens auth.TokenProvider, limit int) *ConversationStore {
	return newConversationStore(svc, tokens, newThreadFetcher(svc, tokens, 0), limit)
}

func newConversationStore(svc Service, tokens auth.TokenProvider, fetcher *threadFetcher, limit int) *ConversationStore {
	if limit <= 0 {
		limit = DefaultConfig().MaxConcurrentFetches
	}
	return &ConversationStore{
		svc:     svc,
		tokens:  tokens,
		fetcher: fetcher,
		limit:   limit,
		logger:  logging.Component("conversation-store"),

		tombstones: make(map[string]uint64),
	}
}

// Load fetches the roster and attaches a preview to each conversation. A
// failed preview fetch keeps the conversation without a preview. Service
// order is preserved. The result is stored only if ctx is still live.
func (s *ConversationStore) Load(ctx context.Context) ([]models.Conversation, error) {
	if err := requireToken(s.tokens); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.loads++
	load := s.loads
	s.mu.Unlock()

	raw, err := s.svc.ListConversations(ctx)
	if err != nil {
		return nil, err
	}

	conversations := make([]models.Conversation, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, conv := range raw {
		if strings.TrimSpace(conv.ID) == "" {
			s.logger.Warn().Str("seller", conv.SellerName).Msg("skipping conversation without id")
			continue
		}
		if err := conv.Validate(); err != nil {
			s.logger.Debug().Err(err).Str("conversation_id", conv.ID).Msg("conversation incomplete")
		}
		if s.removed(conv.ID, load) {
			continue
		}
		if _, dup := seen[conv.ID]; dup {
			continue
		}
		seen[conv.ID] = struct{}{}
		conv.LastMessage = nil
		conversations = append(conversations, conv)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)
	for i := range conversations {
		conv := &conversations[i]
		g.Go(func() error {
			thread, err := s.fetcher.fetch(gctx, conv.ID)
			if err != nil {
				if isFatal(err) {
					return err
				}
				logger := logging.WithConversation(s.logger, conv.ID)
				logger.Warn().Err(err).Msg("preview fetch failed")
				return nil
			}
			if latest, ok := models.LatestMessage(thread); ok {
				conv.LastMessage = latest.Preview()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if load < s.stored {
		current := models.CloneConversations(s.conversations)
		s.mu.Unlock()
		s.logger.Debug().Uint64("load", load).Msg("dropping roster of an older load")
		return current, nil
	}
	s.stored = load
	conversations = s.dropRemovedLocked(conversations, load)
	s.conversations = conversations
	s.loaded = true
	s.mu.Unlock()

	s.logger.Debug().Int("count", len(conversations)).Msg("roster loaded")
	return models.CloneConversations(conversations), nil
}

// Conversations returns the cached roster.
func (s *ConversationStore) Conversations() []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneConversations(s.conversations)
}

// Loaded reports whether a roster load has succeeded.
func (s *ConversationStore) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Get returns the cached conversation with id.
func (s *ConversationStore) Get(id string) (models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, conv := range s.conversations {
		if conv.ID == id {
			return conv.Clone(), true
		}
	}
	return models.Conversation{}, false
}

// ApplyFilter returns the cached conversations whose seller, customer or
// product name contains query, ignoring case. An empty query returns all.
func (s *ConversationStore) ApplyFilter(query string) []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		if conv.Matches(query) {
			out = append(out, conv.Clone())
		}
	}
	return out
}

// Remove drops the conversation locally and then asks the service to delete
// it. A failed delete is returned to the caller; the entry is not restored.
// Roster loads that started before the delete settled never bring it back;
// after a failed delete the next load shows the server's view again.
func (s *ConversationStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	for i, conv := range s.conversations {
		if conv.ID == id {
			s.conversations = append(s.conversations[:i:i], s.conversations[i+1:]...)
			break
		}
	}
	s.tombstones[id] = removalPending
	s.mu.Unlock()
	s.fetcher.invalidate(id)

	err := requireToken(s.tokens)
	if err == nil {
		err = s.svc.DeleteConversation(ctx, id)
	}

	s.mu.Lock()
	if err != nil {
		delete(s.tombstones, id)
	} else {
		s.tombstones[id] = s.loads
	}
	s.mu.Unlock()
	return err
}

// removed reports whether id was deleted after roster load number load began.
func (s *ConversationStore) removed(id string, load uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	last, ok := s.tombstones[id]
	return ok && load <= last
}

// dropRemovedLocked filters ids removed while load was running and forgets
// tombstones that load has outlived.
func (s *ConversationStore) dropRemovedLocked(conversations []models.Conversation, load uint64) []models.Conversation {
	if len(s.tombstones) == 0 {
		return conversations
	}
	kept := conversations[:0]
	for _, conv := range conversations {
		if last, ok := s.tombstones[conv.ID]; ok && load <= last {
			continue
		}
		kept = append(kept, conv)
	}
	for id, last := range s.tombstones {
		if last != removalPending && last < load {
			delete(s.tombstones, id)
		}
	}
	return kept
}
