package chatsync

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tOgg1/storechat/internal/auth"
	"github.com/tOgg1/storechat/internal/logging"
	"github.com/tOgg1/storechat/internal/models"
)

// UnreadTracker derives per-conversation unread counts from thread contents.
// Each ComputeUnread fetches every thread; the service has no count endpoint.
type UnreadTracker struct {
	tokens  auth.TokenProvider
	fetcher *threadFetcher
	limit   int
	logger  zerolog.Logger

	mu         sync.RWMutex
	counts     map[string]int
	watermarks map[string]time.Time
}

// NewUnreadTracker creates a tracker. limit bounds concurrent thread fetches.
func NewUnreadTracker(svc Service, tokens auth.TokenProvider, limit int) *UnreadTracker {
	return newUnreadTracker(tokens, newThreadFetcher(svc, tokens, 0), limit)
}

func newUnreadTracker(tokens auth.TokenProvider, fetcher *threadFetcher, limit int) *UnreadTracker {
	if limit <= 0 {
		limit = DefaultConfig().MaxConcurrentFetches
	}
	return &UnreadTracker{
		tokens:     tokens,
		fetcher:    fetcher,
		limit:      limit,
		logger:     logging.Component("unread-tracker"),
		counts:     make(map[string]int),
		watermarks: make(map[string]time.Time),
	}
}

// ComputeUnread fetches the thread of each conversation and counts messages
// from the other party that are unread. A conversation whose fetch fails
// keeps its previous count. Conversations not listed are dropped.
func (u *UnreadTracker) ComputeUnread(ctx context.Context, conversations []models.Conversation, userID string) (map[string]int, error) {
	if err := requireToken(u.tokens); err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		results = make(map[string]int, len(conversations))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.limit)
	for _, conv := range conversations {
		id := conv.ID
		g.Go(func() error {
			thread, err := u.fetcher.fetch(gctx, id)
			if err != nil {
				if isFatal(err) {
					return err
				}
				logger := logging.WithConversation(u.logger, id)
				logger.Warn().Err(err).Msg("unread fetch failed")
				if prev, ok := u.Count(id); ok {
					mu.Lock()
					results[id] = prev
					mu.Unlock()
				}
				return nil
			}
			count := CountUnread(thread, userID, u.watermark(id))
			mu.Lock()
			results[id] = count
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	u.mu.Lock()
	u.counts = results
	for id := range u.watermarks {
		if _, ok := results[id]; !ok {
			delete(u.watermarks, id)
		}
	}
	u.mu.Unlock()

	return copyCounts(results), nil
}

// CountUnread counts messages in thread sent by someone other than userID,
// not read, and newer than the local read watermark.
func CountUnread(thread []models.Message, userID string, watermark time.Time) int {
	count := 0
	for _, msg := range thread {
		if !msg.IsUnreadFor(userID) {
			continue
		}
		if !watermark.IsZero() && !msg.CreatedAt.After(watermark) {
			continue
		}
		count++
	}
	return count
}

// TotalUnread sums per-conversation counts.
func TotalUnread(counts map[string]int) int {
	total := 0
	for _, n := range counts {
		total += n
	}
	return total
}

// MarkRead zeroes the count of conversationID and remembers that everything
// up to through has been read, so later computations do not bring the count
// back while the server still reports those messages unread.
func (u *UnreadTracker) MarkRead(conversationID string, through time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.counts[conversationID] = 0
	if through.After(u.watermarks[conversationID]) {
		u.watermarks[conversationID] = through
	}
}

// Forget drops all state for a deleted conversation.
func (u *UnreadTracker) Forget(conversationID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.counts, conversationID)
	delete(u.watermarks, conversationID)
}

// Count returns the last known count of conversationID.
func (u *UnreadTracker) Count(conversationID string) (int, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	n, ok := u.counts[conversationID]
	return n, ok
}

// Counts returns a copy of the last known counts.
func (u *UnreadTracker) Counts() map[string]int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return copyCounts(u.counts)
}

// Total returns the sum of the last known counts.
func (u *UnreadTracker) Total() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return TotalUnread(u.counts)
}

func (u *UnreadTracker) watermark(conversationID string) time.Time {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.watermarks[conversationID]
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
