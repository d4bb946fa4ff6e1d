package chatsync

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tOgg1/storechat/internal/auth"
	"github.com/tOgg1/storechat/internal/models"
)

// ThreadCache holds the deduplicated, ascending thread of the one open
// conversation, including pending local sends.
type ThreadCache struct {
	fetcher *threadFetcher

	mu             sync.RWMutex
	conversationID string
	generation     uint64
	entries        []models.ThreadEntry
}

// NewThreadCache creates an empty cache.
func NewThreadCache(svc Service, tokens auth.TokenProvider) *ThreadCache {
	return newThreadCache(newThreadFetcher(svc, tokens, 0))
}

func newThreadCache(fetcher *threadFetcher) *ThreadCache {
	return &ThreadCache{fetcher: fetcher}
}

// Load fetches the thread of conversationID, deduplicated by id (last write
// wins) and sorted ascending by CreatedAt. It does not change the cache.
func (c *ThreadCache) Load(ctx context.Context, conversationID string) ([]models.Message, error) {
	return c.fetcher.fetch(ctx, conversationID)
}

// Open makes conversationID the active thread, clearing whatever was cached
// for the previous one. It returns the new generation.
func (c *ThreadCache) Open(conversationID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conversationID = conversationID
	c.entries = nil
	c.generation++
	return c.generation
}

// Clear drops the active thread.
func (c *ThreadCache) Clear() {
	c.Open("")
}

// Active returns the open conversation and its generation.
func (c *ThreadCache) Active() (string, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conversationID, c.generation
}

// Apply replaces the confirmed entries with thread, keeping pending sends.
// A polled message that is the server copy of a pending send is held back
// until confirm swaps it in. It reports false, changing nothing, when
// conversationID is no longer open at generation.
func (c *ThreadCache) Apply(conversationID string, generation uint64, thread []models.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conversationID == "" || c.conversationID != conversationID || c.generation != generation {
		return false
	}

	known := make(map[string]struct{}, len(c.entries))
	var pending []models.ThreadEntry
	for _, entry := range c.entries {
		if entry.Pending() {
			pending = append(pending, entry)
			continue
		}
		known[entry.Message.ID] = struct{}{}
	}
	held := heldForPending(pending, thread, known)

	entries := make([]models.ThreadEntry, 0, len(thread)+len(pending))
	for _, msg := range thread {
		if _, ok := held[msg.ID]; ok {
			continue
		}
		entries = append(entries, models.ConfirmedEntry(msg))
	}
	entries = append(entries, pending...)
	models.SortEntries(entries)
	c.entries = entries
	return true
}

// MarkRead flips isRead on every confirmed message of the open thread and
// returns the newest CreatedAt covered.
func (c *ThreadCache) MarkRead(conversationID string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conversationID == "" || c.conversationID != conversationID {
		return time.Time{}, false
	}
	var through time.Time
	for i := range c.entries {
		if c.entries[i].Pending() {
			continue
		}
		c.entries[i].Message.IsRead = true
		if c.entries[i].Message.CreatedAt.After(through) {
			through = c.entries[i].Message.CreatedAt
		}
	}
	return through, true
}

// Entries returns a copy of the open thread.
func (c *ThreadCache) Entries() []models.ThreadEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.ThreadEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Messages returns the open thread as plain messages.
func (c *ThreadCache) Messages() []models.Message {
	return models.EntryMessages(c.Entries())
}

// appendPending adds entry at the tail of conversationID's thread.
func (c *ThreadCache) appendPending(conversationID string, entry models.ThreadEntry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conversationID == "" || c.conversationID != conversationID {
		return false
	}
	c.entries = append(c.entries, entry)
	if n := len(c.entries); n > 1 && entry.Message.CreatedAt.Before(c.entries[n-2].Message.CreatedAt) {
		models.SortEntries(c.entries)
	}
	return true
}

// confirm swaps the pending entry tempID for the server copy in the same
// slot. If a poll already delivered the server copy the pending entry is
// dropped instead, so the send never appears twice.
func (c *ThreadCache) confirm(conversationID, tempID string, msg models.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conversationID == "" || c.conversationID != conversationID {
		return false
	}
	pos := -1
	delivered := false
	for i, entry := range c.entries {
		switch {
		case entry.Pending() && entry.TempID == tempID:
			pos = i
		case !entry.Pending() && entry.Message.ID == msg.ID:
			delivered = true
		}
	}
	if pos < 0 {
		return false
	}
	if delivered {
		c.entries = append(c.entries[:pos], c.entries[pos+1:]...)
		return true
	}

	c.entries[pos] = models.ConfirmedEntry(msg)
	if !entriesSorted(c.entries) {
		models.SortEntries(c.entries)
	}
	return true
}

// rollback removes the pending entry tempID.
func (c *ThreadCache) rollback(conversationID, tempID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conversationID == "" || c.conversationID != conversationID {
		return false
	}
	for i, entry := range c.entries {
		if entry.Pending() && entry.TempID == tempID {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return true
		}
	}
	return false
}

// pendingSkew is how far the server clock may run behind the client when
// pairing a polled message with a pending send.
const pendingSkew = time.Minute

// heldForPending pairs each pending entry with at most one polled message the
// cache has not seen before: same sender, same trimmed content, created no
// earlier than the pending entry minus pendingSkew. It returns the ids of the
// paired messages.
func heldForPending(pending []models.ThreadEntry, thread []models.Message, known map[string]struct{}) map[string]struct{} {
	held := make(map[string]struct{}, len(pending))
	for _, entry := range pending {
		earliest := entry.Message.CreatedAt.Add(-pendingSkew)
		for _, msg := range thread {
			if _, ok := known[msg.ID]; ok {
				continue
			}
			if _, ok := held[msg.ID]; ok {
				continue
			}
			if msg.SenderID != entry.Message.SenderID || strings.TrimSpace(msg.Content) != entry.Message.Content {
				continue
			}
			if msg.CreatedAt.Before(earliest) {
				continue
			}
			held[msg.ID] = struct{}{}
			break
		}
	}
	return held
}

func entriesSorted(entries []models.ThreadEntry) bool {
	for i := 1; i < len(entries); i++ {
		if entries[i].Message.CreatedAt.Before(entries[i-1].Message.CreatedAt) {
			return false
		}
	}
	return true
}
