package chatsync

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tOgg1/storechat/internal/auth"
	"github.com/tOgg1/storechat/internal/models"
)

type timedEntry[T any] struct {
	value   T
	expires time.Time
	ok      bool
}

// threadFetcher is the only path to ListMessages. Concurrent fetches of one
// thread share a request, and a result is reused for ttl so a roster tick
// fetches each thread once for both its preview and its unread count.
type threadFetcher struct {
	svc    Service
	tokens auth.TokenProvider
	ttl    time.Duration
	now    func() time.Time

	group singleflight.Group

	mu       sync.Mutex
	threads  map[string]timedEntry[[]models.Message]
	versions map[string]uint64
}

func newThreadFetcher(svc Service, tokens auth.TokenProvider, ttl time.Duration) *threadFetcher {
	return &threadFetcher{
		svc:      svc,
		tokens:   tokens,
		ttl:      ttl,
		now:      time.Now,
		threads:  make(map[string]timedEntry[[]models.Message]),
		versions: make(map[string]uint64),
	}
}

// fetch returns the normalized thread of conversationID.
func (f *threadFetcher) fetch(ctx context.Context, conversationID string) ([]models.Message, error) {
	if err := requireToken(f.tokens); err != nil {
		return nil, err
	}
	if thread, ok := f.cached(conversationID); ok {
		return thread, nil
	}

	version := f.version(conversationID)
	v, err, _ := f.group.Do(conversationID, func() (interface{}, error) {
		raw, err := f.svc.ListMessages(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		for i := range raw {
			if raw[i].ConversationID == "" {
				raw[i].ConversationID = conversationID
			}
		}
		thread := models.NormalizeThread(raw)
		f.store(conversationID, version, thread)
		return thread, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneMessages(v.([]models.Message)), nil
}

func (f *threadFetcher) cached(conversationID string) ([]models.Message, bool) {
	if f.ttl <= 0 {
		return nil, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.threads[conversationID]
	if !ok || !entry.ok || !f.now().Before(entry.expires) {
		return nil, false
	}
	return cloneMessages(entry.value), true
}

func (f *threadFetcher) version(conversationID string) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.versions[conversationID]
}

func (f *threadFetcher) store(conversationID string, version uint64, thread []models.Message) {
	if f.ttl <= 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	// Invalidated while the request was in flight.
	if f.versions[conversationID] != version {
		return
	}
	f.threads[conversationID] = timedEntry[[]models.Message]{
		value:   cloneMessages(thread),
		expires: f.now().Add(f.ttl),
		ok:      true,
	}
}

// invalidate drops the cached thread so the next fetch hits the service.
func (f *threadFetcher) invalidate(conversationID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.threads, conversationID)
	f.versions[conversationID]++
}

func cloneMessages(in []models.Message) []models.Message {
	out := make([]models.Message, len(in))
	copy(out, in)
	return out
}
