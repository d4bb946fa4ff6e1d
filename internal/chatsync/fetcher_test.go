package chatsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestThreadFetcherTTL(t *testing.T) {
	svc := newFakeService()
	svc.setThread("c1", message("m1", "c1", other, 1, false))

	now := baseTime
	f := newThreadFetcher(svc, validToken(), time.Second)
	f.now = func() time.Time { return now }

	_, err := f.fetch(context.Background(), "c1")
	require.NoError(t, err)
	thread, err := f.fetch(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, thread, 1)
	require.Equal(t, 1, svc.callCount("messages:c1"))

	// Callers get their own copy.
	thread[0].Content = "mutated"
	again, err := f.fetch(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, "msg m1", again[0].Content)

	now = now.Add(2 * time.Second)
	_, err = f.fetch(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, 2, svc.callCount("messages:c1"))

	f.invalidate("c1")
	_, err = f.fetch(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, 3, svc.callCount("messages:c1"))
}

func TestThreadFetcherErrorsAreNotCached(t *testing.T) {
	svc := newFakeService()
	svc.threadErrs["c1"] = errBoom
	f := newThreadFetcher(svc, validToken(), time.Minute)

	_, err := f.fetch(context.Background(), "c1")
	require.ErrorIs(t, err, errBoom)

	svc.mu.Lock()
	delete(svc.threadErrs, "c1")
	svc.mu.Unlock()
	svc.setThread("c1", message("m1", "c1", other, 1, false))

	thread, err := f.fetch(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, thread, 1)
}

func TestThreadFetcherWithoutTTLAlwaysFetches(t *testing.T) {
	svc := newFakeService()
	f := newThreadFetcher(svc, validToken(), 0)

	for i := 0; i < 3; i++ {
		_, err := f.fetch(context.Background(), "c1")
		require.NoError(t, err)
	}
	require.Equal(t, 3, svc.callCount("messages:c1"))
}
