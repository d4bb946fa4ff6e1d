package chatsync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/storechat/internal/auth"
	"github.com/tOgg1/storechat/internal/models"
)

// seedUnread gives A two unread, B none and C five unread messages.
func seedUnread(svc *fakeService) []models.Conversation {
	convs := []models.Conversation{
		conversation("A", "Acme", "Me"),
		conversation("B", "Blue", "Me"),
		conversation("C", "Cedar", "Me"),
	}
	svc.conversations = convs

	svc.setThread("A",
		message("a1", "A", other, 1, false),
		message("a2", "A", me, 2, false),
		message("a3", "A", other, 3, false),
		message("a4", "A", other, 4, true),
	)
	svc.setThread("B",
		message("b1", "B", me, 1, false),
		message("b2", "B", other, 2, true),
	)
	var c []models.Message
	for i := 1; i <= 5; i++ {
		c = append(c, message(fmt.Sprintf("c%d", i), "C", other, i, false))
	}
	svc.setThread("C", c...)
	return convs
}

func TestUnreadAggregation(t *testing.T) {
	svc := newFakeService()
	convs := seedUnread(svc)
	tracker := NewUnreadTracker(svc, validToken(), 2)

	counts, err := tracker.ComputeUnread(context.Background(), convs, me)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"A": 2, "B": 0, "C": 5}, counts)
	require.Equal(t, 7, TotalUnread(counts))
	require.Equal(t, 7, tracker.Total())

	tracker.MarkRead("A", at(4))
	require.Equal(t, map[string]int{"A": 0, "B": 0, "C": 5}, tracker.Counts())
	require.Equal(t, 5, tracker.Total())
}

func TestUnreadWatermarkKeepsReadCountsDown(t *testing.T) {
	svc := newFakeService()
	convs := seedUnread(svc)
	tracker := NewUnreadTracker(svc, validToken(), 2)

	tracker.MarkRead("A", at(4))
	counts, err := tracker.ComputeUnread(context.Background(), convs, me)
	require.NoError(t, err)
	require.Zero(t, counts["A"], "server still reports isRead=false but A was read locally")

	// A newer message from the other party counts again.
	svc.setThread("A", message("a1", "A", other, 1, false), message("a5", "A", other, 9, false))
	counts, err = tracker.ComputeUnread(context.Background(), convs, me)
	require.NoError(t, err)
	require.Equal(t, 1, counts["A"])
}

func TestUnreadPartialFailureKeepsPreviousCount(t *testing.T) {
	svc := newFakeService()
	convs := seedUnread(svc)
	tracker := NewUnreadTracker(svc, validToken(), 2)

	_, err := tracker.ComputeUnread(context.Background(), convs, me)
	require.NoError(t, err)

	svc.threadErrs["C"] = errBoom
	svc.setThread("A", message("a1", "A", other, 1, false))
	counts, err := tracker.ComputeUnread(context.Background(), convs, me)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"A": 1, "B": 0, "C": 5}, counts)
}

func TestUnreadUnauthorizedIsFatal(t *testing.T) {
	svc := newFakeService()
	convs := seedUnread(svc)
	svc.threadErrs["B"] = auth.ErrUnauthorized
	tracker := NewUnreadTracker(svc, validToken(), 1)

	_, err := tracker.ComputeUnread(context.Background(), convs, me)
	require.ErrorIs(t, err, auth.ErrUnauthorized)
	require.Empty(t, tracker.Counts())
}

func TestUnreadDropsMissingConversations(t *testing.T) {
	svc := newFakeService()
	convs := seedUnread(svc)
	tracker := NewUnreadTracker(svc, validToken(), 2)

	_, err := tracker.ComputeUnread(context.Background(), convs, me)
	require.NoError(t, err)

	counts, err := tracker.ComputeUnread(context.Background(), convs[1:], me)
	require.NoError(t, err)
	require.NotContains(t, counts, "A")

	tracker.Forget("C")
	_, ok := tracker.Count("C")
	require.False(t, ok)
}

func TestCountUnread(t *testing.T) {
	thread := []models.Message{
		message("m1", "c1", other, 1, false),
		message("m2", "c1", me, 2, false),
		message("m3", "c1", other, 3, true),
		message("m4", "c1", other, 4, false),
	}

	tests := []struct {
		name      string
		watermark time.Time
		want      int
	}{
		{name: "no watermark", want: 2},
		{name: "watermark between", watermark: at(2), want: 1},
		{name: "watermark at newest", watermark: at(4), want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, CountUnread(thread, me, tt.watermark))
		})
	}
}
