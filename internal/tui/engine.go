// Package tui renders the inbox and the floating unread badge. Both observe
// one shared chatsync engine.
package tui

import (
	"context"

	"github.com/tOgg1/storechat/internal/chatsync"
	"github.com/tOgg1/storechat/internal/events"
	"github.com/tOgg1/storechat/internal/models"
)

// Engine is the part of *chatsync.Engine the UI drives.
type Engine interface {
	Start(ctx context.Context) (*chatsync.Handle, error)
	Stop(h *chatsync.Handle) error
	Subscribe(id string, filter events.Filter, handler events.Handler) error
	Unsubscribe(id string) error
	Snapshot() chatsync.Snapshot
	Search(query string) []models.Conversation
	Select(ctx context.Context, conversationID string) error
	Deselect()
	Delete(ctx context.Context, conversationID string) error
	SetDraft(draft string)
	Submit(ctx context.Context) (*chatsync.Attempt, error)
}

const eventBuffer = 64

// subscription forwards engine events into a channel a tea.Cmd can wait on.
type subscription struct {
	id     string
	engine Engine
	ch     chan *events.Event
}

func subscribe(engine Engine, id string, filter events.Filter) (*subscription, error) {
	sub := &subscription{id: id, engine: engine, ch: make(chan *events.Event, eventBuffer)}
	err := engine.Subscribe(id, filter, func(event *events.Event) {
		select {
		case sub.ch <- event:
		default:
			// Full: a queued event will refresh from the snapshot anyway.
		}
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *subscription) close() {
	if s == nil {
		return
	}
	_ = s.engine.Unsubscribe(s.id)
}
