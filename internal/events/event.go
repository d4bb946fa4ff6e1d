package events

import "time"

// Type identifies what changed in the sync engine.
type Type string

// Event types published by the sync engine.
const (
	RosterUpdated       Type = "roster_updated"
	RosterLoadFailed    Type = "roster_load_failed"
	ThreadUpdated       Type = "thread_updated"
	ThreadLoadFailed    Type = "thread_load_failed"
	ThreadCleared       Type = "thread_cleared"
	UnreadUpdated       Type = "unread_updated"
	SelectionChanged    Type = "selection_changed"
	ScrollToEnd         Type = "scroll_to_end"
	SendPending         Type = "send_pending"
	SendConfirmed       Type = "send_confirmed"
	SendFailed          Type = "send_failed"
	ConversationDeleted Type = "conversation_deleted"
	DeleteFailed        Type = "delete_failed"
	AuthExpired         Type = "auth_expired"
)

// Event is a notification that engine state changed. Subscribers read the new
// state from the engine; the event only carries what is needed to react.
type Event struct {
	Type           Type
	ConversationID string
	Time           time.Time

	// Content carries the compose text for send events.
	Content string

	// Err is set for failure events.
	Err error
}
