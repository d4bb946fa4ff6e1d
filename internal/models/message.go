package models

import (
	"sort"
	"strings"
	"time"
)

// Message is a single chat message. Only IsRead ever changes after creation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	IsRead         bool      `json:"isRead"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Validate checks a server-confirmed message.
func (m Message) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(m.ID) == "" {
		validation.Add("id", ErrMissingID)
	}
	if strings.TrimSpace(m.ConversationID) == "" {
		validation.Add("conversationId", ErrMissingConversationID)
	}
	if strings.TrimSpace(m.SenderID) == "" {
		validation.Add("senderId", ErrMissingSender)
	}
	if m.CreatedAt.IsZero() {
		validation.Add("createdAt", ErrMissingTimestamp)
	}
	return validation.Err()
}

// Preview returns the denormalized preview of m.
func (m Message) Preview() *MessagePreview {
	return &MessagePreview{
		Content:   m.Content,
		SenderID:  m.SenderID,
		CreatedAt: m.CreatedAt,
	}
}

// IsUnreadFor reports whether m counts as unread for userID: authored by the
// other party and not yet read.
func (m Message) IsUnreadFor(userID string) bool {
	return m.SenderID != userID && !m.IsRead
}

// NormalizeThread deduplicates messages by id, keeping the last occurrence,
// and sorts them ascending by CreatedAt. Equal timestamps keep payload order.
func NormalizeThread(messages []Message) []Message {
	if len(messages) == 0 {
		return []Message{}
	}

	index := make(map[string]int, len(messages))
	out := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if pos, ok := index[msg.ID]; ok && msg.ID != "" {
			out[pos] = msg
			continue
		}
		index[msg.ID] = len(out)
		out = append(out, msg)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// LatestMessage returns the newest message of an already normalized thread.
func LatestMessage(thread []Message) (Message, bool) {
	if len(thread) == 0 {
		return Message{}, false
	}
	return thread[len(thread)-1], true
}
