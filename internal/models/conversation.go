// Package models defines the chat records shared by the sync engine, the REST
// client and the UI surfaces.
package models

import (
	"strings"
	"time"
)

// Conversation is a thread between one customer and one seller, optionally
// scoped to a product. Names are display-only and supplied by the server.
type Conversation struct {
	ID           string `json:"id"`
	CustomerID   string `json:"customerId"`
	SellerID     string `json:"sellerId"`
	ProductID    string `json:"productId,omitempty"`
	CustomerName string `json:"customerName"`
	SellerName   string `json:"sellerName"`
	ProductName  string `json:"productName,omitempty"`

	LastMessageAt time.Time `json:"lastMessageAt"`

	// LastMessage is attached client-side; the list endpoint never returns it.
	LastMessage *MessagePreview `json:"lastMessage,omitempty"`
}

// MessagePreview is the denormalized latest message of a conversation.
type MessagePreview struct {
	Content   string    `json:"content"`
	SenderID  string    `json:"senderId"`
	CreatedAt time.Time `json:"createdAt"`
}

// ConversationKey is the logical identity triple of a conversation.
type ConversationKey struct {
	CustomerID string
	SellerID   string
	ProductID  string
}

// Key returns the (customer, seller, product) triple.
func (c Conversation) Key() ConversationKey {
	return ConversationKey{
		CustomerID: c.CustomerID,
		SellerID:   c.SellerID,
		ProductID:  c.ProductID,
	}
}

// Counterpart returns the display name of the other party from the point of
// view of userID.
func (c Conversation) Counterpart(userID string) string {
	if userID != "" && userID == c.SellerID {
		return c.CustomerName
	}
	return c.SellerName
}

// Matches reports whether query is a case-insensitive substring of the seller,
// customer or product name. An empty query matches everything.
func (c Conversation) Matches(query string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}
	for _, field := range []string{c.SellerName, c.CustomerName, c.ProductName} {
		if field != "" && strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

// Validate reports a missing id or participant. The roster only drops
// conversations without an id; missing participants are logged.
func (c Conversation) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(c.ID) == "" {
		validation.Add("id", ErrMissingID)
	}
	if strings.TrimSpace(c.CustomerID) == "" || strings.TrimSpace(c.SellerID) == "" {
		validation.Add("participants", ErrMissingParticipant)
	}
	return validation.Err()
}

// Clone returns a deep copy.
func (c Conversation) Clone() Conversation {
	if c.LastMessage != nil {
		preview := *c.LastMessage
		c.LastMessage = &preview
	}
	return c
}

// CloneConversations deep-copies a slice of conversations.
func CloneConversations(in []Conversation) []Conversation {
	if in == nil {
		return nil
	}
	out := make([]Conversation, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}
