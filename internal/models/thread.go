package models

import "sort"

// EntryStatus tags a thread entry as pending or server-confirmed.
type EntryStatus int

const (
	// EntryConfirmed is a message the server has acknowledged.
	EntryConfirmed EntryStatus = iota
	// EntryPending is a locally composed message awaiting the server.
	EntryPending
)

func (s EntryStatus) String() string {
	switch s {
	case EntryPending:
		return "pending"
	default:
		return "confirmed"
	}
}

// ThreadEntry is one slot of a rendered thread. Pending entries are identified
// by TempID and carry an empty Message.ID; confirmed entries carry the server
// record and an empty TempID.
type ThreadEntry struct {
	Status  EntryStatus
	TempID  string
	Message Message
}

// Pending reports whether the entry is awaiting the server.
func (e ThreadEntry) Pending() bool {
	return e.Status == EntryPending
}

// ConfirmedEntry wraps a server message.
func ConfirmedEntry(msg Message) ThreadEntry {
	return ThreadEntry{Status: EntryConfirmed, Message: msg}
}

// PendingEntry wraps a locally composed message.
func PendingEntry(tempID string, msg Message) ThreadEntry {
	msg.ID = ""
	return ThreadEntry{Status: EntryPending, TempID: tempID, Message: msg}
}

// SortEntries orders entries ascending by CreatedAt, keeping the relative
// order of equal timestamps.
func SortEntries(entries []ThreadEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Message.CreatedAt.Before(entries[j].Message.CreatedAt)
	})
}

// EntryMessages flattens entries into messages.
func EntryMessages(entries []ThreadEntry) []Message {
	out := make([]Message, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Message)
	}
	return out
}
