package core

import "time"

// Message is the domain model for a direct message travelling through the relay.
type Message struct {
	ID        int64 // zero for fallback replies, which are never persisted
	From      string
	To        string
	Text      string
	CreatedAt time.Time
}
