package messages

import (
	"context"
	"time"
)

// Message is a stored direct message.
type Message struct {
	ID         string
	SenderID   string
	ReceiverID string
	Text       string
	Image      string
	CreatedAt  time.Time
}

// Page selects a slice of a conversation. Messages strictly older than
// Before are returned, newest Limit of them, in ascending time order.
type Page struct {
	Before time.Time
	Limit  int
}

// Store persists messages.
type Store interface {
	Insert(ctx context.Context, m Message) error
	Between(ctx context.Context, a, b string, page Page) ([]Message, error)
}
