package contacts

import (
	"context"
	"time"
)

// Status is the state of a directed contact edge.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusBlocked  Status = "blocked"
)

// Contact is the directed edge UserID -> ContactID.
type Contact struct {
	ID        string
	UserID    string
	ContactID string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the persistence boundary for contact edges.
type Store interface {
	// Get returns the edge userID -> contactID or ErrNotFound.
	Get(ctx context.Context, userID, contactID string) (Contact, error)

	// CreatePending inserts a pending edge. A duplicate edge yields ErrExists.
	CreatePending(ctx context.Context, userID, contactID string, now time.Time) (Contact, error)

	// Accept flips the pending edge requesterID -> userID to accepted and
	// creates or accepts the reverse edge, atomically. Without a pending
	// request it returns ErrNoRequest.
	Accept(ctx context.Context, userID, requesterID string, now time.Time) (Contact, error)

	// ListAccepted returns userID's accepted outgoing edges, oldest first.
	ListAccepted(ctx context.Context, userID string) ([]Contact, error)

	// ListIncoming returns pending edges pointing at userID, oldest first.
	ListIncoming(ctx context.Context, userID string) ([]Contact, error)
}
