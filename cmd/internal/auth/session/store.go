package session

import (
	"context"
	"time"
)

// Session links a credential lineage to an identity.
type Session struct {
	ID         string
	IdentityID string
	Valid      bool
	UserAgent  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Store abstracts session persistence.
type Store interface {
	// Create inserts a valid session for identityID.
	Create(ctx context.Context, identityID, userAgent string) (Session, error)

	// Find loads a session by id. Missing sessions return ErrSessionNotFound.
	Find(ctx context.Context, sessionID string) (Session, error)

	// SetValid flips the validity flag of one session.
	SetValid(ctx context.Context, sessionID string, valid bool) error

	// InvalidateAll marks every valid session of identityID invalid and
	// returns how many changed.
	InvalidateAll(ctx context.Context, identityID string) (int, error)
}

const maxUserAgentLen = 512

func clampUserAgent(ua string) string {
	if len(ua) > maxUserAgentLen {
		return ua[:maxUserAgentLen]
	}
	return ua
}
