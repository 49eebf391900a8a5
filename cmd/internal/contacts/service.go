// Package contacts manages friend requests between users and notifies the
// other side over the presence relay.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"huddle/cmd/identity"
	v1 "huddle/shared/contracts/realtime/v1"
)

// Presence is the slice of the presence registry the service needs.
type Presence interface {
	Relay(identityID, event string, payload any) bool
	Online(identityID string) bool
}

// Directory resolves users by id or by email.
type Directory interface {
	identity.Finder
	GetByEmail(ctx context.Context, email string) (identity.User, error)
}

// Entry is a contact edge joined with the user on the other end.
type Entry struct {
	Contact Contact
	User    identity.User
	Online  bool
}

// Service manages contact edges.
type Service struct {
	store    Store
	users    Directory
	presence Presence
	log      *slog.Logger
	now      func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, users Directory, p Presence, opts ...Option) (*Service, error) {
	if store == nil || users == nil || p == nil {
		return nil, ErrInvalidInput
	}
	s := &Service{
		store:    store,
		users:    users,
		presence: p,
		log:      slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Add sends a friend request from userID to contactID.
func (s *Service) Add(ctx context.Context, userID, contactID string) (Contact, error) {
	userID, contactID = strings.TrimSpace(userID), strings.TrimSpace(contactID)
	if userID == "" || contactID == "" {
		return Contact{}, ErrInvalidInput
	}
	if userID == contactID {
		return Contact{}, ErrSelf
	}

	if _, err := s.findUser(ctx, contactID); err != nil {
		return Contact{}, err
	}
	from, err := s.findUser(ctx, userID)
	if err != nil {
		return Contact{}, err
	}

	// An existing edge in either direction means the pair already knows each other.
	for _, pair := range [][2]string{{userID, contactID}, {contactID, userID}} {
		_, err := s.store.Get(ctx, pair[0], pair[1])
		switch {
		case err == nil:
			return Contact{}, ErrExists
		case !errors.Is(err, ErrNotFound):
			return Contact{}, err
		}
	}

	c, err := s.store.CreatePending(ctx, userID, contactID, s.now().UTC())
	if err != nil {
		return Contact{}, err
	}

	delivered := s.presence.Relay(contactID, v1.TypeFriendRequest, v1.FriendRequestPayload{
		From:      summary(from),
		ContactID: c.ID,
	})
	s.log.InfoContext(ctx, "contacts.request", "user_id", userID, "contact_id", contactID, "delivered", delivered)
	return c, nil
}

// AddByEmail sends a friend request from userID to the user registered
// under email.
func (s *Service) AddByEmail(ctx context.Context, userID, email string) (Contact, error) {
	email = identity.NormalizeEmail(email)
	if strings.TrimSpace(userID) == "" || !identity.ValidEmail(email) {
		return Contact{}, ErrInvalidInput
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if identity.IsNotFound(err) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, fmt.Errorf("contacts: lookup email: %w", err)
	}
	return s.Add(ctx, userID, u.ID)
}

// Accept accepts the pending request requesterID sent to userID.
func (s *Service) Accept(ctx context.Context, userID, requesterID string) (Contact, error) {
	userID, requesterID = strings.TrimSpace(userID), strings.TrimSpace(requesterID)
	if userID == "" || requesterID == "" {
		return Contact{}, ErrInvalidInput
	}
	if userID == requesterID {
		return Contact{}, ErrSelf
	}
	by, err := s.findUser(ctx, userID)
	if err != nil {
		return Contact{}, err
	}

	c, err := s.store.Accept(ctx, userID, requesterID, s.now().UTC())
	if err != nil {
		return Contact{}, err
	}

	delivered := s.presence.Relay(requesterID, v1.TypeFriendRequestAccepted, v1.FriendRequestAcceptedPayload{
		By:        summary(by),
		ContactID: c.ID,
	})
	s.log.InfoContext(ctx, "contacts.accept", "user_id", userID, "requester_id", requesterID, "delivered", delivered)
	return c, nil
}

// List returns userID's accepted contacts.
func (s *Service) List(ctx context.Context, userID string) ([]Entry, error) {
	edges, err := s.store.ListAccepted(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.join(ctx, edges, func(c Contact) string { return c.ContactID })
}

// Requests returns the pending requests addressed to userID.
func (s *Service) Requests(ctx context.Context, userID string) ([]Entry, error) {
	edges, err := s.store.ListIncoming(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.join(ctx, edges, func(c Contact) string { return c.UserID })
}

func (s *Service) join(ctx context.Context, edges []Contact, other func(Contact) string) ([]Entry, error) {
	out := make([]Entry, 0, len(edges))
	for _, c := range edges {
		id := other(c)
		u, err := s.users.FindIdentity(ctx, id)
		if err != nil {
			if identity.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out = append(out, Entry{Contact: c, User: u, Online: s.presence.Online(id)})
	}
	return out, nil
}

func (s *Service) findUser(ctx context.Context, id string) (identity.User, error) {
	u, err := s.users.FindIdentity(ctx, id)
	if err != nil {
		if identity.IsNotFound(err) {
			return identity.User{}, ErrNotFound
		}
		return identity.User{}, fmt.Errorf("contacts: load user: %w", err)
	}
	return u, nil
}

func summary(u identity.User) v1.UserSummary {
	return v1.UserSummary{
		ID:             u.ID,
		Email:          u.Email,
		FullName:       u.FullName,
		ProfilePicture: u.ProfilePicture,
	}
}
