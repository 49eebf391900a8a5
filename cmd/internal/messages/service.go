// Package messages stores direct messages and pushes each new one to the
// receiver's live connection, if any.
package messages

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"huddle/cmd/identity"
	"huddle/cmd/identity/ids"
	v1 "huddle/shared/contracts/realtime/v1"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	maxTextRunes    = 4000
	maxImageURLLen  = 2048
	defaultPageSize = 50
	maxPageSize     = 200
)

// Relayer pushes an event to an identity's live connection.
type Relayer interface {
	Relay(identityID, event string, payload any) bool
}

// Service sends and lists messages.
type Service struct {
	store Store
	users identity.Finder
	relay Relayer
	log   *slog.Logger
	now   func() time.Time

	sent *prometheus.CounterVec
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

// WithRegisterer registers the service metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Service) {
		if reg != nil {
			reg.MustRegister(s.sent)
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, users identity.Finder, relay Relayer, opts ...Option) (*Service, error) {
	if store == nil || users == nil || relay == nil {
		return nil, ErrInvalidInput
	}
	s := &Service{
		store: store,
		users: users,
		relay: relay,
		log:   slog.New(slog.DiscardHandler),
		now:   time.Now,
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "huddle",
			Subsystem: "messages",
			Name:      "sent_total",
			Help:      "Stored messages by whether the receiver was reached live.",
		}, []string{"delivered"}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Send stores a message and then relays it to the receiver. The returned
// flag reports live delivery; an offline receiver still gets the message on
// the next Conversation call.
func (s *Service) Send(ctx context.Context, senderID, receiverID, text, image string) (Message, bool, error) {
	senderID, receiverID = strings.TrimSpace(senderID), strings.TrimSpace(receiverID)
	text, image = strings.TrimSpace(text), strings.TrimSpace(image)

	switch {
	case senderID == "" || receiverID == "":
		return Message{}, false, ErrInvalidInput
	case senderID == receiverID:
		return Message{}, false, ErrSelf
	case text == "" && image == "":
		return Message{}, false, ErrEmpty
	case utf8.RuneCountInString(text) > maxTextRunes:
		return Message{}, false, ErrTooLong
	case image != "" && !validImageURL(image):
		return Message{}, false, fmt.Errorf("%w: image must be an http(s) url", ErrInvalidInput)
	}

	if _, err := s.users.FindIdentity(ctx, receiverID); err != nil {
		if identity.IsNotFound(err) {
			return Message{}, false, ErrNotFound
		}
		return Message{}, false, fmt.Errorf("messages: load receiver: %w", err)
	}

	now := s.now().UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		return Message{}, false, err
	}
	m := Message{ID: id, SenderID: senderID, ReceiverID: receiverID, Text: text, Image: image, CreatedAt: now}
	if err := s.store.Insert(ctx, m); err != nil {
		return Message{}, false, fmt.Errorf("messages: insert: %w", err)
	}

	delivered := s.relay.Relay(receiverID, v1.TypeNewMessage, ToPayload(m))
	s.sent.WithLabelValues(strconv.FormatBool(delivered)).Inc()
	s.log.DebugContext(ctx, "messages.send", "id", m.ID, "sender_id", senderID, "receiver_id", receiverID, "delivered", delivered)
	return m, delivered, nil
}

// Conversation returns messages exchanged between a and b, oldest first.
func (s *Service) Conversation(ctx context.Context, a, b string, page Page) ([]Message, error) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return nil, ErrInvalidInput
	}
	switch {
	case page.Limit <= 0:
		page.Limit = defaultPageSize
	case page.Limit > maxPageSize:
		page.Limit = maxPageSize
	}
	return s.store.Between(ctx, a, b, page)
}

// ToPayload converts m to its wire form.
func ToPayload(m Message) v1.MessagePayload {
	return v1.MessagePayload{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Text:       m.Text,
		Image:      m.Image,
		CreatedAt:  m.CreatedAt,
	}
}

func validImageURL(raw string) bool {
	if len(raw) > maxImageURLLen {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
