package messages

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps messages in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	msgs []Message
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Insert(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.msgs = append(s.msgs, m)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Between(ctx context.Context, a, b string, page Page) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]Message, 0)
	for _, m := range s.msgs {
		if !((m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)) {
			continue
		}
		if !page.Before.IsZero() && !m.CreatedAt.Before(page.Before) {
			continue
		}
		out = append(out, m)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if page.Limit > 0 && len(out) > page.Limit {
		out = out[len(out)-page.Limit:]
	}
	return out, nil
}
