package app

import (
	"fmt"

	"huddle/cmd/identity"
	"huddle/cmd/internal/auth/revocation"
	"huddle/cmd/internal/auth/session"
	"huddle/cmd/internal/contacts"
	"huddle/cmd/internal/messages"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// stores groups every persistence port the services depend on.
type stores struct {
	users    identity.Store
	sessions session.Store
	revoked  revocation.Store
	contacts contacts.Store
	messages messages.Store
}

// newStores selects Postgres-backed stores when pool is non-nil and in-memory
// ones otherwise. Revocation goes to Redis when rdb is non-nil.
func newStores(cfg Config, pool *pgxpool.Pool, rdb *redis.Client, revOpts ...revocation.Option) (stores, error) {
	var st stores

	if rdb != nil {
		st.revoked = revocation.NewRedisStore(rdb, revOpts...)
	} else {
		st.revoked = revocation.NewMemoryStore(revOpts...)
	}

	if pool == nil {
		st.users = identity.NewMemoryStore()
		st.sessions = session.NewMemoryStore(nil)
		st.contacts = contacts.NewMemoryStore()
		st.messages = messages.NewMemoryStore()
		return st, nil
	}

	users, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
	if err != nil {
		return stores{}, fmt.Errorf("users store: %w", err)
	}
	cs, err := contacts.NewPostgresStore(pool, contacts.WithSchema(cfg.DBSchema))
	if err != nil {
		return stores{}, fmt.Errorf("contacts store: %w", err)
	}
	ms, err := messages.NewPostgresStore(pool, messages.WithSchema(cfg.DBSchema))
	if err != nil {
		return stores{}, fmt.Errorf("messages store: %w", err)
	}

	st.users = users
	st.sessions = session.NewPostgresStore(pool, session.WithSchema(cfg.DBSchema))
	st.contacts = cs
	st.messages = ms
	return st, nil
}
