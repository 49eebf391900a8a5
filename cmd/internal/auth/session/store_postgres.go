package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"huddle/cmd/identity/ids"
	"huddle/cmd/internal/dbschema"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (huddle.sessions).
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
	now   func() time.Time
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithSchema selects the schema holding the sessions table.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) {
		if dbschema.ValidIdent(schema) {
			s.table = dbschema.Table(schema, "sessions")
		}
	}
}

// WithClock overrides the time source for created_at / updated_at.
func WithClock(now func() time.Time) PostgresOption {
	return func(s *PostgresStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{
		pool:  pool,
		table: dbschema.Table(dbschema.DefaultSchema, "sessions"),
		now:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Create inserts a new session row with a ULID id.
func (s *PostgresStore) Create(ctx context.Context, identityID, userAgent string) (Session, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return Session{}, ErrInvalidInput
	}
	now := s.now().UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		return Session{}, err
	}

	sess := Session{
		ID:         id,
		IdentityID: identityID,
		Valid:      true,
		UserAgent:  clampUserAgent(userAgent),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO `+s.table+` (id, user_id, valid, user_agent, created_at, updated_at)
		VALUES ($1, $2, true, $3, $4, $4)
	`, sess.ID, sess.IdentityID, sess.UserAgent, now)
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Find loads a session row by id.
func (s *PostgresStore) Find(ctx context.Context, sessionID string) (Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, valid, user_agent, created_at, updated_at
		FROM `+s.table+`
		WHERE id = $1
	`, sessionID).Scan(
		&sess.ID,
		&sess.IdentityID,
		&sess.Valid,
		&sess.UserAgent,
		&sess.CreatedAt,
		&sess.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

// SetValid updates the validity flag.
func (s *PostgresStore) SetValid(ctx context.Context, sessionID string, valid bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE `+s.table+`
		SET valid = $2, updated_at = $3
		WHERE id = $1
	`, sessionID, valid, s.now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// InvalidateAll invalidates all currently valid sessions for an identity.
func (s *PostgresStore) InvalidateAll(ctx context.Context, identityID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE `+s.table+`
		SET valid = false, updated_at = $2
		WHERE user_id = $1 AND valid
	`, identityID, s.now().UTC())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
