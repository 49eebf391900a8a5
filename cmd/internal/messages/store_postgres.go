package messages

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"huddle/cmd/internal/dbschema"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists messages in PostgreSQL.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default "huddle").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !dbschema.ValidIdent(schema) {
			return fmt.Errorf("%w: schema %q", ErrInvalidInput, schema)
		}
		s.table = dbschema.Table(schema, "messages")
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, table: dbschema.Table(dbschema.DefaultSchema, "messages")}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, ErrInvalidInput
	}
	return st, nil
}

func (s *PostgresStore) Insert(ctx context.Context, m Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+s.table+` (id, sender_id, receiver_id, text, image, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.SenderID, m.ReceiverID, m.Text, m.Image, m.CreatedAt)
	return err
}

func (s *PostgresStore) Between(ctx context.Context, a, b string, page Page) ([]Message, error) {
	var before any
	if !page.Before.IsZero() {
		before = page.Before
	}
	limit := page.Limit
	if limit <= 0 {
		limit = maxPageSize
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, sender_id, receiver_id, text, image, created_at
		FROM `+s.table+`
		WHERE LEAST(sender_id, receiver_id) = LEAST($1::text, $2::text)
		  AND GREATEST(sender_id, receiver_id) = GREATEST($1::text, $2::text)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, a, b, before, limit)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var m Message
		err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &m.Image, &m.CreatedAt)
		return m, err
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}
