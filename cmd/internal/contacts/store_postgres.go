package contacts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"huddle/cmd/identity/ids"
	"huddle/cmd/internal/dbschema"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists contact edges in PostgreSQL.
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
		s.table = dbschema.Table(schema, "contacts")
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, table: dbschema.Table(dbschema.DefaultSchema, "contacts")}
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

const contactColumns = `id, user_id, contact_id, status, created_at, updated_at`

func scanContact(row pgx.Row) (Contact, error) {
	var c Contact
	var status string
	if err := row.Scan(&c.ID, &c.UserID, &c.ContactID, &status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Contact{}, err
	}
	c.Status = Status(status)
	return c, nil
}

func (s *PostgresStore) Get(ctx context.Context, userID, contactID string) (Contact, error) {
	c, err := scanContact(s.pool.QueryRow(ctx,
		`SELECT `+contactColumns+` FROM `+s.table+` WHERE user_id = $1 AND contact_id = $2`,
		userID, contactID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	return c, err
}

func (s *PostgresStore) CreatePending(ctx context.Context, userID, contactID string, now time.Time) (Contact, error) {
	id, err := ids.NewULID(now)
	if err != nil {
		return Contact{}, err
	}
	c := Contact{ID: id, UserID: userID, ContactID: contactID, Status: StatusPending, CreatedAt: now, UpdatedAt: now}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+s.table+` (`+contactColumns+`) VALUES ($1, $2, $3, $4, $5, $5)`,
		c.ID, c.UserID, c.ContactID, string(c.Status), now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Contact{}, ErrExists
		}
		return Contact{}, err
	}
	return c, nil
}

func (s *PostgresStore) Accept(ctx context.Context, userID, requesterID string, now time.Time) (Contact, error) {
	revID, err := ids.NewULID(now)
	if err != nil {
		return Contact{}, err
	}

	var out Contact
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE `+s.table+`
			SET status = 'accepted', updated_at = $3
			WHERE user_id = $1 AND contact_id = $2 AND status = 'pending'
		`, requesterID, userID, now)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNoRequest
		}

		out, err = scanContact(tx.QueryRow(ctx, `
			INSERT INTO `+s.table+` (`+contactColumns+`)
			VALUES ($1, $2, $3, 'accepted', $4, $4)
			ON CONFLICT (user_id, contact_id)
			DO UPDATE SET status = 'accepted', updated_at = EXCLUDED.updated_at
			RETURNING `+contactColumns,
			revID, userID, requesterID, now))
		return err
	})
	if err != nil {
		return Contact{}, err
	}
	return out, nil
}

func (s *PostgresStore) ListAccepted(ctx context.Context, userID string) ([]Contact, error) {
	return s.query(ctx,
		`SELECT `+contactColumns+` FROM `+s.table+`
		 WHERE user_id = $1 AND status = 'accepted' ORDER BY id`, userID)
}

func (s *PostgresStore) ListIncoming(ctx context.Context, userID string) ([]Contact, error) {
	return s.query(ctx,
		`SELECT `+contactColumns+` FROM `+s.table+`
		 WHERE contact_id = $1 AND status = 'pending' ORDER BY id`, userID)
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]Contact, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	out := make([]Contact, 0)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, c)
	}
	rows.Close()
	return out, rows.Err()
}
