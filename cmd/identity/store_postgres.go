package identity

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

// PostgresStore implements Store over the users table.
// The pool is owned by the caller; the store never closes it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the Postgres schema (default "huddle").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !dbschema.ValidIdent(schema) {
			return fmt.Errorf("identity: invalid schema identifier %q", schema)
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: dbschema.DefaultSchema}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("identity: nil pool")
	}
	return st, nil
}

const userColumns = `id, email, full_name, password_hash, profile_picture, cover_picture,
	bio, is_online, last_seen, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.ProfilePicture, &u.CoverPicture,
		&u.Bio, &u.IsOnline, &u.LastSeen, &u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	in, err := validateCreate(op, in)
	if err != nil {
		return User{}, err
	}
	id, err := ids.NewULID(in.Now)
	if err != nil {
		return User{}, err
	}

	u, err := scanUser(s.pool.QueryRow(ctx,
		`INSERT INTO `+dbschema.Table(s.schema, "users")+` (
			id, email, email_norm, full_name, password_hash, created_at, updated_at
		) VALUES ($1, $2, $2, $3, $4, $5, $5)
		RETURNING `+userColumns,
		id, in.Email, in.FullName, in.PasswordHash, in.Now,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ConflictError{Op: op, Field: "email"}
		}
		return User{}, err
	}
	return u, nil
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+dbschema.Table(s.schema, "users")+` WHERE email_norm = $1`,
		NormalizeEmail(email),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: "identity.GetByEmail", Resource: "user"}
	}
	return u, err
}

func (s *PostgresStore) FindIdentity(ctx context.Context, id string) (User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+dbschema.Table(s.schema, "users")+` WHERE id = $1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: "identity.FindIdentity", Resource: "user"}
	}
	return u, err
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate, now time.Time) (User, error) {
	const op = "identity.UpdateProfile"

	upd, err := validateUpdate(op, upd)
	if err != nil {
		return User{}, err
	}

	// COALESCE keeps columns whose update field is NULL.
	u, err := scanUser(s.pool.QueryRow(ctx,
		`UPDATE `+dbschema.Table(s.schema, "users")+` SET
			full_name = COALESCE($2, full_name),
			bio = COALESCE($3, bio),
			profile_picture = COALESCE($4, profile_picture),
			cover_picture = COALESCE($5, cover_picture),
			updated_at = $6
		WHERE id = $1
		RETURNING `+userColumns,
		id, upd.FullName, upd.Bio, upd.ProfilePicture, upd.CoverPicture, now,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return u, err
}

func (s *PostgresStore) SetOnline(ctx context.Context, id string, online bool, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+dbschema.Table(s.schema, "users")+` SET
			is_online = $2,
			last_seen = CASE WHEN $2 THEN last_seen ELSE $3 END
		WHERE id = $1`,
		id, online, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: "identity.SetOnline", Resource: "user"}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
