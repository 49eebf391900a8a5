// Package dbschema owns the Postgres DDL shared by every durable store.
package dbschema

import (
	"context"
	_ "embed"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultSchema is the schema every store uses unless told otherwise.
const DefaultSchema = "huddle"

//go:embed schema.sql
var schemaSQL string

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ErrInvalidSchema is returned for names that are not plain Postgres identifiers.
var ErrInvalidSchema = errors.New("dbschema: invalid schema identifier")

// ValidIdent reports whether s is a plain Postgres identifier.
func ValidIdent(s string) bool { return identRe.MatchString(s) }

// Table returns the quoted, schema-qualified name of table.
func Table(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}

// SQL renders the DDL for schema.
func SQL(schema string) (string, error) {
	if !ValidIdent(schema) {
		return "", ErrInvalidSchema
	}
	return strings.ReplaceAll(schemaSQL, "{{schema}}", pgx.Identifier{schema}.Sanitize()), nil
}

// Apply creates the schema and its tables if they do not exist.
func Apply(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	ddl, err := SQL(schema)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, ddl)
	return err
}

// Drop removes schema and everything in it. Test helpers use it for cleanup.
func Drop(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	if !ValidIdent(schema) {
		return ErrInvalidSchema
	}
	_, err := pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
	return err
}
