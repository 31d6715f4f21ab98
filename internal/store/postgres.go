package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// uniqueViolation is the PostgreSQL SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

// Postgres keeps every collection in one JSONB table. The version column is
// a sequence value assigned on insert, so a consumed-and-reinserted id never
// reuses an old version.
type Postgres struct {
	db *sqlx.DB
}

type documentRow struct {
	ID      string `db:"id"`
	Version int64  `db:"version"`
	Data    []byte `db:"data"`
}

// OpenPostgres connects to PostgreSQL and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, unavailable("postgres connect", err)
	}
	return NewPostgres(db), nil
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate applies the embedded schema migrations.
func (p *Postgres) Migrate() error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: postgres migration source: %w", err)
	}
	driver, err := pgmigrate.WithInstance(p.db.DB, &pgmigrate.Config{})
	if err != nil {
		return fmt.Errorf("store: postgres migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("store: postgres migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: postgres migrate up: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// QueryByField implements Store.
func (p *Postgres) QueryByField(ctx context.Context, collection, field string, op Operator, value any) ([]Document, error) {
	var cond string
	switch op {
	case OpEqual:
		cond = "data #> $2::text[] = $3::jsonb"
	case OpNotEqual:
		cond = "data #> $2::text[] <> $3::jsonb"
	case OpArrayContains:
		cond = "jsonb_typeof(data #> $2::text[]) = 'array' AND data #> $2::text[] @> jsonb_build_array($3::jsonb)"
	default:
		return nil, fmt.Errorf("store: unsupported operator %q", op)
	}
	if field == "" {
		return nil, fmt.Errorf("store: empty field name")
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("store: encode filter value: %w", err)
	}

	query := `
		SELECT id, version, data
		FROM documents
		WHERE collection = $1 AND ` + cond + `
		ORDER BY version`

	var rows []documentRow
	path := pq.Array(strings.Split(field, "."))
	if err := p.db.SelectContext(ctx, &rows, query, collection, path, string(raw)); err != nil {
		return nil, unavailable("postgres query", err)
	}

	docs := make([]Document, len(rows))
	for i, r := range rows {
		docs[i] = Document{ID: r.ID, Version: r.Version, Data: r.Data}
	}
	return docs, nil
}

// Insert implements Store.
func (p *Postgres) Insert(ctx context.Context, collection string, data any) (string, error) {
	raw, err := encode(data)
	if err != nil {
		return "", err
	}

	id := NewID()
	const query = `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)`
	if _, err := p.db.ExecContext(ctx, query, collection, id, string(raw)); err != nil {
		return "", unavailable("postgres insert", err)
	}
	return id, nil
}

// DeleteByID implements Store.
func (p *Postgres) DeleteByID(ctx context.Context, collection, id string) error {
	const query = `DELETE FROM documents WHERE collection = $1 AND id = $2`
	res, err := p.db.ExecContext(ctx, query, collection, id)
	if err != nil {
		return unavailable("postgres delete", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AtomicBatch implements Store. Conditional deletes rely on row locking: a
// second transaction deleting the same row waits for the first and then sees
// zero affected rows.
func (p *Postgres) AtomicBatch(ctx context.Context, mutations []Mutation) (err error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return unavailable("postgres begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, m := range mutations {
		switch m.Kind {
		case MutationInsert:
			raw, encErr := encode(m.Data)
			if encErr != nil {
				return encErr
			}
			id := m.ID
			if id == "" {
				id = NewID()
			}
			_, execErr := tx.ExecContext(ctx,
				`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)`,
				m.Collection, id, string(raw))
			var pqErr *pq.Error
			if errors.As(execErr, &pqErr) && pqErr.Code == uniqueViolation {
				return fmt.Errorf("%w: %s/%s already exists", ErrConflict, m.Collection, id)
			}
			if execErr != nil {
				return unavailable("postgres batch insert", execErr)
			}

		case MutationDelete:
			if m.ExpectVersion == 0 {
				if _, execErr := tx.ExecContext(ctx,
					`DELETE FROM documents WHERE collection = $1 AND id = $2`,
					m.Collection, m.ID); execErr != nil {
					return unavailable("postgres batch delete", execErr)
				}
				continue
			}
			res, execErr := tx.ExecContext(ctx,
				`DELETE FROM documents WHERE collection = $1 AND id = $2 AND version = $3`,
				m.Collection, m.ID, m.ExpectVersion)
			if execErr != nil {
				return unavailable("postgres batch consume", execErr)
			}
			if n, _ := res.RowsAffected(); n != 1 {
				return fmt.Errorf("%w: %s/%s is not at version %d", ErrConflict, m.Collection, m.ID, m.ExpectVersion)
			}

		default:
			return fmt.Errorf("store: unknown mutation kind %d", m.Kind)
		}
	}

	if err = tx.Commit(); err != nil {
		return unavailable("postgres commit", err)
	}
	return nil
}
