package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/opuscart/basket/internal/basket"
)

// Postgres is the database-backed storage variant: one row per subject in
// a table similar to
//
//	CREATE TABLE basket (
//	    subject_id  varchar(255) PRIMARY KEY,
//	    basket_data bytea NOT NULL,
//	    updated_at  timestamptz NOT NULL DEFAULT now()
//	);
//
// When a UserProvider is configured, the authenticated user id is preferred
// over the session id as the row key. An absent row loads as an empty
// basket; connection failures propagate.
type Postgres struct {
	db         *sql.DB
	users      UserProvider
	table      string
	idColumn   string
	dataColumn string
}

// PostgresOption configures the Postgres backend.
type PostgresOption func(*Postgres)

// WithUserProvider makes the backend key rows by authenticated user id
// when one is available.
func WithUserProvider(users UserProvider) PostgresOption {
	return func(p *Postgres) { p.users = users }
}

// WithTable overrides the table and column scheme.
func WithTable(table, idColumn, dataColumn string) PostgresOption {
	return func(p *Postgres) {
		p.table = table
		p.idColumn = idColumn
		p.dataColumn = dataColumn
	}
}

// NewPostgres creates a Postgres-backed storage on an open connection pool.
func NewPostgres(db *sql.DB, opts ...PostgresOption) *Postgres {
	p := &Postgres{
		db:         db,
		table:      "basket",
		idColumn:   "subject_id",
		dataColumn: "basket_data",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OpenPostgres opens and pings a Postgres connection pool.
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return db, nil
}

func (p *Postgres) Load(ctx context.Context, sub basket.Subject) ([]*basket.Item, error) {
	id := subjectID(ctx, p.users, sub)

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, p.dataColumn, p.table, p.idColumn)

	var data []byte
	err := p.db.QueryRowContext(ctx, query, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query basket row: %w", err)
	}
	return basket.DecodeItems(data)
}

func (p *Postgres) Save(ctx context.Context, sub basket.Subject, items []*basket.Item) error {
	id := subjectID(ctx, p.users, sub)

	data, err := basket.EncodeItems(items)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s, %s, updated_at) VALUES ($1, $2, NOW())
	          ON CONFLICT (%s) DO UPDATE SET %s = EXCLUDED.%s, updated_at = NOW()`,
		p.table, p.idColumn, p.dataColumn, p.idColumn, p.dataColumn, p.dataColumn)

	if _, err := p.db.ExecContext(ctx, query, id, data); err != nil {
		return fmt.Errorf("upsert basket row: %w", err)
	}
	return nil
}
