package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/user/contact-enricher/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS enrichment_results (
	id            BIGSERIAL PRIMARY KEY,
	run_id        UUID        NOT NULL,
	row_index     INTEGER     NOT NULL,
	website       TEXT        NOT NULL,
	status        TEXT        NOT NULL,
	error         TEXT        NOT NULL DEFAULT '',
	pages_visited INTEGER     NOT NULL DEFAULT 0,
	duration_ms   BIGINT      NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (run_id, row_index)
);
CREATE TABLE IF NOT EXISTS enrichment_contacts (
	result_id BIGINT NOT NULL REFERENCES enrichment_results (id) ON DELETE CASCADE,
	kind      TEXT   NOT NULL,
	value     TEXT   NOT NULL,
	PRIMARY KEY (result_id, kind, value)
);`

// DB is the subset of *pgxpool.Pool used by PostgresStore.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore persists enriched rows for later querying.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreWithDB wraps an existing pool.
func NewPostgresStoreWithDB(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// EnsureSchema creates the result tables when they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Save stores one enriched row and its contacts within a single transaction.
func (s *PostgresStore) Save(ctx context.Context, runID uuid.UUID, rec domain.OutputRecord) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var resultID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO enrichment_results (run_id, row_index, website, status, error, pages_visited, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (run_id, row_index) DO UPDATE SET
		   website = EXCLUDED.website, status = EXCLUDED.status, error = EXCLUDED.error,
		   pages_visited = EXCLUDED.pages_visited, duration_ms = EXCLUDED.duration_ms, updated_at = NOW()
		 RETURNING id`,
		runID, rec.Index, rec.URL, rec.Status, rec.Enrichment.Error, rec.PagesVisited, rec.Duration.Milliseconds(),
	).Scan(&resultID)
	if err != nil {
		return fmt.Errorf("upsert result: %w", err)
	}

	kinds, values := contactRows(rec.Enrichment)
	if len(kinds) > 0 {
		_, err = tx.Exec(ctx,
			`INSERT INTO enrichment_contacts (result_id, kind, value)
			 SELECT $1, t.kind, t.value FROM unnest($2::text[], $3::text[]) AS t(kind, value)
			 ON CONFLICT DO NOTHING`,
			resultID, kinds, values)
		if err != nil {
			return fmt.Errorf("insert contacts: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// contactRows flattens the joined contact cells into parallel kind/value slices.
func contactRows(e domain.Enrichment) (kinds, values []string) {
	for _, col := range []string{domain.ColumnEmail, domain.ColumnPhone, domain.ColumnLinkedIn, domain.ColumnInstagram} {
		cell, _ := e.Get(col)
		if cell == "" {
			continue
		}
		for _, v := range strings.Split(cell, domain.ValueSeparator) {
			kinds = append(kinds, col)
			values = append(values, v)
		}
	}
	return kinds, values
}
