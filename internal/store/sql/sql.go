// Package sql provides a Postgres-backed implementation of the
// progressive-matching store, reached over database/sql and
// github.com/lib/pq. The original service persisted the same schema to
// an embedded SQLite file; no SQLite driver appears anywhere in this
// project's dependency corpus, so a server-mode Postgres connection
// fills the same role, keeping the table and column names identical.
package sql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/bennekrouf/semantic-api0/internal/catalog"
	"github.com/bennekrouf/semantic-api0/internal/store"
)

const migrationSQL = `
CREATE TABLE IF NOT EXISTS ongoing_matches (
	conversation_id TEXT NOT NULL,
	endpoint_id     TEXT NOT NULL,
	parameters      TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL,
	PRIMARY KEY (conversation_id, endpoint_id)
);
`

// Store is a Postgres-backed store.Store implementation.
type Store struct {
	db  *sql.DB
	now func() string
}

var _ store.Store = (*Store)(nil)

// Open connects to databaseURL, configures the pool, and runs the
// ongoing_matches migration.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store/sql: open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store/sql: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, migrationSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store/sql: migrate: %w", err)
	}

	return &Store{db: db, now: func() string { return time.Now().UTC().Format(time.RFC3339) }}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Update(ctx context.Context, conv, endpoint string, newParams []store.ParameterValue) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store/sql: begin: %w", err)
	}
	defer tx.Rollback()

	var existingRaw string
	var createdAt string
	err = tx.QueryRowContext(ctx,
		`SELECT parameters, created_at FROM ongoing_matches WHERE conversation_id = $1 AND endpoint_id = $2`,
		conv, endpoint,
	).Scan(&existingRaw, &createdAt)

	var existing []store.ParameterValue
	switch {
	case err == sql.ErrNoRows:
		createdAt = s.now()
	case err != nil:
		return fmt.Errorf("store/sql: read existing row: %w", err)
	default:
		if err := json.Unmarshal([]byte(existingRaw), &existing); err != nil {
			return fmt.Errorf("store/sql: decode existing parameters: %w", err)
		}
	}

	merged := mergeParameters(existing, newParams)
	encoded, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("store/sql: encode parameters: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ongoing_matches (conversation_id, endpoint_id, parameters, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (conversation_id, endpoint_id)
		DO UPDATE SET parameters = EXCLUDED.parameters, updated_at = EXCLUDED.updated_at
	`, conv, endpoint, string(encoded), createdAt, s.now())
	if err != nil {
		return fmt.Errorf("store/sql: upsert: %w", err)
	}

	return tx.Commit()
}

func (s *Store) Get(ctx context.Context, conv, endpoint string) (store.OngoingMatch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT parameters, created_at, updated_at FROM ongoing_matches WHERE conversation_id = $1 AND endpoint_id = $2`,
		conv, endpoint,
	)
	return scanRow(row, conv, endpoint)
}

func (s *Store) GetIncomplete(ctx context.Context, conv string) (store.OngoingMatch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT endpoint_id, parameters, created_at, updated_at FROM ongoing_matches WHERE conversation_id = $1 LIMIT 1`,
		conv,
	)
	var endpoint, raw, createdAt, updatedAt string
	if err := row.Scan(&endpoint, &raw, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return store.OngoingMatch{}, store.ErrNotFound
		}
		return store.OngoingMatch{}, fmt.Errorf("store/sql: get incomplete: %w", err)
	}
	var params []store.ParameterValue
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return store.OngoingMatch{}, fmt.Errorf("store/sql: decode parameters: %w", err)
	}
	return store.OngoingMatch{ConversationID: conv, EndpointID: endpoint, Parameters: params, CreatedAt: createdAt, UpdatedAt: updatedAt}, nil
}

func (s *Store) Complete(ctx context.Context, conv, endpoint string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM ongoing_matches WHERE conversation_id = $1 AND endpoint_id = $2`, conv, endpoint)
	if err != nil {
		return fmt.Errorf("store/sql: complete: %w", err)
	}
	return nil
}

func (s *Store) CheckCompletion(ctx context.Context, conv, endpoint string, requiredNames []string, endpointParameters []catalog.Parameter) (store.ProgressiveMatchResult, error) {
	row, err := s.Get(ctx, conv, endpoint)
	if err != nil && err != store.ErrNotFound {
		return store.ProgressiveMatchResult{}, err
	}
	return store.CheckCompletionResult(conv, endpoint, requiredNames, endpointParameters, row.Parameters), nil
}

func scanRow(row *sql.Row, conv, endpoint string) (store.OngoingMatch, error) {
	var raw, createdAt, updatedAt string
	if err := row.Scan(&raw, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return store.OngoingMatch{}, store.ErrNotFound
		}
		return store.OngoingMatch{}, fmt.Errorf("store/sql: scan row: %w", err)
	}
	var params []store.ParameterValue
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return store.OngoingMatch{}, fmt.Errorf("store/sql: decode parameters: %w", err)
	}
	return store.OngoingMatch{ConversationID: conv, EndpointID: endpoint, Parameters: params, CreatedAt: createdAt, UpdatedAt: updatedAt}, nil
}

func mergeParameters(existing, newValues []store.ParameterValue) []store.ParameterValue {
	merged := append([]store.ParameterValue(nil), existing...)
	index := make(map[string]int, len(merged))
	for i, p := range merged {
		index[p.Name] = i
	}
	for _, p := range newValues {
		if i, ok := index[p.Name]; ok {
			merged[i] = p
		} else {
			index[p.Name] = len(merged)
			merged = append(merged, p)
		}
	}
	return merged
}
