package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/solexplorer/service/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the tables the store reads.
//
//go:embed schema.sql
var Schema string

// ErrAPIKeyNotFound is returned when no API key matches.
var ErrAPIKeyNotFound = errors.New("api key not found")

// Store provides database operations for the service.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If metrics is nil, no metrics will be recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{
		pool:    pool,
		metrics: m,
	}
}

// APIKey is an API consumer's credential and quota.
type APIKey struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Name         string     `json:"name"`
	Key          string     `json:"key"`
	Plan         string     `json:"plan"`
	RateLimit    int        `json:"rate_limit"` // requests per second
	RequestsUsed int64      `json:"requests_used"`
	Active       bool       `json:"active"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// CreateAPIKeyParams contains the parameters for creating an API key.
type CreateAPIKeyParams struct {
	UserID    string
	Name      string
	Plan      string
	RateLimit int
}

// newKeySecret returns a fresh secret in the "sk_live_<uuid>" format.
func newKeySecret() string {
	return "sk_live_" + uuid.NewString()
}

const apiKeyColumns = `id::text, user_id::text, name, key, plan, rate_limit, requests_used, active, last_used_at, created_at`

func scanAPIKey(row pgx.Row) (*APIKey, error) {
	var (
		k          APIKey
		lastUsedAt pgtype.Timestamptz
	)
	err := row.Scan(
		&k.ID,
		&k.UserID,
		&k.Name,
		&k.Key,
		&k.Plan,
		&k.RateLimit,
		&k.RequestsUsed,
		&k.Active,
		&lastUsedAt,
		&k.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	k.LastUsedAt = timePtrFromPgTimestamptz(lastUsedAt)
	return &k, nil
}

// ApplySchema creates the store's tables if they do not exist.
func (s *Store) ApplySchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

const getAPIKeyQuery = `SELECT ` + apiKeyColumns + `
FROM api_keys
WHERE key = $1`

// GetAPIKey looks up an API key by its secret value.
func (s *Store) GetAPIKey(ctx context.Context, key string) (*APIKey, error) {
	start := time.Now()
	k, err := scanAPIKey(s.pool.QueryRow(ctx, getAPIKeyQuery, key))
	s.record("get_api_key", start, err)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAPIKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return k, nil
}

const createAPIKeyQuery = `
INSERT INTO api_keys (user_id, name, key, plan, rate_limit)
VALUES ($1::uuid, $2, $3, $4, $5)
RETURNING ` + apiKeyColumns

// CreateAPIKey issues a new active key with a generated secret. An empty
// Plan defaults to "free".
func (s *Store) CreateAPIKey(ctx context.Context, params CreateAPIKeyParams) (*APIKey, error) {
	if params.Plan == "" {
		params.Plan = "free"
	}

	start := time.Now()
	k, err := scanAPIKey(s.pool.QueryRow(ctx, createAPIKeyQuery,
		params.UserID,
		params.Name,
		newKeySecret(),
		params.Plan,
		params.RateLimit,
	))
	s.record("create_api_key", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to create api key: %w", err)
	}
	return k, nil
}

const listAPIKeysQuery = `SELECT ` + apiKeyColumns + `
FROM api_keys
ORDER BY created_at DESC`

// ListAPIKeys returns every key, newest first.
func (s *Store) ListAPIKeys(ctx context.Context) ([]*APIKey, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, listAPIKeysQuery)
	if err != nil {
		s.record("list_api_keys", start, err)
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			s.record("list_api_keys", start, err)
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	err = rows.Err()
	s.record("list_api_keys", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	return keys, nil
}

const deactivateAPIKeyQuery = `
UPDATE api_keys
SET active = FALSE
WHERE id = $1::uuid`

// DeactivateAPIKey revokes a key. Gates that cached the key keep honouring
// it until their cache entry expires.
func (s *Store) DeactivateAPIKey(ctx context.Context, id string) error {
	start := time.Now()
	tag, err := s.pool.Exec(ctx, deactivateAPIKeyQuery, id)
	s.record("deactivate_api_key", start, err)
	if err != nil {
		return fmt.Errorf("failed to deactivate api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

const recordAPIKeyUsageQuery = `
UPDATE api_keys
SET requests_used = requests_used + $2, last_used_at = $3
WHERE id = $1::uuid`

// RecordAPIKeyUsage adds n requests to a key's usage counter.
func (s *Store) RecordAPIKeyUsage(ctx context.Context, id string, n int64, at time.Time) error {
	start := time.Now()
	tag, err := s.pool.Exec(ctx, recordAPIKeyUsageQuery, id, n, at)
	s.record("record_api_key_usage", start, err)
	if err != nil {
		return fmt.Errorf("failed to record api key usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

func (s *Store) record(operation string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	if errors.Is(err, pgx.ErrNoRows) {
		err = nil
	}
	s.metrics.RecordDBQuery(operation, "api_keys", time.Since(start).Seconds(), err)
}

func timePtrFromPgTimestamptz(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
