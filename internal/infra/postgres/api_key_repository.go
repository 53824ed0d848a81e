package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stackagent/internal/domain/api_key"
	"stackagent/internal/domain/repository"
)

var _ repository.APIKeyRepository = (*APIKeyRepository)(nil)

// APIKeyRepository implements repository.APIKeyRepository backed by PostgreSQL.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository creates a new APIKeyRepository.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// Store inserts a new API key record.
func (r *APIKeyRepository) Store(ctx context.Context, k *api_key.APIKey) error {
	if k == nil {
		return fmt.Errorf("api key is nil")
	}
	if k.ID == uuid.Nil {
		return fmt.Errorf("api key id is required")
	}

	const query = `
INSERT INTO api_keys (id, verifier_hash, name, description, created_at, expires_at, created_ip, created_user_agent)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		k.ID,
		k.VerifierHash,
		k.Name,
		k.Description,
		k.CreatedAt,
		k.ExpiresAt,
		k.CreatedIP,
		k.CreatedUA,
	)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// GetByID retrieves an API key by its ID.
func (r *APIKeyRepository) GetByID(ctx context.Context, id api_key.ID) (*api_key.APIKey, error) {
	const query = `
SELECT id, verifier_hash, name, description, created_at, expires_at, created_ip, created_user_agent
FROM api_keys
WHERE id = $1`

	var k api_key.APIKey
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&k.ID,
		&k.VerifierHash,
		&k.Name,
		&k.Description,
		&k.CreatedAt,
		&k.ExpiresAt,
		&k.CreatedIP,
		&k.CreatedUA,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select api key: %w", err)
	}
	return &k, nil
}

// List returns all API keys, newest first.
func (r *APIKeyRepository) List(ctx context.Context) ([]*api_key.APIKey, error) {
	const query = `
SELECT id, verifier_hash, name, description, created_at, expires_at, created_ip, created_user_agent
FROM api_keys
ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select api keys: %w", err)
	}
	defer rows.Close()

	var keys []*api_key.APIKey
	for rows.Next() {
		var k api_key.APIKey
		if err := rows.Scan(
			&k.ID,
			&k.VerifierHash,
			&k.Name,
			&k.Description,
			&k.CreatedAt,
			&k.ExpiresAt,
			&k.CreatedIP,
			&k.CreatedUA,
		); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api keys: %w", err)
	}
	return keys, nil
}

// ReplaceVerifierHash swaps the stored verifier for a key. Used only to
// upgrade legacy unsalted hashes after a successful verification.
func (r *APIKeyRepository) ReplaceVerifierHash(ctx context.Context, id api_key.ID, verifierHash string) error {
	if verifierHash == "" {
		return fmt.Errorf("verifier hash is required")
	}

	const query = `
UPDATE api_keys
SET verifier_hash = $1
WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, verifierHash, id)
	if err != nil {
		return fmt.Errorf("update api key hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes an API key.
func (r *APIKeyRepository) Delete(ctx context.Context, id api_key.ID) error {
	const query = `DELETE FROM api_keys WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
