package repository

import (
	"context"
	"errors"

	"stackagent/internal/domain/api_key"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// APIKeyRepository defines storage operations for API keys. Stored verifier
// hashes are write-once; ReplaceVerifierHash exists solely so legacy unsalted
// hashes can be upgraded to the current format after a successful verification.
type APIKeyRepository interface {
	Store(ctx context.Context, key *api_key.APIKey) error
	GetByID(ctx context.Context, id api_key.ID) (*api_key.APIKey, error)
	List(ctx context.Context) ([]*api_key.APIKey, error)
	ReplaceVerifierHash(ctx context.Context, id api_key.ID, verifierHash string) error
	Delete(ctx context.Context, id api_key.ID) error
}
