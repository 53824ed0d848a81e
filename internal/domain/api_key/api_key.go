package api_key

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ID is the unique identifier for an API key.
type ID = uuid.UUID

// APIKey represents an issued API key. VerifierHash is the only credential
// material that is ever persisted; the plaintext secret is shown to the
// caller once at issue time and never stored.
type APIKey struct {
	ID           ID
	VerifierHash string
	Name         *string
	Description  *string
	CreatedAt    time.Time
	ExpiresAt    *time.Time
	CreatedIP    *string
	CreatedUA    *string
}

// Params contains parameters for creating an API key.
type Params struct {
	ID           ID
	VerifierHash string
	Name         *string
	Description  *string
	CreatedAt    time.Time
	ExpiresAt    *time.Time
	CreatedIP    *string
	CreatedUA    *string
}

var (
	// ErrInvalidAPIKey is returned when API key validation fails.
	ErrInvalidAPIKey = errors.New("invalid API key")
)

// New creates a new APIKey with validation.
func New(params Params) (*APIKey, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	return &APIKey{
		ID:           params.ID,
		VerifierHash: params.VerifierHash,
		Name:         params.Name,
		Description:  params.Description,
		CreatedAt:    params.CreatedAt,
		ExpiresAt:    params.ExpiresAt,
		CreatedIP:    params.CreatedIP,
		CreatedUA:    params.CreatedUA,
	}, nil
}

// Expired reports whether the key's expiry has passed relative to now.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}

func validateParams(params Params) error {
	if params.VerifierHash == "" {
		return fmt.Errorf("%w: verifier_hash is required", ErrInvalidAPIKey)
	}

	if params.Name != nil && len(*params.Name) > 100 {
		return fmt.Errorf("%w: name must be at most 100 characters", ErrInvalidAPIKey)
	}

	if params.Description != nil && len(*params.Description) > 500 {
		return fmt.Errorf("%w: description must be at most 500 characters", ErrInvalidAPIKey)
	}

	if params.ExpiresAt != nil && !params.CreatedAt.IsZero() && params.ExpiresAt.Before(params.CreatedAt) {
		return fmt.Errorf("%w: expires_at must be after created_at", ErrInvalidAPIKey)
	}

	return nil
}
