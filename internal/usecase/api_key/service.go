package api_key

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"stackagent/internal/domain/api_key"
	"stackagent/internal/domain/repository"
	"stackagent/internal/pkg/keyhash"
	"stackagent/internal/platform/metrics"
)

// DefaultKeyPrefix is used when no prefix is configured.
const DefaultKeyPrefix = "sa_live_"

var (
	// ErrInvalidKey is returned for any key that does not verify: unknown,
	// malformed, or failing the hash check. Callers get no more detail
	// than that.
	ErrInvalidKey = errors.New("invalid api key")

	// ErrKeyExpired is returned when the key verifies but its expiry passed.
	ErrKeyExpired = errors.New("api key expired")
)

// VerifyCache remembers recently verified keys by digest so hot keys skip the
// key-derivation cost. Implementations must be safe for concurrent use and
// treat every failure as a miss.
type VerifyCache interface {
	Get(ctx context.Context, digest string) (api_key.ID, bool)
	Set(ctx context.Context, digest string, id api_key.ID)
}

// ListCache caches key listings.
type ListCache interface {
	Get(ctx context.Context) ([]*api_key.APIKey, bool)
	Set(ctx context.Context, keys []*api_key.APIKey)
	Invalidate(ctx context.Context)
}

// Observer records verification outcomes, typically into Prometheus.
type Observer interface {
	ObserveVerification(result string)
}

// Config bundles Service dependencies. Repo is required; the caches and
// observer are optional.
type Config struct {
	Repo        repository.APIKeyRepository
	KeyPrefix   string
	VerifyCache VerifyCache
	ListCache   ListCache
	Observer    Observer
	Logger      *slog.Logger
}

// Service issues, verifies, lists and revokes API keys. The plaintext of an
// issued key is "<prefix><key-id>.<secret>": the embedded ID locates the
// stored verifier, and only the secret part feeds the hasher.
type Service struct {
	repo        repository.APIKeyRepository
	keyPrefix   string
	verifyCache VerifyCache
	listCache   ListCache
	observer    Observer
	logger      *slog.Logger
}

// NewService creates a new API key service.
func NewService(cfg Config) *Service {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        cfg.Repo,
		keyPrefix:   prefix,
		verifyCache: cfg.VerifyCache,
		listCache:   cfg.ListCache,
		observer:    cfg.Observer,
		logger:      logger,
	}
}

// GenerateParams contains parameters for generating an API key.
type GenerateParams struct {
	Name        *string
	Description *string
	ExpiresAt   *time.Time
	CreatedIP   *string
	CreatedUA   *string
}

// GeneratedAPIKey carries a newly generated key with its plaintext value.
// The plaintext exists only in this struct; it is never persisted or logged.
type GeneratedAPIKey struct {
	ID          uuid.UUID
	Key         string
	Name        *string
	Description *string
	CreatedAt   time.Time
	ExpiresAt   *time.Time
}

// GenerateAPIKey creates a new API key and stores only its verifier hash.
func (s *Service) GenerateAPIKey(ctx context.Context, params GenerateParams) (*GeneratedAPIKey, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("api key service not initialized")
	}

	id := uuid.New()

	secret, verifier, err := keyhash.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate api key: %w", err)
	}
	plaintext := s.keyPrefix + id.String() + "." + secret

	now := time.Now().UTC()

	key, err := api_key.New(api_key.Params{
		ID:           id,
		VerifierHash: verifier,
		Name:         params.Name,
		Description:  params.Description,
		CreatedAt:    now,
		ExpiresAt:    params.ExpiresAt,
		CreatedIP:    params.CreatedIP,
		CreatedUA:    params.CreatedUA,
	})
	if err != nil {
		return nil, fmt.Errorf("create api key domain object: %w", err)
	}

	if err := s.repo.Store(ctx, key); err != nil {
		return nil, fmt.Errorf("store api key: %w", err)
	}
	s.invalidateList(ctx)

	return &GeneratedAPIKey{
		ID:          id,
		Key:         plaintext,
		Name:        params.Name,
		Description: params.Description,
		CreatedAt:   now,
		ExpiresAt:   params.ExpiresAt,
	}, nil
}

// VerifyAPIKey checks a presented plaintext key and returns the matching
// record. Unknown, malformed and non-matching keys all come back as
// ErrInvalidKey. A key whose stored verifier is still in the legacy unsalted
// format is re-hashed to the current format after a successful match.
func (s *Service) VerifyAPIKey(ctx context.Context, presented string) (*api_key.APIKey, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("api key service not initialized")
	}

	id, secret, ok := s.splitKey(presented)
	if !ok {
		s.observe(metrics.VerifyResultInvalid)
		return nil, ErrInvalidKey
	}

	key, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.observe(metrics.VerifyResultInvalid)
			return nil, ErrInvalidKey
		}
		return nil, fmt.Errorf("load api key: %w", err)
	}

	if key.Expired(time.Now().UTC()) {
		s.observe(metrics.VerifyResultExpired)
		return nil, ErrKeyExpired
	}

	// The cache only skips the key derivation; existence and expiry were
	// already checked against the repository, so revocation stays immediate.
	digest := presentedDigest(presented)
	if s.verifyCache != nil {
		if cachedID, hit := s.verifyCache.Get(ctx, digest); hit && cachedID == key.ID {
			s.observe(metrics.VerifyResultOK)
			return key, nil
		}
	}

	matched, legacy := keyhash.VerifyDetail(secret, key.VerifierHash)
	if !matched {
		s.observe(metrics.VerifyResultInvalid)
		return nil, ErrInvalidKey
	}

	if legacy {
		s.upgradeLegacyHash(ctx, key, secret)
		s.observe(metrics.VerifyResultLegacyUpgraded)
	} else {
		s.observe(metrics.VerifyResultOK)
	}

	if s.verifyCache != nil {
		s.verifyCache.Set(ctx, digest, key.ID)
	}
	return key, nil
}

// RevokeAPIKey deletes a key. Verification consults the repository on every
// call, so a revoked key stops working immediately even if its digest is
// still in the verify cache.
func (s *Service) RevokeAPIKey(ctx context.Context, id api_key.ID) error {
	if s.repo == nil {
		return fmt.Errorf("api key service not initialized")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	s.invalidateList(ctx)
	return nil
}

// ListAPIKeys returns all stored keys, via the list cache when warm.
func (s *Service) ListAPIKeys(ctx context.Context) ([]*api_key.APIKey, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("api key service not initialized")
	}

	if s.listCache != nil {
		if keys, hit := s.listCache.Get(ctx); hit {
			return keys, nil
		}
	}

	keys, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}

	if s.listCache != nil {
		s.listCache.Set(ctx, keys)
	}
	return keys, nil
}

// splitKey takes the presented plaintext apart into record ID and secret.
func (s *Service) splitKey(presented string) (api_key.ID, string, bool) {
	rest, found := strings.CutPrefix(presented, s.keyPrefix)
	if !found {
		return uuid.Nil, "", false
	}
	idPart, secret, found := strings.Cut(rest, ".")
	if !found || secret == "" {
		return uuid.Nil, "", false
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.Nil, "", false
	}
	return id, secret, true
}

// upgradeLegacyHash replaces a legacy unsalted verifier with a freshly salted
// one. Failures are logged and swallowed: the verification itself succeeded,
// and the legacy record keeps working until the next attempt.
func (s *Service) upgradeLegacyHash(ctx context.Context, key *api_key.APIKey, secret string) {
	newHash, err := keyhash.Hash(secret)
	if err != nil {
		s.logger.Error("failed to re-hash legacy api key", "key_id", key.ID, "error", err)
		return
	}
	if err := s.repo.ReplaceVerifierHash(ctx, key.ID, newHash); err != nil {
		s.logger.Error("failed to upgrade legacy api key hash", "key_id", key.ID, "error", err)
		return
	}
	key.VerifierHash = newHash
	s.logger.Info("upgraded legacy api key hash", "key_id", key.ID)
}

func (s *Service) invalidateList(ctx context.Context) {
	if s.listCache != nil {
		s.listCache.Invalidate(ctx)
	}
}

func (s *Service) observe(result string) {
	if s.observer != nil {
		s.observer.ObserveVerification(result)
	}
}

func presentedDigest(presented string) string {
	sum := sha256.Sum256([]byte(presented))
	return hex.EncodeToString(sum[:])
}
