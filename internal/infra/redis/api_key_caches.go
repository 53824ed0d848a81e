package redis

import (
	"context"
	"time"

	"github.com/google/uuid"

	"stackagent/internal/domain/api_key"
	"stackagent/internal/platform/cache"
	usecaseAPIKey "stackagent/internal/usecase/api_key"
)

const (
	verifiedKeyPrefix = "api_key:verified:"
	keyListCacheKey   = "api_key:list"
)

type stringCacheClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

var _ usecaseAPIKey.VerifyCache = (*VerifyCache)(nil)

// VerifyCache remembers digests of recently verified keys so repeat requests
// skip the key-derivation work. Entries are TTL-bounded and hold only a
// SHA-256 digest and the key ID, never any plaintext.
type VerifyCache struct {
	client stringCacheClient
	ttl    time.Duration
}

// NewVerifyCache creates a VerifyCache. A non-positive ttl disables it.
func NewVerifyCache(client *cache.Cache, ttl time.Duration) *VerifyCache {
	return &VerifyCache{client: client, ttl: ttl}
}

// Get looks up a verified digest. Any failure is a miss.
func (c *VerifyCache) Get(ctx context.Context, digest string) (api_key.ID, bool) {
	if c.ttl <= 0 {
		return uuid.Nil, false
	}
	val, err := c.client.Get(ctx, verifiedKeyPrefix+digest)
	if err != nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Set records a verified digest. Failures are swallowed; the next
// verification just pays the derivation cost again.
func (c *VerifyCache) Set(ctx context.Context, digest string, id api_key.ID) {
	if c.ttl <= 0 {
		return
	}
	_ = c.client.Set(ctx, verifiedKeyPrefix+digest, id.String(), c.ttl)
}

var _ usecaseAPIKey.ListCache = (*KeyListCache)(nil)

// KeyListCache caches the full key listing as snappy-compressed JSON.
type KeyListCache struct {
	cache *snappyJSONCache
}

// NewKeyListCache creates a KeyListCache.
func NewKeyListCache(client *cache.Cache, ttl time.Duration) *KeyListCache {
	return &KeyListCache{cache: newSnappyJSONCache(client, ttl)}
}

// Get returns the cached listing, or a miss on any failure.
func (c *KeyListCache) Get(ctx context.Context) ([]*api_key.APIKey, bool) {
	var keys []*api_key.APIKey
	hit, err := c.cache.Get(ctx, keyListCacheKey, &keys)
	if err != nil || !hit {
		return nil, false
	}
	return keys, true
}

// Set stores the listing.
func (c *KeyListCache) Set(ctx context.Context, keys []*api_key.APIKey) {
	_ = c.cache.Set(ctx, keyListCacheKey, keys)
}

// Invalidate drops the cached listing.
func (c *KeyListCache) Invalidate(ctx context.Context) {
	_ = c.cache.Delete(ctx, keyListCacheKey)
}
