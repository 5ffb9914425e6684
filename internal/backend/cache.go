package backend

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache is the injected response cache. Implementations must be safe for
// concurrent use; chunk extractions hit the cache from multiple goroutines.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, val any)
}

// TTLCache is an in-memory Cache with per-entry expiry.
type TTLCache struct {
	c *gocache.Cache
}

// NewTTLCache returns a TTLCache whose entries expire after ttl.
func NewTTLCache(ttl time.Duration) *TTLCache {
	return &TTLCache{c: gocache.New(ttl, 2*ttl)}
}

func (t *TTLCache) Get(key string) (any, bool) {
	return t.c.Get(key)
}

func (t *TTLCache) Set(key string, val any) {
	t.c.SetDefault(key, val)
}

// Fingerprint derives a cache key from a content sample and its source.
// Only the first sampleChars bytes participate, so trailing churn (footers,
// timestamps) does not defeat the cache.
func Fingerprint(content, sourceURL string, sampleChars int) string {
	if sampleChars > 0 && len(content) > sampleChars {
		content = content[:sampleChars]
	}
	h := sha256.New()
	h.Write([]byte(content))
	h.Write([]byte{0})
	h.Write([]byte(sourceURL))
	return hex.EncodeToString(h.Sum(nil))
}
