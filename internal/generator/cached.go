package generator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
)

// Cached memoizes successful completions of an inner Generator. Failures are
// never cached.
type Cached struct {
	inner Generator
	cache *cache.Cache
}

// NewCached wraps inner with a response cache whose entries live for ttl.
func NewCached(inner Generator, ttl time.Duration) *Cached {
	return &Cached{
		inner: inner,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Complete implements Generator.
func (c *Cached) Complete(ctx context.Context, system, user string, temperature float64) (string, error) {
	key := cacheKey("text", system, user, temperature)
	if v, ok := c.cache.Get(key); ok {
		CacheHits.Inc()
		return v.(string), nil
	}

	text, err := c.inner.Complete(ctx, system, user, temperature)
	if err != nil {
		return "", err
	}
	c.cache.SetDefault(key, text)
	return text, nil
}

// CompleteJSON implements Generator. The raw JSON is cached and decoded into
// out on every hit.
func (c *Cached) CompleteJSON(ctx context.Context, system, user string, temperature float64, out any) error {
	key := cacheKey("json", system, user, temperature)
	if v, ok := c.cache.Get(key); ok {
		if err := json.Unmarshal(v.([]byte), out); err == nil {
			CacheHits.Inc()
			return nil
		}
		c.cache.Delete(key)
	}

	if err := c.inner.CompleteJSON(ctx, system, user, temperature, out); err != nil {
		return err
	}
	if raw, err := json.Marshal(out); err == nil {
		c.cache.SetDefault(key, raw)
	}
	return nil
}

// Flush drops every cached response.
func (c *Cached) Flush() {
	c.cache.Flush()
}

func cacheKey(kind, system, user string, temperature float64) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(system))
	h.Write([]byte{0})
	h.Write([]byte(user))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(temperature, 'f', -1, 64)))
	return hex.EncodeToString(h.Sum(nil))
}
