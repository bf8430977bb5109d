package backend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/quarryhq/quarry/internal/model"
)

// cached memoizes research results so a repeated query within the TTL does
// not hit the backend again. Results are copied on both store and load;
// callers may mutate what they get back.
type cached struct {
	Adapter
	cache *gocache.Cache
	ttl   time.Duration
}

// WithCache wraps an adapter with a TTL result cache.
// A non-positive ttl returns the adapter unwrapped.
func WithCache(a Adapter, ttl, cleanupInterval time.Duration) Adapter {
	if ttl <= 0 {
		return a
	}
	return &cached{
		Adapter: a,
		cache:   gocache.New(ttl, cleanupInterval),
		ttl:     ttl,
	}
}

// CacheKey builds the cache key for one backend call. Sources are part of
// the key: the same query with new material must reach the backend.
func CacheKey(backendName, query string, sources []model.Source) string {
	h := sha256.New()
	h.Write([]byte(backendName))
	h.Write([]byte{0})
	h.Write([]byte(query))
	for _, src := range sources {
		h.Write([]byte{0})
		h.Write([]byte(src.ID))
		h.Write([]byte{0})
		h.Write([]byte(src.Text))
	}
	return "quarry:v1:" + hex.EncodeToString(h.Sum(nil))
}

func (c *cached) Research(ctx context.Context, query string, sources []model.Source) (*Result, error) {
	key := CacheKey(c.Name(), query, sources)
	if v, found := c.cache.Get(key); found {
		return copyResult(v.(*Result)), nil
	}

	res, err := c.Adapter.Research(ctx, query, sources)
	if err != nil {
		return nil, err
	}

	c.cache.Set(key, copyResult(res), c.ttl)
	return res, nil
}

func copyResult(r *Result) *Result {
	dup := &Result{
		Summary: r.Summary,
		Raw:     r.Raw,
	}
	if r.Claims != nil {
		dup.Claims = make([]model.ClaimDraft, len(r.Claims))
		for i, cl := range r.Claims {
			dup.Claims[i] = model.ClaimDraft{
				Text:       cl.Text,
				SourceURLs: append([]string(nil), cl.SourceURLs...),
				SourceIDs:  append([]string(nil), cl.SourceIDs...),
				Confidence: cl.Confidence,
			}
		}
	}
	return dup
}
