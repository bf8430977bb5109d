package backend

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quarryhq/quarry/internal/model"
)

// countingAdapter records how many research calls reach it
type countingAdapter struct {
	name  string
	calls atomic.Int64
}

func (c *countingAdapter) Name() string { return c.name }

func (c *countingAdapter) Research(ctx context.Context, query string, sources []model.Source) (*Result, error) {
	c.calls.Add(1)
	return &Result{
		Summary: "summary for " + query,
		Claims:  []model.ClaimDraft{{Text: "claim for " + query, Confidence: 1.0}},
	}, nil
}

func TestWithCache_RepeatedQueryHitsBackendOnce(t *testing.T) {
	inner := &countingAdapter{name: "fake"}
	adapter := WithCache(inner, time.Minute, 0)

	for i := 0; i < 3; i++ {
		res, err := adapter.Research(context.Background(), "same query", nil)
		if err != nil {
			t.Fatalf("Research failed: %v", err)
		}
		if res.Summary != "summary for same query" {
			t.Errorf("Unexpected summary: %q", res.Summary)
		}
	}

	if got := inner.calls.Load(); got != 1 {
		t.Errorf("Expected 1 backend call, got %d", got)
	}
}

func TestWithCache_DifferentQueriesMiss(t *testing.T) {
	inner := &countingAdapter{name: "fake"}
	adapter := WithCache(inner, time.Minute, 0)

	_, _ = adapter.Research(context.Background(), "query one", nil)
	_, _ = adapter.Research(context.Background(), "query two", nil)

	if got := inner.calls.Load(); got != 2 {
		t.Errorf("Expected 2 backend calls, got %d", got)
	}
}

func TestWithCache_NewSourcesMiss(t *testing.T) {
	inner := &countingAdapter{name: "fake"}
	adapter := WithCache(inner, time.Minute, 0)

	_, _ = adapter.Research(context.Background(), "q", nil)
	_, _ = adapter.Research(context.Background(), "q", []model.Source{{ID: "s1", Text: "new material"}})

	if got := inner.calls.Load(); got != 2 {
		t.Errorf("Expected sources to change the cache key, got %d calls", got)
	}
}

func TestWithCache_ReturnsCopies(t *testing.T) {
	inner := &countingAdapter{name: "fake"}
	adapter := WithCache(inner, time.Minute, 0)

	first, err := adapter.Research(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Research failed: %v", err)
	}
	first.Claims[0].Text = "mutated"

	second, err := adapter.Research(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Research failed: %v", err)
	}
	if second.Claims[0].Text == "mutated" {
		t.Error("Cache returned a shared result; callers must get copies")
	}
}

func TestWithCache_ZeroTTLDisables(t *testing.T) {
	inner := &countingAdapter{name: "fake"}
	if adapter := WithCache(inner, 0, 0); adapter != Adapter(inner) {
		t.Error("Expected zero TTL to return the adapter unwrapped")
	}
}

func TestCacheKey_Deterministic(t *testing.T) {
	sources := []model.Source{{ID: "a", Text: "text"}}
	k1 := CacheKey("backend", "query", sources)
	k2 := CacheKey("backend", "query", sources)
	if k1 != k2 {
		t.Errorf("Expected identical keys, got %s and %s", k1, k2)
	}
	if k1 == CacheKey("other", "query", sources) {
		t.Error("Expected backend name to affect the key")
	}
}
