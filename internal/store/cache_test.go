package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/onetwotrip/punk/internal/record"
)

type fakeFetcher struct {
	docs  []record.RawDocument
	err   error
	calls int
}

func (f *fakeFetcher) FetchEnvironment(ctx context.Context, env string) ([]record.RawDocument, error) {
	f.calls++
	return f.docs, f.err
}

func testDocs(t *testing.T) []record.RawDocument {
	t.Helper()
	var doc record.RawDocument
	blob := `{"web": {"frag": {"branch": "main"}}}`
	if err := json.Unmarshal([]byte(blob), &doc); err != nil {
		t.Fatalf("failed to decode test document: %v", err)
	}
	return []record.RawDocument{doc}
}

func setupTestCache(t *testing.T, next Fetcher, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	cache, err := NewCache("redis://"+s.Addr(), next, ttl)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	return cache, s
}

func TestCacheMissPopulatesAndHitSkipsFetcher(t *testing.T) {
	next := &fakeFetcher{docs: testDocs(t)}
	cache, s := setupTestCache(t, next, time.Minute)
	defer cache.Close()
	defer s.Close()

	ctx := context.Background()

	docs, err := cache.FetchEnvironment(ctx, "staging")
	if err != nil {
		t.Fatalf("FetchEnvironment failed: %v", err)
	}
	if len(docs) != 1 || next.calls != 1 {
		t.Fatalf("expected one fetch on miss, got %d docs after %d calls", len(docs), next.calls)
	}

	docs, err = cache.FetchEnvironment(ctx, "staging")
	if err != nil {
		t.Fatalf("FetchEnvironment failed on hit: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected cached documents, got %d", len(docs))
	}
	if next.calls != 1 {
		t.Errorf("cache hit should not touch the underlying fetcher, got %d calls", next.calls)
	}
}

func TestCacheExpiry(t *testing.T) {
	next := &fakeFetcher{docs: testDocs(t)}
	cache, s := setupTestCache(t, next, time.Second)
	defer cache.Close()
	defer s.Close()

	ctx := context.Background()
	if _, err := cache.FetchEnvironment(ctx, "staging"); err != nil {
		t.Fatalf("FetchEnvironment failed: %v", err)
	}

	s.FastForward(2 * time.Second)

	if _, err := cache.FetchEnvironment(ctx, "staging"); err != nil {
		t.Fatalf("FetchEnvironment failed after expiry: %v", err)
	}
	if next.calls != 2 {
		t.Errorf("expected refetch after TTL, got %d calls", next.calls)
	}
}

func TestCacheDoesNotStoreEmptyResults(t *testing.T) {
	next := &fakeFetcher{}
	cache, s := setupTestCache(t, next, time.Minute)
	defer cache.Close()
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		docs, err := cache.FetchEnvironment(ctx, "empty")
		if err != nil {
			t.Fatalf("FetchEnvironment failed: %v", err)
		}
		if len(docs) != 0 {
			t.Fatalf("expected no documents, got %d", len(docs))
		}
	}
	if next.calls != 2 {
		t.Errorf("empty results should not be cached, got %d calls", next.calls)
	}
}

func TestCachePropagatesFetchErrors(t *testing.T) {
	next := &fakeFetcher{err: errors.New("index unreachable")}
	cache, s := setupTestCache(t, next, time.Minute)
	defer cache.Close()
	defer s.Close()

	if _, err := cache.FetchEnvironment(context.Background(), "staging"); err == nil {
		t.Errorf("expected fetch error to propagate")
	}
}

func TestCacheSurvivesRedisOutage(t *testing.T) {
	next := &fakeFetcher{docs: testDocs(t)}
	cache, s := setupTestCache(t, next, time.Minute)
	defer cache.Close()

	s.Close()

	docs, err := cache.FetchEnvironment(context.Background(), "staging")
	if err != nil {
		t.Fatalf("cache outage should fall through to the fetcher: %v", err)
	}
	if len(docs) != 1 || next.calls != 1 {
		t.Errorf("expected direct fetch during outage, got %d docs after %d calls", len(docs), next.calls)
	}
}
