package sitemap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := OpenCache(filepath.Join(t.TempDir(), "sitemap.db"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestCacheRoundTrip(t *testing.T) {
	cache := openTestCache(t)

	_, hit, err := cache.Get("au", time.Hour)
	if err != nil {
		t.Fatalf("get on empty cache: %v", err)
	}
	if hit {
		t.Fatal("empty cache must miss")
	}

	recipes := []Recipe{
		{URL: "u1", Name: "Beef Tacos", Slug: "beef-tacos", Region: "au"},
		{URL: "u2", Name: "Kale Salad", Slug: "kale-salad", Region: "au"},
	}
	if err := cache.Put("au", recipes); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, hit, err := cache.Get("au", time.Hour)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !hit {
		t.Fatal("expected a hit after put")
	}
	if !reflect.DeepEqual(got, recipes) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, recipes)
	}
}

func TestCacheExpiredEntryMisses(t *testing.T) {
	cache := openTestCache(t)
	if err := cache.Put("au", []Recipe{{URL: "u1", Name: "Beef Tacos"}}); err != nil {
		t.Fatalf("put: %v", err)
	}

	// A zero maxAge expires everything immediately.
	_, hit, err := cache.Get("au", 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if hit {
		t.Fatal("entry older than maxAge must miss")
	}
}

func TestCachePutReplacesExisting(t *testing.T) {
	cache := openTestCache(t)
	if err := cache.Put("au", []Recipe{{URL: "u1", Name: "Old"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := cache.Put("au", []Recipe{{URL: "u2", Name: "New"}}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, hit, err := cache.Get("au", time.Hour)
	if err != nil || !hit {
		t.Fatalf("get: hit=%v err=%v", hit, err)
	}
	if len(got) != 1 || got[0].Name != "New" {
		t.Fatalf("expected replaced row, got %+v", got)
	}
}

func TestClientServesFromCache(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(sitemapHTTP))
	}))
	defer srv.Close()

	cache := openTestCache(t)
	c := NewClient(
		WithBaseURLs(map[string]string{"test": srv.URL}),
		WithCache(cache, time.Hour),
	)

	first, err := c.Fetch(context.Background(), "test")
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	second, err := c.Fetch(context.Background(), "test")
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if hits != 1 {
		t.Fatalf("second fetch must come from the cache, server saw %d requests", hits)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("cached fetch differs:\n got %+v\nwant %+v", second, first)
	}
}
