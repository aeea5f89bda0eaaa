package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joelkehle/recipe-importer/internal/matcher"
	"github.com/joelkehle/recipe-importer/internal/sitemap"
)

func main() {
	query := flag.String("query", "", "Search term to rank catalog entries against")
	regionsFlag := flag.String("regions", "au", "Comma-separated sitemap regions (au,uk,us,de,nz)")
	limit := flag.Int("limit", 10, "Maximum hits to print")
	cachePath := flag.String("cache", defaultCachePath(), "Sitemap cache database path")
	noCache := flag.Bool("no-cache", false, "Bypass the sitemap cache")
	flag.Parse()

	if strings.TrimSpace(*query) == "" {
		log.Fatal("missing required -query")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var opts []sitemap.ClientOption
	if !*noCache && *cachePath != "" {
		if err := os.MkdirAll(filepath.Dir(*cachePath), 0o755); err != nil {
			log.Fatalf("create cache dir: %v", err)
		}
		cache, err := sitemap.OpenCache(*cachePath)
		if err != nil {
			log.Fatalf("open sitemap cache: %v", err)
		}
		defer cache.Close()
		opts = append(opts, sitemap.WithCache(cache, 24*time.Hour))
	}

	recipes, err := sitemap.NewClient(opts...).FetchAll(ctx, splitRegions(*regionsFlag))
	if err != nil {
		log.Fatalf("fetch catalog: %v", err)
	}
	catalog := sitemap.Catalog(sitemap.Dedupe(recipes))

	idx := matcher.BuildIndex(catalog)
	hits := matcher.PrefilterScored(*query, catalog, idx, *limit)
	if len(hits) == 0 {
		fmt.Printf("no catalog entries matched %q\n", *query)
		return
	}
	for i, h := range hits {
		fmt.Printf("%2d. %.3f  %s\n    %s\n", i+1, h.Score, h.Entry.Name, h.Entry.URL)
	}
}

func splitRegions(s string) []string {
	var out []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "sitemap-cache.db"
	}
	return filepath.Join(dir, "recipe-importer", "sitemap.db")
}
