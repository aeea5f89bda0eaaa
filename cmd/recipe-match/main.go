package main

import (
	"context"
	"encoding/json"
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
	"github.com/joelkehle/recipe-importer/internal/report"
	"github.com/joelkehle/recipe-importer/internal/sitemap"
)

func main() {
	titlesPath := flag.String("titles", "", "Path to scanned titles JSON (array of strings or of {\"title\": ...} objects)")
	outputPath := flag.String("output", "matches.json", "Path to write match results JSON")
	reportPath := flag.String("report", "", "Optional path to write a markdown run report")
	regionsFlag := flag.String("regions", "au", "Comma-separated sitemap regions (au,uk,us,de,nz)")
	batchSize := flag.Int("batch-size", matcher.DefaultBatchSize, "Titles per completion call")
	maxCandidates := flag.Int("max-candidates", matcher.DefaultMaxCandidates, "Prefiltered candidates per title")
	rpm := flag.Int("rpm", 20, "Completion calls per minute (0 disables pacing)")
	model := flag.String("model", "", "Completion model (default from RECIPE_MATCH_LLM_MODEL)")
	callTimeout := flag.Duration("call-timeout", 60*time.Second, "Timeout per completion call")
	cachePath := flag.String("cache", defaultCachePath(), "Sitemap cache database path")
	noCache := flag.Bool("no-cache", false, "Bypass the sitemap cache")
	flag.Parse()

	if *titlesPath == "" {
		log.Fatal("missing required -titles")
	}

	titles, err := loadTitles(*titlesPath)
	if err != nil {
		log.Fatalf("load titles: %v", err)
	}
	if len(titles) == 0 {
		log.Fatal("no titles found in input")
	}
	log.Printf("recipe-match titles_loaded path=%s count=%d", *titlesPath, len(titles))

	var completer *matcher.AnthropicCompleter
	if *model != "" {
		completer, err = matcher.NewAnthropicCompleter(os.Getenv("ANTHROPIC_API_KEY"), *model)
	} else {
		completer, err = matcher.NewAnthropicCompleterFromEnv()
	}
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	regions := splitRegions(*regionsFlag)
	catalog, err := fetchCatalog(ctx, regions, *cachePath, *noCache)
	if err != nil {
		log.Fatalf("fetch catalog: %v", err)
	}

	var cache matcher.IndexCache
	idx := cache.Get(catalog)

	startedAt := time.Now()
	rec := matcher.NewReconciler(completer, matcher.ReconcilerConfig{
		BatchSize:         *batchSize,
		MaxCandidates:     *maxCandidates,
		CallTimeout:       *callTimeout,
		RequestsPerMinute: *rpm,
		Progress: func(processed, total int) {
			log.Printf("recipe-match progress processed=%d total=%d", processed, total)
		},
	})

	results, runErr := rec.Run(ctx, titles, catalog, idx)
	if runErr != nil {
		log.Printf("recipe-match run_interrupted err=%q results_so_far=%d", runErr.Error(), len(results))
	}

	if err := matcher.SaveResults(*outputPath, results); err != nil {
		log.Fatalf("save results: %v", err)
	}
	summary := matcher.Summarize(results)
	log.Printf("recipe-match saved path=%s total=%d matched=%d unmatched=%d rate=%s high=%d medium=%d low=%d",
		*outputPath, summary.Total, summary.Matched, summary.Unmatched, summary.MatchRate,
		summary.ByConfidence.High, summary.ByConfidence.Medium, summary.ByConfidence.Low)

	if *reportPath != "" {
		md := report.BuildMarkdown(results, summary, report.RunMeta{
			Regions:     regions,
			CatalogSize: len(catalog),
			Model:       completer.ModelName(),
			StartedAt:   startedAt,
			CompletedAt: time.Now(),
		})
		if err := os.WriteFile(*reportPath, []byte(md), 0o644); err != nil {
			log.Fatalf("write report: %v", err)
		}
		log.Printf("recipe-match report_written path=%s", *reportPath)
	}

	if runErr != nil {
		os.Exit(1)
	}
}

func fetchCatalog(ctx context.Context, regions []string, cachePath string, noCache bool) ([]matcher.CatalogEntry, error) {
	var opts []sitemap.ClientOption
	if !noCache && cachePath != "" {
		if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
		cache, err := sitemap.OpenCache(cachePath)
		if err != nil {
			return nil, fmt.Errorf("open sitemap cache: %w", err)
		}
		defer cache.Close()
		opts = append(opts, sitemap.WithCache(cache, 24*time.Hour))
	}
	client := sitemap.NewClient(opts...)
	recipes, err := client.FetchAll(ctx, regions)
	if err != nil {
		return nil, err
	}
	return sitemap.Catalog(sitemap.Dedupe(recipes)), nil
}

// loadTitles accepts either a plain array of strings or the OCR stage's
// output of objects carrying a "title" field. Empty titles are dropped.
func loadTitles(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var asStrings []string
	if err := json.Unmarshal(b, &asStrings); err == nil {
		return compactTitles(asStrings), nil
	}

	var asObjects []struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(b, &asObjects); err != nil {
		return nil, fmt.Errorf("titles must be a JSON array of strings or {\"title\": ...} objects: %w", err)
	}
	titles := make([]string, 0, len(asObjects))
	for _, o := range asObjects {
		titles = append(titles, o.Title)
	}
	return compactTitles(titles), nil
}

func compactTitles(titles []string) []string {
	out := titles[:0]
	for _, t := range titles {
		if strings.TrimSpace(t) != "" {
			out = append(out, t)
		}
	}
	return out
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
