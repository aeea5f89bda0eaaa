package matcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const maxChunkAttempts = 3

// ProgressFn receives (processed, total) pending-title counts after each
// disambiguation chunk. It decouples the reconciler from any particular UI.
type ProgressFn func(processed, total int)

// ReconcilerConfig carries the tunables of a matching run. Zero values fall
// back to the defaults.
type ReconcilerConfig struct {
	BatchSize     int
	MaxCandidates int

	// CallTimeout bounds each completion call. A timed-out call is a chunk
	// failure like any other, never fatal to the run.
	CallTimeout time.Duration

	// RequestsPerMinute paces completion calls with a token bucket.
	// Zero disables pacing (tests).
	RequestsPerMinute int

	Progress ProgressFn
}

// Reconciler resolves query titles against a catalog: prefilter per title,
// then chunked disambiguation through a Completer, then order restoration.
type Reconciler struct {
	completer Completer
	limiter   *rate.Limiter
	cfg       ReconcilerConfig
}

func NewReconciler(completer Completer, cfg ReconcilerConfig) *Reconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultMaxCandidates
	}
	r := &Reconciler{completer: completer, cfg: cfg}
	if cfg.RequestsPerMinute > 0 {
		r.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return r
}

type pendingTitle struct {
	originalIndex int
	title         string
	candidates    []CatalogEntry
}

// chunkItem is the wire shape of one element of the model's JSON array
// response. Index is 1-based and chunk-local.
type chunkItem struct {
	Index       int     `json:"index"`
	Scanned     string  `json:"scanned"`
	MatchedURL  *string `json:"matched_url"`
	MatchedName *string `json:"matched_name"`
	Confidence  *string `json:"confidence"`
}

// Run matches every title and returns exactly one MatchResult per input
// title, ordered by original index. Per-chunk failures degrade to failed
// results; the only errors returned are cancellation between chunks, in which
// case the results accumulated so far accompany the error.
//
// The catalog and index are treated as read-only; idx must have been built
// from this exact catalog.
func (r *Reconciler) Run(ctx context.Context, titles []string, catalog []CatalogEntry, idx Index) ([]MatchResult, error) {
	results := make([]MatchResult, 0, len(titles))
	pending := make([]pendingTitle, 0, len(titles))

	for i, title := range titles {
		candidates := Prefilter(title, catalog, idx, r.cfg.MaxCandidates)
		if len(candidates) == 0 {
			// Terminal no-match outcome, no completion cost spent.
			results = append(results, MatchResult{OriginalIndex: i, ScannedTitle: title})
			continue
		}
		pending = append(pending, pendingTitle{originalIndex: i, title: title, candidates: candidates})
	}
	log.Printf("recipe-match prefilter_done titles=%d pending=%d skipped=%d", len(titles), len(pending), len(titles)-len(pending))

	chunks := chunkPending(pending, r.cfg.BatchSize)
	processed := 0
	for ci, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			SortResults(results)
			return results, err
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				SortResults(results)
				return results, err
			}
		}

		pooled := poolCandidates(chunk)
		log.Printf("recipe-match chunk_start chunk=%d/%d titles=%d candidates=%d", ci+1, len(chunks), len(chunk), len(pooled))

		items, err := r.callChunk(ctx, chunk, pooled)
		if err != nil {
			cerr := &ChunkError{Chunk: ci + 1, Err: err}
			log.Printf("recipe-match chunk_failed chunk=%d/%d err=%q", ci+1, len(chunks), err.Error())
			for _, p := range chunk {
				results = append(results, MatchResult{
					OriginalIndex: p.originalIndex,
					ScannedTitle:  p.title,
					Err:           cerr.Error(),
				})
			}
		} else {
			results = append(results, remapChunk(chunk, items)...)
		}

		processed += len(chunk)
		if r.cfg.Progress != nil {
			r.cfg.Progress(processed, len(pending))
		}
	}

	SortResults(results)
	return results, nil
}

func chunkPending(pending []pendingTitle, size int) [][]pendingTitle {
	var chunks [][]pendingTitle
	for start := 0; start < len(pending); start += size {
		end := start + size
		if end > len(pending) {
			end = len(pending)
		}
		chunks = append(chunks, pending[start:end])
	}
	return chunks
}

// poolCandidates unions the candidate sets of a chunk, deduplicated by URL
// keeping first-seen order. The same recipe commonly surfaces for several
// titles in one chunk; pooling keeps the prompt small.
func poolCandidates(chunk []pendingTitle) []CatalogEntry {
	seen := make(map[string]struct{})
	var pooled []CatalogEntry
	for _, p := range chunk {
		for _, c := range p.candidates {
			if _, ok := seen[c.URL]; ok {
				continue
			}
			seen[c.URL] = struct{}{}
			pooled = append(pooled, c)
		}
	}
	return pooled
}

// callChunk issues one completion call for a chunk, with per-call timeout and
// bounded retries on retryable transport failures, and parses the response.
func (r *Reconciler) callChunk(ctx context.Context, chunk []pendingTitle, pooled []CatalogEntry) ([]chunkItem, error) {
	prompt := buildMatchingPrompt(chunk, pooled)

	var raw string
	var lastErr error
	for attempt := 1; attempt <= maxChunkAttempts; attempt++ {
		callCtx := ctx
		cancel := func() {}
		if r.cfg.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, r.cfg.CallTimeout)
		}
		out, err := r.completer.Complete(callCtx, prompt)
		cancel()
		if err == nil {
			raw = out
			lastErr = nil
			break
		}
		lastErr = err
		class := classifyTransportError(err)
		if !retryable(class) || attempt == maxChunkAttempts {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if err := sleepCtx(ctx, backoffDelay(attempt)); err != nil {
			break
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("completion transport failure: %w", lastErr)
	}

	clean := stripCodeFences(raw)
	if strings.TrimSpace(clean) == "" {
		return nil, fmt.Errorf("empty completion response")
	}
	var items []chunkItem
	if err := json.Unmarshal([]byte(clean), &items); err != nil {
		return nil, fmt.Errorf("parse completion response: %w", err)
	}
	return items, nil
}

// remapChunk maps 1-based chunk-local indices back to original indices and
// enforces the result invariants: out-of-range or duplicate indices are
// dropped rather than attached to a wrong title, every title in the chunk
// yields exactly one result, and confidence is set if and only if a URL is.
func remapChunk(chunk []pendingTitle, items []chunkItem) []MatchResult {
	byLocal := make(map[int]chunkItem, len(items))
	for _, it := range items {
		if it.Index < 1 || it.Index > len(chunk) {
			log.Printf("recipe-match drop_out_of_range index=%d chunk_size=%d", it.Index, len(chunk))
			continue
		}
		if _, dup := byLocal[it.Index]; dup {
			continue
		}
		byLocal[it.Index] = it
	}

	out := make([]MatchResult, 0, len(chunk))
	for i, p := range chunk {
		res := MatchResult{OriginalIndex: p.originalIndex, ScannedTitle: p.title}
		it, ok := byLocal[i+1]
		if !ok {
			res.Err = "missing from completion response"
			out = append(out, res)
			continue
		}
		if it.MatchedURL != nil && *it.MatchedURL != "" {
			res.MatchedURL = *it.MatchedURL
			if it.MatchedName != nil {
				res.MatchedName = *it.MatchedName
			}
			res.Confidence = ConfidenceLow
			if it.Confidence != nil {
				if c, parsed := ParseConfidence(strings.ToLower(strings.TrimSpace(*it.Confidence))); parsed {
					res.Confidence = c
				}
			}
		}
		out = append(out, res)
	}
	return out
}

func buildMatchingPrompt(chunk []pendingTitle, pooled []CatalogEntry) string {
	var b strings.Builder
	b.WriteString("You are matching OCR-scanned recipe titles to their official catalog recipe URLs.\n\n")

	b.WriteString("## Scanned Titles (may have OCR errors, typos, or partial text):\n")
	for i, p := range chunk {
		fmt.Fprintf(&b, "%d. %s\n", i+1, p.title)
	}

	b.WriteString("\n## Available Recipes (Name | URL):\n")
	for _, c := range pooled {
		fmt.Fprintf(&b, "- %s | %s\n", c.Name, c.URL)
	}

	b.WriteString(`
## Instructions:
For each scanned title, find the BEST matching recipe URL.

Consider these common OCR issues:
- Character substitutions: 0<->O, 1<->l<->I, 5<->S, 8<->B
- Missing or extra spaces
- Truncated words
- Minor spelling variations

Assign confidence levels:
- "high": Near-exact match, clearly the same recipe
- "medium": Likely match with minor differences
- "low": Possible match but uncertain
- null for matched_url if no reasonable match exists

## Response Format:
Return ONLY a JSON array (no markdown, no explanation):
[
  {"index": 1, "scanned": "original title", "matched_url": "https://...", "matched_name": "Recipe Name", "confidence": "high"},
  {"index": 2, "scanned": "another title", "matched_url": null, "matched_name": null, "confidence": null}
]
`)
	return b.String()
}
