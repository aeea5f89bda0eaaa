package matcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type fakeCompleter struct {
	calls   int
	prompts []string
	respond func(prompt string) (string, error)
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	return f.respond(prompt)
}

func (f *fakeCompleter) ModelName() string { return "fake-model" }

func newTestReconciler(f *fakeCompleter, batchSize int) *Reconciler {
	return NewReconciler(f, ReconcilerConfig{BatchSize: batchSize})
}

// matchItemJSON builds one response array element for a fake completion.
func matchItemJSON(index int, url, name, confidence string) string {
	if url == "" {
		return fmt.Sprintf(`{"index": %d, "scanned": "x", "matched_url": null, "matched_name": null, "confidence": null}`, index)
	}
	return fmt.Sprintf(`{"index": %d, "scanned": "x", "matched_url": %q, "matched_name": %q, "confidence": %q}`, index, url, name, confidence)
}

func checkInvariants(t *testing.T, titles []string, results []MatchResult) {
	t.Helper()
	if len(results) != len(titles) {
		t.Fatalf("expected exactly one result per title: got %d for %d titles", len(results), len(titles))
	}
	for i, r := range results {
		if r.OriginalIndex != i {
			t.Fatalf("result %d has original index %d; order not restored", i, r.OriginalIndex)
		}
		if r.ScannedTitle != titles[i] {
			t.Fatalf("result %d carries title %q, want %q", i, r.ScannedTitle, titles[i])
		}
		if (r.Confidence == ConfidenceNone) != (r.MatchedURL == "") {
			t.Fatalf("result %d violates confidence/match coupling: %+v", i, r)
		}
	}
}

func TestRunNoCandidateShortCircuit(t *testing.T) {
	catalog := testCatalog()
	idx := BuildIndex(catalog)
	f := &fakeCompleter{respond: func(string) (string, error) {
		t.Fatal("completer must not be called for titles without candidates")
		return "", nil
	}}
	titles := []string{"XYZ_UNMATCHABLE_NOISE"}

	results, err := newTestReconciler(f, 10).Run(context.Background(), titles, catalog, idx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checkInvariants(t, titles, results)
	if f.calls != 0 {
		t.Fatalf("expected zero completion calls, got %d", f.calls)
	}
	if results[0].Matched() || results[0].Err != "" {
		t.Fatalf("no-candidate title must resolve to a clean null match: %+v", results[0])
	}
}

func TestRunChunkFailureIsolation(t *testing.T) {
	catalog := testCatalog()
	idx := BuildIndex(catalog)
	titles := []string{"Chicken Teriyaki Bowl", "XYZ_UNMATCHABLE_NOISE", "Beef Tacos With Salsa"}

	f := &fakeCompleter{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Beef") {
			return "", errors.New("status code: 400 bad request")
		}
		return "[" + matchItemJSON(1, "u1", "Chicken Teriyaki Bowl With Rice", "high") + "]", nil
	}}

	results, err := newTestReconciler(f, 1).Run(context.Background(), titles, catalog, idx)
	if err != nil {
		t.Fatalf("a failed chunk must not abort the run: %v", err)
	}
	checkInvariants(t, titles, results)
	if f.calls != 2 {
		t.Fatalf("expected 2 completion calls (one per pending chunk), got %d", f.calls)
	}

	if results[0].MatchedURL != "u1" || results[0].Confidence != ConfidenceHigh || results[0].Err != "" {
		t.Fatalf("first title must resolve normally: %+v", results[0])
	}
	if results[1].Matched() || results[1].Err != "" {
		t.Fatalf("unmatchable title must resolve to a clean null match: %+v", results[1])
	}
	if results[2].Matched() || results[2].Err == "" {
		t.Fatalf("failed-chunk title must carry the error: %+v", results[2])
	}
	if !strings.Contains(results[2].Err, "chunk 2") || !strings.Contains(results[2].Err, "status code: 400") {
		t.Fatalf("error must name the chunk and the cause: %q", results[2].Err)
	}
}

func TestRunMalformedResponseFailsChunkOnly(t *testing.T) {
	catalog := testCatalog()
	idx := BuildIndex(catalog)
	titles := []string{"Chicken Teriyaki Bowl", "Beef Tacos With Salsa"}

	f := &fakeCompleter{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Beef") {
			return "I could not find any matches, sorry!", nil
		}
		return "[" + matchItemJSON(1, "u1", "Chicken Teriyaki Bowl With Rice", "high") + "]", nil
	}}

	results, err := newTestReconciler(f, 1).Run(context.Background(), titles, catalog, idx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checkInvariants(t, titles, results)
	if results[0].MatchedURL != "u1" {
		t.Fatalf("first chunk must resolve: %+v", results[0])
	}
	if results[1].Matched() || !strings.Contains(results[1].Err, "parse completion response") {
		t.Fatalf("malformed chunk must fail with the parse error: %+v", results[1])
	}
}

func TestRunParsesFencedResponse(t *testing.T) {
	catalog := testCatalog()
	idx := BuildIndex(catalog)
	titles := []string{"Kale Salad"}

	f := &fakeCompleter{respond: func(string) (string, error) {
		return "```json\n[" + matchItemJSON(1, "u3", "Kale Salad", "medium") + "]\n```", nil
	}}

	results, err := newTestReconciler(f, 10).Run(context.Background(), titles, catalog, idx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checkInvariants(t, titles, results)
	if results[0].MatchedURL != "u3" || results[0].Confidence != ConfidenceMedium {
		t.Fatalf("fenced response must parse: %+v", results[0])
	}
}

func TestRunRestoresOrderFromScrambledResponse(t *testing.T) {
	catalog := testCatalog()
	idx := BuildIndex(catalog)
	titles := []string{"Chicken Teriyaki Bowl", "Beef Tacos With Salsa"}

	f := &fakeCompleter{respond: func(string) (string, error) {
		// Items come back in reverse chunk-local order.
		return "[" +
			matchItemJSON(2, "u2", "Beef Tacos With Fresh Salsa", "high") + "," +
			matchItemJSON(1, "u1", "Chicken Teriyaki Bowl With Rice", "medium") +
			"]", nil
	}}

	results, err := newTestReconciler(f, 10).Run(context.Background(), titles, catalog, idx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checkInvariants(t, titles, results)
	if results[0].MatchedURL != "u1" || results[1].MatchedURL != "u2" {
		t.Fatalf("chunk-local indices mapped to wrong titles: %+v", results)
	}
}

func TestRunDropsOutOfRangeIndices(t *testing.T) {
	catalog := testCatalog()
	idx := BuildIndex(catalog)
	titles := []string{"Chicken Teriyaki Bowl"}

	f := &fakeCompleter{respond: func(string) (string, error) {
		return "[" + matchItemJSON(99, "u1", "Chicken Teriyaki Bowl With Rice", "high") + "]", nil
	}}

	results, err := newTestReconciler(f, 10).Run(context.Background(), titles, catalog, idx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checkInvariants(t, titles, results)
	if results[0].Matched() {
		t.Fatalf("out-of-range index must never attach to a title: %+v", results[0])
	}
	if !strings.Contains(results[0].Err, "missing from completion response") {
		t.Fatalf("expected missing-result marker, got %q", results[0].Err)
	}
}

func TestRunEnforcesConfidenceCoupling(t *testing.T) {
	catalog := testCatalog()
	idx := BuildIndex(catalog)
	titles := []string{"Chicken Teriyaki Bowl", "Beef Tacos With Salsa"}

	f := &fakeCompleter{respond: func(string) (string, error) {
		// A URL without confidence, and a confidence without URL: both
		// shapes must be normalized rather than trusted.
		return `[
			{"index": 1, "scanned": "x", "matched_url": "u1", "matched_name": "Chicken Teriyaki Bowl With Rice", "confidence": null},
			{"index": 2, "scanned": "x", "matched_url": null, "matched_name": null, "confidence": "high"}
		]`, nil
	}}

	results, err := newTestReconciler(f, 10).Run(context.Background(), titles, catalog, idx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checkInvariants(t, titles, results)
	if results[0].Confidence != ConfidenceLow {
		t.Fatalf("matched result without confidence must default to low: %+v", results[0])
	}
	if results[1].Matched() || results[1].Confidence != ConfidenceNone {
		t.Fatalf("confidence without URL must be stripped: %+v", results[1])
	}
}

func TestRunPoolsCandidatesDedupedByURL(t *testing.T) {
	catalog := testCatalog()
	idx := BuildIndex(catalog)
	// Both titles prefilter to the same top candidate u1.
	titles := []string{"Chicken Teriyaki Bowl", "Chicken Teriyaki"}

	f := &fakeCompleter{respond: func(string) (string, error) {
		return "[" +
			matchItemJSON(1, "u1", "Chicken Teriyaki Bowl With Rice", "high") + "," +
			matchItemJSON(2, "u1", "Chicken Teriyaki Bowl With Rice", "medium") +
			"]", nil
	}}

	results, err := newTestReconciler(f, 10).Run(context.Background(), titles, catalog, idx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checkInvariants(t, titles, results)
	if f.calls != 1 {
		t.Fatalf("expected a single pooled chunk, got %d calls", f.calls)
	}
	if n := strings.Count(f.prompts[0], "| u1"); n != 1 {
		t.Fatalf("pooled candidates must be deduplicated by URL, u1 listed %d times in prompt", n)
	}
}

func TestRunRetriesRetryableTransportFailures(t *testing.T) {
	catalog := testCatalog()
	idx := BuildIndex(catalog)
	titles := []string{"Kale Salad"}

	f := &fakeCompleter{}
	f.respond = func(string) (string, error) {
		if f.calls == 1 {
			return "", errors.New("status code: 500 upstream blew up")
		}
		return "[" + matchItemJSON(1, "u3", "Kale Salad", "low") + "]", nil
	}

	results, err := newTestReconciler(f, 10).Run(context.Background(), titles, catalog, idx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checkInvariants(t, titles, results)
	if f.calls != 2 {
		t.Fatalf("expected one retry after a server failure, got %d calls", f.calls)
	}
	if results[0].MatchedURL != "u3" || results[0].Confidence != ConfidenceLow {
		t.Fatalf("retried chunk must resolve: %+v", results[0])
	}
}

func TestRunCancellationBetweenChunks(t *testing.T) {
	catalog := testCatalog()
	idx := BuildIndex(catalog)
	titles := []string{"Hello Fresh", "Chicken Teriyaki Bowl"}

	f := &fakeCompleter{respond: func(string) (string, error) {
		t.Fatal("no completion call may be issued after cancellation")
		return "", nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := newTestReconciler(f, 10).Run(ctx, titles, catalog, idx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	// The locally resolvable title still produced its result.
	if len(results) != 1 || results[0].OriginalIndex != 0 {
		t.Fatalf("expected the prefilter-resolved result to survive: %+v", results)
	}
}

func TestRunEmitsProgressPerChunk(t *testing.T) {
	catalog := testCatalog()
	idx := BuildIndex(catalog)
	titles := []string{"Chicken Teriyaki Bowl", "Beef Tacos With Salsa", "Kale Salad"}

	f := &fakeCompleter{respond: func(prompt string) (string, error) {
		return "[" + matchItemJSON(1, "u1", "whatever", "low") + "]", nil
	}}

	var progress [][2]int
	rec := NewReconciler(f, ReconcilerConfig{BatchSize: 1, Progress: func(processed, total int) {
		progress = append(progress, [2]int{processed, total})
	}})
	if _, err := rec.Run(context.Background(), titles, catalog, idx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [][2]int{{1, 3}, {2, 3}, {3, 3}}
	if len(progress) != len(want) {
		t.Fatalf("expected %d progress events, got %v", len(want), progress)
	}
	for i, p := range progress {
		if p != want[i] {
			t.Fatalf("progress event %d = %v, want %v", i, p, want[i])
		}
	}
}
