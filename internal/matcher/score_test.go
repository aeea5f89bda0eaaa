package matcher

import (
	"math"
	"testing"
)

func kwset(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

func TestScoreEmptySets(t *testing.T) {
	if got := Score(nil, "Chicken Stir Fry"); got != 0 {
		t.Fatalf("empty query should score 0, got %v", got)
	}
	if got := Score(kwset("chicken"), "Hello Fresh"); got != 0 {
		t.Fatalf("all-noise candidate should score 0, got %v", got)
	}
}

func TestScoreNoOverlap(t *testing.T) {
	if got := Score(kwset("beef", "tacos"), "Kale Salad"); got != 0 {
		t.Fatalf("disjoint sets should score 0, got %v", got)
	}
}

func TestScorePerfectMatch(t *testing.T) {
	got := Score(kwset("chicken", "teriyaki", "bowl"), "Chicken Teriyaki Bowl")
	if math.Abs(got-1) > 1e-9 {
		t.Fatalf("identical keyword sets should score 1, got %v", got)
	}
}

func TestScorePartialOCRMismatch(t *testing.T) {
	// Query keywords {ch1cken, stir, fry} against candidate keywords
	// {chicken, stir, fry, vegetables}: overlap 2, precision 2/3,
	// recall 2/4, harmonic mean 4/7.
	got := Score(ExtractKeywords("Ch1cken Stir Fry"), "Chicken Stir Fry With Vegetables")
	want := 4.0 / 7.0
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got <= 0 || got >= 1 {
		t.Fatalf("partial mismatch must score strictly between 0 and 1, got %v", got)
	}
}

func TestScoreRecallPenalizesLongCandidates(t *testing.T) {
	short := Score(kwset("beef", "tacos"), "Beef Tacos")
	long := Score(kwset("beef", "tacos"), "Beef Tacos Rice Beans Corn Guacamole Lime Crema")
	if long >= short {
		t.Fatalf("longer candidate with extra keywords must score lower: short=%v long=%v", short, long)
	}
}
