package matcher

import "sort"

// ScoredEntry pairs a catalog entry with its prefilter score.
type ScoredEntry struct {
	Entry CatalogEntry
	Score float64
}

// Prefilter narrows the catalog to the top maxCandidates entries for a query
// title. Pure computation, no I/O; safe to call many times against a shared
// index.
//
// A title with an empty keyword set returns nil immediately so no scoring or
// completion cost is spent on it.
func Prefilter(title string, catalog []CatalogEntry, idx Index, maxCandidates int) []CatalogEntry {
	scored := PrefilterScored(title, catalog, idx, maxCandidates)
	if len(scored) == 0 {
		return nil
	}
	out := make([]CatalogEntry, len(scored))
	for i, s := range scored {
		out[i] = s.Entry
	}
	return out
}

// PrefilterScored is Prefilter keeping the scores, used by the catalog search
// command.
func PrefilterScored(title string, catalog []CatalogEntry, idx Index, maxCandidates int) []ScoredEntry {
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}
	queryKeywords := ExtractKeywords(title)
	if len(queryKeywords) == 0 {
		return nil
	}

	// Union of postings: only entries sharing at least one keyword are scored,
	// which is what keeps tens-of-thousands-entry catalogs cheap per title.
	positions := make(map[int]struct{})
	for kw := range queryKeywords {
		for _, pos := range idx[kw] {
			positions[pos] = struct{}{}
		}
	}
	if len(positions) == 0 {
		return nil
	}

	ordered := make([]int, 0, len(positions))
	for pos := range positions {
		ordered = append(ordered, pos)
	}
	sort.Ints(ordered)

	scored := make([]ScoredEntry, 0, len(ordered))
	for _, pos := range ordered {
		if pos < 0 || pos >= len(catalog) {
			continue
		}
		s := Score(queryKeywords, catalog[pos].Name)
		if s <= MinScore {
			continue
		}
		scored = append(scored, ScoredEntry{Entry: catalog[pos], Score: s})
	}

	// Stable sort over catalog-ordered input: ties keep catalog order.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > maxCandidates {
		scored = scored[:maxCandidates]
	}
	return scored
}
