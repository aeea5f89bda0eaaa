package matcher

// Score rates how well a candidate catalog name covers the query keywords,
// as the harmonic mean of keyword precision and recall (an F1 over keyword
// sets). The result is in [0,1]; either keyword set being empty scores 0.
//
// Precision rewards candidates sharing most of the query's distinctive words;
// recall keeps long candidate names full of unrelated keywords from winning.
func Score(queryKeywords map[string]struct{}, candidateName string) float64 {
	return scoreSets(queryKeywords, ExtractKeywords(candidateName))
}

func scoreSets(query, candidate map[string]struct{}) float64 {
	if len(query) == 0 || len(candidate) == 0 {
		return 0
	}
	overlap := 0
	for kw := range query {
		if _, ok := candidate[kw]; ok {
			overlap++
		}
	}
	precision := float64(overlap) / float64(len(query))
	recall := float64(overlap) / float64(len(candidate))
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}
