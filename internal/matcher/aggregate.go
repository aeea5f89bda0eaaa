package matcher

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// SortResults restores ascending original-index order. Chunked processing and
// per-chunk failures would otherwise scramble the sequence.
func SortResults(results []MatchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].OriginalIndex < results[j].OriginalIndex
	})
}

// Summarize derives run statistics from a result set.
func Summarize(results []MatchResult) Summary {
	s := Summary{Total: len(results), MatchRate: "0%"}
	for _, r := range results {
		if !r.Matched() {
			continue
		}
		s.Matched++
		switch r.Confidence {
		case ConfidenceHigh:
			s.ByConfidence.High++
		case ConfidenceMedium:
			s.ByConfidence.Medium++
		case ConfidenceLow:
			s.ByConfidence.Low++
		}
	}
	s.Unmatched = s.Total - s.Matched
	if s.Total > 0 {
		s.MatchRate = fmt.Sprintf("%.1f%%", float64(s.Matched)/float64(s.Total)*100)
	}
	return s
}

// FilterByConfidence partitions matched results into those at or above min
// and those below it, preserving order. Unmatched results land in neither
// partition.
func FilterByConfidence(results []MatchResult, min Confidence) (kept, skipped []MatchResult) {
	for _, r := range results {
		if !r.Matched() {
			continue
		}
		if r.Confidence >= min {
			kept = append(kept, r)
		} else {
			skipped = append(skipped, r)
		}
	}
	return kept, skipped
}

// SaveResults writes the result sequence as an indented JSON array.
func SaveResults(path string, results []MatchResult) error {
	b, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

// LoadResults reads a result sequence written by SaveResults.
func LoadResults(path string) ([]MatchResult, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	var results []MatchResult
	if err := json.Unmarshal(b, &results); err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}
	return results, nil
}
