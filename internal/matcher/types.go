package matcher

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	// DefaultBatchSize is the number of titles grouped into one completion call.
	DefaultBatchSize = 10

	// DefaultMaxCandidates caps the prefiltered candidates carried per title.
	DefaultMaxCandidates = 15

	// MinScore is the prefilter cutoff. Candidates scoring at or below it are dropped.
	MinScore = 0.1
)

// CatalogEntry is one recipe from the merged catalog. Position is the entry's
// 0-based index in the catalog sequence and is stable for the duration of a
// matching run.
type CatalogEntry struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Position int    `json:"position"`
}

// Confidence is the model's self-reported match quality, ordered so that
// threshold comparisons (minimum confidence for import) are plain <=.
type Confidence int

const (
	ConfidenceNone Confidence = iota
	ConfidenceLow
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceLow:
		return "low"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceHigh:
		return "high"
	default:
		return ""
	}
}

// ParseConfidence maps the wire labels to the ordered levels. Unknown labels
// report false so callers can decide whether to tolerate them.
func ParseConfidence(s string) (Confidence, bool) {
	switch s {
	case "low":
		return ConfidenceLow, true
	case "medium":
		return ConfidenceMedium, true
	case "high":
		return ConfidenceHigh, true
	default:
		return ConfidenceNone, false
	}
}

// MatchResult is the terminal outcome for one query title. Exactly one is
// produced per input title and it is never mutated after creation.
//
// MatchedURL == "" means no match; Confidence is ConfidenceNone if and only if
// MatchedURL is empty. Err carries chunk-failure detail for diagnostics.
type MatchResult struct {
	OriginalIndex int
	ScannedTitle  string
	MatchedURL    string
	MatchedName   string
	Confidence    Confidence
	Err           string
}

// Matched reports whether the title resolved to a catalog URL.
func (m MatchResult) Matched() bool { return m.MatchedURL != "" }

type matchResultJSON struct {
	Index       int     `json:"index"`
	Scanned     string  `json:"scanned"`
	MatchedURL  *string `json:"matched_url"`
	MatchedName *string `json:"matched_name"`
	Confidence  *string `json:"confidence"`
	Error       string  `json:"error,omitempty"`
}

func (m MatchResult) MarshalJSON() ([]byte, error) {
	out := matchResultJSON{
		Index:   m.OriginalIndex,
		Scanned: m.ScannedTitle,
		Error:   m.Err,
	}
	if m.Matched() {
		url := m.MatchedURL
		name := m.MatchedName
		conf := m.Confidence.String()
		out.MatchedURL = &url
		out.MatchedName = &name
		out.Confidence = &conf
	}
	return json.Marshal(out)
}

func (m *MatchResult) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	var in matchResultJSON
	if err := dec.Decode(&in); err != nil {
		return err
	}
	res := MatchResult{
		OriginalIndex: in.Index,
		ScannedTitle:  in.Scanned,
		Err:           in.Error,
	}
	if in.MatchedURL != nil && *in.MatchedURL != "" {
		res.MatchedURL = *in.MatchedURL
		if in.MatchedName != nil {
			res.MatchedName = *in.MatchedName
		}
		res.Confidence = ConfidenceLow
		if in.Confidence != nil {
			if c, ok := ParseConfidence(*in.Confidence); ok {
				res.Confidence = c
			}
		}
	}
	*m = res
	return nil
}

// ConfidenceCounts is the histogram over the three confidence levels.
type ConfidenceCounts struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Summary is derived from a result set; it is never persisted independently.
type Summary struct {
	Total        int              `json:"total"`
	Matched      int              `json:"matched"`
	Unmatched    int              `json:"unmatched"`
	MatchRate    string           `json:"match_rate"`
	ByConfidence ConfidenceCounts `json:"by_confidence"`
}

// ChunkError marks every title of a failed disambiguation chunk. A failed
// chunk never aborts the run.
type ChunkError struct {
	Chunk int
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d: %v", e.Chunk, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }
