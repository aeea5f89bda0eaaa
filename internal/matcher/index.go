package matcher

import "log"

// Index maps a keyword to the ascending catalog positions of entries whose
// name contains it. It is read-only once built and safe to share across
// prefilter calls without locking.
type Index map[string][]int

// BuildIndex builds the inverted keyword index for a catalog snapshot. It is
// deterministic and idempotent: the same catalog always produces the same
// postings.
func BuildIndex(catalog []CatalogEntry) Index {
	idx := make(Index)
	for i, entry := range catalog {
		for kw := range ExtractKeywords(entry.Name) {
			idx[kw] = append(idx[kw], i)
		}
	}
	log.Printf("recipe-match index_built entries=%d keywords=%d", len(catalog), len(idx))
	return idx
}

// IndexCache holds one index per distinct catalog snapshot, invalidated by
// identity: supplying a different catalog slice forces a rebuild even if the
// contents are equal. Positions from a stale index must never be applied to a
// different catalog.
//
// The zero value is ready to use. Not safe for concurrent use.
type IndexCache struct {
	head *CatalogEntry
	size int
	idx  Index
}

// Get returns the cached index for catalog, rebuilding if the cache holds an
// index for a different catalog object.
func (c *IndexCache) Get(catalog []CatalogEntry) Index {
	if c.idx != nil && c.size == len(catalog) && len(catalog) > 0 && c.head == &catalog[0] {
		return c.idx
	}
	c.idx = BuildIndex(catalog)
	c.size = len(catalog)
	c.head = nil
	if len(catalog) > 0 {
		c.head = &catalog[0]
	}
	return c.idx
}
