// Package cache remembers the last rewrite of every asset so that unchanged
// assets, and assets that are already our own output, are not matched again.
package cache

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fluxbase-eu/jsonpns/internal/asset"
)

// DefaultSize is the number of filenames kept when no size is configured
const DefaultSize = 4096

type entry struct {
	input  uint64
	output uint64
	result asset.Result
}

// Stats is a snapshot of cache usage
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Size   int    `json:"size"`
}

// Cache maps filename to the last result and its input/output fingerprints.
// It is safe for concurrent use.
type Cache struct {
	salt    string
	entries *lru.Cache[string, entry]
	hits    atomic.Uint64
	misses  atomic.Uint64
}

// New creates a cache holding up to size filenames. salt is mixed into every
// fingerprint and must describe the rewrite configuration.
func New(size int, salt string) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	entries, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	return &Cache{salt: salt, entries: entries}, nil
}

// Fingerprint returns the fingerprint the cache uses for a
func (c *Cache) Fingerprint(a asset.Asset) uint64 {
	return a.Fingerprint(c.salt)
}

// GetOrCompute returns the cached result for filename when fingerprint
// matches either the last input seen or the last output produced for it.
// Otherwise compute runs and a successful result is stored. Errors are
// never cached.
func (c *Cache) GetOrCompute(filename string, fingerprint uint64, compute func() (asset.Result, error)) (asset.Result, error) {
	if e, ok := c.entries.Get(filename); ok {
		switch fingerprint {
		case e.input:
			c.hits.Add(1)
			res := e.result
			res.Cached = true
			return res, nil
		case e.output:
			// the asset is our own previous output
			c.hits.Add(1)
			res := e.result
			res.Changed = false
			res.Cached = true
			return res, nil
		}
	}

	c.misses.Add(1)
	res, err := compute()
	if err != nil {
		return res, err
	}

	c.entries.Add(filename, entry{
		input:  fingerprint,
		output: c.Fingerprint(res.Asset),
		result: res,
	})
	return res, nil
}

// Invalidate forgets filename
func (c *Cache) Invalidate(filename string) {
	c.entries.Remove(filename)
}

// Purge forgets everything
func (c *Cache) Purge() {
	c.entries.Purge()
}

// Len returns the number of cached filenames
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Stats returns hit and miss counters
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.entries.Len(),
	}
}
