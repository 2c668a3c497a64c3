// Package parsecache memoizes blob parses across the change attributor and
// the presence sweep, the two components that would otherwise re-parse the
// same (path, blob) pair.
package parsecache

import (
	"context"
	"sync"

	"github.com/jlefever/cochange-tool/internal/entity"
	"github.com/jlefever/cochange-tool/internal/parse"
	"github.com/jlefever/cochange-tool/pkg/gitlib"
	"github.com/jlefever/cochange-tool/pkg/textutil"
)

// key identifies a cache entry: a blob is only meaningful alongside the path
// it was found at, since the synthetic file-root entity's name is the path.
type key struct {
	path string
	hash gitlib.Hash
}

// Cache is a process-local, unbounded memoization of
// (path, blob-id) -> []entity.LocatedEntity; entries are never evicted.
// Parse results are immutable and safely shared between concurrent readers,
// and GetOrParse short-circuits zero hashes.
type Cache struct {
	mu     sync.RWMutex
	data   map[key][]entity.LocatedEntity
	hits   int64
	misses int64
}

// New constructs an empty Cache.
func New() *Cache {
	return &Cache{data: make(map[key][]entity.LocatedEntity)}
}

// Get returns the parse for (path, hash), and whether it has been computed
// already. Get looks up any hash, including the zero hash, and does not
// count towards the hit/miss statistics; GetOrParse short-circuits zero
// hashes to an empty result without touching the map.
func (c *Cache) Get(path string, hash gitlib.Hash) ([]entity.LocatedEntity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.data[key{path: path, hash: hash}]

	return v, ok
}

// GetOrParse returns the cached parse for (path, hash) if present; otherwise
// it loads the blob, parses it with p, caches the result, and returns it. A
// zero hash (the sentinel for "no such side", e.g. a deleted file's new
// side) maps to an empty slice without loading or parsing anything. A blob
// that sniffs as binary is cached as having no entities rather than handed
// to the tree-sitter parser.
func (c *Cache) GetOrParse(
	ctx context.Context,
	repo *gitlib.Repository,
	p *parse.Parser,
	path string,
	hash gitlib.Hash,
) ([]entity.LocatedEntity, error) {
	if hash.IsZero() {
		return nil, nil
	}

	k := key{path: path, hash: hash}

	if v, ok := c.lookup(k); ok {
		return v, nil
	}

	blob, err := repo.LookupBlob(ctx, hash)
	if err != nil {
		return nil, err
	}
	defer blob.Free()

	contents := blob.Contents()

	if textutil.IsBinary(contents) {
		c.store(k, nil)

		return nil, nil
	}

	located, err := p.Parse(ctx, contents, path)
	if err != nil {
		return nil, err
	}

	c.store(k, located)

	return located, nil
}

func (c *Cache) lookup(k key) ([]entity.LocatedEntity, bool) {
	// A write lock, since the hit/miss counters are updated here.
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.data[k]
	if ok {
		c.hits++
	} else {
		c.misses++
	}

	return v, ok
}

func (c *Cache) store(k key, v []entity.LocatedEntity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[k] = v
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// Stats returns the cache's current hit/miss counters and entry count.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Stats{Hits: c.hits, Misses: c.misses, Entries: len(c.data)}
}
