package treeshake

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/panbanda/pyshake/pkg/pyast"
)

// DefaultParseCacheSize bounds the shared parse cache.
const DefaultParseCacheSize = 4096

// ParseCache keeps parsed modules keyed by path and content, so repeated
// runs over an unchanged tree skip tree-sitter. Modules are read-only once
// built and may be shared between runs.
type ParseCache struct {
	cache *lru.Cache[uint64, *pyast.Module]
}

// NewParseCache creates a cache holding at most size modules.
func NewParseCache(size int) (*ParseCache, error) {
	c, err := lru.New[uint64, *pyast.Module](size)
	if err != nil {
		return nil, err
	}
	return &ParseCache{cache: c}, nil
}

var sharedParseCache = sync.OnceValue(func() *ParseCache {
	c, _ := NewParseCache(DefaultParseCacheSize)
	return c
})

func parseKey(path string, src []byte) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(path)
	_, _ = d.Write([]byte{0})
	_, _ = d.Write(src)
	return d.Sum64()
}

// Parse returns the module for src, parsing it on a miss. Syntax errors
// are not cached.
func (c *ParseCache) Parse(ctx context.Context, path string, src []byte) (*pyast.Module, error) {
	key := parseKey(path, src)
	if mod, ok := c.cache.Get(key); ok {
		return mod, nil
	}
	mod, err := pyast.Parse(ctx, path, src)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, mod)
	return mod, nil
}

// Len returns the number of cached modules.
func (c *ParseCache) Len() int { return c.cache.Len() }

// Purge empties the cache.
func (c *ParseCache) Purge() { c.cache.Purge() }
