// Package cache holds decoded pages in a bounded LRU.
package cache

import (
	"encoding/binary"
	"errors"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/elastic/go-freelru"

	"idxtree/internal/base"
)

const MinCacheSize = 1

// Writer persists a node that leaves the cache dirty.
type Writer interface {
	WriteNode(node *base.Node) error
}

// PageCache is a capacity-bounded LRU of decoded nodes. Cached nodes are
// the authoritative copy of their page: writes replace the entry and mark it
// dirty, and the page reaches storage on Flush or when evicted.
type PageCache struct {
	lru    *freelru.LRU[base.PageID, *base.Node]
	writer Writer
	err    error // first write-back failure during eviction

	// Stats
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates a page cache holding at most capacity nodes.
func New(capacity int, writer Writer) (*PageCache, error) {
	capacity = max(capacity, MinCacheSize)

	lru, err := freelru.New[base.PageID, *base.Node](uint32(capacity), hashPageID)
	if err != nil {
		return nil, err
	}

	c := &PageCache{lru: lru, writer: writer}
	lru.SetOnEvict(c.onEvict)
	return c, nil
}

func hashPageID(id base.PageID) uint32 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(id))
	return uint32(xxhash.Sum64(buf[:]))
}

func (c *PageCache) onEvict(_ base.PageID, node *base.Node) {
	c.evictions.Add(1)
	if !node.Dirty {
		return
	}
	if err := c.writer.WriteNode(node); err != nil {
		c.err = errors.Join(c.err, err)
		return
	}
	node.Dirty = false
}

// Get retrieves a node from the cache.
// Returns (Node, true) on cache hit, (nil, false) on miss.
func (c *PageCache) Get(id base.PageID) (*base.Node, bool) {
	node, ok := c.lru.Get(id)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return node, true
}

// Contains reports whether id is cached without touching recency or stats.
func (c *PageCache) Contains(id base.PageID) bool {
	return c.lru.Contains(id)
}

// Put adds a node to the cache, replacing any existing entry for its page.
func (c *PageCache) Put(node *base.Node) {
	c.lru.Add(node.PageID, node)
}

// Flush writes every dirty cached node. All nodes are attempted; failures,
// including earlier eviction write-backs, are joined into the result.
func (c *PageCache) Flush() error {
	err := c.err
	c.err = nil

	for _, id := range c.lru.Keys() {
		node, ok := c.lru.Peek(id)
		if !ok || !node.Dirty {
			continue
		}
		if werr := c.writer.WriteNode(node); werr != nil {
			err = errors.Join(err, werr)
			continue
		}
		node.Dirty = false
	}
	return err
}

// Purge flushes and then drops every entry.
func (c *PageCache) Purge() error {
	err := c.Flush()
	c.lru.Purge()
	return err
}

// Size returns current number of cached entries
func (c *PageCache) Size() int {
	return c.lru.Len()
}

type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Stats returns cache statistics
func (c *PageCache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
