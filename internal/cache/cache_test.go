package cache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idxtree/internal/base"
)

type recordingWriter struct {
	written []base.PageID
	fail    error
}

func (w *recordingWriter) WriteNode(node *base.Node) error {
	if w.fail != nil {
		return w.fail
	}
	w.written = append(w.written, node.PageID)
	return nil
}

// Helper to create a test Node
func makeTestNode(pageID base.PageID, dirty bool) *base.Node {
	n := base.NewLeaf(pageID)
	n.Dirty = dirty
	return n
}

func TestPageCacheBasics(t *testing.T) {
	t.Parallel()

	cache, err := New(10, &recordingWriter{})
	require.NoError(t, err)

	// Test cache miss
	_, hit := cache.Get(base.PageID(1))
	assert.False(t, hit, "Expected cache miss for Page 1")

	// Add Node to cache
	node1 := makeTestNode(1, false)
	cache.Put(node1)

	// Should now hit
	retrieved, hit := cache.Get(base.PageID(1))
	assert.True(t, hit, "Expected cache hit for Page 1")
	assert.Same(t, node1, retrieved)
	assert.True(t, cache.Contains(1))

	assert.Equal(t, 1, cache.Size())

	stats := cache.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestPageCacheReplacement(t *testing.T) {
	t.Parallel()

	cache, err := New(10, &recordingWriter{})
	require.NoError(t, err)

	cache.Put(makeTestNode(1, false))
	replacement := makeTestNode(1, true)
	cache.Put(replacement)

	got, ok := cache.Get(1)
	require.True(t, ok)
	assert.Same(t, replacement, got)
	assert.Equal(t, 1, cache.Size())
}

func TestPageCacheEvictionWritesBackDirty(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{}
	cache, err := New(2, w)
	require.NoError(t, err)

	clean := makeTestNode(1, false)
	cache.Put(clean)
	dirty := makeTestNode(2, true)
	cache.Put(dirty)

	// Touch 1 so that 2 is least recently used
	_, ok := cache.Get(1)
	require.True(t, ok)

	cache.Put(makeTestNode(3, true))

	assert.Equal(t, 2, cache.Size())
	assert.False(t, cache.Contains(2))
	assert.Equal(t, []base.PageID{2}, w.written)
	assert.False(t, dirty.Dirty, "written node is clean")
	assert.Equal(t, uint64(1), cache.Stats().Evictions)

	require.NoError(t, cache.Flush())
	assert.ElementsMatch(t, []base.PageID{2, 3}, w.written)
}

func TestPageCacheEvictionErrorSurfacesOnFlush(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	w := &recordingWriter{fail: boom}
	cache, err := New(1, w)
	require.NoError(t, err)

	cache.Put(makeTestNode(1, true))
	cache.Put(makeTestNode(2, false)) // evicts dirty page 1

	w.fail = nil
	assert.ErrorIs(t, cache.Flush(), boom)
	assert.NoError(t, cache.Flush(), "error is reported once")
}

func TestPageCachePurge(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{}
	cache, err := New(4, w)
	require.NoError(t, err)

	for id := base.PageID(0); id < 3; id++ {
		cache.Put(makeTestNode(id, id != 1))
	}

	require.NoError(t, cache.Purge())
	assert.Zero(t, cache.Size())
	assert.ElementsMatch(t, []base.PageID{0, 2}, w.written)
}
