package idxtree

import (
	"idxtree/internal/base"
)

// Comparator orders keys: negative when a < b, zero when equal, positive when
// a > b. It must be the same every time a file is opened.
type Comparator = base.Comparator

// NaturalCompare orders decimal integers numerically and everything else
// bytewise, integers first. It is the default.
func NaturalCompare(a, b []byte) int {
	return base.NaturalCompare(a, b)
}

// BytewiseCompare orders keys by bytes.Compare.
func BytewiseCompare(a, b []byte) int {
	return base.BytewiseCompare(a, b)
}

// Schema is the set of size parameters fixed when a tree file is created.
type Schema struct {
	Degree    int
	KeySize   int
	ValueSize int
}

// Options configures tree behavior.
type Options struct {
	logger     Logger
	comparator Comparator
	cacheSize  int     // 0 means 2*degree+1: the root and all its children
	schema     *Schema // expected schema checked by Open
	mmap       bool    // CreateFile/OpenFile use a memory-mapped store
	syncOnSave bool    // fsync the store at the end of every Save
}

// DefaultOptions returns the default configuration.
//
// goland:noinspection GoUnusedExportedFunction
func DefaultOptions() Options {
	return Options{
		logger:     DiscardLogger{},
		comparator: NaturalCompare,
		syncOnSave: true,
	}
}

// Option configures tree options using the functional options pattern.
type Option func(*Options)

// WithLogger sets the logger. *slog.Logger satisfies Logger directly.
//
//goland:noinspection GoUnusedExportedFunction
func WithLogger(l Logger) Option {
	return func(opts *Options) {
		opts.logger = l
	}
}

// WithComparator replaces the key ordering.
//
//goland:noinspection GoUnusedExportedFunction
func WithComparator(c Comparator) Option {
	return func(opts *Options) {
		opts.comparator = c
	}
}

// WithCacheSize bounds the number of decoded pages held in memory.
// Only the root and its immediate children are ever admitted, so sizes
// above 2*degree+1 have no effect.
//
//goland:noinspection GoUnusedExportedFunction
func WithCacheSize(pages int) Option {
	return func(opts *Options) {
		opts.cacheSize = pages
	}
}

// WithSchema makes Open fail with ErrSchemaMismatch unless the file was
// created with exactly these parameters.
//
//goland:noinspection GoUnusedExportedFunction
func WithSchema(degree, keySize, valueSize int) Option {
	return func(opts *Options) {
		opts.schema = &Schema{Degree: degree, KeySize: keySize, ValueSize: valueSize}
	}
}

// WithMMap makes CreateFile and OpenFile map the file instead of using
// positioned reads and writes.
//
//goland:noinspection GoUnusedExportedFunction
func WithMMap() Option {
	return func(opts *Options) {
		opts.mmap = true
	}
}

// WithSyncOnSave controls whether Save fsyncs the store. Enabled by default.
//
//goland:noinspection GoUnusedExportedFunction
func WithSyncOnSave(sync bool) Option {
	return func(opts *Options) {
		opts.syncOnSave = sync
	}
}
