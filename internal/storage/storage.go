// Package storage provides random-access backends for tree files.
package storage

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
)

var ErrClosed = errors.New("storage closed")

// Store is a random-access byte store. The tree addresses pages by offset and
// never assumes a page-aligned backend.
type Store interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Truncate(size int64) error
	Size() (int64, error)
	Sync() error
	Close() error
}

// Stats holds I/O statistics
type Stats struct {
	Reads   uint64
	Writes  uint64
	Read    uint64
	Written uint64
}

// counters is embedded by every backend.
type counters struct {
	reads   atomic.Uint64
	writes  atomic.Uint64
	read    atomic.Uint64
	written atomic.Uint64
}

func (c *counters) countRead(n int) {
	c.reads.Add(1)
	c.read.Add(uint64(n))
}

func (c *counters) countWrite(n int) {
	c.writes.Add(1)
	c.written.Add(uint64(n))
}

// Stats returns I/O statistics
func (c *counters) Stats() Stats {
	return Stats{
		Reads:   c.reads.Load(),
		Writes:  c.writes.Load(),
		Read:    c.read.Load(),
		Written: c.written.Load(),
	}
}

// File implements Store with positioned reads and writes on an os.File.
type File struct {
	counters
	file *os.File
}

var _ Store = (*File)(nil)

// NewFile opens or creates the file at path.
func NewFile(path string) (*File, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}
	return &File{file: file}, nil
}

// ReadAt reads len(p) bytes at off. A short read is an error.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	n, err := f.file.ReadAt(p, off)
	f.countRead(n)
	if err != nil {
		return n, fmt.Errorf("read %d bytes at %d: %w", len(p), off, err)
	}
	return n, nil
}

// WriteAt writes p at off, extending the file if needed.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	n, err := f.file.WriteAt(p, off)
	f.countWrite(n)
	if err != nil {
		return n, fmt.Errorf("write %d bytes at %d: %w", len(p), off, err)
	}
	return n, nil
}

// Truncate changes the size of the file
func (f *File) Truncate(size int64) error {
	return f.file.Truncate(size)
}

// Size returns the current file size
func (f *File) Size() (int64, error) {
	info, err := f.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Sync flushes buffered writes to disk
func (f *File) Sync() error {
	return f.file.Sync()
}

// Close closes the file
func (f *File) Close() error {
	return f.file.Close()
}
