//go:build linux || darwin

package storage

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// growthSize rounds up file growth to reduce remap frequency.
const growthSize = 1 << 20 // 1MB

// MMap implements Store using memory-mapped I/O
type MMap struct {
	counters
	file *os.File
	data []byte
	size int64 // logical size: highest byte written or truncated to
}

var _ Store = (*MMap)(nil)

// NewMMap opens or creates the file at path and maps it.
func NewMMap(path string) (*MMap, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	m := &MMap{file: file, size: info.Size()}
	if m.size > 0 {
		if err := m.remap(m.size); err != nil {
			file.Close()
			return nil, err
		}
	}
	return m, nil
}

// remap replaces the mapping with one covering mapSize bytes of the file.
func (m *MMap) remap(mapSize int64) error {
	if m.data != nil {
		// Start async flush to reduce munmap blocking time
		_ = unix.Msync(m.data, unix.MS_ASYNC)
		if err := unix.Munmap(m.data); err != nil {
			return err
		}
		m.data = nil
	}
	if mapSize == 0 {
		return nil
	}

	data, err := unix.Mmap(int(m.file.Fd()), 0, int(mapSize),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap %d bytes: %w", mapSize, err)
	}
	m.data = data
	return nil
}

func (m *MMap) ensure(end int64) error {
	if end <= int64(len(m.data)) {
		return nil
	}

	newSize := ((end + growthSize - 1) / growthSize) * growthSize
	if err := m.file.Truncate(newSize); err != nil {
		return err
	}
	return m.remap(newSize)
}

// ReadAt copies out of the mapped region so callers never hold pointers into
// a mapping that may be replaced.
func (m *MMap) ReadAt(p []byte, off int64) (int, error) {
	if m.file == nil {
		return 0, ErrClosed
	}
	if off >= m.size {
		return 0, io.EOF
	}

	n := copy(p, m.data[off:m.size])
	m.countRead(n)
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

// WriteAt writes into the mapped region, growing the file first if needed.
func (m *MMap) WriteAt(p []byte, off int64) (int, error) {
	if m.file == nil {
		return 0, ErrClosed
	}

	end := off + int64(len(p))
	if err := m.ensure(end); err != nil {
		return 0, err
	}

	n := copy(m.data[off:], p)
	m.countWrite(n)
	m.size = max(m.size, end)
	return n, nil
}

// Truncate sets the logical size. The mapping shrinks with the file.
func (m *MMap) Truncate(size int64) error {
	if m.file == nil {
		return ErrClosed
	}
	if err := m.remap(0); err != nil {
		return err
	}
	if err := m.file.Truncate(size); err != nil {
		return err
	}
	m.size = size
	return m.remap(size)
}

func (m *MMap) Size() (int64, error) {
	return m.size, nil
}

// Sync flushes the memory-mapped region to disk
func (m *MMap) Sync() error {
	if m.file == nil {
		return ErrClosed
	}
	if m.data != nil {
		if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
			return err
		}
	}
	return m.file.Sync()
}

// Close unmaps the region, trims growth padding and closes the file.
func (m *MMap) Close() error {
	if m.file == nil {
		return nil
	}
	if err := m.remap(0); err != nil {
		return err
	}
	if err := m.file.Truncate(m.size); err != nil {
		return err
	}
	err := m.file.Close()
	m.file = nil
	return err
}
