package storage

import (
	"fmt"
	"io"
)

// Memory is a Store backed by a byte slice. It is used by tests and by
// throwaway trees.
type Memory struct {
	counters
	data   []byte
	closed bool
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	if m.closed {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("read at negative offset %d", off)
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	m.countRead(n)
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	if m.closed {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("write at negative offset %d", off)
	}
	if end := off + int64(len(p)); end > int64(len(m.data)) {
		m.data = append(m.data, make([]byte, end-int64(len(m.data)))...)
	}
	n := copy(m.data[off:], p)
	m.countWrite(n)
	return n, nil
}

func (m *Memory) Truncate(size int64) error {
	if m.closed {
		return ErrClosed
	}
	if size <= int64(len(m.data)) {
		m.data = m.data[:size]
		return nil
	}
	m.data = append(m.data, make([]byte, size-int64(len(m.data)))...)
	return nil
}

func (m *Memory) Size() (int64, error) {
	return int64(len(m.data)), nil
}

func (m *Memory) Sync() error {
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Close marks the store closed. The contents stay readable through Bytes.
func (m *Memory) Close() error {
	m.closed = true
	return nil
}

// Reopen clears the closed flag so a tree can be opened on the same bytes.
func (m *Memory) Reopen() {
	m.closed = false
}

// Bytes exposes the raw contents.
func (m *Memory) Bytes() []byte {
	return m.data
}
