package base

import (
	"bytes"
	"fmt"
	"strconv"
)

type PageID int64

// NilPage marks an absent link: the parent of the root and every link slot
// of a leaf.
const NilPage PageID = -1

const (
	// HeaderSize is the region reserved for the header record at offset 0.
	// Page 0 starts right after it.
	HeaderSize = 512

	// DefaultLinkSize holds any int64 page id including the sign.
	DefaultLinkSize = 20

	LeafPageFlag   = 0x01
	BranchPageFlag = 0x02

	fieldDelim = '\n'

	// Per-page header: page id, parent id, parent position, size, node type.
	nodeHeaderFields = 5

	labelWidth        = 6
	headerNumberWidth = 20
	headerLineSize    = labelWidth + headerNumberWidth + 1
)

// Geometry is the schema of a tree file. Every field is persisted in the
// header and must match between writer and reader.
//
// PAGE RECORD LAYOUT (every field right-justified or NUL-padded, '\n' terminated):
// ┌───────────────────────────────────────────────────────────────┐
// │ PageID | ParentID | ParentPos | Size | Type  (LinkSize+1 each) │
// ├───────────────────────────────────────────────────────────────┤
// │ Slot[0]: Link (LinkSize+1) Key (KeySize+1) Value (ValueSize+1) │
// │ ...                                                           │
// │ Slot[2d-2]                                                    │
// ├───────────────────────────────────────────────────────────────┤
// │ Trailing link (LinkSize+1)                                    │
// └───────────────────────────────────────────────────────────────┘
type Geometry struct {
	Degree    int
	KeySize   int
	ValueSize int
	LinkSize  int
}

// NewGeometry validates the size parameters of a tree.
func NewGeometry(degree, keySize, valueSize, linkSize int) (Geometry, error) {
	if degree < 2 {
		return Geometry{}, ErrInvalidDegree
	}
	// A link field must at least hold NilPage.
	if keySize < 1 || valueSize < 1 || linkSize < 2 {
		return Geometry{}, ErrInvalidSize
	}
	return Geometry{
		Degree:    degree,
		KeySize:   keySize,
		ValueSize: valueSize,
		LinkSize:  linkSize,
	}, nil
}

// MaxKeys is the key capacity of one node.
func (g Geometry) MaxKeys() int {
	return 2*g.Degree - 1
}

// MaxLinks is the child link capacity of one node.
func (g Geometry) MaxLinks() int {
	return 2 * g.Degree
}

// PageSize is
//
//	(2d-1) × (KeySize + ValueSize + 2) + 2d × (LinkSize + 1) + 5 × (LinkSize + 1)
//
// where the constants count one delimiter per field.
func (g Geometry) PageSize() int {
	pairs := g.MaxKeys() * (g.KeySize + 1 + g.ValueSize + 1)
	links := g.MaxLinks() * (g.LinkSize + 1)
	return pairs + links + nodeHeaderFields*(g.LinkSize+1)
}

// Offset returns the file address of page id.
func (g Geometry) Offset(id PageID) int64 {
	return int64(HeaderSize) + int64(id)*int64(g.PageSize())
}

// Header is the file-level metadata record stored at offset 0.
type Header struct {
	Size       int64 // number of stored entries
	Degree     int
	KeySize    int
	ValueSize  int
	LinkSize   int
	PageCount  int64
	RecordSize int // page size at the time of writing
	Root       PageID
}

// Geometry returns the schema recorded in the header.
func (h *Header) Geometry() (Geometry, error) {
	return NewGeometry(h.Degree, h.KeySize, h.ValueSize, h.LinkSize)
}

var headerLabels = [...]string{"Size: ", "Degr: ", "KeyS: ", "ValS: ", "LinS: ", "PCnt: ", "RecS: ", "Root: "}

// Encode renders the header into a HeaderSize buffer. Root is only written
// for a non-empty tree.
func (h *Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	values := []int64{
		h.Size,
		int64(h.Degree),
		int64(h.KeySize),
		int64(h.ValueSize),
		int64(h.LinkSize),
		h.PageCount,
		int64(h.RecordSize),
	}
	if h.Size > 0 {
		values = append(values, int64(h.Root))
	}

	w := &recordWriter{buf: buf}
	for i, v := range values {
		w.label(headerLabels[i])
		w.number(headerNumberWidth, v)
	}
	if w.err != nil {
		// Every int64 fits the header field width.
		panic(w.err)
	}
	return buf
}

// DecodeHeader parses a header record produced by Encode.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < len(headerLabels)*headerLineSize {
		return Header{}, ErrMalformedHeader
	}

	r := &recordReader{buf: buf}
	field := func(i int) int64 {
		r.label(headerLabels[i])
		return r.number(headerNumberWidth)
	}

	h := Header{Root: NilPage}
	h.Size = field(0)
	h.Degree = int(field(1))
	h.KeySize = int(field(2))
	h.ValueSize = int(field(3))
	h.LinkSize = int(field(4))
	h.PageCount = field(5)
	h.RecordSize = int(field(6))
	if r.err == nil && h.Size > 0 {
		h.Root = PageID(field(7))
	}
	if r.err != nil {
		return Header{}, fmt.Errorf("%w: %w", ErrMalformedHeader, r.err)
	}
	return h, nil
}

// recordWriter fills a fixed-width record field by field. The first error
// sticks and later writes are no-ops.
type recordWriter struct {
	buf []byte
	off int
	err error
}

func (w *recordWriter) label(l string) {
	if w.err != nil {
		return
	}
	w.off += copy(w.buf[w.off:], l)
}

func (w *recordWriter) number(width int, v int64) {
	if w.err != nil {
		return
	}
	s := strconv.FormatInt(v, 10)
	if len(s) > width {
		w.err = fmt.Errorf("%w: %d does not fit %d digits", ErrMalformedField, v, width)
		return
	}
	field := w.buf[w.off : w.off+width]
	pad := width - len(s)
	for i := 0; i < pad; i++ {
		field[i] = ' '
	}
	copy(field[pad:], s)
	w.buf[w.off+width] = fieldDelim
	w.off += width + 1
}

func (w *recordWriter) bytes(width int, b []byte) {
	if w.err != nil {
		return
	}
	if len(b) > width {
		w.err = fmt.Errorf("%w: %d bytes do not fit %d", ErrMalformedField, len(b), width)
		return
	}
	field := w.buf[w.off : w.off+width]
	n := copy(field, b)
	clear(field[n:])
	w.buf[w.off+width] = fieldDelim
	w.off += width + 1
}

type recordReader struct {
	buf []byte
	off int
	err error
}

func (r *recordReader) label(l string) {
	if r.err != nil {
		return
	}
	if r.off+len(l) > len(r.buf) {
		r.err = ErrShortRecord
		return
	}
	if string(r.buf[r.off:r.off+len(l)]) != l {
		r.err = fmt.Errorf("expected label %q at offset %d", l, r.off)
		return
	}
	r.off += len(l)
}

func (r *recordReader) field(width int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+width+1 > len(r.buf) {
		r.err = ErrShortRecord
		return nil
	}
	f := r.buf[r.off : r.off+width]
	if r.buf[r.off+width] != fieldDelim {
		r.err = fmt.Errorf("%w: missing delimiter at offset %d", ErrMalformedField, r.off+width)
		return nil
	}
	r.off += width + 1
	return f
}

func (r *recordReader) number(width int) int64 {
	f := r.field(width)
	if r.err != nil {
		return 0
	}
	v, err := strconv.ParseInt(string(bytes.TrimLeft(f, " ")), 10, 64)
	if err != nil {
		r.err = fmt.Errorf("%w: %w", ErrMalformedField, err)
		return 0
	}
	return v
}

// bytes returns a copy of a NUL-padded field with the padding removed.
func (r *recordReader) bytes(width int) []byte {
	f := r.field(width)
	if r.err != nil {
		return nil
	}
	f = bytes.TrimRight(f, "\x00")
	out := make([]byte, len(f))
	copy(out, f)
	return out
}
