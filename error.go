package idxtree

import (
	"errors"

	"idxtree/internal/base"
)

//goland:noinspection GoUnusedGlobalVariable
var (
	ErrKeyNotFound     = errors.New("key not found")
	ErrTreeClosed      = errors.New("tree is closed")
	ErrSchemaMismatch  = errors.New("schema mismatch")
	ErrCorruption      = errors.New("data corruption detected")
	ErrInvariant       = errors.New("tree invariant violated")
	ErrCursorExhausted = errors.New("cursor has no more entries in this direction")

	ErrInvalidDegree   = base.ErrInvalidDegree
	ErrInvalidSize     = base.ErrInvalidSize
	ErrKeyEmpty        = base.ErrKeyEmpty
	ErrKeyTooLarge     = base.ErrKeyTooLarge
	ErrValueTooLarge   = base.ErrValueTooLarge
	ErrPaddedField     = base.ErrPaddedField
	ErrMalformedHeader = base.ErrMalformedHeader
	ErrPageOverflow    = base.ErrPageOverflow
)
