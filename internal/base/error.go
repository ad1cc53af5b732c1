package base

import "errors"

var (
	ErrInvalidDegree   = errors.New("degree must be at least 2")
	ErrInvalidSize     = errors.New("key, value and link sizes must be positive")
	ErrKeyEmpty        = errors.New("key cannot be empty")
	ErrKeyTooLarge     = errors.New("key too large")
	ErrValueTooLarge   = errors.New("value too large")
	ErrPaddedField     = errors.New("keys and values cannot end with a zero byte")
	ErrShortRecord     = errors.New("record shorter than page size")
	ErrMalformedField  = errors.New("malformed record field")
	ErrMalformedHeader = errors.New("malformed header record")
	ErrPageOverflow    = errors.New("page overflow: node exceeds degree capacity")
	ErrUnordered       = errors.New("page keys are not sorted")
)
