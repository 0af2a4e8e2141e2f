package util

import "errors"

var (
	// ErrTruncated a read ran past the available bytes
	ErrTruncated = errors.New("dwarf: truncated data")

	// ErrInvalidEncoding a value violates its encoding's own constraints,
	// e.g. an over-long LEB128 or a bad initial-length escape
	ErrInvalidEncoding = errors.New("dwarf: invalid encoding")
)
