package entry

import "errors"

var (
	// ErrUnknownForm a valid byte sequence used a form this decoder does
	// not recognize for the unit's declared version
	ErrUnknownForm = errors.New("dwarf: unknown attribute form")

	// ErrInconsistentLength a declared unit length does not match the
	// bytes actually consumed
	ErrInconsistentLength = errors.New("dwarf: inconsistent unit length")

	// ErrMalformedTree the DIE tree structure violates its own encoding,
	// e.g. a sibling pointer escaping the unit
	ErrMalformedTree = errors.New("dwarf: malformed DIE tree")
)
