// Package util contains the byte-stream reader shared by all DWARF
// section decoders, plus the buffer-style helpers consumed by the
// .debug_frame parser.
package util

import (
	"encoding/binary"
	"fmt"
)

// maximum number of bytes a LEB128-encoded 64-bit value may occupy
const maxLEB128Len = 10

// Reader is a cursor over an immutable byte range with an explicit byte
// order and an initial-offset bias used to compute section-relative
// offsets. Every read either succeeds entirely or fails with ErrTruncated,
// the cursor is not advanced on failure.
//
// A Reader is cheap to copy, forking one for lookahead is a struct copy.
type Reader struct {
	data  []byte
	off   int
	order binary.ByteOrder
	bias  uint64 // section offset of data[0]

	// offset size selected by the unit's initial length, 4 or 8
	offsetSize int
}

// NewReader returns a Reader over data. bias is the offset of data[0]
// relative to the start of the enclosing section.
func NewReader(data []byte, order binary.ByteOrder, bias uint64) *Reader {
	return &Reader{data: data, order: order, bias: bias, offsetSize: 4}
}

// Fork returns an independent Reader sharing the same underlying bytes,
// positioned at the same offset.
func (r *Reader) Fork() *Reader {
	cp := *r
	return &cp
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.data) - r.off }

// Off returns the current offset relative to the start of the data slice.
func (r *Reader) Off() uint64 { return uint64(r.off) }

// SectionOff returns the current offset relative to the enclosing section.
func (r *Reader) SectionOff() uint64 { return r.bias + uint64(r.off) }

// ByteOrder returns the reader's byte order.
func (r *Reader) ByteOrder() binary.ByteOrder { return r.order }

// OffsetSize returns the active DWARF offset size (4 or 8).
func (r *Reader) OffsetSize() int { return r.offsetSize }

// SetOffsetSize overrides the active DWARF offset size. It is set
// automatically when ReadInitialLength sees the 64-bit escape.
func (r *Reader) SetOffsetSize(size int) { r.offsetSize = size }

// Seek positions the cursor at off, relative to the start of the data slice.
func (r *Reader) Seek(off uint64) error {
	if off > uint64(len(r.data)) {
		return fmt.Errorf("seek to %#x beyond end %#x: %w", off, len(r.data), ErrTruncated)
	}
	r.off = int(off)
	return nil
}

// Skip advances the cursor n bytes.
func (r *Reader) Skip(n int) error {
	if n < 0 || r.Len() < n {
		return ErrTruncated
	}
	r.off += n
	return nil
}

// ReadBytes returns the next n bytes. The result aliases the underlying
// data and must not be modified.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || r.Len() < n {
		return nil, ErrTruncated
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

// ReadUint8 reads one unsigned byte.
func (r *Reader) ReadUint8() (uint8, error) {
	if r.Len() < 1 {
		return 0, ErrTruncated
	}
	b := r.data[r.off]
	r.off++
	return b, nil
}

// ReadUint16 reads a 2-byte unsigned integer.
func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return r.order.Uint16(b), nil
}

// ReadUint32 reads a 4-byte unsigned integer.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return r.order.Uint32(b), nil
}

// ReadUint64 reads an 8-byte unsigned integer.
func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return r.order.Uint64(b), nil
}

// ReadUint reads an unsigned integer of the given byte size (1, 2, 4 or 8).
func (r *Reader) ReadUint(size int) (uint64, error) {
	switch size {
	case 1:
		v, err := r.ReadUint8()
		return uint64(v), err
	case 2:
		v, err := r.ReadUint16()
		return uint64(v), err
	case 4:
		v, err := r.ReadUint32()
		return uint64(v), err
	case 8:
		return r.ReadUint64()
	}
	return 0, fmt.Errorf("unsupported integer size %d: %w", size, ErrInvalidEncoding)
}

// ReadInt reads a signed integer of the given byte size (1, 2, 4 or 8).
func (r *Reader) ReadInt(size int) (int64, error) {
	v, err := r.ReadUint(size)
	if err != nil {
		return 0, err
	}
	switch size {
	case 1:
		return int64(int8(v)), nil
	case 2:
		return int64(int16(v)), nil
	case 4:
		return int64(int32(v)), nil
	}
	return int64(v), nil
}

// ReadULEB128 reads an unsigned little-endian base-128 integer.
func (r *Reader) ReadULEB128() (uint64, error) {
	var (
		result uint64
		shift  uint
	)
	for i := 0; ; i++ {
		if i >= maxLEB128Len {
			return 0, fmt.Errorf("over-long ULEB128: %w", ErrInvalidEncoding)
		}
		b, err := r.ReadUint8()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}

// ReadSLEB128 reads a signed little-endian base-128 integer.
func (r *Reader) ReadSLEB128() (int64, error) {
	var (
		result int64
		shift  uint
		b      byte
		err    error
	)
	for i := 0; ; i++ {
		if i >= maxLEB128Len {
			return 0, fmt.Errorf("over-long SLEB128: %w", ErrInvalidEncoding)
		}
		b, err = r.ReadUint8()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && b&0x40 != 0 {
		// sign extend
		result |= -1 << shift
	}
	return result, nil
}

// ReadCString reads bytes up to (not including) the next NUL terminator,
// consuming the terminator.
func (r *Reader) ReadCString() (string, error) {
	for i := r.off; i < len(r.data); i++ {
		if r.data[i] == 0 {
			s := string(r.data[r.off:i])
			r.off = i + 1
			return s, nil
		}
	}
	return "", fmt.Errorf("unterminated string: %w", ErrTruncated)
}

// ReadInitialLength reads a DWARF initial length: a 4-byte value that, if
// equal to 0xffffffff, is followed by the real 8-byte length and switches
// the reader to 64-bit offset size for the remainder of the enclosing unit.
// Values in [0xfffffff0, 0xffffffff) are reserved by the format.
func (r *Reader) ReadInitialLength() (length uint64, dwarf64 bool, err error) {
	l, err := r.ReadUint32()
	if err != nil {
		return 0, false, err
	}
	if l == 0xffffffff {
		length, err = r.ReadUint64()
		if err != nil {
			return 0, false, err
		}
		r.offsetSize = 8
		return length, true, nil
	}
	if l >= 0xfffffff0 {
		return 0, false, fmt.Errorf("reserved initial length %#x: %w", l, ErrInvalidEncoding)
	}
	r.offsetSize = 4
	return uint64(l), false, nil
}

// ReadOffset reads a section offset of the active offset size.
func (r *Reader) ReadOffset() (uint64, error) {
	return r.ReadUint(r.offsetSize)
}

// ReadAddr reads a target address of the given size.
func (r *Reader) ReadAddr(addrSize int) (uint64, error) {
	return r.ReadUint(addrSize)
}
