package util

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadFixedWidth(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

	r := NewReader(data, binary.LittleEndian, 0)
	v8, err := r.ReadUint8()
	assert.NoError(t, err)
	assert.Equal(t, uint8(0x01), v8)

	v16, err := r.ReadUint16()
	assert.NoError(t, err)
	assert.Equal(t, uint16(0x0302), v16)

	v32, err := r.ReadUint32()
	assert.NoError(t, err)
	assert.Equal(t, uint32(0x07060504), v32)

	r = NewReader(data, binary.BigEndian, 0)
	v64, err := r.ReadUint64()
	assert.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), v64)
}

func TestULEB128RoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 1<<32 - 1, math.MaxUint64}

	for _, want := range values {
		var buf bytes.Buffer
		EncodeULEB128(&buf, want)

		r := NewReader(buf.Bytes(), binary.LittleEndian, 0)
		got, err := r.ReadULEB128()
		assert.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, 0, r.Len())
	}
}

func TestSLEB128RoundTrip(t *testing.T) {
	values := []int64{0, 1, 127, 128, -1, 63, -64, 64, -65, -128, math.MinInt64, math.MaxInt64}

	for _, want := range values {
		var buf bytes.Buffer
		EncodeSLEB128(&buf, want)

		r := NewReader(buf.Bytes(), binary.LittleEndian, 0)
		got, err := r.ReadSLEB128()
		assert.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, 0, r.Len())
	}
}

func TestOverlongLEB128(t *testing.T) {
	data := bytes.Repeat([]byte{0x80}, 16)

	r := NewReader(data, binary.LittleEndian, 0)
	_, err := r.ReadULEB128()
	assert.Equal(t, ErrInvalidEncoding, unwrap(err))

	r = NewReader(data, binary.LittleEndian, 0)
	_, err = r.ReadSLEB128()
	assert.Equal(t, ErrInvalidEncoding, unwrap(err))
}

func TestReadCString(t *testing.T) {
	r := NewReader([]byte{'x', 0x00, 'y', 'z'}, binary.LittleEndian, 0)
	s, err := r.ReadCString()
	assert.NoError(t, err)
	assert.Equal(t, "x", s)
	assert.Equal(t, uint64(2), r.Off())

	_, err = r.ReadCString()
	assert.Equal(t, ErrTruncated, unwrap(err))
}

func TestReadInitialLength(t *testing.T) {
	// 32-bit form
	r := NewReader([]byte{0x10, 0x00, 0x00, 0x00}, binary.LittleEndian, 0)
	length, dwarf64, err := r.ReadInitialLength()
	assert.NoError(t, err)
	assert.False(t, dwarf64)
	assert.Equal(t, uint64(0x10), length)
	assert.Equal(t, 4, r.OffsetSize())

	// 64-bit escape
	r = NewReader([]byte{
		0xff, 0xff, 0xff, 0xff,
		0x20, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}, binary.LittleEndian, 0)
	length, dwarf64, err = r.ReadInitialLength()
	assert.NoError(t, err)
	assert.True(t, dwarf64)
	assert.Equal(t, uint64(0x20), length)
	assert.Equal(t, 8, r.OffsetSize())

	// reserved values must be rejected
	r = NewReader([]byte{0xf0, 0xff, 0xff, 0xff}, binary.LittleEndian, 0)
	_, _, err = r.ReadInitialLength()
	assert.Equal(t, ErrInvalidEncoding, unwrap(err))
}

// TestTruncationSafety feeds every possible prefix of a valid byte stream
// to each read operation, all must fail with ErrTruncated and leave the
// cursor where it was.
func TestTruncationSafety(t *testing.T) {
	full := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

	type op struct {
		name string
		need int
		read func(r *Reader) error
	}
	ops := []op{
		{"uint8", 1, func(r *Reader) error { _, err := r.ReadUint8(); return err }},
		{"uint16", 2, func(r *Reader) error { _, err := r.ReadUint16(); return err }},
		{"uint32", 4, func(r *Reader) error { _, err := r.ReadUint32(); return err }},
		{"uint64", 8, func(r *Reader) error { _, err := r.ReadUint64(); return err }},
		{"bytes", 5, func(r *Reader) error { _, err := r.ReadBytes(5); return err }},
		{"addr", 8, func(r *Reader) error { _, err := r.ReadAddr(8); return err }},
	}

	for _, op := range ops {
		for n := 0; n < op.need; n++ {
			r := NewReader(full[:n], binary.LittleEndian, 0)
			err := op.read(r)
			assert.Equalf(t, ErrTruncated, unwrap(err), "%s with %d bytes", op.name, n)
			assert.Equal(t, uint64(0), r.Off())
		}
	}
}

func TestForkIsIndependent(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4}, binary.LittleEndian, 0x100)
	_, _ = r.ReadUint8()

	fork := r.Fork()
	_, _ = fork.ReadUint8()

	assert.Equal(t, uint64(1), r.Off())
	assert.Equal(t, uint64(2), fork.Off())
	assert.Equal(t, uint64(0x101), r.SectionOff())
}

func unwrap(err error) error {
	for {
		type wrapped interface{ Unwrap() error }
		w, ok := err.(wrapped)
		if !ok {
			return err
		}
		err = w.Unwrap()
	}
}
