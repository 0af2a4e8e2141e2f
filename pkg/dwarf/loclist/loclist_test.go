package loclist

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildLoclist() []byte {
	var out bytes.Buffer
	w := func(v uint64) { binary.Write(&out, binary.LittleEndian, v) }

	// [0x1000, 0x1010): 2-byte expression
	w(0x1000)
	w(0x1010)
	binary.Write(&out, binary.LittleEndian, uint16(2))
	out.Write([]byte{0x91, 0x70}) // fbreg -16

	// base address selection: switch to 0x400000
	w(^uint64(0))
	w(0x400000)

	// [base+0x20, base+0x30)
	w(0x20)
	w(0x30)
	binary.Write(&out, binary.LittleEndian, uint16(1))
	out.Write([]byte{0x53}) // reg3

	// end of list
	w(0)
	w(0)
	return out.Bytes()
}

func TestFind(t *testing.T) {
	rdr := NewReader(buildLoclist(), binary.LittleEndian, 8)

	e, err := rdr.Find(0, 0, 0, 0x1008)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, []byte{0x91, 0x70}, e.Instr)

	// the base address selection entry redirects later ranges
	e, err = rdr.Find(0, 0, 0, 0x400028)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, []byte{0x53}, e.Instr)

	// uncovered pc
	e, err = rdr.Find(0, 0, 0, 0x2000)
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestTruncatedList(t *testing.T) {
	data := buildLoclist()
	rdr := NewReader(data[:len(data)-10], binary.LittleEndian, 8)
	_, err := rdr.Find(0, 0, 0, 0x999999)
	assert.Error(t, err)
}

func TestEmpty(t *testing.T) {
	assert.True(t, NewReader(nil, binary.LittleEndian, 8).Empty())
	assert.False(t, NewReader([]byte{0}, binary.LittleEndian, 8).Empty())
}
