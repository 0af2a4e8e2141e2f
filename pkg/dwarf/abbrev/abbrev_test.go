package abbrev

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hitzhangjie/gdwarf/pkg/dwarf/godwarf"
	"github.com/hitzhangjie/gdwarf/pkg/dwarf/util"
)

// buildTable encodes a single-declaration table:
// {code:1, tag:DW_TAG_variable, no children, [(DW_AT_name, DW_FORM_string), (DW_AT_type, DW_FORM_ref4)]}
func buildTable() []byte {
	var buf bytes.Buffer
	util.EncodeULEB128(&buf, 1)                           // code
	util.EncodeULEB128(&buf, uint64(godwarf.TagVariable)) // tag
	buf.WriteByte(0)                                      // no children
	util.EncodeULEB128(&buf, uint64(godwarf.AttrName))
	util.EncodeULEB128(&buf, uint64(godwarf.FormString))
	util.EncodeULEB128(&buf, uint64(godwarf.AttrType))
	util.EncodeULEB128(&buf, uint64(godwarf.FormRef4))
	buf.WriteByte(0) // attr terminator
	buf.WriteByte(0) // attr terminator
	buf.WriteByte(0) // table terminator
	return buf.Bytes()
}

func TestParse(t *testing.T) {
	tbl, err := Parse(buildTable(), binary.LittleEndian, 0)
	assert.NoError(t, err)
	assert.Len(t, tbl, 1)

	abbrev, err := tbl.Lookup(1)
	assert.NoError(t, err)
	assert.Equal(t, godwarf.TagVariable, abbrev.Tag)
	assert.False(t, abbrev.Children)
	assert.Equal(t, []AttrSpec{
		{Attr: godwarf.AttrName, Form: godwarf.FormString},
		{Attr: godwarf.AttrType, Form: godwarf.FormRef4},
	}, abbrev.Attrs)

	_, err = tbl.Lookup(2)
	assert.Error(t, err)
}

func TestParseImplicitConst(t *testing.T) {
	var buf bytes.Buffer
	util.EncodeULEB128(&buf, 1)
	util.EncodeULEB128(&buf, uint64(godwarf.TagMember))
	buf.WriteByte(0)
	util.EncodeULEB128(&buf, uint64(godwarf.AttrDataMemberLoc))
	util.EncodeULEB128(&buf, uint64(godwarf.FormImplicitConst))
	util.EncodeSLEB128(&buf, -8)
	buf.WriteByte(0)
	buf.WriteByte(0)
	buf.WriteByte(0)

	tbl, err := Parse(buf.Bytes(), binary.LittleEndian, 0)
	assert.NoError(t, err)
	abbrev := tbl[1]
	assert.Equal(t, int64(-8), abbrev.Attrs[0].Val)
}

func TestParseDuplicateCode(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < 2; i++ {
		util.EncodeULEB128(&buf, 1)
		util.EncodeULEB128(&buf, uint64(godwarf.TagBaseType))
		buf.WriteByte(0)
		buf.WriteByte(0)
		buf.WriteByte(0)
	}
	buf.WriteByte(0)

	_, err := Parse(buf.Bytes(), binary.LittleEndian, 0)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestParseUnknownForm(t *testing.T) {
	var buf bytes.Buffer
	util.EncodeULEB128(&buf, 1)
	util.EncodeULEB128(&buf, uint64(godwarf.TagVariable))
	buf.WriteByte(0)
	util.EncodeULEB128(&buf, uint64(godwarf.AttrName))
	util.EncodeULEB128(&buf, 0x7f) // not a form this decoder knows
	buf.WriteByte(0)
	buf.WriteByte(0)
	buf.WriteByte(0)

	_, err := Parse(buf.Bytes(), binary.LittleEndian, 0)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown form")
}

func TestParseMissingTerminator(t *testing.T) {
	data := buildTable()
	data = data[:len(data)-1] // drop the table terminator

	_, err := Parse(data, binary.LittleEndian, 0)
	assert.Error(t, err)
}

func TestParseTruncated(t *testing.T) {
	data := buildTable()
	for n := 1; n < len(data)-1; n++ {
		_, err := Parse(data[:n], binary.LittleEndian, 0)
		assert.Errorf(t, err, "prefix of %d bytes", n)
	}
}

func TestCacheDecodesOnce(t *testing.T) {
	cache := NewCache(buildTable(), binary.LittleEndian)

	tbl1, err := cache.TableAt(0)
	assert.NoError(t, err)
	tbl2, err := cache.TableAt(0)
	assert.NoError(t, err)

	// same declarations, not a re-decode
	if tbl1[1] != tbl2[1] {
		t.Fatalf("expected cached table to be shared")
	}
}
