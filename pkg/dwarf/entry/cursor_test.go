package entry

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hitzhangjie/gdwarf/pkg/dwarf/godwarf"
	"github.com/hitzhangjie/gdwarf/pkg/dwarf/util"
)

// testAbbrev builds an abbreviation table with three declarations:
//
//	1: CompileUnit, children, [(Name, string)]
//	2: Variable, no children, [(Name, string), (Type, ref4)]
//	3: Subprogram, children, [(Name, string), (Sibling, ref4)]
func testAbbrev() []byte {
	var buf bytes.Buffer
	decl := func(code uint64, tag godwarf.Tag, children bool, attrs ...uint64) {
		util.EncodeULEB128(&buf, code)
		util.EncodeULEB128(&buf, uint64(tag))
		if children {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		for i := 0; i < len(attrs); i += 2 {
			util.EncodeULEB128(&buf, attrs[i])
			util.EncodeULEB128(&buf, attrs[i+1])
		}
		buf.WriteByte(0)
		buf.WriteByte(0)
	}
	decl(1, godwarf.TagCompileUnit, true,
		uint64(godwarf.AttrName), uint64(godwarf.FormString))
	decl(2, godwarf.TagVariable, false,
		uint64(godwarf.AttrName), uint64(godwarf.FormString),
		uint64(godwarf.AttrType), uint64(godwarf.FormRef4))
	decl(3, godwarf.TagSubprogram, true,
		uint64(godwarf.AttrName), uint64(godwarf.FormString),
		uint64(godwarf.AttrSibling), uint64(godwarf.FormRef4))
	buf.WriteByte(0) // table terminator
	return buf.Bytes()
}

// testInfo builds one DWARF 4 unit:
//
//	CompileUnit "main.go"
//	├── Variable "x" → ref 0x30
//	├── Subprogram "f" (with DW_AT_sibling)
//	│   └── Variable "y" → ref 0x40
//	└── Variable "z" → ref 0x50
func testInfo(t *testing.T) []byte {
	var body bytes.Buffer

	writeVar := func(name string, ref uint32) {
		body.WriteByte(2)
		body.WriteString(name)
		body.WriteByte(0)
		binary.Write(&body, binary.LittleEndian, ref)
	}

	body.WriteByte(1) // CompileUnit
	body.WriteString("main.go")
	body.WriteByte(0)

	writeVar("x", 0x30)

	body.WriteByte(3) // Subprogram "f"
	body.WriteString("f")
	body.WriteByte(0)
	siblingPatch := body.Len()
	binary.Write(&body, binary.LittleEndian, uint32(0)) // patched below

	writeVar("y", 0x40)
	body.WriteByte(0) // close Subprogram children

	siblingTarget := uint32(headerLenV4 + body.Len())
	binary.LittleEndian.PutUint32(body.Bytes()[siblingPatch:], siblingTarget)

	writeVar("z", 0x50)
	body.WriteByte(0) // close CompileUnit children

	var info bytes.Buffer
	binary.Write(&info, binary.LittleEndian, uint32(headerLenV4-4+body.Len())) // unit length
	binary.Write(&info, binary.LittleEndian, uint16(4))                        // version
	binary.Write(&info, binary.LittleEndian, uint32(0))                        // abbrev offset
	info.WriteByte(8)                                                          // address size
	info.Write(body.Bytes())
	return info.Bytes()
}

const headerLenV4 = 11

func testData(t *testing.T) *Data {
	return New(Config{
		Order:  binary.LittleEndian,
		Info:   testInfo(t),
		Abbrev: testAbbrev(),
	})
}

func TestUnitHeader(t *testing.T) {
	d := testData(t)
	u, err := d.Units().Next()
	assert.NoError(t, err)
	assert.NotNil(t, u)

	assert.Equal(t, uint16(4), u.Header.Version)
	assert.Equal(t, 8, u.Header.AddrSize)
	assert.Equal(t, 4, u.Header.OffsetSize)
	assert.Equal(t, uint64(headerLenV4), u.Header.FirstEntryOffset())
	assert.Equal(t, uint64(len(d.info)), u.Header.EndOffset())

	next, err := d.Units().Next()
	assert.NoError(t, err)
	assert.NotNil(t, next)
}

// TestWalkConsumesDeclaredLength checks that a full traversal of the DIE
// tree lands exactly on the unit's declared end offset.
func TestWalkConsumesDeclaredLength(t *testing.T) {
	d := testData(t)
	u, err := d.Units().Next()
	assert.NoError(t, err)

	c := u.Cursor()
	n := 0
	for {
		e, err := c.Next()
		assert.NoError(t, err)
		if e == nil {
			break
		}
		n++
	}
	assert.Equal(t, u.Header.EndOffset(), c.rd.Off())
	assert.Equal(t, 7, n) // 5 DIEs + 2 null terminators
}

func TestCursorWalk(t *testing.T) {
	d := testData(t)
	u, _ := d.Units().Next()
	c := u.Cursor()

	cu, err := c.Next()
	assert.NoError(t, err)
	assert.Equal(t, godwarf.TagCompileUnit, cu.Tag)
	assert.Equal(t, "main.go", cu.Val(godwarf.AttrName))
	assert.True(t, cu.Children)
	assert.Equal(t, 1, c.Depth())

	x, err := c.Next()
	assert.NoError(t, err)
	assert.Equal(t, godwarf.TagVariable, x.Tag)
	assert.Equal(t, "x", x.Val(godwarf.AttrName))
	// ref4 is unit relative, normalized to a section offset
	assert.Equal(t, uint64(0x30), x.Val(godwarf.AttrType))
	assert.Equal(t, godwarf.ClassReference, x.Field[1].Class)

	f, err := c.Next()
	assert.NoError(t, err)
	assert.Equal(t, godwarf.TagSubprogram, f.Tag)
	assert.Equal(t, 2, c.Depth())

	y, err := c.Next()
	assert.NoError(t, err)
	assert.Equal(t, "y", y.Val(godwarf.AttrName))

	null, err := c.Next()
	assert.NoError(t, err)
	assert.True(t, null.IsNull())
	assert.Equal(t, 1, c.Depth())

	z, err := c.Next()
	assert.NoError(t, err)
	assert.Equal(t, "z", z.Val(godwarf.AttrName))
}

// TestSkipChildren verifies that the DW_AT_sibling fast path and the
// depth-bookkeeping fallback land on the same entry.
func TestSkipChildren(t *testing.T) {
	d := testData(t)

	landOn := func(stripSibling bool) uint64 {
		u, err := d.Units().Next()
		assert.NoError(t, err)
		c := u.Cursor()

		_, _ = c.Next() // CompileUnit
		_, _ = c.Next() // x
		f, err := c.Next()
		assert.NoError(t, err)
		assert.Equal(t, godwarf.TagSubprogram, f.Tag)

		if stripSibling {
			// make SkipChildren take the fallback path
			c.lastSibling = 0
		}
		err = c.SkipChildren()
		assert.NoError(t, err)

		e, err := c.Next()
		assert.NoError(t, err)
		assert.Equal(t, "z", e.Val(godwarf.AttrName))
		return e.Offset
	}

	viaSibling := landOn(false)
	viaFallback := landOn(true)
	assert.Equal(t, viaSibling, viaFallback)
}

func TestSkipChildrenOnLeafIsNoop(t *testing.T) {
	d := testData(t)
	u, _ := d.Units().Next()
	c := u.Cursor()

	_, _ = c.Next() // CompileUnit
	x, _ := c.Next()
	assert.False(t, x.Children)
	off := c.rd.Off()
	assert.NoError(t, c.SkipChildren())
	assert.Equal(t, off, c.rd.Off())
}

func TestSiblingEscapingUnitIsError(t *testing.T) {
	info := testInfo(t)
	// find the sibling field and point it past the unit end
	d := New(Config{Order: binary.LittleEndian, Info: info, Abbrev: testAbbrev()})
	u, _ := d.Units().Next()
	c := u.Cursor()
	_, _ = c.Next()
	_, _ = c.Next()
	_, err := c.Next() // Subprogram with sibling
	assert.NoError(t, err)
	c.lastSibling = u.Header.EndOffset() + 100

	err = c.SkipChildren()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "escapes unit")
}

func TestUnknownAbbreviationCode(t *testing.T) {
	var body bytes.Buffer
	body.WriteByte(9) // code never declared
	var info bytes.Buffer
	binary.Write(&info, binary.LittleEndian, uint32(headerLenV4-4+body.Len()))
	binary.Write(&info, binary.LittleEndian, uint16(4))
	binary.Write(&info, binary.LittleEndian, uint32(0))
	info.WriteByte(8)
	info.Write(body.Bytes())

	d := New(Config{Order: binary.LittleEndian, Info: info.Bytes(), Abbrev: testAbbrev()})
	u, err := d.Units().Next()
	assert.NoError(t, err)
	_, err = u.Cursor().Next()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown abbreviation code")
}

func TestUnitLengthBeyondSection(t *testing.T) {
	info := testInfo(t)
	binary.LittleEndian.PutUint32(info, uint32(len(info)+100))

	d := New(Config{Order: binary.LittleEndian, Info: info, Abbrev: testAbbrev()})
	_, err := d.Units().Next()
	assert.Error(t, err)
}

// TestAttributeConsumption pins down the byte layout of the two-attribute
// variable abbreviation: inline string plus a 4-byte reference consume
// exactly 1+2+4 bytes after the code.
func TestAttributeConsumption(t *testing.T) {
	d := testData(t)
	u, _ := d.Units().Next()
	c := u.Cursor()

	_, _ = c.Next() // CompileUnit
	start := c.rd.Off()
	x, err := c.Next()
	assert.NoError(t, err)
	assert.Equal(t, godwarf.TagVariable, x.Tag)
	assert.Equal(t, "x", x.Val(godwarf.AttrName))
	// code ULEB (1) + "x\0" (2) + ref4 (4)
	assert.Equal(t, start+7, c.rd.Off())
}
