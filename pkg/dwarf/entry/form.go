package entry

import (
	"encoding/binary"
	"fmt"

	"github.com/hitzhangjie/gdwarf/pkg/dwarf/abbrev"
	"github.com/hitzhangjie/gdwarf/pkg/dwarf/godwarf"
	"github.com/hitzhangjie/gdwarf/pkg/dwarf/util"
)

// minimum DWARF version each form is legal in
var formMinVersion = map[godwarf.Form]uint16{
	godwarf.FormSecOffset:     4,
	godwarf.FormExprloc:       4,
	godwarf.FormFlagPresent:   4,
	godwarf.FormRefSig8:       4,
	godwarf.FormStrx:          5,
	godwarf.FormAddrx:         5,
	godwarf.FormRefSup4:       5,
	godwarf.FormStrpSup:       5,
	godwarf.FormData16:        5,
	godwarf.FormLineStrp:      5,
	godwarf.FormImplicitConst: 5,
	godwarf.FormLoclistx:      5,
	godwarf.FormRnglistx:      5,
	godwarf.FormRefSup8:       5,
	godwarf.FormStrx1:         5,
	godwarf.FormStrx2:         5,
	godwarf.FormStrx3:         5,
	godwarf.FormStrx4:         5,
	godwarf.FormAddrx1:        5,
	godwarf.FormAddrx2:        5,
	godwarf.FormAddrx3:        5,
	godwarf.FormAddrx4:        5,
}

// decodeField reads one attribute value according to spec's form,
// returning it with its value class resolved.
func (u *Unit) decodeField(rd *util.Reader, spec abbrev.AttrSpec) (Field, error) {
	return u.decodeFieldForm(rd, spec, spec.Form, 0)
}

func (u *Unit) decodeFieldForm(rd *util.Reader, spec abbrev.AttrSpec, form godwarf.Form, indirectDepth int) (Field, error) {
	f := Field{Attr: spec.Attr}

	if min := formMinVersion[form]; min != 0 && u.Header.Version < min {
		return f, fmt.Errorf("form %s not defined for DWARF version %d: %w",
			form, u.Header.Version, ErrUnknownForm)
	}

	switch form {
	case godwarf.FormAddr:
		v, err := rd.ReadAddr(u.Header.AddrSize)
		if err != nil {
			return f, err
		}
		f.Val, f.Class = v, godwarf.ClassAddress

	case godwarf.FormAddrx, godwarf.FormAddrx1, godwarf.FormAddrx2, godwarf.FormAddrx3, godwarf.FormAddrx4:
		idx, err := u.readIndex(rd, form, godwarf.FormAddrx)
		if err != nil {
			return f, err
		}
		v, err := u.resolveAddrIndex(idx)
		if err != nil {
			return f, err
		}
		f.Val, f.Class = v, godwarf.ClassAddress

	case godwarf.FormBlock1:
		n, err := rd.ReadUint8()
		if err != nil {
			return f, err
		}
		return u.readBlock(rd, f, uint64(n))
	case godwarf.FormBlock2:
		n, err := rd.ReadUint16()
		if err != nil {
			return f, err
		}
		return u.readBlock(rd, f, uint64(n))
	case godwarf.FormBlock4:
		n, err := rd.ReadUint32()
		if err != nil {
			return f, err
		}
		return u.readBlock(rd, f, uint64(n))
	case godwarf.FormBlock:
		n, err := rd.ReadULEB128()
		if err != nil {
			return f, err
		}
		return u.readBlock(rd, f, n)
	case godwarf.FormData16:
		b, err := rd.ReadBytes(16)
		if err != nil {
			return f, err
		}
		f.Val, f.Class = b, godwarf.ClassBlock

	case godwarf.FormData1, godwarf.FormData2, godwarf.FormData4, godwarf.FormData8:
		size := map[godwarf.Form]int{
			godwarf.FormData1: 1, godwarf.FormData2: 2,
			godwarf.FormData4: 4, godwarf.FormData8: 8,
		}[form]
		v, err := rd.ReadUint(size)
		if err != nil {
			return f, err
		}
		f.Val, f.Class = int64(v), godwarf.ClassConstant
	case godwarf.FormSdata:
		v, err := rd.ReadSLEB128()
		if err != nil {
			return f, err
		}
		f.Val, f.Class = v, godwarf.ClassConstant
	case godwarf.FormUdata:
		v, err := rd.ReadULEB128()
		if err != nil {
			return f, err
		}
		f.Val, f.Class = int64(v), godwarf.ClassConstant
	case godwarf.FormImplicitConst:
		// the value was embedded in the abbreviation
		f.Val, f.Class = spec.Val, godwarf.ClassConstant

	case godwarf.FormString:
		s, err := rd.ReadCString()
		if err != nil {
			return f, err
		}
		f.Val, f.Class = s, godwarf.ClassString
	case godwarf.FormStrp:
		off, err := rd.ReadOffset()
		if err != nil {
			return f, err
		}
		s, err := readStrAt(u.data.str, off, ".debug_str")
		if err != nil {
			return f, err
		}
		f.Val, f.Class = s, godwarf.ClassString
	case godwarf.FormLineStrp:
		off, err := rd.ReadOffset()
		if err != nil {
			return f, err
		}
		s, err := readStrAt(u.data.lineStr, off, ".debug_line_str")
		if err != nil {
			return f, err
		}
		f.Val, f.Class = s, godwarf.ClassString
	case godwarf.FormStrx, godwarf.FormStrx1, godwarf.FormStrx2, godwarf.FormStrx3, godwarf.FormStrx4:
		idx, err := u.readIndex(rd, form, godwarf.FormStrx)
		if err != nil {
			return f, err
		}
		s, err := u.resolveStrIndex(idx)
		if err != nil {
			return f, err
		}
		f.Val, f.Class = s, godwarf.ClassString
	case godwarf.FormStrpSup:
		off, err := rd.ReadOffset()
		if err != nil {
			return f, err
		}
		// no supplementary object file support, surface the raw offset
		f.Val, f.Class = off, godwarf.ClassString

	case godwarf.FormFlag:
		v, err := rd.ReadUint8()
		if err != nil {
			return f, err
		}
		f.Val, f.Class = v != 0, godwarf.ClassFlag
	case godwarf.FormFlagPresent:
		f.Val, f.Class = true, godwarf.ClassFlag

	case godwarf.FormRef1, godwarf.FormRef2, godwarf.FormRef4, godwarf.FormRef8:
		size := map[godwarf.Form]int{
			godwarf.FormRef1: 1, godwarf.FormRef2: 2,
			godwarf.FormRef4: 4, godwarf.FormRef8: 8,
		}[form]
		v, err := rd.ReadUint(size)
		if err != nil {
			return f, err
		}
		f.Val, f.Class = u.Header.Offset+v, godwarf.ClassReference
	case godwarf.FormRefUdata:
		v, err := rd.ReadULEB128()
		if err != nil {
			return f, err
		}
		f.Val, f.Class = u.Header.Offset+v, godwarf.ClassReference
	case godwarf.FormRefAddr:
		v, err := rd.ReadOffset()
		if err != nil {
			return f, err
		}
		f.Val, f.Class = v, godwarf.ClassReference
	case godwarf.FormRefSig8:
		v, err := rd.ReadUint64()
		if err != nil {
			return f, err
		}
		f.Val, f.Class = v, godwarf.ClassReferenceSig
	case godwarf.FormRefSup4:
		v, err := rd.ReadUint32()
		if err != nil {
			return f, err
		}
		f.Val, f.Class = uint64(v), godwarf.ClassReference
	case godwarf.FormRefSup8:
		v, err := rd.ReadUint64()
		if err != nil {
			return f, err
		}
		f.Val, f.Class = v, godwarf.ClassReference

	case godwarf.FormSecOffset:
		v, err := rd.ReadOffset()
		if err != nil {
			return f, err
		}
		f.Val, f.Class = int64(v), secOffsetClass(spec.Attr)
	case godwarf.FormExprloc:
		n, err := rd.ReadULEB128()
		if err != nil {
			return f, err
		}
		b, err := rd.ReadBytes(int(n))
		if err != nil {
			return f, err
		}
		f.Val, f.Class = b, godwarf.ClassExprLoc
	case godwarf.FormLoclistx:
		v, err := rd.ReadULEB128()
		if err != nil {
			return f, err
		}
		f.Val, f.Class = v, godwarf.ClassLocList
	case godwarf.FormRnglistx:
		v, err := rd.ReadULEB128()
		if err != nil {
			return f, err
		}
		f.Val, f.Class = v, godwarf.ClassRngList

	case godwarf.FormIndirect:
		if indirectDepth > 2 {
			return f, fmt.Errorf("indirect form loop: %w", util.ErrInvalidEncoding)
		}
		real, err := rd.ReadULEB128()
		if err != nil {
			return f, err
		}
		return u.decodeFieldForm(rd, spec, godwarf.Form(real), indirectDepth+1)

	default:
		return f, fmt.Errorf("form %s: %w", form, ErrUnknownForm)
	}

	return f, nil
}

func (u *Unit) readBlock(rd *util.Reader, f Field, n uint64) (Field, error) {
	b, err := rd.ReadBytes(int(n))
	if err != nil {
		return f, err
	}
	f.Val = b
	// DWARF 2 and 3 encode location expressions as plain blocks
	if u.Header.Version < 4 && attrIsExprloc(f.Attr) {
		f.Class = godwarf.ClassExprLoc
	} else {
		f.Class = godwarf.ClassBlock
	}
	return f, nil
}

// readIndex reads the index operand of the strx/addrx form families:
// base form means ULEB128, baseForm+N means an N-byte fixed-width index.
func (u *Unit) readIndex(rd *util.Reader, form, base godwarf.Form) (uint64, error) {
	if form == base {
		return rd.ReadULEB128()
	}
	return rd.ReadUint(int(form - base))
}

func (u *Unit) resolveStrIndex(idx uint64) (string, error) {
	if u.data.strOffsets == nil {
		return "", fmt.Errorf(".debug_str_offsets section not available: %w", util.ErrTruncated)
	}
	pos := u.strOffBase + idx*uint64(u.Header.OffsetSize)
	rd := util.NewReader(u.data.strOffsets, u.data.order, 0)
	if err := rd.Seek(pos); err != nil {
		return "", err
	}
	off, err := rd.ReadUint(u.Header.OffsetSize)
	if err != nil {
		return "", err
	}
	return readStrAt(u.data.str, off, ".debug_str")
}

func (u *Unit) resolveAddrIndex(idx uint64) (uint64, error) {
	if u.data.addr == nil {
		return 0, fmt.Errorf(".debug_addr section not available: %w", util.ErrTruncated)
	}
	pos := u.addrBase + idx*uint64(u.Header.AddrSize)
	rd := util.NewReader(u.data.addr, u.data.order, 0)
	if err := rd.Seek(pos); err != nil {
		return 0, err
	}
	return rd.ReadUint(u.Header.AddrSize)
}

func readStrAt(sec []byte, off uint64, name string) (string, error) {
	if sec == nil {
		return "", fmt.Errorf("%s section not available: %w", name, util.ErrTruncated)
	}
	if off > uint64(len(sec)) {
		return "", fmt.Errorf("%s offset %#x out of range: %w", name, off, util.ErrTruncated)
	}
	rd := util.NewReader(sec[off:], binary.LittleEndian, off)
	return rd.ReadCString()
}

func attrIsExprloc(a godwarf.Attr) bool {
	switch a {
	case godwarf.AttrLocation, godwarf.AttrDataMemberLoc, godwarf.AttrFrameBase,
		godwarf.AttrReturnAddr, godwarf.AttrStaticLink, godwarf.AttrUseLocation,
		godwarf.AttrVtableElemLoc, godwarf.AttrSegment, godwarf.AttrStringLength:
		return true
	}
	return false
}

// secOffsetClass resolves the attribute-dependent class of FormSecOffset.
func secOffsetClass(a godwarf.Attr) godwarf.Class {
	switch a {
	case godwarf.AttrStmtList:
		return godwarf.ClassLinePtr
	case godwarf.AttrMacroInfo, godwarf.AttrMacros:
		return godwarf.ClassMacPtr
	case godwarf.AttrRanges, godwarf.AttrStartScope:
		return godwarf.ClassRangeListPtr
	case godwarf.AttrStrOffsetsBase:
		return godwarf.ClassStrOffsetsPtr
	case godwarf.AttrAddrBase:
		return godwarf.ClassAddrPtr
	case godwarf.AttrRnglistsBase:
		return godwarf.ClassRngList
	case godwarf.AttrLoclistsBase:
		return godwarf.ClassLocList
	}
	if attrIsExprloc(a) {
		return godwarf.ClassLocListPtr
	}
	return godwarf.ClassConstant
}
