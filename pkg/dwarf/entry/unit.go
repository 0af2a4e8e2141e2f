// Package entry decodes .debug_info: unit headers and the lazy DIE tree
// cursor that resolves attribute values according to their form.
package entry

import (
	"encoding/binary"
	"fmt"

	"github.com/hitzhangjie/gdwarf/pkg/dwarf/abbrev"
	"github.com/hitzhangjie/gdwarf/pkg/dwarf/util"
)

// UnitType distinguishes the DWARF 5 unit kinds. Units of version <= 4
// are always UnitTypeCompile.
type UnitType uint8

const (
	UnitTypeCompile      UnitType = 0x01
	UnitTypeType         UnitType = 0x02
	UnitTypePartial      UnitType = 0x03
	UnitTypeSkeleton     UnitType = 0x04
	UnitTypeSplitCompile UnitType = 0x05
	UnitTypeSplitType    UnitType = 0x06
)

// UnitHeader describes one compilation/type unit of .debug_info.
//
// see DWARFv4 7.5.1 / DWARFv5 7.5.1 unit headers.
type UnitHeader struct {
	Offset       uint64 // section offset of the unit's initial-length field
	Length       uint64 // declared length, excluding the initial-length field
	Version      uint16
	Type         UnitType
	AddrSize     int
	OffsetSize   int // 4 or 8, selected by the initial-length escape
	AbbrevOffset uint64
	DWARF64      bool

	// type units only
	TypeSignature uint64
	TypeOffset    uint64

	// skeleton and split units only
	DWOID uint64

	headerEnd uint64 // section offset of the first DIE
}

// EndOffset returns the section offset one past the unit's last byte.
func (h *UnitHeader) EndOffset() uint64 {
	initialLen := uint64(4)
	if h.DWARF64 {
		initialLen = 12
	}
	return h.Offset + initialLen + h.Length
}

// FirstEntryOffset returns the section offset of the unit's root DIE.
func (h *UnitHeader) FirstEntryOffset() uint64 { return h.headerEnd }

// Data provides access to the units of one .debug_info section and the
// auxiliary sections their attribute forms reference.
type Data struct {
	order binary.ByteOrder

	info       []byte
	str        []byte
	lineStr    []byte
	strOffsets []byte
	addr       []byte

	abbrevCache *abbrev.Cache
}

// Config names the raw debug sections New consumes. Info and Abbrev are
// required, the rest are optional and only needed for the forms that
// reference them.
type Config struct {
	Order      binary.ByteOrder
	Info       []byte
	Abbrev     []byte
	Str        []byte
	LineStr    []byte
	StrOffsets []byte
	Addr       []byte
}

// New returns a Data over the given sections. No decoding happens until
// units or DIEs are requested.
func New(cfg Config) *Data {
	order := cfg.Order
	if order == nil {
		order = binary.LittleEndian
	}
	return &Data{
		order:       order,
		info:        cfg.Info,
		str:         cfg.Str,
		lineStr:     cfg.LineStr,
		strOffsets:  cfg.StrOffsets,
		addr:        cfg.Addr,
		abbrevCache: abbrev.NewCache(cfg.Abbrev, order),
	}
}

// Unit is one decoded unit header bound to its abbreviation table.
type Unit struct {
	Header UnitHeader

	data    *Data
	abbrevs abbrev.Table

	// str_offsets/addr bases, taken from the root DIE when available,
	// otherwise defaulted to the post-header position.
	strOffBase uint64
	addrBase   uint64
}

// Cursor returns a fresh DIE tree cursor positioned at the unit's root DIE.
func (u *Unit) Cursor() *Cursor {
	c := &Cursor{u: u}
	c.rd = util.NewReader(u.data.info[:u.Header.EndOffset()], u.data.order, 0)
	c.rd.SetOffsetSize(u.Header.OffsetSize)
	_ = c.rd.Seek(u.Header.FirstEntryOffset())
	return c
}

// UnitReader iterates the unit headers of .debug_info in section order.
type UnitReader struct {
	d   *Data
	off uint64
}

// Units returns an iterator over the section's unit headers.
func (d *Data) Units() *UnitReader {
	return &UnitReader{d: d}
}

// Next decodes and returns the next unit, or nil when the section is
// exhausted. A malformed unit header aborts only that iteration step, the
// caller may not continue past it because the outer length is unreliable.
func (r *UnitReader) Next() (*Unit, error) {
	if r.off >= uint64(len(r.d.info)) {
		return nil, nil
	}
	u, err := r.d.unitAt(r.off)
	if err != nil {
		return nil, err
	}
	r.off = u.Header.EndOffset()
	return u, nil
}

func (d *Data) unitAt(off uint64) (*Unit, error) {
	rd := util.NewReader(d.info, d.order, 0)
	if err := rd.Seek(off); err != nil {
		return nil, err
	}

	var h UnitHeader
	h.Offset = off

	var err error
	h.Length, h.DWARF64, err = rd.ReadInitialLength()
	if err != nil {
		return nil, fmt.Errorf("unit header at %#x: %w", off, err)
	}
	h.OffsetSize = rd.OffsetSize()

	// the declared length must fit inside the section
	if h.Length > uint64(len(d.info))-rd.Off() {
		return nil, fmt.Errorf("unit at %#x declares %d bytes, %d remain: %w",
			off, h.Length, uint64(len(d.info))-rd.Off(), ErrInconsistentLength)
	}

	v, err := rd.ReadUint16()
	if err != nil {
		return nil, err
	}
	h.Version = v
	if v < 2 || v > 5 {
		return nil, fmt.Errorf("unit at %#x: unsupported DWARF version %d: %w", off, v, util.ErrInvalidEncoding)
	}

	if v >= 5 {
		ut, err := rd.ReadUint8()
		if err != nil {
			return nil, err
		}
		h.Type = UnitType(ut)
		addrSize, err := rd.ReadUint8()
		if err != nil {
			return nil, err
		}
		h.AddrSize = int(addrSize)
		h.AbbrevOffset, err = rd.ReadOffset()
		if err != nil {
			return nil, err
		}
		switch h.Type {
		case UnitTypeCompile, UnitTypePartial:
		case UnitTypeType, UnitTypeSplitType:
			if h.TypeSignature, err = rd.ReadUint64(); err != nil {
				return nil, err
			}
			if h.TypeOffset, err = rd.ReadOffset(); err != nil {
				return nil, err
			}
		case UnitTypeSkeleton, UnitTypeSplitCompile:
			if h.DWOID, err = rd.ReadUint64(); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unit at %#x: unknown unit type %#x: %w", off, ut, util.ErrInvalidEncoding)
		}
	} else {
		h.Type = UnitTypeCompile
		h.AbbrevOffset, err = rd.ReadOffset()
		if err != nil {
			return nil, err
		}
		addrSize, err := rd.ReadUint8()
		if err != nil {
			return nil, err
		}
		h.AddrSize = int(addrSize)
	}

	switch h.AddrSize {
	case 1, 2, 4, 8:
	default:
		return nil, fmt.Errorf("unit at %#x: bad address size %d: %w", off, h.AddrSize, util.ErrInvalidEncoding)
	}

	h.headerEnd = rd.Off()

	abbrevs, err := d.abbrevCache.TableAt(h.AbbrevOffset)
	if err != nil {
		return nil, err
	}

	return &Unit{
		Header:  h,
		data:    d,
		abbrevs: abbrevs,
		// defaults per DWARF 5 7.26/7.27: first entry past the section headers
		strOffBase: strOffsetsHeaderLen(h.DWARF64),
		addrBase:   addrHeaderLen,
	}, nil
}

const addrHeaderLen = 8 // unit_length(4) + version(2) + addr_size(1) + seg_sel_size(1)

func strOffsetsHeaderLen(dwarf64 bool) uint64 {
	if dwarf64 {
		return 16
	}
	return 8
}
