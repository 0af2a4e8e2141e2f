// Package loclist reads DWARF 2-4 .debug_loc location lists: runs of
// (begin, end, expression) entries selecting which location expression
// describes a variable at a given pc.
package loclist

import (
	"encoding/binary"

	"github.com/hitzhangjie/gdwarf/pkg/dwarf/util"
)

// Entry represents a single entry in the loclist section.
type Entry struct {
	LowPC, HighPC uint64
	Instr         []byte
}

// BaseAddressSelection returns true if entry.HighPC should be used as
// the base address for subsequent entries.
func (e *Entry) BaseAddressSelection() bool {
	return e.LowPC == ^uint64(0)
}

// Reader parses and presents loclist information for DWARF versions 2
// through 4.
type Reader struct {
	data  []byte
	order binary.ByteOrder
	ptrSz int
	rd    *util.Reader
}

// NewReader returns an initialized loclist Reader for DWARF versions 2
// through 4.
func NewReader(data []byte, order binary.ByteOrder, ptrSz int) *Reader {
	return &Reader{data: data, order: order, ptrSz: ptrSz}
}

// Empty returns true if this reader has no data.
func (rdr *Reader) Empty() bool {
	return rdr.data == nil
}

// Seek moves the reader to the specified offset.
func (rdr *Reader) Seek(off int) {
	rdr.rd = util.NewReader(rdr.data, rdr.order, 0)
	if err := rdr.rd.Seek(uint64(off)); err != nil {
		// force the next read to fail instead
		rdr.rd = util.NewReader(nil, rdr.order, 0)
	}
}

// Next advances the reader to the next loclist entry. It returns false
// at the (0, 0) end-of-list marker or on malformed data, leaving the
// error in err.
func (rdr *Reader) Next(e *Entry) (bool, error) {
	low, err := rdr.oneAddr()
	if err != nil {
		return false, err
	}
	high, err := rdr.oneAddr()
	if err != nil {
		return false, err
	}
	e.LowPC, e.HighPC = low, high

	if e.LowPC == 0 && e.HighPC == 0 {
		return false, nil
	}

	if e.BaseAddressSelection() {
		e.Instr = nil
		return true, nil
	}

	instrlen, err := rdr.rd.ReadUint16()
	if err != nil {
		return false, err
	}
	if e.Instr, err = rdr.rd.ReadBytes(int(instrlen)); err != nil {
		return false, err
	}
	return true, nil
}

// Find returns the loclist entry covering pc, inside the loclist
// starting at off. base is the compile unit's base address and
// staticBase the address at which the image is loaded.
func (rdr *Reader) Find(off int, staticBase, base, pc uint64) (*Entry, error) {
	rdr.Seek(off)
	var e Entry
	for {
		ok, err := rdr.Next(&e)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		if e.BaseAddressSelection() {
			base = e.HighPC + staticBase
			continue
		}
		if pc >= e.LowPC+base && pc < e.HighPC+base {
			return &e, nil
		}
	}
}

// oneAddr reads one address-sized value, widening the 32-bit base
// address selection marker to its 64-bit form.
func (rdr *Reader) oneAddr() (uint64, error) {
	addr, err := rdr.rd.ReadUint(rdr.ptrSz)
	if err != nil {
		return 0, err
	}
	if rdr.ptrSz == 4 && addr == uint64(^uint32(0)) {
		return ^uint64(0), nil
	}
	return addr, nil
}
