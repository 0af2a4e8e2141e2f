package frame

import (
	"encoding/binary"
	"sort"
)

// CommonInformationEntry represents a Common Information Entry in
// the .debug_frame or .eh_frame section.
type CommonInformationEntry struct {
	Length                uint64
	CIE_id                uint64
	Version               uint8
	Augmentation          string
	CodeAlignmentFactor   uint64
	DataAlignmentFactor   int64
	ReturnAddressRegister uint64
	InitialInstructions   []byte
	staticBase            uint64

	// eh_frame pointer encoding for FDE begin/size fields
	ptrEncAddr ptrEnc
}

// FrameDescriptionEntry represents a Frame Description Entry in
// the .debug_frame or .eh_frame section.
type FrameDescriptionEntry struct {
	Length       uint64
	CIE          *CommonInformationEntry
	Instructions []byte
	begin, size  uint64
	order        binary.ByteOrder
	ptrSize      int
}

// Cover returns whether or not the given address is within the
// bounds of this frame.
func (fde *FrameDescriptionEntry) Cover(addr uint64) bool {
	return (addr - fde.begin) < fde.size
}

// Begin returns the address of the first location for this frame.
func (fde *FrameDescriptionEntry) Begin() uint64 {
	return fde.begin
}

// End returns the address one past the last location for this frame.
func (fde *FrameDescriptionEntry) End() uint64 {
	return fde.begin + fde.size
}

// Translate moves the beginning of fde forward by delta.
func (fde *FrameDescriptionEntry) Translate(delta uint64) {
	fde.begin += delta
}

// UnwindTable interprets this FDE's call frame instructions, the CIE's
// initial instructions first, into the ordered unwind row sequence
// covering [Begin, End).
func (fde *FrameDescriptionEntry) UnwindTable() ([]UnwindRow, error) {
	return executeDwarfProgram(fde)
}

// RowForPC returns the unwind row in effect at pc: the row with the
// greatest starting location less than or equal to pc.
func (fde *FrameDescriptionEntry) RowForPC(pc uint64) (*UnwindRow, error) {
	if !fde.Cover(pc) {
		return nil, &ErrNoFDEForPC{pc}
	}
	rows, err := fde.UnwindTable()
	if err != nil {
		return nil, err
	}
	// first row past pc, minus one
	idx := sort.Search(len(rows), func(i int) bool {
		return rows[i].Loc > pc
	})
	if idx == 0 {
		return nil, &ErrNoFDEForPC{pc}
	}
	return &rows[idx-1], nil
}

// ReturnAddressOffset returns the CFA offset and the offset from the
// CFA at which the return address is stored, for the given pc.
func (fde *FrameDescriptionEntry) ReturnAddressOffset(pc uint64) (frameOffset, returnAddressOffset int64, err error) {
	row, err := fde.RowForPC(pc)
	if err != nil {
		return 0, 0, err
	}
	return row.CFA.Offset, row.Regs[fde.CIE.ReturnAddressRegister].Offset, nil
}

// FrameDescriptionEntries is a sorted index of FDEs, searchable by pc.
type FrameDescriptionEntries []*FrameDescriptionEntry

func newFrameIndex() FrameDescriptionEntries {
	return make(FrameDescriptionEntries, 0, 1000)
}

// FDEForPC returns the Frame Description Entry covering the given PC.
func (fdes FrameDescriptionEntries) FDEForPC(pc uint64) (*FrameDescriptionEntry, error) {
	idx := sort.Search(len(fdes), func(i int) bool {
		return fdes[i].Cover(pc) || fdes[i].Begin() >= pc
	})
	if idx == len(fdes) || !fdes[idx].Cover(pc) {
		return nil, &ErrNoFDEForPC{pc}
	}
	return fdes[idx], nil
}

// Append merges otherFDEs into fdes, keeping the index sorted and
// dropping duplicate ranges. Used when a binary carries both
// .debug_frame and .eh_frame.
func (fdes FrameDescriptionEntries) Append(otherFDEs FrameDescriptionEntries) FrameDescriptionEntries {
	r := append(fdes, otherFDEs...)
	sort.SliceStable(r, func(i, j int) bool {
		return r[i].Begin() < r[j].Begin()
	})
	uniq := r[:0]
	for _, fde := range r {
		if len(uniq) > 0 {
			last := uniq[len(uniq)-1]
			if last.Begin() == fde.Begin() && last.End() == fde.End() {
				continue
			}
		}
		uniq = append(uniq, fde)
	}
	return uniq
}

// ptrEnc represents a pointer encoding value, used during eh_frame
// decoding to determine how pointers were encoded.
// The least significant 4 bits encode the size and signedness, the most
// significant 4 bits are flags describing how the value should be
// interpreted (absolute, relative...).
// See https://www.airs.com/blog/archives/460.
type ptrEnc uint8

const (
	ptrEncAbs    ptrEnc = 0x00 // pointer-sized unsigned integer
	ptrEncOmit   ptrEnc = 0xff // omitted
	ptrEncUleb   ptrEnc = 0x01 // ULEB128
	ptrEncUdata2 ptrEnc = 0x02 // 2 bytes
	ptrEncUdata4 ptrEnc = 0x03 // 4 bytes
	ptrEncUdata8 ptrEnc = 0x04 // 8 bytes
	ptrEncSigned ptrEnc = 0x08 // pointer-sized signed integer
	ptrEncSleb   ptrEnc = 0x09 // SLEB128
	ptrEncSdata2 ptrEnc = 0x0a // 2 bytes, signed
	ptrEncSdata4 ptrEnc = 0x0b // 4 bytes, signed
	ptrEncSdata8 ptrEnc = 0x0c // 8 bytes, signed

	ptrEncFlagsMask ptrEnc = 0xf0

	ptrEncPCRel    ptrEnc = 0x10 // relative to the memory address where it appears
	ptrEncTextRel  ptrEnc = 0x20 // relative to the address of the text section
	ptrEncDataRel  ptrEnc = 0x30 // relative to the address of the data section
	ptrEncFuncRel  ptrEnc = 0x40 // relative to the start of the function
	ptrEncAligned  ptrEnc = 0x50 // value should be aligned
	ptrEncIndirect ptrEnc = 0x80 // address where the real value is stored

	ptrEncSupportedFlags = ptrEncPCRel
)

// Supported returns true if this pointer encoding is supported.
func (p ptrEnc) Supported() bool {
	if p != ptrEncOmit {
		szenc := p & 0x0f
		if ((szenc > ptrEncUdata8) && (szenc < ptrEncSigned)) || (szenc > ptrEncSdata8) {
			// these values aren't defined at the moment
			return false
		}
		if (p&ptrEncFlagsMask)&^ptrEncSupportedFlags != 0 {
			// currently only the PC relative flag is supported
			return false
		}
	}
	return true
}
