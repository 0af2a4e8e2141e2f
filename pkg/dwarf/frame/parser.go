// Package frame contains data structures and
// related functions for parsing and searching
// through Dwarf .debug_frame and .eh_frame data.
package frame

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/hitzhangjie/gdwarf/pkg/dwarf/util"
)

type parsefunc func(*parseContext) parsefunc

// parseContext context which helps parsing the CIE and FDEs stored in
// .debug_frame / .eh_frame
type parseContext struct {
	staticBase uint64

	rd          *util.Reader
	entries     FrameDescriptionEntries
	ciemap      map[uint64]*CommonInformationEntry
	common      *CommonInformationEntry
	frame       *FrameDescriptionEntry
	length      uint64
	dwarf64     bool
	ptrSize     int
	ehFrameAddr uint64
	err         error
}

// Parse takes in data (a byte slice) and returns FrameDescriptionEntries,
// which is a slice of FrameDescriptionEntry. Each FrameDescriptionEntry
// has a pointer to CommonInformationEntry.
//
// If ehFrameAddr is not zero the .eh_frame format is assumed, a minor
// variant of DWARF described at https://www.airs.com/blog/archives/460,
// and ehFrameAddr is used as the address at which the section will be
// mapped into memory.
func Parse(data []byte, order binary.ByteOrder, staticBase uint64, ptrSize int, ehFrameAddr uint64) (FrameDescriptionEntries, error) {
	pctx := &parseContext{
		rd:          util.NewReader(data, order, 0),
		entries:     newFrameIndex(),
		ciemap:      map[uint64]*CommonInformationEntry{},
		staticBase:  staticBase,
		ptrSize:     ptrSize,
		ehFrameAddr: ehFrameAddr,
	}

	for fn := parselength; pctx.rd.Len() != 0; {
		fn = fn(pctx)
		if pctx.err != nil {
			return nil, pctx.err
		}
	}

	for i := range pctx.entries {
		pctx.entries[i].order = order
		pctx.entries[i].ptrSize = ptrSize
	}

	// FDEForPC binary-searches, the section's own record order is not
	// guaranteed to be ascending
	sort.SliceStable(pctx.entries, func(i, j int) bool {
		return pctx.entries[i].Begin() < pctx.entries[j].Begin()
	})

	return pctx.entries, nil
}

func (ctx *parseContext) parsingEHFrame() bool {
	return ctx.ehFrameAddr > 0
}

// cieEntry determines whether a CIE id / CIE pointer field marks a CIE:
// zero in .eh_frame, all ones in .debug_frame.
func (ctx *parseContext) cieEntry(cieid uint64) bool {
	if ctx.parsingEHFrame() {
		return cieid == 0x00
	}
	if ctx.dwarf64 {
		return cieid == ^uint64(0)
	}
	return cieid == 0xffffffff
}

func (ctx *parseContext) fail(err error) parsefunc {
	ctx.err = err
	return nil
}

// parselength parses the length of a CIE or FDE and dispatches on the
// CIE id / CIE pointer field that follows it.
func parselength(ctx *parseContext) parsefunc {
	start := ctx.rd.Off()

	length, dwarf64, err := ctx.rd.ReadInitialLength()
	if err != nil {
		return ctx.fail(err)
	}
	ctx.length = length
	ctx.dwarf64 = dwarf64

	if ctx.length == 0 {
		// ZERO terminator
		return parselength
	}

	idSize := 4
	if dwarf64 {
		idSize = 8
	}
	cieid, err := ctx.rd.ReadUint(idSize)
	if err != nil {
		return ctx.fail(err)
	}
	ctx.length -= uint64(idSize) // take off the length of the CIE id / CIE pointer

	if ctx.length > uint64(ctx.rd.Len()) {
		return ctx.fail(fmt.Errorf("entry at %#x declares %d bytes, %d remain: %w",
			start, ctx.length, ctx.rd.Len(), ErrBadFrame))
	}

	if ctx.cieEntry(cieid) {
		ctx.common = &CommonInformationEntry{Length: ctx.length, staticBase: ctx.staticBase, CIE_id: cieid}
		ctx.ciemap[start] = ctx.common
		return parseCIE
	}

	if ctx.parsingEHFrame() {
		// eh_frame FDEs locate their CIE by a subtraction from the
		// CIE pointer field's own position
		cieid = start + uint64(idSize) - cieid
	}
	common := ctx.ciemap[cieid]
	if common == nil {
		return ctx.fail(fmt.Errorf("unknown CIE_id %#x at %#x: %w", cieid, start, ErrBadFrame))
	}

	ctx.frame = &FrameDescriptionEntry{Length: ctx.length, CIE: common}
	return parseFDE
}

// parseFDE parses an FDE entry
func parseFDE(ctx *parseContext) parsefunc {
	startOff := ctx.rd.Off()
	body, err := ctx.rd.ReadBytes(int(ctx.length))
	if err != nil {
		return ctx.fail(err)
	}
	rd := util.NewReader(body, ctx.rd.ByteOrder(), 0)

	// parse initial_location of FDE
	num, err := readEncodedPtr(ctx.ehFrameAddr+startOff, rd, ctx.frame.CIE.ptrEncAddr, ctx.ptrSize)
	if err != nil {
		return ctx.fail(err)
	}
	ctx.frame.begin = num + ctx.staticBase

	// For the size field only the size portion of the pointer encoding
	// is considered. For .debug_frame ptrEncAddr is always ptrEncAbs
	// and never has flags.
	if ctx.frame.size, err = readEncodedPtr(0, rd, ctx.frame.CIE.ptrEncAddr&0x0f, ctx.ptrSize); err != nil {
		return ctx.fail(err)
	}

	ctx.entries = append(ctx.entries, ctx.frame)

	if ctx.parsingEHFrame() && len(ctx.frame.CIE.Augmentation) > 0 {
		// a 'z' augmentation string means the FDE carries augmentation
		// data, encoded as a ULEB128 size followed by that many bytes
		n, err := rd.ReadULEB128()
		if err != nil {
			return ctx.fail(err)
		}
		if err := rd.Skip(int(n)); err != nil {
			return ctx.fail(err)
		}
	}

	// the rest of this entry consists of the instructions
	ctx.frame.Instructions = body[rd.Off():]
	ctx.length = 0

	// prepare to parse next FDE or CIE
	return parselength
}

// parseCIE parses a CIE entry
func parseCIE(ctx *parseContext) parsefunc {
	body, err := ctx.rd.ReadBytes(int(ctx.length))
	if err != nil {
		return ctx.fail(err)
	}
	rd := util.NewReader(body, ctx.rd.ByteOrder(), 0)
	cie := ctx.common

	// parse version
	v, err := rd.ReadUint8()
	if err != nil {
		return ctx.fail(err)
	}
	cie.Version = v

	// parse augmentation
	if cie.Augmentation, err = rd.ReadCString(); err != nil {
		return ctx.fail(err)
	}

	if !ctx.parsingEHFrame() && cie.Version >= 4 {
		// DWARF 4 adds address_size and segment_size to the CIE
		addrSize, err := rd.ReadUint8()
		if err != nil {
			return ctx.fail(err)
		}
		if addrSize != 0 {
			ctx.ptrSize = int(addrSize)
		}
		segSize, err := rd.ReadUint8()
		if err != nil {
			return ctx.fail(err)
		}
		if segSize != 0 {
			return ctx.fail(fmt.Errorf("segmented address space not supported: %w", ErrBadFrame))
		}
	}

	if ctx.parsingEHFrame() {
		if cie.Augmentation == "eh" {
			return ctx.fail(fmt.Errorf("unsupported 'eh' augmentation: %w", ErrBadFrame))
		}
		if len(cie.Augmentation) > 0 && cie.Augmentation[0] != 'z' {
			return ctx.fail(fmt.Errorf("augmentation %q does not start with 'z': %w",
				cie.Augmentation, ErrBadFrame))
		}
	}

	// parse code alignment factor
	if cie.CodeAlignmentFactor, err = rd.ReadULEB128(); err != nil {
		return ctx.fail(err)
	}

	// parse data alignment factor
	if cie.DataAlignmentFactor, err = rd.ReadSLEB128(); err != nil {
		return ctx.fail(err)
	}

	// parse return address register
	if ctx.parsingEHFrame() && cie.Version == 1 {
		b, err := rd.ReadUint8()
		if err != nil {
			return ctx.fail(err)
		}
		cie.ReturnAddressRegister = uint64(b)
	} else {
		if cie.ReturnAddressRegister, err = rd.ReadULEB128(); err != nil {
			return ctx.fail(err)
		}
	}

	cie.ptrEncAddr = ptrEncAbs

	if ctx.parsingEHFrame() && len(cie.Augmentation) > 0 {
		if _, err = rd.ReadULEB128(); err != nil { // augmentation data length
			return ctx.fail(err)
		}
		for i := 1; i < len(cie.Augmentation); i++ {
			switch cie.Augmentation[i] {
			case 'L':
				// LSDA pointer encoding, we don't use the LSDA itself
				if _, err = rd.ReadUint8(); err != nil {
					return ctx.fail(err)
				}
			case 'R':
				// pointer encoding, describes how the begin and size
				// fields of FDEs are encoded
				b, err := rd.ReadUint8()
				if err != nil {
					return ctx.fail(err)
				}
				cie.ptrEncAddr = ptrEnc(b)
				if !cie.ptrEncAddr.Supported() {
					return ctx.fail(fmt.Errorf("pointer encoding not supported %#x: %w",
						cie.ptrEncAddr, ErrBadFrame))
				}
			case 'S':
				// signal handler invocation frame, no associated data
			case 'P':
				// personality function: an encoding byte followed by
				// the encoded pointer, read and discarded
				b, err := rd.ReadUint8()
				if err != nil {
					return ctx.fail(err)
				}
				e := ptrEnc(b) &^ ptrEncIndirect
				if !e.Supported() {
					return ctx.fail(fmt.Errorf("pointer encoding not supported %#x: %w", e, ErrBadFrame))
				}
				if _, err := readEncodedPtr(0, rd, e, ctx.ptrSize); err != nil {
					return ctx.fail(err)
				}
			default:
				// augmentation characters are must-understand, there is
				// no per-character length to skip with
				return ctx.fail(fmt.Errorf("unsupported augmentation character %c: %w",
					cie.Augmentation[i], ErrBadFrame))
			}
		}
	}

	// the rest of this entry consists of the initial instructions
	cie.InitialInstructions = body[rd.Off():]
	ctx.length = 0

	// prepare to parse FDEs following this CIE
	return parselength
}

// readEncodedPtr reads a pointer from rd encoded as specified by enc.
// This function is used to read pointers from a .eh_frame section; when
// parsing a .debug_frame section enc is always ptrEncAbs. The addr
// parameter is the address the current byte of rd will be mapped to
// when the executable containing this section is loaded in memory.
func readEncodedPtr(addr uint64, rd *util.Reader, enc ptrEnc, ptrSize int) (uint64, error) {
	if enc == ptrEncOmit {
		return 0, nil
	}

	var ptr uint64
	var err error

	switch enc & 0x0f {
	case ptrEncAbs, ptrEncSigned:
		ptr, err = rd.ReadUint(ptrSize)
	case ptrEncUleb:
		ptr, err = rd.ReadULEB128()
	case ptrEncUdata2:
		ptr, err = rd.ReadUint(2)
	case ptrEncSdata2:
		ptr, err = rd.ReadUint(2)
		ptr = uint64(int16(ptr))
	case ptrEncUdata4:
		ptr, err = rd.ReadUint(4)
	case ptrEncSdata4:
		ptr, err = rd.ReadUint(4)
		ptr = uint64(int32(ptr))
	case ptrEncUdata8, ptrEncSdata8:
		ptr, err = rd.ReadUint(8)
	case ptrEncSleb:
		var n int64
		n, err = rd.ReadSLEB128()
		ptr = uint64(n)
	default:
		return 0, fmt.Errorf("pointer encoding not supported %#x: %w", enc, ErrBadFrame)
	}
	if err != nil {
		return 0, err
	}

	if enc&ptrEncFlagsMask == ptrEncPCRel {
		ptr += addr
	}
	return ptr, nil
}

// DwarfEndian determines the endianness of the DWARF by using the
// version number field in the debug_info section.
// Trick borrowed from "debug/dwarf".New()
func DwarfEndian(infoSec []byte) binary.ByteOrder {
	if len(infoSec) < 6 {
		return binary.BigEndian
	}
	x, y := infoSec[4], infoSec[5]
	switch {
	case x == 0 && y == 0:
		return binary.BigEndian
	case x == 0:
		return binary.BigEndian
	case y == 0:
		return binary.LittleEndian
	default:
		return binary.BigEndian
	}
}
