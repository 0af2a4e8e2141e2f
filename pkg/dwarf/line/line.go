// Package line interprets .debug_line programs, rebuilding the table of
// (address, file, line, column, ...) rows the compiler flattened into
// bytecode.
//
// see DWARFv4 6.2 / DWARFv5 6.2 line number information.
package line

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hitzhangjie/gdwarf/pkg/dwarf/util"
)

// ErrBadLineProgram an opcode stream ran past its declared length or
// referenced an undefined file or directory index.
var ErrBadLineProgram = errors.New("dwarf: bad line program")

// standard opcodes, DWARFv4 figure 37
const (
	lnsCopy             = 0x01
	lnsAdvancePC        = 0x02
	lnsAdvanceLine      = 0x03
	lnsSetFile          = 0x04
	lnsSetColumn        = 0x05
	lnsNegateStmt       = 0x06
	lnsSetBasicBlock    = 0x07
	lnsConstAddPC       = 0x08
	lnsFixedAdvancePC   = 0x09
	lnsSetPrologueEnd   = 0x0a
	lnsSetEpilogueBegin = 0x0b
	lnsSetISA           = 0x0c
)

// extended opcodes, DWARFv4 figure 38
const (
	lneEndSequence      = 0x01
	lneSetAddress       = 0x02
	lneDefineFile       = 0x03 // version <= 4 only
	lneSetDiscriminator = 0x04
	lneLoUser           = 0x80
	lneHiUser           = 0xff
)

// DWARF 5 directory/file content types, DWARFv5 6.2.4.1
const (
	lnctPath           = 0x01
	lnctDirectoryIndex = 0x02
	lnctTimestamp      = 0x03
	lnctSize           = 0x04
	lnctMD5            = 0x05
)

// FileEntry is one file of the program's file-name table.
type FileEntry struct {
	Name     string
	DirIndex int
	ModTime  uint64
	Length   uint64
	MD5      [16]byte
}

// Header is the decoded line-program header.
type Header struct {
	UnitLength           uint64
	Version              uint16
	AddressSize          int // version 5, 0 otherwise
	HeaderLength         uint64
	MinInstructionLength int
	MaxOpsPerInstruction int
	DefaultIsStmt        bool
	LineBase             int
	LineRange            int
	OpcodeBase           byte
	StdOpcodeLengths     []byte
	IncludeDirs          []string
	Files                []FileEntry
}

// FirstFileIndex returns the lowest valid file index of this program's
// version: 1 for DWARF 2-4, 0 for DWARF 5.
func (h *Header) FirstFileIndex() int {
	if h.Version >= 5 {
		return 0
	}
	return 1
}

// FileName resolves a file register value to a file name, failing on
// indices the program never defined.
func (h *Header) FileName(index int) (string, error) {
	i := index - h.FirstFileIndex()
	if i < 0 || i >= len(h.Files) {
		return "", fmt.Errorf("undefined file index %d: %w", index, ErrBadLineProgram)
	}
	return h.Files[i].Name, nil
}

// Row is one emitted row of the rebuilt line table.
type Row struct {
	Address       uint64
	OpIndex       uint64
	File          int
	Line          int
	Column        int
	IsStmt        bool
	BasicBlock    bool
	EndSequence   bool
	PrologueEnd   bool
	EpilogueBegin bool
	ISA           uint64
	Discriminator uint64
}

// Config carries the auxiliary inputs header decoding may need.
type Config struct {
	Order binary.ByteOrder

	// Str/LineStr back DW_FORM_strp / DW_FORM_line_strp in DWARF 5
	// directory and file tables.
	Str     []byte
	LineStr []byte
}

// StateMachine executes one line program. A machine is a consume-once,
// forward-only iterator, Restart rewinds it to the first opcode for a
// fresh deterministic replay.
type StateMachine struct {
	hdr   Header
	cfg   Config
	prog  []byte // full program, header included
	start uint64 // offset of the first opcode
	end   uint64 // offset one past the program's declared end

	rd    *util.Reader
	regs  Row
	done  bool
	inSeq bool // an opcode ran since the last end_sequence

	// files can grow at run time through DW_LNE_define_file
	files []FileEntry
}

// NewStateMachine decodes the program header found at the start of prog
// and returns a machine ready to emit rows.
func NewStateMachine(prog []byte, cfg Config) (*StateMachine, error) {
	if cfg.Order == nil {
		cfg.Order = binary.LittleEndian
	}
	sm := &StateMachine{cfg: cfg, prog: prog}
	if err := sm.parseHeader(); err != nil {
		return nil, err
	}
	sm.Restart()
	return sm, nil
}

// Header returns the decoded program header.
func (sm *StateMachine) Header() *Header { return &sm.hdr }

// Restart rewinds the machine to the first opcode, resetting all state
// registers to the program defaults. Replaying a program is deterministic.
func (sm *StateMachine) Restart() {
	sm.rd = util.NewReader(sm.prog[:sm.end], sm.cfg.Order, 0)
	_ = sm.rd.Seek(sm.start)
	sm.files = append([]FileEntry(nil), sm.hdr.Files...)
	sm.done = false
	sm.inSeq = false
	sm.reset()
}

// reset applies the register defaults, DWARFv4 6.2.2.
func (sm *StateMachine) reset() {
	sm.regs = Row{
		File:   1,
		Line:   1,
		IsStmt: sm.hdr.DefaultIsStmt,
	}
}

func (sm *StateMachine) parseHeader() error {
	rd := util.NewReader(sm.prog, sm.cfg.Order, 0)
	h := &sm.hdr

	var err error
	var dwarf64 bool
	h.UnitLength, dwarf64, err = rd.ReadInitialLength()
	if err != nil {
		return err
	}
	sm.end = rd.Off() + h.UnitLength
	if sm.end > uint64(len(sm.prog)) {
		return fmt.Errorf("line program declares %d bytes, %d available: %w",
			h.UnitLength, uint64(len(sm.prog))-rd.Off(), ErrBadLineProgram)
	}
	_ = dwarf64

	v, err := rd.ReadUint16()
	if err != nil {
		return err
	}
	h.Version = v
	if v < 2 || v > 5 {
		return fmt.Errorf("unsupported line table version %d: %w", v, ErrBadLineProgram)
	}

	if v >= 5 {
		addrSize, err := rd.ReadUint8()
		if err != nil {
			return err
		}
		h.AddressSize = int(addrSize)
		// segment selector size, always zero on flat address spaces
		if _, err := rd.ReadUint8(); err != nil {
			return err
		}
	}

	h.HeaderLength, err = rd.ReadOffset()
	if err != nil {
		return err
	}
	headerEnd := rd.Off() + h.HeaderLength
	if headerEnd > sm.end {
		return fmt.Errorf("header length escapes the program: %w", ErrBadLineProgram)
	}

	b, err := rd.ReadUint8()
	if err != nil {
		return err
	}
	h.MinInstructionLength = int(b)
	if v >= 4 {
		if b, err = rd.ReadUint8(); err != nil {
			return err
		}
		h.MaxOpsPerInstruction = int(b)
	} else {
		h.MaxOpsPerInstruction = 1
	}
	if h.MinInstructionLength == 0 || h.MaxOpsPerInstruction == 0 {
		return fmt.Errorf("zero instruction length fields: %w", ErrBadLineProgram)
	}

	if b, err = rd.ReadUint8(); err != nil {
		return err
	}
	h.DefaultIsStmt = b != 0
	if b, err = rd.ReadUint8(); err != nil {
		return err
	}
	h.LineBase = int(int8(b))
	if b, err = rd.ReadUint8(); err != nil {
		return err
	}
	h.LineRange = int(b)
	if h.LineRange == 0 {
		return fmt.Errorf("zero line range: %w", ErrBadLineProgram)
	}
	if h.OpcodeBase, err = rd.ReadUint8(); err != nil {
		return err
	}
	if h.OpcodeBase == 0 {
		return fmt.Errorf("zero opcode base: %w", ErrBadLineProgram)
	}
	lengths, err := rd.ReadBytes(int(h.OpcodeBase) - 1)
	if err != nil {
		return err
	}
	h.StdOpcodeLengths = append([]byte(nil), lengths...)

	if v >= 5 {
		err = sm.parseFileTablesV5(rd)
	} else {
		err = sm.parseFileTablesV2(rd)
	}
	if err != nil {
		return err
	}

	if rd.Off() > headerEnd {
		return fmt.Errorf("file tables escape the declared header length: %w", ErrBadLineProgram)
	}
	sm.start = headerEnd
	return nil
}

// parseFileTablesV2 decodes the flat, 1-indexed include-directory and
// file-name lists of DWARF 2 through 4.
func (sm *StateMachine) parseFileTablesV2(rd *util.Reader) error {
	h := &sm.hdr
	for {
		dir, err := rd.ReadCString()
		if err != nil {
			return err
		}
		if dir == "" {
			break
		}
		h.IncludeDirs = append(h.IncludeDirs, dir)
	}
	for {
		entry, more, err := readFileEntryV2(rd)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
		h.Files = append(h.Files, entry)
	}
}

func readFileEntryV2(rd *util.Reader) (FileEntry, bool, error) {
	var e FileEntry
	name, err := rd.ReadCString()
	if err != nil {
		return e, false, err
	}
	if name == "" {
		return e, false, nil
	}
	e.Name = name
	dir, err := rd.ReadULEB128()
	if err != nil {
		return e, false, err
	}
	e.DirIndex = int(dir)
	if e.ModTime, err = rd.ReadULEB128(); err != nil {
		return e, false, err
	}
	if e.Length, err = rd.ReadULEB128(); err != nil {
		return e, false, err
	}
	return e, true, nil
}

// parseFileTablesV5 decodes the content-described, 0-indexed directory
// and file tables of DWARF 5.
func (sm *StateMachine) parseFileTablesV5(rd *util.Reader) error {
	h := &sm.hdr

	dirs, err := sm.readEntryTableV5(rd)
	if err != nil {
		return err
	}
	for _, d := range dirs {
		h.IncludeDirs = append(h.IncludeDirs, d.Name)
	}

	h.Files, err = sm.readEntryTableV5(rd)
	return err
}

func (sm *StateMachine) readEntryTableV5(rd *util.Reader) ([]FileEntry, error) {
	formatCount, err := rd.ReadUint8()
	if err != nil {
		return nil, err
	}
	type format struct{ content, form uint64 }
	formats := make([]format, formatCount)
	for i := range formats {
		if formats[i].content, err = rd.ReadULEB128(); err != nil {
			return nil, err
		}
		if formats[i].form, err = rd.ReadULEB128(); err != nil {
			return nil, err
		}
	}

	count, err := rd.ReadULEB128()
	if err != nil {
		return nil, err
	}
	entries := make([]FileEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		var e FileEntry
		for _, f := range formats {
			if err := sm.readEntryValueV5(rd, &e, f.content, f.form); err != nil {
				return nil, err
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (sm *StateMachine) readEntryValueV5(rd *util.Reader, e *FileEntry, content, form uint64) error {
	const (
		formString   = 0x08
		formStrp     = 0x0e
		formLineStrp = 0x1f
		formUdata    = 0x0f
		formData1    = 0x0b
		formData2    = 0x05
		formData4    = 0x06
		formData8    = 0x07
		formData16   = 0x1e
	)

	var (
		sval string
		uval uint64
		bval []byte
		err  error
	)
	switch form {
	case formString:
		sval, err = rd.ReadCString()
	case formStrp:
		var off uint64
		if off, err = rd.ReadOffset(); err == nil {
			sval, err = strAt(sm.cfg.Str, off, ".debug_str")
		}
	case formLineStrp:
		var off uint64
		if off, err = rd.ReadOffset(); err == nil {
			sval, err = strAt(sm.cfg.LineStr, off, ".debug_line_str")
		}
	case formUdata:
		uval, err = rd.ReadULEB128()
	case formData1:
		uval, err = rd.ReadUint(1)
	case formData2:
		uval, err = rd.ReadUint(2)
	case formData4:
		uval, err = rd.ReadUint(4)
	case formData8:
		uval, err = rd.ReadUint(8)
	case formData16:
		bval, err = rd.ReadBytes(16)
	default:
		return fmt.Errorf("file table uses unknown form %#x: %w", form, ErrBadLineProgram)
	}
	if err != nil {
		return err
	}

	switch content {
	case lnctPath:
		e.Name = sval
	case lnctDirectoryIndex:
		e.DirIndex = int(uval)
	case lnctTimestamp:
		e.ModTime = uval
	case lnctSize:
		e.Length = uval
	case lnctMD5:
		copy(e.MD5[:], bval)
	default:
		// vendor content type, value already consumed above
	}
	return nil
}

func strAt(sec []byte, off uint64, name string) (string, error) {
	if sec == nil || off > uint64(len(sec)) {
		return "", fmt.Errorf("%s offset %#x not available: %w", name, off, ErrBadLineProgram)
	}
	rd := util.NewReader(sec[off:], binary.LittleEndian, off)
	return rd.ReadCString()
}
