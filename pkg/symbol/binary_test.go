package symbol

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// testSections assembles the debug sections of a fictitious binary with
// one compile unit "main.go" holding one function:
//
//	main.main [0x401000, 0x401020), frame base DW_OP_call_frame_cfa,
//	one local variable "i", prologue ends at 0x401004 (line 9).
func testSections() Sections {
	abbrev := []byte{
		// 1: DW_TAG_compile_unit, has children
		1, 0x11, 1,
		0x03, 0x08, // DW_AT_name, DW_FORM_string
		0x10, 0x17, // DW_AT_stmt_list, DW_FORM_sec_offset
		0, 0,
		// 2: DW_TAG_subprogram, has children
		2, 0x2e, 1,
		0x03, 0x08, // DW_AT_name, DW_FORM_string
		0x11, 0x01, // DW_AT_low_pc, DW_FORM_addr
		0x12, 0x07, // DW_AT_high_pc, DW_FORM_data8 (offset from low_pc)
		0x40, 0x18, // DW_AT_frame_base, DW_FORM_exprloc
		0x3f, 0x19, // DW_AT_external, DW_FORM_flag_present
		0, 0,
		// 3: DW_TAG_variable, no children
		3, 0x34, 0,
		0x03, 0x08, // DW_AT_name, DW_FORM_string
		0, 0,
		0, // end of table
	}

	var dies bytes.Buffer
	dies.WriteByte(1) // compile_unit
	dies.WriteString("main.go\x00")
	binary.Write(&dies, binary.LittleEndian, uint32(0)) // stmt_list

	dies.WriteByte(2) // subprogram
	dies.WriteString("main.main\x00")
	binary.Write(&dies, binary.LittleEndian, uint64(0x401000)) // low_pc
	binary.Write(&dies, binary.LittleEndian, uint64(0x20))     // high_pc offset
	dies.Write([]byte{1, 0x9c})                                // frame_base: DW_OP_call_frame_cfa

	dies.WriteByte(3) // variable
	dies.WriteString("i\x00")

	dies.WriteByte(0) // end of subprogram children
	dies.WriteByte(0) // end of compile_unit children

	var info bytes.Buffer
	binary.Write(&info, binary.LittleEndian, uint32(2+4+1+dies.Len()))
	binary.Write(&info, binary.LittleEndian, uint16(4)) // version
	binary.Write(&info, binary.LittleEndian, uint32(0)) // abbrev offset
	info.WriteByte(8)                                   // address size
	info.Write(dies.Bytes())

	// line program, version 4: line_base -5, line_range 14, opcode_base 13
	var lhdr bytes.Buffer
	lhdr.Write([]byte{1, 1, 1, 0xfb, 14, 13})
	lhdr.Write([]byte{0, 1, 1, 1, 1, 0, 0, 0, 1, 0, 0, 1}) // std opcode lengths
	lhdr.WriteByte(0)                                      // empty include_directories
	lhdr.WriteString("main.go")
	lhdr.Write([]byte{0, 0, 0, 0}) // name NUL, dir, mtime, length
	lhdr.WriteByte(0)              // end of file_names

	prog := bytes.Join([][]byte{
		{0, 9, 0x02}, // DW_LNE_set_address
		{0x00, 0x10, 0x40, 0, 0, 0, 0, 0},
		{0x03, 7}, // advance_line +7
		{0x01},    // copy: 0x401000 line 8
		{0x02, 4}, // advance_pc +4
		{0x03, 1}, // advance_line +1
		{0x0a},    // set_prologue_end
		{0x01},    // copy: 0x401004 line 9
		{0x02, 0x1c},
		{0, 1, 0x01}, // end_sequence at 0x401020
	}, nil)

	var lineSec bytes.Buffer
	binary.Write(&lineSec, binary.LittleEndian, uint32(2+4+lhdr.Len()+len(prog)))
	binary.Write(&lineSec, binary.LittleEndian, uint16(4))
	binary.Write(&lineSec, binary.LittleEndian, uint32(lhdr.Len()))
	lineSec.Write(lhdr.Bytes())
	lineSec.Write(prog)

	// .debug_frame: one CIE, one FDE covering the function
	var frameSec bytes.Buffer
	cie := []byte{
		4,    // version
		0,    // augmentation ""
		8, 0, // address_size, segment_size
		1,          // code_alignment_factor
		0x78,       // data_alignment_factor = -8
		16,         // return_address_register
		0x0c, 7, 8, // DW_CFA_def_cfa rsp+8
	}
	binary.Write(&frameSec, binary.LittleEndian, uint32(4+len(cie)))
	binary.Write(&frameSec, binary.LittleEndian, uint32(0xffffffff))
	frameSec.Write(cie)

	var fde bytes.Buffer
	binary.Write(&fde, binary.LittleEndian, uint64(0x401000))
	binary.Write(&fde, binary.LittleEndian, uint64(0x100))
	binary.Write(&frameSec, binary.LittleEndian, uint32(4+fde.Len()))
	binary.Write(&frameSec, binary.LittleEndian, uint32(0))
	frameSec.Write(fde.Bytes())

	return Sections{
		Info:   info.Bytes(),
		Abbrev: abbrev,
		Line:   lineSec.Bytes(),
		Frame:  frameSec.Bytes(),
	}
}

func TestNewBinaryInfo(t *testing.T) {
	bi, err := NewBinaryInfo(testSections())
	if err != nil {
		t.Fatal(err)
	}

	if len(bi.CompileUnits) != 1 {
		t.Fatalf("expected 1 compile unit, got %d", len(bi.CompileUnits))
	}
	if name := bi.CompileUnits[0].Name(); name != "main.go" {
		t.Errorf("compile unit name: %q", name)
	}

	rows := bi.Sources["main.go"][8]
	if len(rows) != 1 || rows[0].Address != 0x401000 {
		t.Fatalf("unexpected rows for main.go:8: %+v", rows)
	}
}

func TestFileLineToPC(t *testing.T) {
	bi, err := NewBinaryInfo(testSections())
	if err != nil {
		t.Fatal(err)
	}

	pc, err := bi.FileLineToPC("main.go", 8)
	if err != nil {
		t.Fatal(err)
	}
	if pc != 0x401000 {
		t.Errorf("main.go:8 pc = %#x", pc)
	}

	if _, err = bi.FileLineToPC("main.go", 100); err == nil {
		t.Error("expected error for unknown line")
	}
	if _, err = bi.FileLineToPC("other.go", 8); err == nil {
		t.Error("expected error for unknown file")
	}
}

func TestFileLineToPCForBreakpoint(t *testing.T) {
	bi, err := NewBinaryInfo(testSections())
	if err != nil {
		t.Fatal(err)
	}

	// line 9 carries the prologue_end marker
	pc, err := bi.FileLineToPCForBreakpoint("main.go", 9)
	if err != nil {
		t.Fatal(err)
	}
	if pc != 0x401004 {
		t.Errorf("breakpoint pc = %#x, want 0x401004", pc)
	}

	// line 8 has no marker, lowest address wins
	pc, err = bi.FileLineToPCForBreakpoint("main.go", 8)
	if err != nil {
		t.Fatal(err)
	}
	if pc != 0x401000 {
		t.Errorf("breakpoint pc = %#x, want 0x401000", pc)
	}
}

func TestPCToFileLine(t *testing.T) {
	bi, err := NewBinaryInfo(testSections())
	if err != nil {
		t.Fatal(err)
	}

	file, ln, err := bi.PCToFileLine(0x401004)
	if err != nil || file != "main.go" || ln != 9 {
		t.Errorf("exact lookup: %s:%d, err %v", file, ln, err)
	}

	// between rows, the nearest row below wins
	file, ln, err = bi.PCToFileLine(0x401006)
	if err != nil || file != "main.go" || ln != 9 {
		t.Errorf("nearest lookup: %s:%d, err %v", file, ln, err)
	}

	if _, _, err = bi.PCToFileLine(0x100); err == nil {
		t.Error("expected error below all rows")
	}
}

func TestLocToPC(t *testing.T) {
	bi, err := NewBinaryInfo(testSections())
	if err != nil {
		t.Fatal(err)
	}

	pc, err := bi.LocToPC("main.go:8")
	if err != nil || pc != 0x401000 {
		t.Errorf("pc = %#x, err %v", pc, err)
	}

	if _, err = bi.LocToPC("main.go"); err == nil {
		t.Error("expected error for malformed location")
	}
	if _, err = bi.LocToPC("main.go:eight"); err == nil {
		t.Error("expected error for non-numeric line")
	}
}

func TestPCToFunction(t *testing.T) {
	bi, err := NewBinaryInfo(testSections())
	if err != nil {
		t.Fatal(err)
	}

	fn, err := bi.PCToFunction(0x401010)
	if err != nil {
		t.Fatal(err)
	}
	if fn.Name() != "main.main" {
		t.Errorf("function name: %q", fn.Name())
	}
	lo, hi := fn.Range()
	if lo != 0x401000 || hi != 0x401020 {
		t.Errorf("function range [%#x, %#x)", lo, hi)
	}
	if !bytes.Equal(fn.FrameBase(), []byte{0x9c}) {
		t.Errorf("frame base: %x", fn.FrameBase())
	}
	if len(fn.Variables()) != 1 {
		t.Fatalf("expected 1 variable, got %d", len(fn.Variables()))
	}

	if _, err = bi.PCToFunction(0x500000); err == nil {
		t.Error("expected error outside any function")
	}
}

func TestPCToFDE(t *testing.T) {
	bi, err := NewBinaryInfo(testSections())
	if err != nil {
		t.Fatal(err)
	}

	fde, err := bi.PCToFDE(0x401050)
	if err != nil {
		t.Fatal(err)
	}
	if fde.Begin() != 0x401000 || fde.End() != 0x401100 {
		t.Errorf("FDE range [%#x, %#x)", fde.Begin(), fde.End())
	}

	if _, err = bi.PCToFDE(0x200); err == nil {
		t.Error("expected error for uncovered pc")
	}
}
