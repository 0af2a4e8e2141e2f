package line

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildProgramV4 assembles a little-endian DWARF 4 line program around
// the given opcode stream: line_base -5, line_range 14, opcode_base 13,
// one file "main.go".
func buildProgramV4(opcodes []byte) []byte {
	var hdr bytes.Buffer
	hdr.WriteByte(1)    // minimum_instruction_length
	hdr.WriteByte(1)    // maximum_operations_per_instruction
	hdr.WriteByte(1)    // default_is_stmt
	hdr.WriteByte(0xfb) // line_base = -5
	hdr.WriteByte(14)   // line_range
	hdr.WriteByte(13)   // opcode_base
	hdr.Write([]byte{0, 1, 1, 1, 1, 0, 0, 0, 1, 0, 0, 1})
	hdr.WriteByte(0) // empty include_directories
	hdr.WriteString("main.go")
	hdr.Write([]byte{0, 0, 0, 0}) // name NUL, dir, mtime, length
	hdr.WriteByte(0)              // end of file_names

	var out bytes.Buffer
	unitLength := 2 + 4 + hdr.Len() + len(opcodes)
	binary.Write(&out, binary.LittleEndian, uint32(unitLength))
	binary.Write(&out, binary.LittleEndian, uint16(4))
	binary.Write(&out, binary.LittleEndian, uint32(hdr.Len()))
	out.Write(hdr.Bytes())
	out.Write(opcodes)
	return out.Bytes()
}

func endSequence() []byte { return []byte{0, 1, lneEndSequence} }

func TestAdvanceAndCopy(t *testing.T) {
	prog := buildProgramV4(bytes.Join([][]byte{
		{lnsAdvancePC, 5},
		{lnsAdvanceLine, 3},
		{lnsCopy},
		endSequence(),
	}, nil))

	sm, err := NewStateMachine(prog, Config{})
	require.NoError(t, err)

	var row Row
	require.NoError(t, sm.Next(&row))
	assert.Equal(t, uint64(5), row.Address)
	assert.Equal(t, 4, row.Line)
	assert.Equal(t, 1, row.File)
	assert.False(t, row.EndSequence)

	require.NoError(t, sm.Next(&row))
	assert.Equal(t, uint64(5), row.Address)
	assert.Equal(t, 4, row.Line)
	assert.True(t, row.EndSequence)

	assert.Equal(t, io.EOF, sm.Next(&row))
	assert.Equal(t, io.EOF, sm.Next(&row))
}

func TestSpecialOpcode(t *testing.T) {
	// adjusted = (line +1 - line_base) + addr_advance*line_range
	//          = (1+5) + 1*14 = 20, opcode = 20 + 13 = 33
	prog := buildProgramV4(bytes.Join([][]byte{
		{33},
		endSequence(),
	}, nil))

	sm, err := NewStateMachine(prog, Config{})
	require.NoError(t, err)

	var row Row
	require.NoError(t, sm.Next(&row))
	assert.Equal(t, uint64(1), row.Address)
	assert.Equal(t, 2, row.Line)
	assert.True(t, row.IsStmt)
}

func TestConstAddPCThenFixedAdvance(t *testing.T) {
	prog := buildProgramV4(bytes.Join([][]byte{
		{lnsConstAddPC},              // +(255-13)/14 = +17
		{lnsFixedAdvancePC, 0x10, 0}, // +16
		{lnsCopy},
		endSequence(),
	}, nil))

	sm, err := NewStateMachine(prog, Config{})
	require.NoError(t, err)

	var row Row
	require.NoError(t, sm.Next(&row))
	assert.Equal(t, uint64(33), row.Address)
}

func TestSetAddressAndRegisters(t *testing.T) {
	prog := buildProgramV4(bytes.Join([][]byte{
		{0, 9, lneSetAddress}, []byte{0x00, 0x10, 0x40, 0, 0, 0, 0, 0}, // 0x401000
		{lnsSetColumn, 7},
		{lnsNegateStmt},
		{lnsSetBasicBlock},
		{lnsSetPrologueEnd},
		{0, 2, lneSetDiscriminator, 3},
		{lnsCopy},
		{lnsCopy},
		endSequence(),
	}, nil))

	sm, err := NewStateMachine(prog, Config{})
	require.NoError(t, err)

	var row Row
	require.NoError(t, sm.Next(&row))
	assert.Equal(t, uint64(0x401000), row.Address)
	assert.Equal(t, 7, row.Column)
	assert.False(t, row.IsStmt)
	assert.True(t, row.BasicBlock)
	assert.True(t, row.PrologueEnd)
	assert.Equal(t, uint64(3), row.Discriminator)

	// copy must clear the one-shot registers
	require.NoError(t, sm.Next(&row))
	assert.False(t, row.BasicBlock)
	assert.False(t, row.PrologueEnd)
	assert.Equal(t, uint64(0), row.Discriminator)
}

func TestEndSequenceResetsRegisters(t *testing.T) {
	prog := buildProgramV4(bytes.Join([][]byte{
		{lnsAdvancePC, 100},
		{lnsAdvanceLine, 40},
		{lnsCopy},
		endSequence(),
		{lnsCopy}, // second sequence starts from the defaults
		endSequence(),
	}, nil))

	sm, err := NewStateMachine(prog, Config{})
	require.NoError(t, err)

	rows, err := sm.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, uint64(100), rows[0].Address)
	assert.Equal(t, 41, rows[0].Line)
	assert.Equal(t, uint64(0), rows[2].Address)
	assert.Equal(t, 1, rows[2].Line)
}

func TestReplayIsDeterministic(t *testing.T) {
	prog := buildProgramV4(bytes.Join([][]byte{
		{lnsAdvancePC, 5},
		{33},                   // special
		{lnsAdvanceLine, 0x7f}, // -1 as SLEB128
		{lnsCopy},
		endSequence(),
	}, nil))

	sm, err := NewStateMachine(prog, Config{})
	require.NoError(t, err)

	first, err := sm.Rows()
	require.NoError(t, err)
	second, err := sm.Rows()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestUndefinedFileIndex(t *testing.T) {
	prog := buildProgramV4(bytes.Join([][]byte{
		{lnsSetFile, 5},
		{lnsCopy},
		endSequence(),
	}, nil))

	sm, err := NewStateMachine(prog, Config{})
	require.NoError(t, err)

	var row Row
	err = sm.Next(&row)
	require.Error(t, err)
	assert.Equal(t, ErrBadLineProgram, unwrapAll(err))
}

func TestMissingEndSequence(t *testing.T) {
	prog := buildProgramV4(bytes.Join([][]byte{
		{lnsAdvancePC, 5},
		{lnsCopy},
	}, nil))

	sm, err := NewStateMachine(prog, Config{})
	require.NoError(t, err)

	var row Row
	require.NoError(t, sm.Next(&row))
	err = sm.Next(&row)
	require.Error(t, err)
	assert.Equal(t, ErrBadLineProgram, unwrapAll(err))
}

func TestDefineFileAtRuntime(t *testing.T) {
	prog := buildProgramV4(bytes.Join([][]byte{
		{0, 13, lneDefineFile}, []byte("extra.go"), {0, 0, 0, 0},
		{lnsSetFile, 2},
		{lnsCopy},
		endSequence(),
	}, nil))

	sm, err := NewStateMachine(prog, Config{})
	require.NoError(t, err)

	var row Row
	require.NoError(t, sm.Next(&row))
	name, err := sm.FileName(&row)
	require.NoError(t, err)
	assert.Equal(t, "extra.go", name)
}

func TestUnknownOpcodesAreSkipped(t *testing.T) {
	prog := buildProgramV4(bytes.Join([][]byte{
		{0, 3, 0x90, 0xaa, 0xbb}, // vendor extended opcode
		{lnsAdvancePC, 1},
		{lnsCopy},
		endSequence(),
	}, nil))

	sm, err := NewStateMachine(prog, Config{})
	require.NoError(t, err)

	var row Row
	require.NoError(t, sm.Next(&row))
	assert.Equal(t, uint64(1), row.Address)
}

func TestDeclaredLengthBeyondSection(t *testing.T) {
	prog := buildProgramV4([]byte{lnsCopy})
	_, err := NewStateMachine(prog[:len(prog)-1], Config{})
	require.Error(t, err)
}

func buildProgramV5(opcodes []byte) []byte {
	const (
		formString = 0x08
		formUdata  = 0x0f
	)
	var hdr bytes.Buffer
	hdr.WriteByte(1)    // minimum_instruction_length
	hdr.WriteByte(1)    // maximum_operations_per_instruction
	hdr.WriteByte(1)    // default_is_stmt
	hdr.WriteByte(0xfb) // line_base = -5
	hdr.WriteByte(14)   // line_range
	hdr.WriteByte(13)   // opcode_base
	hdr.Write([]byte{0, 1, 1, 1, 1, 0, 0, 0, 1, 0, 0, 1})

	// directory table: one format (path: string), one entry
	hdr.Write([]byte{1, lnctPath, formString})
	hdr.WriteByte(1)
	hdr.WriteString("/src\x00")

	// file table: (path: string, directory_index: udata), two entries
	hdr.Write([]byte{2, lnctPath, formString, lnctDirectoryIndex, formUdata})
	hdr.WriteByte(2)
	hdr.WriteString("main.go\x00")
	hdr.WriteByte(0)
	hdr.WriteString("util.go\x00")
	hdr.WriteByte(0)

	var out bytes.Buffer
	unitLength := 2 + 1 + 1 + 4 + hdr.Len() + len(opcodes)
	binary.Write(&out, binary.LittleEndian, uint32(unitLength))
	binary.Write(&out, binary.LittleEndian, uint16(5))
	out.WriteByte(8) // address_size
	out.WriteByte(0) // segment_selector_size
	binary.Write(&out, binary.LittleEndian, uint32(hdr.Len()))
	out.Write(hdr.Bytes())
	out.Write(opcodes)
	return out.Bytes()
}

func TestVersion5FileTables(t *testing.T) {
	prog := buildProgramV5(bytes.Join([][]byte{
		{lnsSetFile, 0},
		{lnsCopy},
		endSequence(),
	}, nil))

	sm, err := NewStateMachine(prog, Config{})
	require.NoError(t, err)

	hdr := sm.Header()
	assert.Equal(t, uint16(5), hdr.Version)
	assert.Equal(t, 0, hdr.FirstFileIndex())
	assert.Equal(t, []string{"/src"}, hdr.IncludeDirs)
	require.Len(t, hdr.Files, 2)
	assert.Equal(t, "util.go", hdr.Files[1].Name)

	// file index 0 is valid in version 5
	var row Row
	require.NoError(t, sm.Next(&row))
	name, err := sm.FileName(&row)
	require.NoError(t, err)
	assert.Equal(t, "main.go", name)
}

// unwrapAll follows the %w chain to the sentinel at its root.
func unwrapAll(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
