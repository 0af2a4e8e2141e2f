package line

import (
	"fmt"
	"io"

	"github.com/hitzhangjie/gdwarf/pkg/dwarf/util"
)

// Next executes opcodes until the program emits the next row, copying it
// into row. It returns io.EOF once the final end-sequence row has been
// consumed.
func (sm *StateMachine) Next(row *Row) error {
	if sm.done {
		return io.EOF
	}

	for {
		if sm.rd.Len() == 0 {
			// a sequence must be closed by DW_LNE_end_sequence before
			// the program's declared length runs out
			sm.done = true
			if sm.inSeq {
				return fmt.Errorf("line program ended without end_sequence: %w", ErrBadLineProgram)
			}
			return io.EOF
		}

		op, err := sm.rd.ReadUint8()
		if err != nil {
			return err
		}
		sm.inSeq = true

		emitted, err := sm.step(op)
		if err != nil {
			sm.done = true
			return err
		}
		if emitted {
			*row = sm.regs
			if sm.regs.EndSequence {
				if sm.rd.Len() == 0 {
					sm.done = true
				}
				sm.inSeq = false
				sm.reset()
			} else {
				sm.regs.BasicBlock = false
				sm.regs.PrologueEnd = false
				sm.regs.EpilogueBegin = false
				sm.regs.Discriminator = 0
			}
			return nil
		}
	}
}

// step executes a single opcode, reporting whether it emitted a row.
func (sm *StateMachine) step(op uint8) (bool, error) {
	if op >= sm.hdr.OpcodeBase {
		sm.execSpecial(op)
		return true, sm.checkFile()
	}

	switch op {
	case 0:
		return sm.execExtended()

	case lnsCopy:
		return true, sm.checkFile()

	case lnsAdvancePC:
		adv, err := sm.rd.ReadULEB128()
		if err != nil {
			return false, err
		}
		sm.advancePC(int(adv))

	case lnsAdvanceLine:
		adv, err := sm.rd.ReadSLEB128()
		if err != nil {
			return false, err
		}
		sm.regs.Line += int(adv)

	case lnsSetFile:
		f, err := sm.rd.ReadULEB128()
		if err != nil {
			return false, err
		}
		sm.regs.File = int(f)

	case lnsSetColumn:
		c, err := sm.rd.ReadULEB128()
		if err != nil {
			return false, err
		}
		sm.regs.Column = int(c)

	case lnsNegateStmt:
		sm.regs.IsStmt = !sm.regs.IsStmt

	case lnsSetBasicBlock:
		sm.regs.BasicBlock = true

	case lnsConstAddPC:
		// advance as special opcode 255 would, without emitting
		sm.advancePC(int(255-sm.hdr.OpcodeBase) / sm.hdr.LineRange)

	case lnsFixedAdvancePC:
		adv, err := sm.rd.ReadUint16()
		if err != nil {
			return false, err
		}
		sm.regs.Address += uint64(adv)
		sm.regs.OpIndex = 0

	case lnsSetPrologueEnd:
		sm.regs.PrologueEnd = true

	case lnsSetEpilogueBegin:
		sm.regs.EpilogueBegin = true

	case lnsSetISA:
		isa, err := sm.rd.ReadULEB128()
		if err != nil {
			return false, err
		}
		sm.regs.ISA = isa

	default:
		// a standard opcode this decoder does not know, skip its
		// operands using the header's own declared operand count
		n := int(sm.hdr.StdOpcodeLengths[op-1])
		for i := 0; i < n; i++ {
			if _, err := sm.rd.ReadULEB128(); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}

// execSpecial applies a special opcode: advance address and line by the
// opcode-encoded deltas, DWARFv4 6.2.5.1.
func (sm *StateMachine) execSpecial(op uint8) {
	adjusted := int(op) - int(sm.hdr.OpcodeBase)
	sm.regs.Line += sm.hdr.LineBase + adjusted%sm.hdr.LineRange
	sm.advancePC(adjusted / sm.hdr.LineRange)
}

// advancePC advances the address/op_index pair by an operation count,
// honoring VLIW bundling (max_ops_per_instruction).
func (sm *StateMachine) advancePC(opAdvance int) {
	delta := (int(sm.regs.OpIndex) + opAdvance) / sm.hdr.MaxOpsPerInstruction
	sm.regs.Address += uint64(sm.hdr.MinInstructionLength * delta)
	sm.regs.OpIndex = uint64((int(sm.regs.OpIndex) + opAdvance) % sm.hdr.MaxOpsPerInstruction)
}

// execExtended decodes one length-prefixed extended opcode. Unknown
// opcodes are skipped through the length prefix, the encoding is
// self-delimiting exactly so consumers can do this.
func (sm *StateMachine) execExtended() (bool, error) {
	length, err := sm.rd.ReadULEB128()
	if err != nil {
		return false, err
	}
	if length == 0 {
		return false, fmt.Errorf("zero-length extended opcode: %w", ErrBadLineProgram)
	}
	body, err := sm.rd.ReadBytes(int(length))
	if err != nil {
		return false, err
	}
	op := body[0]
	args := util.NewReader(body[1:], sm.cfg.Order, 0)

	switch op {
	case lneEndSequence:
		sm.regs.EndSequence = true
		return true, nil

	case lneSetAddress:
		// the operand is the remainder of the instruction, its width is
		// the target address size
		addr, err := args.ReadUint(args.Len())
		if err != nil {
			return false, fmt.Errorf("bad set_address operand: %w", ErrBadLineProgram)
		}
		sm.regs.Address = addr
		sm.regs.OpIndex = 0

	case lneDefineFile:
		if sm.hdr.Version >= 5 {
			return false, fmt.Errorf("define_file opcode in version %d program: %w",
				sm.hdr.Version, ErrBadLineProgram)
		}
		e, err := parseDefineFile(args)
		if err != nil {
			return false, fmt.Errorf("bad define_file operands: %w", ErrBadLineProgram)
		}
		sm.files = append(sm.files, e)

	case lneSetDiscriminator:
		d, err := args.ReadULEB128()
		if err != nil {
			return false, fmt.Errorf("bad set_discriminator operand: %w", ErrBadLineProgram)
		}
		sm.regs.Discriminator = d

	default:
		// vendor extension, self-delimiting, already consumed
	}
	return false, nil
}

// checkFile validates the file register against the file table before a
// row escapes the machine.
func (sm *StateMachine) checkFile() error {
	i := sm.regs.File - sm.hdr.FirstFileIndex()
	if i < 0 || i >= len(sm.files) {
		return fmt.Errorf("row references undefined file index %d: %w",
			sm.regs.File, ErrBadLineProgram)
	}
	return nil
}

// FileName resolves a row's file index against the table as it stood
// when the row was emitted.
func (sm *StateMachine) FileName(row *Row) (string, error) {
	i := row.File - sm.hdr.FirstFileIndex()
	if i < 0 || i >= len(sm.files) {
		return "", fmt.Errorf("undefined file index %d: %w", row.File, ErrBadLineProgram)
	}
	return sm.files[i].Name, nil
}

// Rows replays the whole program from the start and returns every row.
func (sm *StateMachine) Rows() ([]Row, error) {
	sm.Restart()
	var rows []Row
	for {
		var row Row
		err := sm.Next(&row)
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

func parseDefineFile(rd *util.Reader) (FileEntry, error) {
	var e FileEntry
	name, err := rd.ReadCString()
	if err != nil {
		return e, err
	}
	e.Name = name
	dir, err := rd.ReadULEB128()
	if err != nil {
		return e, err
	}
	e.DirIndex = int(dir)
	if e.ModTime, err = rd.ReadULEB128(); err != nil {
		return e, err
	}
	if e.Length, err = rd.ReadULEB128(); err != nil {
		return e, err
	}
	return e, nil
}
