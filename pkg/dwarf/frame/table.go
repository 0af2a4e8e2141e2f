package frame

import (
	"fmt"

	"github.com/hitzhangjie/gdwarf/pkg/dwarf/util"
)

// call frame instructions, DWARFv4 figure 40. The high 2 bits of the
// first byte select the primary opcodes, which carry an operand in
// their low 6 bits.
const (
	DW_CFA_advance_loc = 0x1 << 6 // high 2 bits: 0x1, low 6: delta
	DW_CFA_offset      = 0x2 << 6 // high 2 bits: 0x2, low 6: register
	DW_CFA_restore     = 0x3 << 6 // high 2 bits: 0x3, low 6: register

	DW_CFA_nop                = 0x00
	DW_CFA_set_loc            = 0x01 // op1: address
	DW_CFA_advance_loc1       = 0x02 // op1: 1-byte delta
	DW_CFA_advance_loc2       = 0x03 // op1: 2-byte delta
	DW_CFA_advance_loc4       = 0x04 // op1: 4-byte delta
	DW_CFA_offset_extended    = 0x05 // op1: ULEB128 register, op2: ULEB128 offset
	DW_CFA_restore_extended   = 0x06 // op1: ULEB128 register
	DW_CFA_undefined          = 0x07 // op1: ULEB128 register
	DW_CFA_same_value         = 0x08 // op1: ULEB128 register
	DW_CFA_register           = 0x09 // op1: ULEB128 register, op2: ULEB128 register
	DW_CFA_remember_state     = 0x0a
	DW_CFA_restore_state      = 0x0b
	DW_CFA_def_cfa            = 0x0c // op1: ULEB128 register, op2: ULEB128 offset
	DW_CFA_def_cfa_register   = 0x0d // op1: ULEB128 register
	DW_CFA_def_cfa_offset     = 0x0e // op1: ULEB128 offset
	DW_CFA_def_cfa_expression = 0x0f // op1: BLOCK
	DW_CFA_expression         = 0x10 // op1: ULEB128 register, op2: BLOCK
	DW_CFA_offset_extended_sf = 0x11 // op1: ULEB128 register, op2: SLEB128 offset
	DW_CFA_def_cfa_sf         = 0x12 // op1: ULEB128 register, op2: SLEB128 offset
	DW_CFA_def_cfa_offset_sf  = 0x13 // op1: SLEB128 offset
	DW_CFA_val_offset         = 0x14 // op1: ULEB128, op2: ULEB128
	DW_CFA_val_offset_sf      = 0x15 // op1: ULEB128, op2: SLEB128
	DW_CFA_val_expression     = 0x16 // op1: ULEB128, op2: BLOCK
	DW_CFA_lo_user            = 0x1c
	DW_CFA_hi_user            = 0x3f
)

// RuleType classifies how a register's saved value can be recovered.
type RuleType byte

const (
	RuleUndefined     RuleType = iota // not recoverable
	RuleSameVal                       // not modified by this frame
	RuleOffset                        // saved at CFA+offset
	RuleValOffset                     // value is CFA+offset itself
	RuleRegister                      // saved in another register
	RuleExpression                    // saved at the address an expression computes
	RuleValExpression                 // value is what an expression computes
	RuleCFA                           // register+offset, the CFA rule form
)

// DWRule is one register recovery rule within an unwind row.
type DWRule struct {
	Rule       RuleType
	Offset     int64
	Reg        uint64
	Expression []byte
}

// UnwindRow gives, for every address in [Loc, next row's Loc), the CFA
// rule and the recovery rule of each register the frame touches.
type UnwindRow struct {
	Loc        uint64
	CFA        DWRule
	Regs       map[uint64]DWRule
	RetAddrReg uint64
}

// frameContext is the running state of the call frame instruction
// interpreter.
type frameContext struct {
	loc         uint64
	cfa         DWRule
	regs        map[uint64]DWRule
	initialRegs map[uint64]DWRule
	stack       []rememberedState
	cie         *CommonInformationEntry
	rd          *util.Reader
	ptrSize     int
	rows        []UnwindRow
}

type rememberedState struct {
	cfa  DWRule
	regs map[uint64]DWRule
}

// executeDwarfProgram interprets the CIE's initial instructions and
// then the FDE's own instructions into the FDE's unwind row sequence.
func executeDwarfProgram(fde *FrameDescriptionEntry) ([]UnwindRow, error) {
	fctx := &frameContext{
		loc:     fde.Begin(),
		cie:     fde.CIE,
		regs:    make(map[uint64]DWRule),
		ptrSize: fde.ptrSize,
	}

	fctx.rd = util.NewReader(fde.CIE.InitialInstructions, fde.order, 0)
	if err := fctx.run(); err != nil {
		return nil, err
	}
	fctx.initialRegs = copyRules(fctx.regs)
	fctx.rows = nil
	fctx.loc = fde.Begin()

	fctx.rd = util.NewReader(fde.Instructions, fde.order, 0)
	if err := fctx.run(); err != nil {
		return nil, err
	}
	fctx.closeRow()
	return fctx.rows, nil
}

func copyRules(m map[uint64]DWRule) map[uint64]DWRule {
	out := make(map[uint64]DWRule, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// closeRow captures the current state as the row covering addresses
// from loc up to the next location change.
func (fctx *frameContext) closeRow() {
	fctx.rows = append(fctx.rows, UnwindRow{
		Loc:        fctx.loc,
		CFA:        fctx.cfa,
		Regs:       copyRules(fctx.regs),
		RetAddrReg: fctx.cie.ReturnAddressRegister,
	})
}

// advance closes the current row and moves the location forward by
// delta operation units.
func (fctx *frameContext) advance(delta uint64) {
	fctx.closeRow()
	fctx.loc += delta * fctx.cie.CodeAlignmentFactor
}

func (fctx *frameContext) run() error {
	for fctx.rd.Len() > 0 {
		op, err := fctx.rd.ReadUint8()
		if err != nil {
			return err
		}
		if err := fctx.execute(op); err != nil {
			return err
		}
	}
	return nil
}

func (fctx *frameContext) execute(op uint8) error {
	// primary opcodes fold their operand into the low 6 bits
	switch op & 0xc0 {
	case DW_CFA_advance_loc:
		fctx.advance(uint64(op & 0x3f))
		return nil
	case DW_CFA_offset:
		off, err := fctx.rd.ReadULEB128()
		if err != nil {
			return err
		}
		fctx.regs[uint64(op&0x3f)] = DWRule{
			Rule:   RuleOffset,
			Offset: int64(off) * fctx.cie.DataAlignmentFactor,
		}
		return nil
	case DW_CFA_restore:
		fctx.restore(uint64(op & 0x3f))
		return nil
	}

	switch op {
	case DW_CFA_nop:

	case DW_CFA_set_loc:
		// in .eh_frame the operand uses the CIE's FDE address encoding;
		// only its value portion applies, a relative base is not
		// reconstructible here
		loc, err := readEncodedPtr(0, fctx.rd, fctx.cie.ptrEncAddr&0x0f, fctx.ptrSize)
		if err != nil {
			return err
		}
		fctx.closeRow()
		fctx.loc = loc + fctx.cie.staticBase

	case DW_CFA_advance_loc1:
		delta, err := fctx.rd.ReadUint(1)
		if err != nil {
			return err
		}
		fctx.advance(delta)

	case DW_CFA_advance_loc2:
		delta, err := fctx.rd.ReadUint(2)
		if err != nil {
			return err
		}
		fctx.advance(delta)

	case DW_CFA_advance_loc4:
		delta, err := fctx.rd.ReadUint(4)
		if err != nil {
			return err
		}
		fctx.advance(delta)

	case DW_CFA_offset_extended:
		reg, off, err := fctx.readRegOffset()
		if err != nil {
			return err
		}
		fctx.regs[reg] = DWRule{Rule: RuleOffset, Offset: int64(off) * fctx.cie.DataAlignmentFactor}

	case DW_CFA_restore_extended:
		reg, err := fctx.rd.ReadULEB128()
		if err != nil {
			return err
		}
		fctx.restore(reg)

	case DW_CFA_undefined:
		reg, err := fctx.rd.ReadULEB128()
		if err != nil {
			return err
		}
		fctx.regs[reg] = DWRule{Rule: RuleUndefined}

	case DW_CFA_same_value:
		reg, err := fctx.rd.ReadULEB128()
		if err != nil {
			return err
		}
		fctx.regs[reg] = DWRule{Rule: RuleSameVal}

	case DW_CFA_register:
		reg, src, err := fctx.readRegOffset()
		if err != nil {
			return err
		}
		fctx.regs[reg] = DWRule{Rule: RuleRegister, Reg: src}

	case DW_CFA_remember_state:
		fctx.stack = append(fctx.stack, rememberedState{cfa: fctx.cfa, regs: copyRules(fctx.regs)})

	case DW_CFA_restore_state:
		if len(fctx.stack) == 0 {
			return ErrStateStackUnderflow
		}
		saved := fctx.stack[len(fctx.stack)-1]
		fctx.stack = fctx.stack[:len(fctx.stack)-1]
		fctx.cfa = saved.cfa
		fctx.regs = saved.regs

	case DW_CFA_def_cfa:
		reg, off, err := fctx.readRegOffset()
		if err != nil {
			return err
		}
		fctx.cfa = DWRule{Rule: RuleCFA, Reg: reg, Offset: int64(off)}

	case DW_CFA_def_cfa_register:
		reg, err := fctx.rd.ReadULEB128()
		if err != nil {
			return err
		}
		fctx.cfa.Rule = RuleCFA
		fctx.cfa.Reg = reg
		fctx.cfa.Expression = nil

	case DW_CFA_def_cfa_offset:
		off, err := fctx.rd.ReadULEB128()
		if err != nil {
			return err
		}
		fctx.cfa.Offset = int64(off)

	case DW_CFA_def_cfa_expression:
		expr, err := fctx.readBlock()
		if err != nil {
			return err
		}
		fctx.cfa = DWRule{Rule: RuleExpression, Expression: expr}

	case DW_CFA_expression:
		reg, err := fctx.rd.ReadULEB128()
		if err != nil {
			return err
		}
		expr, err := fctx.readBlock()
		if err != nil {
			return err
		}
		fctx.regs[reg] = DWRule{Rule: RuleExpression, Expression: expr}

	case DW_CFA_val_expression:
		reg, err := fctx.rd.ReadULEB128()
		if err != nil {
			return err
		}
		expr, err := fctx.readBlock()
		if err != nil {
			return err
		}
		fctx.regs[reg] = DWRule{Rule: RuleValExpression, Expression: expr}

	case DW_CFA_offset_extended_sf:
		reg, off, err := fctx.readRegSOffset()
		if err != nil {
			return err
		}
		fctx.regs[reg] = DWRule{Rule: RuleOffset, Offset: off * fctx.cie.DataAlignmentFactor}

	case DW_CFA_def_cfa_sf:
		reg, off, err := fctx.readRegSOffset()
		if err != nil {
			return err
		}
		fctx.cfa = DWRule{Rule: RuleCFA, Reg: reg, Offset: off * fctx.cie.DataAlignmentFactor}

	case DW_CFA_def_cfa_offset_sf:
		off, err := fctx.rd.ReadSLEB128()
		if err != nil {
			return err
		}
		fctx.cfa.Offset = off * fctx.cie.DataAlignmentFactor

	case DW_CFA_val_offset:
		reg, off, err := fctx.readRegOffset()
		if err != nil {
			return err
		}
		fctx.regs[reg] = DWRule{Rule: RuleValOffset, Offset: int64(off) * fctx.cie.DataAlignmentFactor}

	case DW_CFA_val_offset_sf:
		reg, off, err := fctx.readRegSOffset()
		if err != nil {
			return err
		}
		fctx.regs[reg] = DWRule{Rule: RuleValOffset, Offset: off * fctx.cie.DataAlignmentFactor}

	default:
		// vendor opcodes (lo_user..hi_user included) have no declared
		// operand layout, there is no safe way to skip them
		return fmt.Errorf("opcode %#x: %w", op, ErrUnknownCFAOpcode)
	}
	return nil
}

// restore resets a register to the rule the CIE's initial instructions
// established for it.
func (fctx *frameContext) restore(reg uint64) {
	if rule, ok := fctx.initialRegs[reg]; ok {
		fctx.regs[reg] = rule
		return
	}
	delete(fctx.regs, reg)
}

func (fctx *frameContext) readRegOffset() (uint64, uint64, error) {
	reg, err := fctx.rd.ReadULEB128()
	if err != nil {
		return 0, 0, err
	}
	off, err := fctx.rd.ReadULEB128()
	return reg, off, err
}

func (fctx *frameContext) readRegSOffset() (uint64, int64, error) {
	reg, err := fctx.rd.ReadULEB128()
	if err != nil {
		return 0, 0, err
	}
	off, err := fctx.rd.ReadSLEB128()
	return reg, off, err
}

func (fctx *frameContext) readBlock() ([]byte, error) {
	n, err := fctx.rd.ReadULEB128()
	if err != nil {
		return nil, err
	}
	return fctx.rd.ReadBytes(int(n))
}
