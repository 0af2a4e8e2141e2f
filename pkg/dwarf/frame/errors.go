package frame

import (
	"errors"
	"fmt"
)

// ErrNoFDEForPC FDE for PC not found error
type ErrNoFDEForPC struct {
	PC uint64
}

func (err *ErrNoFDEForPC) Error() string {
	return fmt.Sprintf("could not find FDE for PC %#v", err.PC)
}

// ErrBadFrame a CIE or FDE violates the frame section encoding.
var ErrBadFrame = errors.New("dwarf: malformed frame entry")

// ErrUnknownCFAOpcode the unwind program used an opcode this decoder
// does not recognize. Call frame opcodes carry no length prefix, so an
// unknown one cannot be skipped.
var ErrUnknownCFAOpcode = errors.New("dwarf: unknown call frame opcode")

// ErrStateStackUnderflow DW_CFA_restore_state executed with no
// remembered state to restore.
var ErrStateStackUnderflow = errors.New("dwarf: restore_state with empty state stack")
