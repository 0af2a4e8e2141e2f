// Package op evaluates DWARF location and value expressions.
//
// The evaluator is a stack machine that performs no register or memory
// I/O of its own: whenever an opcode needs a register or memory value,
// evaluation suspends and surfaces a Request; the caller fetches the
// value however it sees fit (possibly by unwinding further frames) and
// resumes the session with it.
package op

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.uber.org/atomic"

	"github.com/hitzhangjie/gdwarf/pkg/dwarf/util"
)

var (
	// ErrStackUnderflow an operation popped more values than the
	// expression stack holds.
	ErrStackUnderflow = errors.New("dwarf: expression stack underflow")

	// ErrDivByZero DW_OP_div or DW_OP_mod with a zero divisor.
	ErrDivByZero = errors.New("dwarf: expression division by zero")

	// ErrUnknownOpcode the expression used an opcode this evaluator
	// does not recognize.
	ErrUnknownOpcode = errors.New("dwarf: unknown expression opcode")

	// ErrNoFrameContext the expression needs a frame base or CFA the
	// caller did not configure.
	ErrNoFrameContext = errors.New("dwarf: expression needs frame context")

	// ErrLooping the expression executed far more opcodes than its
	// size justifies, so its branches cannot all make progress.
	ErrLooping = errors.New("dwarf: expression does not terminate")
)

// stepsPerByte bounds how many opcodes a well-formed expression may
// execute per encoded byte. DW_OP_skip/DW_OP_bra may branch backward,
// so without a budget a hostile expression can loop forever.
const stepsPerByte = 64

// sessionSeqNo numbers evaluator sessions for callers juggling several
// suspended evaluations at once.
var sessionSeqNo = atomic.NewUint64(0)

// LocationKind discriminates the final location description.
type LocationKind byte

const (
	// LocEmpty no location: the value is optimized out here.
	LocEmpty LocationKind = iota
	// LocAddress the value lives in memory at Addr.
	LocAddress
	// LocRegister the value lives in register Reg.
	LocRegister
	// LocImplicit the value does not exist in the program, its bytes
	// are Value.
	LocImplicit
	// LocComposite the value is assembled from Pieces.
	LocComposite
)

// Piece is one component of a composite location.
type Piece struct {
	Kind LocationKind
	Addr uint64
	Reg  uint64
	Val  []byte

	// Size in bytes; for bit pieces BitSize/BitOffset refine it.
	Size      uint64
	BitSize   uint64
	BitOffset uint64
}

// Location is the result of evaluating an expression.
type Location struct {
	Kind   LocationKind
	Addr   uint64
	Reg    uint64
	Value  []byte
	Pieces []Piece
}

// RequestKind says what a suspended session is waiting for.
type RequestKind byte

const (
	// NeedRegister the session needs the value of register Reg.
	NeedRegister RequestKind = iota
	// NeedMemory the session needs Size bytes of memory at Addr,
	// supplied as an unsigned integer in the expression's byte order.
	NeedMemory
)

// Request describes the value a suspended session is waiting for.
type Request struct {
	Kind RequestKind
	Reg  uint64
	Addr uint64
	Size int
}

// Config carries the caller-side context an expression may reference.
type Config struct {
	Order   binary.ByteOrder
	PtrSize int

	// StaticBase is added to DW_OP_addr operands.
	StaticBase uint64

	// FrameBase backs DW_OP_fbreg when HasFrameBase is set.
	FrameBase    int64
	HasFrameBase bool

	// CFA backs DW_OP_call_frame_cfa when HasCFA is set.
	CFA    uint64
	HasCFA bool
}

// Session is one resumable evaluation of one expression.
type Session struct {
	id  uint64
	cfg Config
	rd  *util.Reader

	stack  []int64
	pieces []Piece

	// reg is the register named by the last DW_OP_reg* opcode, the
	// location result unless something follows it.
	reg    *uint64
	implic []byte // implicit value bytes
	onTop  bool   // DW_OP_stack_value seen

	pending *Request
	resume  func(uint64) error

	steps    int
	maxSteps int
}

// New prepares a session over expr. Evaluation starts on the first
// Run call.
func New(expr []byte, cfg Config) *Session {
	if cfg.Order == nil {
		cfg.Order = binary.LittleEndian
	}
	if cfg.PtrSize == 0 {
		cfg.PtrSize = 8
	}
	return &Session{
		id:       sessionSeqNo.Inc(),
		cfg:      cfg,
		rd:       util.NewReader(expr, cfg.Order, 0),
		maxSteps: stepsPerByte * (len(expr) + 1),
	}
}

// ID returns this session's sequence number.
func (s *Session) ID() uint64 { return s.id }

// Run evaluates until the expression completes, suspends, or fails.
// Exactly one of the location and the request is non-nil on success.
func (s *Session) Run() (*Location, *Request, error) {
	if s.pending != nil {
		return nil, s.pending, nil
	}
	return s.loop()
}

// Resume supplies the value a suspended session asked for and
// continues evaluation.
func (s *Session) Resume(value uint64) (*Location, *Request, error) {
	if s.pending == nil {
		return nil, nil, fmt.Errorf("session %d is not suspended", s.id)
	}
	apply := s.resume
	s.pending, s.resume = nil, nil
	if err := apply(value); err != nil {
		return nil, nil, err
	}
	return s.loop()
}

func (s *Session) loop() (*Location, *Request, error) {
	for s.rd.Len() > 0 {
		if s.steps++; s.steps > s.maxSteps {
			return nil, nil, fmt.Errorf("%d opcodes executed: %w", s.steps-1, ErrLooping)
		}
		op, err := s.rd.ReadUint8()
		if err != nil {
			return nil, nil, err
		}
		if err := s.step(op); err != nil {
			return nil, nil, err
		}
		if s.pending != nil {
			return nil, s.pending, nil
		}
	}
	loc, err := s.result()
	if err != nil {
		return nil, nil, err
	}
	return loc, nil, nil
}

// result assembles the final location description from whatever the
// program left behind.
func (s *Session) result() (*Location, error) {
	if len(s.pieces) > 0 {
		return &Location{Kind: LocComposite, Pieces: s.pieces}, nil
	}
	if s.implic != nil {
		return &Location{Kind: LocImplicit, Value: s.implic}, nil
	}
	if s.reg != nil {
		return &Location{Kind: LocRegister, Reg: *s.reg}, nil
	}
	if len(s.stack) == 0 {
		return &Location{Kind: LocEmpty}, nil
	}
	top := s.stack[len(s.stack)-1]
	if s.onTop {
		buf := make([]byte, 8)
		s.cfg.Order.PutUint64(buf, uint64(top))
		return &Location{Kind: LocImplicit, Value: buf}, nil
	}
	return &Location{Kind: LocAddress, Addr: uint64(top)}, nil
}

func (s *Session) push(v int64) {
	s.stack = append(s.stack, v)
}

func (s *Session) pop() (int64, error) {
	if len(s.stack) == 0 {
		return 0, ErrStackUnderflow
	}
	v := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return v, nil
}

func (s *Session) pop2() (second, top int64, err error) {
	if top, err = s.pop(); err != nil {
		return 0, 0, err
	}
	second, err = s.pop()
	return second, top, err
}

// suspend records what the session is waiting for and what to do with
// the value once supplied.
func (s *Session) suspend(req Request, apply func(uint64) error) {
	s.pending = &req
	s.resume = apply
}

func (s *Session) step(op uint8) error {
	switch {
	case op >= DW_OP_lit0 && op <= DW_OP_lit31:
		s.push(int64(op - DW_OP_lit0))
		return nil

	case op >= DW_OP_reg0 && op <= DW_OP_reg31:
		reg := uint64(op - DW_OP_reg0)
		s.reg = &reg
		return nil

	case op >= DW_OP_breg0 && op <= DW_OP_breg31:
		off, err := s.rd.ReadSLEB128()
		if err != nil {
			return err
		}
		s.suspend(Request{Kind: NeedRegister, Reg: uint64(op - DW_OP_breg0)},
			func(v uint64) error { s.push(int64(v) + off); return nil })
		return nil
	}

	switch op {
	case DW_OP_nop:

	case DW_OP_addr:
		addr, err := s.rd.ReadUint(s.cfg.PtrSize)
		if err != nil {
			return err
		}
		s.push(int64(addr + s.cfg.StaticBase))

	case DW_OP_const1u, DW_OP_const2u, DW_OP_const4u, DW_OP_const8u:
		v, err := s.rd.ReadUint(1 << ((op - DW_OP_const1u) / 2))
		if err != nil {
			return err
		}
		s.push(int64(v))

	case DW_OP_const1s, DW_OP_const2s, DW_OP_const4s, DW_OP_const8s:
		v, err := s.rd.ReadInt(1 << ((op - DW_OP_const1s) / 2))
		if err != nil {
			return err
		}
		s.push(v)

	case DW_OP_constu:
		v, err := s.rd.ReadULEB128()
		if err != nil {
			return err
		}
		s.push(int64(v))

	case DW_OP_consts:
		v, err := s.rd.ReadSLEB128()
		if err != nil {
			return err
		}
		s.push(v)

	case DW_OP_dup:
		v, err := s.pop()
		if err != nil {
			return err
		}
		s.push(v)
		s.push(v)

	case DW_OP_drop:
		_, err := s.pop()
		return err

	case DW_OP_over:
		if len(s.stack) < 2 {
			return ErrStackUnderflow
		}
		s.push(s.stack[len(s.stack)-2])

	case DW_OP_pick:
		n, err := s.rd.ReadUint8()
		if err != nil {
			return err
		}
		if int(n) >= len(s.stack) {
			return ErrStackUnderflow
		}
		s.push(s.stack[len(s.stack)-1-int(n)])

	case DW_OP_swap:
		if len(s.stack) < 2 {
			return ErrStackUnderflow
		}
		n := len(s.stack)
		s.stack[n-1], s.stack[n-2] = s.stack[n-2], s.stack[n-1]

	case DW_OP_rot:
		if len(s.stack) < 3 {
			return ErrStackUnderflow
		}
		n := len(s.stack)
		s.stack[n-1], s.stack[n-2], s.stack[n-3] = s.stack[n-2], s.stack[n-3], s.stack[n-1]

	case DW_OP_abs:
		v, err := s.pop()
		if err != nil {
			return err
		}
		if v < 0 {
			v = -v
		}
		s.push(v)

	case DW_OP_neg:
		v, err := s.pop()
		if err != nil {
			return err
		}
		s.push(-v)

	case DW_OP_not:
		v, err := s.pop()
		if err != nil {
			return err
		}
		s.push(^v)

	case DW_OP_and, DW_OP_or, DW_OP_xor, DW_OP_plus, DW_OP_minus, DW_OP_mul,
		DW_OP_div, DW_OP_mod, DW_OP_shl, DW_OP_shr, DW_OP_shra,
		DW_OP_eq, DW_OP_ge, DW_OP_gt, DW_OP_le, DW_OP_lt, DW_OP_ne:
		return s.binary(op)

	case DW_OP_plus_uconst:
		addend, err := s.rd.ReadULEB128()
		if err != nil {
			return err
		}
		v, err := s.pop()
		if err != nil {
			return err
		}
		s.push(v + int64(addend))

	case DW_OP_skip:
		delta, err := s.rd.ReadInt(2)
		if err != nil {
			return err
		}
		return s.branch(delta)

	case DW_OP_bra:
		delta, err := s.rd.ReadInt(2)
		if err != nil {
			return err
		}
		v, err := s.pop()
		if err != nil {
			return err
		}
		if v != 0 {
			return s.branch(delta)
		}

	case DW_OP_deref, DW_OP_xderef:
		return s.deref(s.cfg.PtrSize)

	case DW_OP_deref_size, DW_OP_xderef_size:
		size, err := s.rd.ReadUint8()
		if err != nil {
			return err
		}
		if size == 0 || size > 8 {
			return fmt.Errorf("deref of %d bytes: %w", size, util.ErrInvalidEncoding)
		}
		return s.deref(int(size))

	case DW_OP_fbreg:
		off, err := s.rd.ReadSLEB128()
		if err != nil {
			return err
		}
		if !s.cfg.HasFrameBase {
			return fmt.Errorf("DW_OP_fbreg: %w", ErrNoFrameContext)
		}
		s.push(s.cfg.FrameBase + off)

	case DW_OP_call_frame_cfa:
		if !s.cfg.HasCFA {
			return fmt.Errorf("DW_OP_call_frame_cfa: %w", ErrNoFrameContext)
		}
		s.push(int64(s.cfg.CFA))

	case DW_OP_regx:
		reg, err := s.rd.ReadULEB128()
		if err != nil {
			return err
		}
		s.reg = &reg

	case DW_OP_bregx:
		reg, err := s.rd.ReadULEB128()
		if err != nil {
			return err
		}
		off, err := s.rd.ReadSLEB128()
		if err != nil {
			return err
		}
		s.suspend(Request{Kind: NeedRegister, Reg: reg},
			func(v uint64) error { s.push(int64(v) + off); return nil })

	case DW_OP_piece:
		size, err := s.rd.ReadULEB128()
		if err != nil {
			return err
		}
		return s.closePiece(size, 0, 0)

	case DW_OP_bit_piece:
		bitSize, err := s.rd.ReadULEB128()
		if err != nil {
			return err
		}
		bitOff, err := s.rd.ReadULEB128()
		if err != nil {
			return err
		}
		return s.closePiece((bitSize+7)/8, bitSize, bitOff)

	case DW_OP_implicit_value:
		n, err := s.rd.ReadULEB128()
		if err != nil {
			return err
		}
		block, err := s.rd.ReadBytes(int(n))
		if err != nil {
			return err
		}
		s.implic = block

	case DW_OP_stack_value:
		// the value is the top of stack itself, it has no address;
		// may be followed by DW_OP_piece in a composite
		if len(s.stack) == 0 {
			return ErrStackUnderflow
		}
		s.onTop = true

	default:
		return fmt.Errorf("opcode %#x: %w", op, ErrUnknownOpcode)
	}
	return nil
}

// branch moves the program counter by delta bytes relative to the next
// instruction.
func (s *Session) branch(delta int64) error {
	target := int64(s.rd.Off()) + delta
	if target < 0 || target > int64(s.rd.Off())+int64(s.rd.Len()) {
		return fmt.Errorf("branch target %d out of range: %w", target, util.ErrInvalidEncoding)
	}
	return s.rd.Seek(uint64(target))
}

func (s *Session) deref(size int) error {
	addr, err := s.pop()
	if err != nil {
		return err
	}
	s.suspend(Request{Kind: NeedMemory, Addr: uint64(addr), Size: size},
		func(v uint64) error { s.push(int64(v)); return nil })
	return nil
}

func (s *Session) binary(op uint8) error {
	second, top, err := s.pop2()
	if err != nil {
		return err
	}

	var v int64
	switch op {
	case DW_OP_and:
		v = second & top
	case DW_OP_or:
		v = second | top
	case DW_OP_xor:
		v = second ^ top
	case DW_OP_plus:
		v = second + top
	case DW_OP_minus:
		v = second - top
	case DW_OP_mul:
		v = second * top
	case DW_OP_div:
		if top == 0 {
			return ErrDivByZero
		}
		v = second / top
	case DW_OP_mod:
		if top == 0 {
			return ErrDivByZero
		}
		v = second % top
	case DW_OP_shl:
		v = second << uint64(top)
	case DW_OP_shr:
		v = int64(uint64(second) >> uint64(top))
	case DW_OP_shra:
		v = second >> uint64(top)
	case DW_OP_eq:
		v = bool2int(second == top)
	case DW_OP_ge:
		v = bool2int(second >= top)
	case DW_OP_gt:
		v = bool2int(second > top)
	case DW_OP_le:
		v = bool2int(second <= top)
	case DW_OP_lt:
		v = bool2int(second < top)
	case DW_OP_ne:
		v = bool2int(second != top)
	}
	s.push(v)
	return nil
}

func bool2int(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// closePiece captures the location computed since the previous piece
// operator and resets the per-piece state.
func (s *Session) closePiece(size, bitSize, bitOffset uint64) error {
	p := Piece{Size: size, BitSize: bitSize, BitOffset: bitOffset}
	switch {
	case s.reg != nil:
		p.Kind = LocRegister
		p.Reg = *s.reg
	case s.implic != nil:
		p.Kind = LocImplicit
		p.Val = s.implic
	case len(s.stack) > 0:
		top, _ := s.pop()
		if s.onTop {
			buf := make([]byte, 8)
			s.cfg.Order.PutUint64(buf, uint64(top))
			p.Kind = LocImplicit
			p.Val = buf
		} else {
			p.Kind = LocAddress
			p.Addr = uint64(top)
		}
	default:
		// no location: this piece of the object is optimized out
		p.Kind = LocEmpty
	}
	s.pieces = append(s.pieces, p)
	s.stack = s.stack[:0]
	s.reg = nil
	s.implic = nil
	s.onTop = false
	return nil
}
