package symbol

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hitzhangjie/gdwarf/pkg/dwarf/entry"
	"github.com/hitzhangjie/gdwarf/pkg/dwarf/frame"
	"github.com/hitzhangjie/gdwarf/pkg/dwarf/godwarf"
	"github.com/hitzhangjie/gdwarf/pkg/dwarf/line"
)

// Sections carries the raw debug sections of one binary. Info and Abbrev
// are required, the rest are optional: without Line there is no source
// index, without Frame/EhFrame there is no unwind index.
type Sections struct {
	Info       []byte
	Abbrev     []byte
	Line       []byte
	Frame      []byte
	EhFrame    []byte
	Str        []byte
	LineStr    []byte
	StrOffsets []byte
	Addr       []byte

	Order       binary.ByteOrder
	PtrSize     int
	StaticBase  uint64
	EhFrameAddr uint64
}

// BinaryInfo binary info
type BinaryInfo struct {
	Sources      map[string]map[int][]*line.Row // key=filename, val=map[lineno]rows
	Functions    []*Function
	CompileUnits []*CompileUnit
	FdeEntries   frame.FrameDescriptionEntries

	secs Sections
}

// Analyze analyzes executable `execFile` and returns the binary info
func Analyze(execFile string) (*BinaryInfo, error) {
	file, err := elf.Open(execFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	secs := Sections{PtrSize: 8}
	if secs.Info, err = godwarf.GetDebugSection(file, "info"); err != nil {
		return nil, err
	}
	if secs.Abbrev, err = godwarf.GetDebugSection(file, "abbrev"); err != nil {
		return nil, err
	}
	if secs.Line, err = godwarf.GetDebugSection(file, "line"); err != nil {
		return nil, err
	}
	secs.Order = frame.DwarfEndian(secs.Info)

	// optional sections
	secs.Str, _ = godwarf.GetDebugSection(file, "str")
	secs.LineStr, _ = godwarf.GetDebugSection(file, "line_str")
	secs.StrOffsets, _ = godwarf.GetDebugSection(file, "str_offsets")
	secs.Addr, _ = godwarf.GetDebugSection(file, "addr")

	// .debug_frame preferred, .eh_frame as fallback
	secs.Frame, _ = godwarf.GetDebugSection(file, "frame")
	if sec := file.Section(".eh_frame"); sec != nil {
		secs.EhFrame, _ = sec.Data()
		secs.EhFrameAddr = sec.Addr
	}
	if secs.Frame == nil && secs.EhFrame == nil {
		return nil, errors.New("no call frame section found")
	}

	return NewBinaryInfo(secs)
}

// NewBinaryInfo builds the binary info from raw debug sections.
func NewBinaryInfo(secs Sections) (*BinaryInfo, error) {
	if secs.Order == nil {
		secs.Order = binary.LittleEndian
	}
	if secs.PtrSize == 0 {
		secs.PtrSize = 8
	}

	bi := &BinaryInfo{
		Sources: make(map[string]map[int][]*line.Row),
		secs:    secs,
	}

	// parse .(z)debug_line and .(z)debug_info
	if err := bi.parseLineAndInfo(); err != nil {
		return nil, err
	}

	// parse .(z)debug_frame / .eh_frame
	if err := bi.parseFrame(); err != nil {
		return nil, err
	}

	return bi, nil
}

// parseLineAndInfo walks the units of .debug_info and, for each compile
// unit, replays its line program into the source index.
//
// see DWARFv4 chapter 3.3.1 normal and partial compilation unit entries
func (bi *BinaryInfo) parseLineAndInfo() error {
	data := entry.New(entry.Config{
		Order:      bi.secs.Order,
		Info:       bi.secs.Info,
		Abbrev:     bi.secs.Abbrev,
		Str:        bi.secs.Str,
		LineStr:    bi.secs.LineStr,
		StrOffsets: bi.secs.StrOffsets,
		Addr:       bi.secs.Addr,
	})

	units := data.Units()
	for {
		u, err := units.Next()
		if err != nil {
			return err
		}
		if u == nil { // reaches the end
			break
		}

		var (
			cu *CompileUnit
			fn *Function
		)

		cursor := u.Cursor()
		for {
			e, err := cursor.Next()
			if err != nil {
				return err
			}
			if e == nil {
				break
			}
			if e.IsNull() {
				continue
			}

			switch e.Tag {
			case godwarf.TagCompileUnit:
				cu = &CompileUnit{unit: u, entry: e, bi: bi}
				bi.CompileUnits = append(bi.CompileUnits, cu)
				if err := bi.parseLineProgram(cu); err != nil {
					return err
				}

			case godwarf.TagSubprogram:
				if cu == nil {
					return errors.New("subprogram outside any compile unit")
				}
				fn = &Function{cu: cu}
				if err := fn.parseFrom(e); err != nil {
					return err
				}
				bi.Functions = append(bi.Functions, fn)
				cu.functions = append(cu.functions, fn)

			case godwarf.TagVariable:
				if fn != nil {
					fn.variables = append(fn.variables, e)
				}
			}
		}
	}

	return nil
}

// parseLineProgram replays the compile unit's line program, if it has one.
func (bi *BinaryInfo) parseLineProgram(cu *CompileUnit) error {
	off, ok := cu.entry.Val(godwarf.AttrStmtList).(int64)
	if !ok {
		return nil
	}
	if bi.secs.Line == nil {
		return nil
	}
	if off < 0 || uint64(off) >= uint64(len(bi.secs.Line)) {
		return fmt.Errorf("stmt_list offset %#x outside .debug_line", off)
	}
	return cu.parseLineSection(bi.secs.Line[off:])
}

// parseFrame builds the Call Frame Information index.
//
// see DWARFv4 6.4 Call Frame Information.
func (bi *BinaryInfo) parseFrame() error {
	if bi.secs.Frame != nil {
		fdes, err := frame.Parse(bi.secs.Frame, bi.secs.Order, bi.secs.StaticBase, bi.secs.PtrSize, 0)
		if err != nil {
			return err
		}
		bi.FdeEntries = bi.FdeEntries.Append(fdes)
	}
	if bi.secs.EhFrame != nil {
		fdes, err := frame.Parse(bi.secs.EhFrame, bi.secs.Order, bi.secs.StaticBase, bi.secs.PtrSize, bi.secs.EhFrameAddr)
		if err != nil {
			return err
		}
		bi.FdeEntries = bi.FdeEntries.Append(fdes)
	}
	return nil
}

// PCToFunction returns the function whose range covers PC
//
// note: not considered inline function
func (bi *BinaryInfo) PCToFunction(pc uint64) (*Function, error) {
	for _, f := range bi.Functions {
		if f.lowpc <= pc && pc < f.highpc {
			return f, nil
		}
	}
	return nil, errors.New("not found")
}

// PCToFDE returns the frame whose range covers PC
func (bi *BinaryInfo) PCToFDE(pc uint64) (*frame.FrameDescriptionEntry, error) {
	return bi.FdeEntries.FDEForPC(pc)
}

// parseLoc parse location `loc` to file:lineno
func parseLoc(loc string) (string, int, error) {
	sps := strings.Split(loc, ":")
	if len(sps) != 2 {
		return "", 0, errors.New("wrong loc should be like filename:lineno")
	}
	filename, linenostr := sps[0], sps[1]
	lineno, err := strconv.Atoi(linenostr)
	if err != nil {
		return "", 0, errors.New("wrong loc should be like filename:lineno")
	}
	return filename, lineno, nil
}

// LocToPC convert location `loc` to PC
func (bi *BinaryInfo) LocToPC(loc string) (uint64, error) {
	filename, lineno, err := parseLoc(loc)
	if err != nil {
		return 0, err
	}
	return bi.FileLineToPC(filename, lineno)
}

// FileLineToPC convert location `filename:lineno` to PC
func (bi *BinaryInfo) FileLineToPC(filename string, lineno int) (uint64, error) {
	if len(bi.Sources[filename][lineno]) == 0 {
		return 0, errors.New("not found")
	}
	return bi.Sources[filename][lineno][0].Address, nil
}

// FileLineToPCForBreakpoint convert location `filename:lineno` to PC, used for breakpoint address
func (bi *BinaryInfo) FileLineToPCForBreakpoint(filename string, lineno int) (uint64, error) {
	rows := bi.Sources[filename][lineno]
	if len(rows) == 0 {
		return 0, errors.New("not found")
	}
	// prefer the row past the prologue
	for _, v := range rows {
		if v.PrologueEnd {
			return v.Address, nil
		}
	}
	// no prologue_end marker, settle for the lowest address
	addr := rows[0].Address
	for _, v := range rows[1:] {
		if v.Address < addr {
			addr = v.Address
		}
	}
	if addr == 0 {
		return 0, errors.New("not found")
	}
	return addr, nil
}

// PCToFileLine returns the source position of PC, or of the nearest row
// below it when no row matches exactly.
func (bi *BinaryInfo) PCToFileLine(pc uint64) (string, int, error) {
	if bi.Sources == nil {
		return "", 0, errors.New("no sources file")
	}

	type rs struct {
		pc       uint64
		valid    bool
		filename string
		lineno   int
	}

	best := &rs{}

	for filename, lines := range bi.Sources {
		for lineno, rows := range lines {
			for _, row := range rows {
				if row.Address == pc {
					return filename, lineno, nil
				}
				if row.Address <= pc && (!best.valid || row.Address > best.pc) {
					best.pc = row.Address
					best.valid = true
					best.filename = filename
					best.lineno = lineno
				}
			}
		}
	}

	if !best.valid {
		return "", 0, errors.New("not found")
	}
	return best.filename, best.lineno, nil
}

// Dump writes the source, compile unit, frame and function indexes for
// debugging purpose.
func (bi *BinaryInfo) Dump(w io.Writer) {
	for file, mp := range bi.Sources {
		for ln, rows := range mp {
			for _, row := range rows {
				fmt.Fprintf(w, "bi.sources file: %s, line: %d, addr: %#x\n", file, ln, row.Address)
			}
		}
	}

	for _, cu := range bi.CompileUnits {
		fmt.Fprintf(w, "compile unit: %s\n", cu.Name())
	}

	for i, v := range bi.FdeEntries {
		fmt.Fprintf(w, "bi.frames index: %d, fde: [%#x, %#x]\n", i, v.Begin(), v.End())
	}

	for _, fn := range bi.Functions {
		fmt.Fprintf(w, "function: %s [%#x, %#x) external: %v\n", fn.name, fn.lowpc, fn.highpc, fn.external)
		for _, v := range fn.variables {
			if name, ok := v.Val(godwarf.AttrName).(string); ok {
				fmt.Fprintf(w, "  variable: %s\n", name)
			}
		}
	}
}
