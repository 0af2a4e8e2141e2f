package symbol

import (
	"github.com/hitzhangjie/gdwarf/pkg/dwarf/entry"
	"github.com/hitzhangjie/gdwarf/pkg/dwarf/godwarf"
)

// Function function
//
// see DWARFv4 3.3 subroutine and entry point entries
type Function struct {
	name      string
	lowpc     uint64
	highpc    uint64
	frameBase []byte
	declFile  int64
	external  bool

	entry     *entry.Entry
	variables []*entry.Entry
	cu        *CompileUnit
}

func (f *Function) Name() string {
	return f.name
}

// Range returns the function's [lowpc, highpc) address range.
func (f *Function) Range() (uint64, uint64) {
	return f.lowpc, f.highpc
}

// FrameBase returns the location expression of the frame base, nil when
// the producer emitted none.
func (f *Function) FrameBase() []byte {
	return f.frameBase
}

func (f *Function) Variables() []*entry.Entry {
	return f.variables
}

func (f *Function) parseFrom(curEntry *entry.Entry) error {
	var highOff int64 = -1
	for _, field := range curEntry.Field {
		switch field.Attr {
		case godwarf.AttrName:
			if val, ok := field.Val.(string); ok {
				f.name = val
			}
		case godwarf.AttrLowpc:
			if val, ok := field.Val.(uint64); ok {
				f.lowpc = val
			}
		case godwarf.AttrHighpc:
			// DW_AT_high_pc of class constant holds the offset from lowpc
			switch val := field.Val.(type) {
			case uint64:
				f.highpc = val
			case int64:
				highOff = val
			}
		case godwarf.AttrFrameBase:
			if val, ok := field.Val.([]byte); ok {
				f.frameBase = val
			}
		case godwarf.AttrDeclFile:
			if val, ok := field.Val.(int64); ok {
				f.declFile = val
			}
		case godwarf.AttrExternal:
			if val, ok := field.Val.(bool); ok {
				f.external = val
			}
		}
	}

	if highOff >= 0 {
		f.highpc = f.lowpc + uint64(highOff)
	}

	f.entry = curEntry
	return nil
}
