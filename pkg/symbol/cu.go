package symbol

import (
	"io"

	"github.com/hitzhangjie/gdwarf/pkg/dwarf/entry"
	"github.com/hitzhangjie/gdwarf/pkg/dwarf/godwarf"
	"github.com/hitzhangjie/gdwarf/pkg/dwarf/line"
)

// CompileUnit compilation unit
//
// see DWARFv4 3.1.1 normal and partial compilation unit entries
type CompileUnit struct {
	functions []*Function
	unit      *entry.Unit
	entry     *entry.Entry
	bi        *BinaryInfo
}

// Name returns the compile unit's primary source file.
func (c *CompileUnit) Name() string {
	name, _ := c.entry.Val(godwarf.AttrName).(string)
	return name
}

// Functions returns the subprograms declared in this unit.
func (c *CompileUnit) Functions() []*Function {
	return c.functions
}

// parseLineSection replays the unit's line program and merges its rows
// into the binary-wide source index.
//
// note: one compile unit may contain more than one source file.
func (c *CompileUnit) parseLineSection(prog []byte) error {
	sm, err := line.NewStateMachine(prog, line.Config{
		Order:   c.bi.secs.Order,
		Str:     c.bi.secs.Str,
		LineStr: c.bi.secs.LineStr,
	})
	if err != nil {
		return err
	}

	var row line.Row
	for {
		// scan next row
		err := sm.Next(&row)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if row.EndSequence {
			continue
		}

		file, err := sm.FileName(&row)
		if err != nil {
			return err
		}

		lines, ok := c.bi.Sources[file]
		if !ok {
			lines = make(map[int][]*line.Row)
			c.bi.Sources[file] = lines
		}

		dup := row
		lines[row.Line] = append(lines[row.Line], &dup)
	}

	return nil
}
