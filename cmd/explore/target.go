package explore

import (
	"debug/elf"
	"errors"
	"fmt"

	"github.com/hitzhangjie/gdwarf/pkg/dwarf/entry"
	"github.com/hitzhangjie/gdwarf/pkg/dwarf/frame"
	"github.com/hitzhangjie/gdwarf/pkg/dwarf/godwarf"
	"github.com/hitzhangjie/gdwarf/pkg/symbol"
)

// Target is the binary under exploration.
type Target struct {
	Path  string
	Bi    *symbol.BinaryInfo
	Dwarf *entry.Data

	file *elf.File
}

// CurrentTarget is the binary the session commands operate on.
var CurrentTarget *Target

// Load analyzes the binary and installs it as the current target.
func Load(path string) error {
	bi, err := symbol.Analyze(path)
	if err != nil {
		return err
	}
	file, err := elf.Open(path)
	if err != nil {
		return err
	}

	info, err := godwarf.GetDebugSection(file, "info")
	if err != nil {
		file.Close()
		return err
	}
	abbrev, err := godwarf.GetDebugSection(file, "abbrev")
	if err != nil {
		file.Close()
		return err
	}
	str, _ := godwarf.GetDebugSection(file, "str")
	lineStr, _ := godwarf.GetDebugSection(file, "line_str")
	strOffsets, _ := godwarf.GetDebugSection(file, "str_offsets")
	addr, _ := godwarf.GetDebugSection(file, "addr")

	dw := entry.New(entry.Config{
		Order:      frame.DwarfEndian(info),
		Info:       info,
		Abbrev:     abbrev,
		Str:        str,
		LineStr:    lineStr,
		StrOffsets: strOffsets,
		Addr:       addr,
	})

	CurrentTarget = &Target{Path: path, Bi: bi, Dwarf: dw, file: file}
	return nil
}

// Unload closes the current target.
func Unload() error {
	if CurrentTarget == nil {
		return nil
	}
	err := CurrentTarget.file.Close()
	CurrentTarget = nil
	return err
}

// ReadCode returns up to size bytes of machine code at the virtual
// address addr, read from the section containing it.
func (t *Target) ReadCode(addr, size uint64) ([]byte, error) {
	for _, sec := range t.file.Sections {
		if sec.Addr == 0 || addr < sec.Addr || addr >= sec.Addr+sec.Size {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			return nil, err
		}
		off := addr - sec.Addr
		end := off + size
		if end > uint64(len(data)) {
			end = uint64(len(data))
		}
		return data[off:end], nil
	}
	return nil, fmt.Errorf("address %#x not mapped by any section", addr)
}

func target() (*Target, error) {
	if CurrentTarget == nil {
		return nil, errors.New("no target loaded")
	}
	return CurrentTarget, nil
}
