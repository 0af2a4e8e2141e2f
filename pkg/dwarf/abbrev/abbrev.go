// Package abbrev decodes .debug_abbrev, the per-unit table of DIE
// templates referenced by small integer codes while walking .debug_info.
package abbrev

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/hitzhangjie/gdwarf/pkg/dwarf/godwarf"
	"github.com/hitzhangjie/gdwarf/pkg/dwarf/util"
)

// ErrInvalidAbbrev an abbreviation declaration violates the encoding:
// duplicate code, unknown form, or a table truncated before its code-0
// terminator.
var ErrInvalidAbbrev = errors.New("dwarf: invalid abbreviation")

// AttrSpec is one (attribute, form) pair of an abbreviation declaration.
type AttrSpec struct {
	Attr godwarf.Attr
	Form godwarf.Form

	// Val is the constant embedded in the abbreviation itself for
	// FormImplicitConst, unused for every other form.
	Val int64
}

// Abbrev is one abbreviation declaration: the DIE template referenced by
// Code. Immutable after Parse, shared by every DIE of the unit.
type Abbrev struct {
	Code     uint64
	Tag      godwarf.Tag
	Children bool
	Attrs    []AttrSpec
}

// Table maps abbreviation codes to declarations for one unit.
type Table map[uint64]*Abbrev

// Lookup returns the declaration for code, or an error for codes the
// table does not declare.
func (tbl Table) Lookup(code uint64) (*Abbrev, error) {
	abbrev, ok := tbl[code]
	if !ok {
		return nil, fmt.Errorf("unknown abbreviation code %d: %w", code, ErrInvalidAbbrev)
	}
	return abbrev, nil
}

// Parse decodes the abbreviation table starting at offset off of the
// .debug_abbrev section, up to and including its code-0 terminator.
func Parse(data []byte, order binary.ByteOrder, off uint64) (Table, error) {
	rd := util.NewReader(data, order, 0)
	if err := rd.Seek(off); err != nil {
		return nil, fmt.Errorf("abbrev offset %#x: %w", off, err)
	}

	table := Table{}
	for {
		code, err := rd.ReadULEB128()
		if err != nil {
			return nil, fmt.Errorf("abbrev table at %#x has no terminator: %w", off, err)
		}
		if code == 0 {
			return table, nil
		}
		if _, dup := table[code]; dup {
			return nil, fmt.Errorf("duplicate abbreviation code %d at %#x: %w", code, off, ErrInvalidAbbrev)
		}

		tag, err := rd.ReadULEB128()
		if err != nil {
			return nil, err
		}
		children, err := rd.ReadUint8()
		if err != nil {
			return nil, err
		}

		abbrev := &Abbrev{
			Code:     code,
			Tag:      godwarf.Tag(tag),
			Children: children != 0,
		}

		for {
			attr, err := rd.ReadULEB128()
			if err != nil {
				return nil, err
			}
			form, err := rd.ReadULEB128()
			if err != nil {
				return nil, err
			}
			if attr == 0 && form == 0 {
				break
			}

			spec := AttrSpec{Attr: godwarf.Attr(attr), Form: godwarf.Form(form)}
			if !spec.Form.Known() {
				return nil, fmt.Errorf("abbreviation code %d uses unknown form %#x: %w", code, form, ErrInvalidAbbrev)
			}
			if spec.Form == godwarf.FormImplicitConst {
				// value lives in the abbreviation, not in the DIE
				spec.Val, err = rd.ReadSLEB128()
				if err != nil {
					return nil, err
				}
			}
			abbrev.Attrs = append(abbrev.Attrs, spec)
		}

		table[code] = abbrev
	}
}

// Cache parses abbreviation tables on demand and remembers them per
// offset, so repeated units sharing one table decode it once. Safe for
// concurrent use.
type Cache struct {
	data  []byte
	order binary.ByteOrder

	mu     sync.Mutex
	tables map[uint64]Table
}

// NewCache returns a Cache over the raw .debug_abbrev section.
func NewCache(data []byte, order binary.ByteOrder) *Cache {
	return &Cache{data: data, order: order, tables: map[uint64]Table{}}
}

// TableAt returns the abbreviation table starting at off, decoding it on
// first use.
func (c *Cache) TableAt(off uint64) (Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tbl, ok := c.tables[off]; ok {
		return tbl, nil
	}
	tbl, err := Parse(c.data, c.order, off)
	if err != nil {
		return nil, err
	}
	c.tables[off] = tbl
	return tbl, nil
}
