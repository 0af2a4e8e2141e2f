package entry

import (
	"fmt"

	"github.com/hitzhangjie/gdwarf/pkg/dwarf/godwarf"
	"github.com/hitzhangjie/gdwarf/pkg/dwarf/util"
)

// Field is one decoded attribute of a DIE.
type Field struct {
	Attr  godwarf.Attr
	Val   interface{}
	Class godwarf.Class
}

// Entry is one debugging information entry. A null entry (Tag 0) closes
// the children of the preceding entry at the same nesting level.
type Entry struct {
	Offset   uint64 // section offset of the entry's abbreviation code
	Tag      godwarf.Tag
	Children bool
	Field    []Field
}

// Val returns the value of the named attribute, or nil if the entry does
// not carry it.
func (e *Entry) Val(a godwarf.Attr) interface{} {
	for i := range e.Field {
		if e.Field[i].Attr == a {
			return e.Field[i].Val
		}
	}
	return nil
}

// IsNull reports whether e is an end-of-children terminator.
func (e *Entry) IsNull() bool { return e.Tag == 0 && e.Field == nil }

// Cursor walks a unit's entry stream lazily, one entry per Next call.
// Entries are decoded on demand, nothing is materialized ahead of the
// cursor position.
type Cursor struct {
	u  *Unit
	rd *util.Reader

	depth int

	// state about the most recently returned entry, for SkipChildren
	last        *Entry
	lastSibling uint64 // section offset from DW_AT_sibling, 0 if absent
}

// Depth returns the nesting depth of the next entry: 0 for the unit's
// root DIE, one more for each open children block.
func (c *Cursor) Depth() int { return c.depth }

// Next decodes and returns the next entry in prefix order, including null
// end-of-children terminators. It returns nil, nil at the end of the unit.
func (c *Cursor) Next() (*Entry, error) {
	if c.rd.Off() >= c.u.Header.EndOffset() {
		c.last = nil
		return nil, nil
	}

	off := c.rd.Off()
	code, err := c.rd.ReadULEB128()
	if err != nil {
		return nil, fmt.Errorf("entry at %#x: %w", off, err)
	}

	if code == 0 {
		// end of siblings, pop one level
		if c.depth > 0 {
			c.depth--
		}
		c.last = &Entry{Offset: off}
		c.lastSibling = 0
		return c.last, nil
	}

	ab, err := c.u.abbrevs.Lookup(code)
	if err != nil {
		return nil, fmt.Errorf("entry at %#x: %w", off, err)
	}

	e := &Entry{
		Offset:   off,
		Tag:      ab.Tag,
		Children: ab.Children,
		Field:    make([]Field, 0, len(ab.Attrs)),
	}

	c.lastSibling = 0
	for _, spec := range ab.Attrs {
		f, err := c.u.decodeField(c.rd, spec)
		if err != nil {
			return nil, fmt.Errorf("entry at %#x, attribute %s: %w", off, spec.Attr, err)
		}
		e.Field = append(e.Field, f)
		if f.Attr == godwarf.AttrSibling && f.Class == godwarf.ClassReference {
			c.lastSibling, _ = f.Val.(uint64)
		}
	}

	if off == c.u.Header.FirstEntryOffset() {
		c.u.noteRootBases(e)
	}

	if e.Children {
		c.depth++
	}
	c.last = e
	return e, nil
}

// SkipChildren positions the cursor past the children of the most
// recently returned entry. It uses DW_AT_sibling when the producer
// emitted one and falls back to depth bookkeeping otherwise, the
// attribute is optional and a conformant consumer cannot rely on it.
func (c *Cursor) SkipChildren() error {
	if c.last == nil || !c.last.Children {
		return nil
	}
	target := c.depth - 1

	if sib := c.lastSibling; sib != 0 {
		if sib < c.rd.Off() || sib > c.u.Header.EndOffset() {
			return fmt.Errorf("sibling pointer %#x escapes unit [%#x, %#x): %w",
				sib, c.u.Header.Offset, c.u.Header.EndOffset(), ErrMalformedTree)
		}
		if err := c.rd.Seek(sib); err != nil {
			return err
		}
		c.depth = target
		c.last = nil
		c.lastSibling = 0
		return nil
	}

	for c.depth > target {
		e, err := c.Next()
		if err != nil {
			return err
		}
		if e == nil {
			return fmt.Errorf("unit ended with %d children levels open: %w",
				c.depth-target, ErrMalformedTree)
		}
		// null entries pop a level, entries with children push one,
		// everything else keeps the depth
	}
	return nil
}

// Seek positions the cursor at the entry starting at the given section
// offset. The caller is responsible for pointing it at an entry boundary,
// nesting depth is reset relative to that entry.
func (c *Cursor) Seek(off uint64) error {
	if off < c.u.Header.FirstEntryOffset() || off >= c.u.Header.EndOffset() {
		return fmt.Errorf("offset %#x outside unit [%#x, %#x): %w",
			off, c.u.Header.Offset, c.u.Header.EndOffset(), ErrMalformedTree)
	}
	if err := c.rd.Seek(off); err != nil {
		return err
	}
	c.depth = 0
	c.last = nil
	c.lastSibling = 0
	return nil
}

// noteRootBases captures the str_offsets/addr bases from the unit's root
// DIE, the index forms of every other DIE depend on them.
func (u *Unit) noteRootBases(root *Entry) {
	if v, ok := root.Val(godwarf.AttrStrOffsetsBase).(int64); ok {
		u.strOffBase = uint64(v)
	}
	if v, ok := root.Val(godwarf.AttrAddrBase).(int64); ok {
		u.addrBase = uint64(v)
	}
}
