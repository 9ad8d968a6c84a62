// Package cell implements the cell table: the per-channel runtime state that
// maps every sequence index to a (unit, section, offset) address and fuses
// neighboring cells sharing unit/section/intensity into LOR effect groups.
package cell

import (
	"log/slog"

	"github.com/olivier-w/lorplayer/internal/cmap"
)

// Cell is the per-sequence-index runtime record.
type Cell struct {
	Valid     bool
	Linked    bool
	Outdated  bool
	Unit      uint8
	Section   uint8
	Offset    uint8
	Intensity uint8
}

// Table is a fixed-length array of Cells sized to the sequence's channel
// count.
type Table struct {
	cells []Cell
}

// New builds a Table from a channel-range map. Unmapped indices keep a slot
// (to preserve 1-to-1 index addressing) but remain invalid.
func New(m *cmap.Map, size uint32, log *slog.Logger) *Table {
	if log == nil {
		log = slog.Default()
	}

	t := &Table{cells: make([]Cell, size)}

	var configured uint32
	for i := uint32(0); i < size; i++ {
		unit, circuit, ok := m.Lookup(i)
		if !ok {
			continue
		}
		t.cells[i] = Cell{
			Valid:     true,
			Unit:      unit,
			Section:   uint8((circuit - 1) / 16),
			Offset:    uint8((circuit - 1) % 16),
			Intensity: 0,
		}
		configured++
	}

	log.Info("cell table configured", "mapped", configured, "total", size)
	return t
}

// Size reports the number of cells.
func (t *Table) Size() int {
	return len(t.cells)
}

// Cell returns a copy of the cell at index i.
func (t *Table) Cell(i uint32) Cell {
	return t.cells[i]
}

// Set updates a single cell's intensity. The cell is marked outdated only
// when the new intensity differs from the stored value: grouping relies on
// stable intensity runs, so a mark-every-write policy would defeat linking.
func (t *Table) Set(index uint32, intensity uint8) {
	c := &t.cells[index]
	if c.Intensity == intensity {
		return
	}
	c.Intensity = intensity
	c.Outdated = true
}

func linkable(a, b *Cell) bool {
	return a.Valid && b.Valid && a.Unit == b.Unit && a.Section == b.Section && a.Intensity == b.Intensity
}

// LinkAll runs a single forward pass marking each cell Linked when it can be
// fused with its immediate successor.
func (t *Table) LinkAll() {
	n := len(t.cells)
	for i := 0; i < n; i++ {
		c := &t.cells[i]
		c.Linked = c.Valid && i < n-1 && linkable(c, &t.cells[i+1])
	}
}

// Group is an ephemeral result of iterating the table after a linking pass:
// a contiguous run of linked cells sharing unit/section/intensity.
type Group struct {
	Unit        uint8
	Section     uint8
	ChannelBits uint16
	Intensity   uint8
	Size        int
}

func (t *Table) findNext(from uint32) (uint32, bool) {
	for from < uint32(len(t.cells)) && !t.cells[from].Valid {
		from++
	}
	return from, from < uint32(len(t.cells))
}

// NextGroup advances cursor to the next valid cell and walks forward while
// the previous cell was linked, returning the accumulated group. ok is false
// once no more valid cells remain.
func (t *Table) NextGroup(cursor *uint32) (group Group, ok bool) {
	next, found := t.findNext(*cursor)
	if !found {
		*cursor = next
		return Group{}, false
	}
	*cursor = next

	for {
		c := &t.cells[*cursor]
		group.ChannelBits |= 1 << c.Offset
		if group.Size == 0 {
			group.Section = c.Section
			group.Unit = c.Unit
			group.Intensity = c.Intensity
		}
		group.Size++
		*cursor = *cursor + 1

		if *cursor >= uint32(len(t.cells)) || !t.cells[*cursor-1].Linked {
			break
		}
	}

	return group, true
}
