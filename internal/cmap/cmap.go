// Package cmap parses and queries the channel-range map: the JSON lookup
// table translating a sequence's zero-based channel index into a physical
// LOR (unit, circuit) address.
package cmap

import (
	"encoding/json"
	"fmt"

	"github.com/olivier-w/lorplayer/internal/errs"
)

// Range is an inclusive [From, To] bound.
type Range struct {
	From uint32 `json:"from"`
	To   uint32 `json:"to"`
}

func (r Range) contains(id uint32) bool {
	return id >= r.From && id <= r.To
}

func (r Range) span() uint32 {
	return r.To - r.From
}

// Entry is one parsed channel-range map row.
type Entry struct {
	Index   Range `json:"index"`
	Circuit Range `json:"circuit"`
	Unit    uint8 `json:"unit"`
}

// Map is an ordered, immutable list of Entry. Order matters: lookup returns
// the first matching entry, so overlapping ranges resolve by declaration
// order, not specificity.
type Map struct {
	entries []Entry
}

// Parse decodes a JSON array of channel-range entries. It fails with
// errs.InvalidFormat if the root is not an array, any element is missing a
// required numeric field, or an entry's index span doesn't match its
// circuit span.
func Parse(data []byte) (*Map, error) {
	var raw []struct {
		Index, Circuit *struct{ From, To *uint32 }
		Unit           *uint8
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errs.Wrap(errs.InvalidFormat, "cmap.Parse", err)
	}

	entries := make([]Entry, len(raw))
	for i, r := range raw {
		if r.Index == nil || r.Circuit == nil || r.Unit == nil || r.Index.From == nil || r.Index.To == nil || r.Circuit.From == nil || r.Circuit.To == nil {
			return nil, errs.Wrap(errs.InvalidFormat, "cmap.Parse", fmt.Errorf("entry %d: missing required field", i))
		}
		e := Entry{Index: Range{From: *r.Index.From, To: *r.Index.To}, Circuit: Range{From: *r.Circuit.From, To: *r.Circuit.To}, Unit: *r.Unit}
		if e.Index.span() != e.Circuit.span() {
			return nil, errs.Wrap(errs.InvalidFormat, "cmap.Parse",
				fmt.Errorf("entry %d: index span %d != circuit span %d", i, e.Index.span(), e.Circuit.span()))
		}
		entries[i] = e
	}

	return &Map{entries: entries}, nil
}

// Lookup walks entries in declared order and returns the (unit, circuit)
// pair of the first entry whose index range contains id. ok is false if no
// entry matches.
func (m *Map) Lookup(id uint32) (unit uint8, circuit uint16, ok bool) {
	for _, e := range m.entries {
		if e.Index.contains(id) {
			return e.Unit, uint16(e.Circuit.From + (id - e.Index.From)), true
		}
	}
	return 0, 0, false
}

// Len reports the number of parsed entries.
func (m *Map) Len() int {
	return len(m.entries)
}
