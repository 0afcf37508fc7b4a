// Package sal tracks realized work (SAL entries) against contracted lines.
package sal

import "procurecore/pkg/domain"

// Ledger is an append-only arena of SAL entries. Entries are addressed by
// their offset; byLine and byID index into the arena so lookups never hold
// copies that could drift from the stored record.
type Ledger struct {
	entries []domain.SALEntry
	byLine  map[string][]int
	byID    map[string]int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{byLine: map[string][]int{}, byID: map[string]int{}}
}

// Rebuild indexes previously persisted entries in their stored order.
func Rebuild(entries []domain.SALEntry) (*Ledger, error) {
	l := NewLedger()
	for _, e := range entries {
		if err := l.Append(e); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Append stores entry at the end of the arena.
func (l *Ledger) Append(entry domain.SALEntry) error {
	if entry.ID == "" {
		return domain.DataIntegrityError{Entity: domain.EntitySALEntry, Detail: "entry without id"}
	}
	if _, dup := l.byID[entry.ID]; dup {
		return domain.DataIntegrityError{Entity: domain.EntitySALEntry, ID: entry.ID, Detail: "duplicate entry id"}
	}
	if entry.ContractLineID == "" {
		return domain.DataIntegrityError{Entity: domain.EntitySALEntry, ID: entry.ID, Detail: "entry without contract line"}
	}
	offset := len(l.entries)
	l.entries = append(l.entries, entry)
	l.byLine[entry.ContractLineID] = append(l.byLine[entry.ContractLineID], offset)
	l.byID[entry.ID] = offset
	return nil
}

// Entry returns the entry with the given id.
func (l *Ledger) Entry(id string) (domain.SALEntry, bool) {
	offset, ok := l.byID[id]
	if !ok {
		return domain.SALEntry{}, false
	}
	return l.entries[offset], true
}

// ForLine returns a line's entries in append order.
func (l *Ledger) ForLine(lineID string) []domain.SALEntry {
	offsets := l.byLine[lineID]
	out := make([]domain.SALEntry, len(offsets))
	for i, offset := range offsets {
		out[i] = l.entries[offset]
	}
	return out
}

// All returns every entry in append order.
func (l *Ledger) All() []domain.SALEntry {
	return append([]domain.SALEntry(nil), l.entries...)
}

// Len reports the number of stored entries.
func (l *Ledger) Len() int { return len(l.entries) }

// Clone returns an independent copy for transactional work.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		entries: append([]domain.SALEntry(nil), l.entries...),
		byLine:  make(map[string][]int, len(l.byLine)),
		byID:    make(map[string]int, len(l.byID)),
	}
	for k, v := range l.byLine {
		c.byLine[k] = append([]int(nil), v...)
	}
	for k, v := range l.byID {
		c.byID[k] = v
	}
	return c
}
