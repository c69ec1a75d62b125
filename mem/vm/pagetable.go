package vm

import "log"

// A FlatTable is the per-address-space page table. It holds one entry per
// virtual page and is never resized after creation.
type FlatTable struct {
	entries []TranslationEntry
}

// NewFlatTable creates a table of numPages invalid entries.
func NewFlatTable(numPages int) *FlatTable {
	t := &FlatTable{
		entries: make([]TranslationEntry, numPages),
	}

	for i := range t.entries {
		t.entries[i] = TranslationEntry{
			VirtualPage:  uint64(i),
			PhysicalPage: -1,
			Owner:        NoOwner,
		}
	}

	return t
}

// NumPages returns the number of virtual pages the table covers.
func (t *FlatTable) NumPages() int {
	return len(t.entries)
}

// Entry returns the entry of a virtual page, valid or not.
func (t *FlatTable) Entry(vpn uint64) TranslationEntry {
	t.pageMustBeInRange(vpn)

	return t.entries[vpn]
}

// Lookup returns the entry of the virtual page if it is mapped. A flat table
// belongs to a single address space, so the owner is not consulted.
func (t *FlatTable) Lookup(_ Owner, vpn uint64) (TranslationEntry, bool) {
	if vpn >= uint64(len(t.entries)) {
		return TranslationEntry{}, false
	}

	e := t.entries[vpn]
	if !e.Valid {
		return TranslationEntry{}, false
	}

	return e, true
}

// Install puts a mapping into the slot of its virtual page.
func (t *FlatTable) Install(entry TranslationEntry) {
	t.pageMustBeInRange(entry.VirtualPage)

	entry.Valid = true
	t.entries[entry.VirtualPage] = entry
}

// WriteBack copies the state of a cached entry back into the table. Entries
// that no longer match the table, for example after the space released its
// frames, are dropped.
func (t *FlatTable) WriteBack(entry TranslationEntry) {
	if entry.VirtualPage >= uint64(len(t.entries)) {
		return
	}

	current := &t.entries[entry.VirtualPage]
	if !current.Valid || current.PhysicalPage != entry.PhysicalPage {
		return
	}

	*current = entry
	current.Valid = true
}

// Release returns all the frames mapped by the table to the frame map and
// invalidates the entries. It returns the number of frames released.
func (t *FlatTable) Release(frames *FrameMap) int {
	released := 0

	for i := range t.entries {
		e := &t.entries[i]
		if !e.Valid {
			continue
		}

		frames.Clear(e.PhysicalPage)
		e.Valid = false
		e.PhysicalPage = -1
		released++
	}

	return released
}

func (t *FlatTable) pageMustBeInRange(vpn uint64) {
	if vpn >= uint64(len(t.entries)) {
		log.Panicf("virtual page %d is out of the %d-page table",
			vpn, len(t.entries))
	}
}
