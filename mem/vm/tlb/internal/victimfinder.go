// Package internal provides the victim finders used by the TLB manager.
package internal

import "github.com/sarchlab/nachosim/mem/vm"

// A VictimFinder decides which slot of a full TLB is replaced.
type VictimFinder interface {
	FindVictim(entries []vm.TranslationEntry) int
}

// FIFOVictimFinder replaces slots in rotation.
type FIFOVictimFinder struct {
	cursor int
}

// NewFIFOVictimFinder returns a FIFO victim finder whose cursor starts at
// slot 0.
func NewFIFOVictimFinder() *FIFOVictimFinder {
	return &FIFOVictimFinder{}
}

// FindVictim returns the slot under the cursor and advances the cursor.
func (f *FIFOVictimFinder) FindVictim(entries []vm.TranslationEntry) int {
	slot := f.cursor % len(entries)
	f.cursor = (slot + 1) % len(entries)

	return slot
}

// Cursor returns the slot that will be replaced next.
func (f *FIFOVictimFinder) Cursor() int {
	return f.cursor
}

// LRUVictimFinder replaces the least recently used slot.
type LRUVictimFinder struct {
}

// NewLRUVictimFinder returns a newly constructed LRU victim finder.
func NewLRUVictimFinder() *LRUVictimFinder {
	return &LRUVictimFinder{}
}

// FindVictim returns the slot with the oldest use stamp. Ties go to the lowest
// slot.
func (f *LRUVictimFinder) FindVictim(entries []vm.TranslationEntry) int {
	victim := 0

	for i := 1; i < len(entries); i++ {
		if entries[i].LastUse < entries[victim].LastUse {
			victim = i
		}
	}

	return victim
}
