// Package vm holds the translation structures of the simulated MMU: the
// translation entries, the flat and inverted page tables, the swap store and
// the free-frame map.
package vm

import (
	"fmt"

	"github.com/sarchlab/nachosim/sim"
)

// Owner identifies the thread whose address space a page belongs to. Threads
// forked inside one process share the owner of the thread that loaded it.
type Owner int

// NoOwner marks an entry that does not belong to any thread.
const NoOwner Owner = -1

// PageFlags packs the status bits of a page.
type PageFlags uint8

// The bits of PageFlags.
const (
	FlagReadOnly PageFlags = 1 << iota
	FlagUse
	FlagDirty
)

// A TranslationEntry maps one virtual page to one physical frame.
type TranslationEntry struct {
	VirtualPage  uint64
	PhysicalPage int
	Valid        bool
	ReadOnly     bool
	Use          bool
	Dirty        bool
	LastUse      sim.Tick

	// Owner is only meaningful in the inverted page table, where frames of
	// several threads live side by side.
	Owner Owner
}

// Flags returns the status bits of the entry.
func (e TranslationEntry) Flags() PageFlags {
	var f PageFlags

	if e.ReadOnly {
		f |= FlagReadOnly
	}

	if e.Use {
		f |= FlagUse
	}

	if e.Dirty {
		f |= FlagDirty
	}

	return f
}

// SetFlags overwrites the status bits of the entry.
func (e *TranslationEntry) SetFlags(f PageFlags) {
	e.ReadOnly = f&FlagReadOnly != 0
	e.Use = f&FlagUse != 0
	e.Dirty = f&FlagDirty != 0
}

func (e TranslationEntry) String() string {
	return fmt.Sprintf("vpn %d -> frame %d (owner %d, valid %t, dirty %t)",
		e.VirtualPage, e.PhysicalPage, e.Owner, e.Valid, e.Dirty)
}

// A Translator is the authoritative store of the mappings. The TLB only holds
// copies of its entries.
type Translator interface {
	// Lookup returns the valid mapping of the virtual page owned by owner.
	Lookup(owner Owner, vpn uint64) (TranslationEntry, bool)

	// Install records the mapping of a freshly loaded page.
	Install(entry TranslationEntry)

	// WriteBack stores the use and dirty state of an entry leaving the TLB.
	WriteBack(entry TranslationEntry)
}
