// Package tlb manages the software-refilled TLB of the simulated machine.
//
// LRU stamps come from the simulated clock. The clock does not move while the
// kernel copies bytes out of user memory in a system call, so all the entries
// touched by one Write or Exec share a stamp, and among equal stamps the
// lowest slot is evicted first.
package tlb

import (
	"github.com/sarchlab/nachosim/mem/vm"
	"github.com/sarchlab/nachosim/mem/vm/tlb/internal"
	"github.com/sarchlab/nachosim/sim"
)

// HookPosRefill marks a new entry being written into a TLB slot.
var HookPosRefill = &sim.HookPos{Name: "TLBRefill", Flag: 'v'}

// HookPosEvict marks a valid entry being pushed out of the TLB.
var HookPosEvict = &sim.HookPos{Name: "TLBEvict", Flag: 'v'}

// A Manager owns the replacement decisions of a TLB. The slots themselves
// belong to the machine, which probes them on every memory access; the manager
// only fills and empties them.
type Manager struct {
	sim.HookableBase

	entries []vm.TranslationEntry
	policy  Policy
	finder  internal.VictimFinder
	clock   sim.TimeTeller
}

// NewManager creates a manager over the given slots. The slice is shared with
// the caller and must not be resized.
func NewManager(
	entries []vm.TranslationEntry,
	policy Policy,
	clock sim.TimeTeller,
) *Manager {
	if len(entries) == 0 {
		panic("a TLB needs at least one slot")
	}

	return &Manager{
		entries: entries,
		policy:  policy,
		finder:  policy.victimFinder(),
		clock:   clock,
	}
}

// Policy returns the replacement policy of the TLB.
func (m *Manager) Policy() Policy {
	return m.policy
}

// Size returns the number of slots.
func (m *Manager) Size() int {
	return len(m.entries)
}

// Entries returns a copy of the slots.
func (m *Manager) Entries() []vm.TranslationEntry {
	entries := make([]vm.TranslationEntry, len(m.entries))
	copy(entries, m.entries)

	return entries
}

// Refill writes the entry into a slot and returns the slot index. A free slot
// is used when there is one. Otherwise the policy selects a victim, which is
// written back to the translator before being overwritten.
func (m *Manager) Refill(entry vm.TranslationEntry, tr vm.Translator) int {
	slot := m.freeSlot()
	if slot < 0 {
		slot = m.finder.FindVictim(m.entries)
		victim := m.entries[slot]
		tr.WriteBack(victim)
		m.invokeHook(HookPosEvict, victim, slot)
	}

	entry.Valid = true
	entry.LastUse = m.clock.CurrentTime()
	m.entries[slot] = entry

	m.invokeHook(HookPosRefill, entry, slot)

	return slot
}

func (m *Manager) freeSlot() int {
	for i := range m.entries {
		if !m.entries[i].Valid {
			return i
		}
	}

	return -1
}

// Flush writes every valid slot back to the translator and empties the TLB.
func (m *Manager) Flush(tr vm.Translator) {
	for i := range m.entries {
		e := &m.entries[i]
		if !e.Valid {
			continue
		}

		tr.WriteBack(*e)
		e.Valid = false
	}
}

// InvalidateFrame drops the slot that maps the frame on behalf of owner. It
// returns the dropped entry so that the caller can merge its dirty state.
func (m *Manager) InvalidateFrame(owner vm.Owner, frame int) (
	vm.TranslationEntry,
	bool,
) {
	for i := range m.entries {
		e := &m.entries[i]
		if e.Valid && e.PhysicalPage == frame && e.Owner == owner {
			e.Valid = false
			return *e, true
		}
	}

	return vm.TranslationEntry{}, false
}

func (m *Manager) invokeHook(pos *sim.HookPos, e vm.TranslationEntry, slot int) {
	if m.NumHooks() == 0 {
		return
	}

	m.InvokeHook(sim.HookCtx{
		Domain: m,
		Now:    m.clock.CurrentTime(),
		Pos:    pos,
		Item:   e,
		Detail: slot,
	})
}
