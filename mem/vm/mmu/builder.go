package mmu

import (
	"github.com/sarchlab/nachosim/machine"
	"github.com/sarchlab/nachosim/mem/vm"
	"github.com/sarchlab/nachosim/mem/vm/tlb"
)

// A Builder can build fault handlers.
type Builder struct {
	machine  *machine.Machine
	tlb      *tlb.Manager
	layout   vm.Layout
	inverted *vm.InvertedTable
	swap     *vm.SwapStore
}

// MakeBuilder creates a new builder for the flat layout.
func MakeBuilder() Builder {
	return Builder{
		layout: vm.FlatLayout,
	}
}

// WithMachine sets the machine whose memory the handler fills.
func (b Builder) WithMachine(m *machine.Machine) Builder {
	b.machine = m
	return b
}

// WithTLB sets the TLB manager that receives resolved translations.
func (b Builder) WithTLB(t *tlb.Manager) Builder {
	b.tlb = t
	return b
}

// WithLayout sets the page table layout of the machine.
func (b Builder) WithLayout(l vm.Layout) Builder {
	b.layout = l
	return b
}

// WithInvertedTable sets the machine-wide inverted table. It is required by
// the inverted layout, which evicts pages from it.
func (b Builder) WithInvertedTable(t *vm.InvertedTable) Builder {
	b.inverted = t
	return b
}

// WithSwapStore sets where evicted dirty pages are kept.
func (b Builder) WithSwapStore(s *vm.SwapStore) Builder {
	b.swap = s
	return b
}

// Build creates the fault handler.
func (b Builder) Build() *FaultHandler {
	if b.machine == nil || b.tlb == nil {
		panic("a fault handler needs a machine and a TLB")
	}

	if b.layout == vm.InvertedLayout && b.inverted == nil {
		panic("the inverted layout needs an inverted table")
	}

	if b.swap == nil {
		b.swap = vm.NewSwapStore()
	}

	return &FaultHandler{
		machine:  b.machine,
		tlb:      b.tlb,
		layout:   b.layout,
		inverted: b.inverted,
		swap:     b.swap,
	}
}
