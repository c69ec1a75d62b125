// Package mmu resolves TLB misses: it finds the translation of the faulting
// page, bringing the page into memory if needed, and refills the TLB.
package mmu

import (
	"log"

	"github.com/sarchlab/nachosim/machine"
	"github.com/sarchlab/nachosim/mem/vm"
	"github.com/sarchlab/nachosim/mem/vm/tlb"
	"github.com/sarchlab/nachosim/noff"
	"github.com/sarchlab/nachosim/sim"
)

// Hook positions of the fault handler. The item is the translation entry
// involved.
var (
	HookPosTLBMiss   = &sim.HookPos{Name: "TLBMiss", Flag: 'v'}
	HookPosPageFault = &sim.HookPos{Name: "PageFault", Flag: 'v'}
	HookPosEvict     = &sim.HookPos{Name: "PageEvict", Flag: 'v'}
	HookPosSwapOut   = &sim.HookPos{Name: "SwapOut", Flag: 'v'}
	HookPosSwapIn    = &sim.HookPos{Name: "SwapIn", Flag: 'v'}
)

// A Space is the address space a fault is resolved for.
type Space interface {
	Owner() vm.Owner
	Translator() vm.Translator

	// Executable returns the file backing the code and data pages. It may be
	// nil for spaces without a file.
	Executable() *noff.Executable
}

// A FaultHandler serves TLB misses and page faults.
type FaultHandler struct {
	sim.HookableBase

	machine  *machine.Machine
	tlb      *tlb.Manager
	layout   vm.Layout
	inverted *vm.InvertedTable
	swap     *vm.SwapStore
}

// SwapStore returns where evicted dirty pages are kept.
func (h *FaultHandler) SwapStore() *vm.SwapStore {
	return h.swap
}

// TLB returns the TLB manager.
func (h *FaultHandler) TLB() *tlb.Manager {
	return h.tlb
}

// HandleTLBMiss resolves the page of vaddr and writes its translation into
// the TLB.
func (h *FaultHandler) HandleTLBMiss(space Space, vaddr uint64) {
	h.machine.Stats.NumTLBMisses++

	vpn := vaddr / uint64(h.machine.PageSize())
	h.invokeHook(HookPosTLBMiss, vm.TranslationEntry{
		VirtualPage:  vpn,
		PhysicalPage: -1,
		Owner:        space.Owner(),
	})

	entry := h.Resolve(space, vpn)
	h.tlb.Refill(entry, space.Translator())
}

// Resolve returns the translation of a virtual page, paging it in if it is
// not in memory.
func (h *FaultHandler) Resolve(space Space, vpn uint64) vm.TranslationEntry {
	if e, found := space.Translator().Lookup(space.Owner(), vpn); found {
		return e
	}

	return h.pageIn(space, vpn)
}

func (h *FaultHandler) pageIn(space Space, vpn uint64) vm.TranslationEntry {
	h.machine.Stats.NumPageFaults++

	owner := space.Owner()
	pageSize := h.machine.PageSize()

	frame, ok := h.machine.MemUsage.Find()
	if !ok {
		if h.layout != vm.InvertedLayout {
			log.Panicf("out of physical frames paging in page %d of %d",
				vpn, owner)
		}

		frame = h.evict(owner)
	}

	buf := h.machine.Frame(frame)
	clear(buf)

	entry := vm.TranslationEntry{
		VirtualPage:  vpn,
		PhysicalPage: frame,
		Valid:        true,
		Owner:        owner,
	}

	if saved, found := h.swap.Take(owner, vpn); found {
		copy(buf, saved.Content)
		entry.SetFlags(saved.Flags)
		h.machine.Stats.NumSwapIns++
		h.invokeHook(HookPosSwapIn, entry)
	} else if exe := space.Executable(); exe != nil {
		pageAddr := vpn * uint64(pageSize)

		n, err := exe.LoadPage(buf, pageAddr)
		if err != nil {
			log.Panic(err)
		}

		if n > 0 {
			h.machine.Stats.NumExecReads++
		}

		entry.ReadOnly = exe.ReadOnlyPage(pageAddr, pageSize)
	}

	space.Translator().Install(entry)
	h.invokeHook(HookPosPageFault, entry)

	return entry
}

// evict frees a frame of the inverted table. The victim depends on the
// clock only.
func (h *FaultHandler) evict(faulting vm.Owner) int {
	numFrames := uint64(h.inverted.NumFrames())
	victim := int(uint64(h.machine.Interrupt.CurrentTime()) % numFrames)

	old := h.inverted.Entry(victim)
	if !old.Valid {
		log.Panicf("frame %d is in use but not mapped", victim)
	}

	if cached, found := h.tlb.InvalidateFrame(faulting, victim); found &&
		cached.VirtualPage == old.VirtualPage {
		old.Dirty = old.Dirty || cached.Dirty
		old.Use = old.Use || cached.Use
	}

	h.machine.Stats.NumEvictions++
	h.invokeHook(HookPosEvict, old)

	if old.Dirty {
		content := make([]byte, h.machine.PageSize())
		copy(content, h.machine.Frame(victim))

		h.swap.Put(&vm.SwapEntry{
			Owner:   old.Owner,
			VPN:     old.VirtualPage,
			Flags:   old.Flags(),
			Content: content,
		})

		h.machine.Stats.NumSwapOuts++
		h.invokeHook(HookPosSwapOut, old)
	}

	h.inverted.Evict(victim)

	return victim
}

func (h *FaultHandler) invokeHook(pos *sim.HookPos, e vm.TranslationEntry) {
	if h.NumHooks() == 0 {
		return
	}

	h.InvokeHook(sim.HookCtx{
		Domain: h,
		Now:    h.machine.Interrupt.CurrentTime(),
		Pos:    pos,
		Item:   e,
	})
}
