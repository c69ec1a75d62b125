package mmu

import (
	"bytes"
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nachosim/machine"
	"github.com/sarchlab/nachosim/mem/vm"
	"github.com/sarchlab/nachosim/mem/vm/tlb"
	"github.com/sarchlab/nachosim/noff"
	"github.com/sarchlab/nachosim/sim"
)

const pageSize = 64

type testSpace struct {
	owner vm.Owner
	table vm.Translator
	exe   *noff.Executable
}

func (s *testSpace) Owner() vm.Owner { return s.owner }
func (s *testSpace) Translator() vm.Translator { return s.table }
func (s *testSpace) Executable() *noff.Executable { return s.exe }

type hookCounter struct {
	counts map[string]int
}

func newHookCounter() *hookCounter {
	return &hookCounter{counts: make(map[string]int)}
}

func (c *hookCounter) Func(ctx sim.HookCtx) {
	c.counts[ctx.Pos.Name]++
}

func sampleExecutable() (*noff.Executable, []byte) {
	code := make([]byte, 200)
	for i := range code {
		code[i] = byte(i + 1)
	}

	img := noff.Image{Code: code, Data: []byte{9, 8, 7, 6}, BSSSize: 60}

	exe, err := noff.Open(bytes.NewReader(img.Encode(binary.LittleEndian)))
	Expect(err).NotTo(HaveOccurred())

	return exe, code
}

func newMachine(numFrames int) *machine.Machine {
	stats := &machine.Stats{}
	m := machine.NewMachine(machine.Config{
		PageSize:     pageSize,
		NumPhysPages: numFrames,
		TLBSize:      2,
	}, machine.NewInterrupt(stats), stats)
	m.PageTableSize = 8

	for i := range m.MainMemory {
		m.MainMemory[i] = 0xff
	}

	return m
}

var _ = Describe("FaultHandler", func() {
	var (
		m       *machine.Machine
		tlbMgr  *tlb.Manager
		exe     *noff.Executable
		code    []byte
		handler *FaultHandler
	)

	Context("with flat page tables", func() {
		var space *testSpace

		BeforeEach(func() {
			m = newMachine(4)
			tlbMgr = tlb.NewManager(m.TLB, tlb.FIFO, m.Interrupt)
			exe, code = sampleExecutable()
			handler = MakeBuilder().
				WithMachine(m).
				WithTLB(tlbMgr).
				Build()
			space = &testSpace{owner: 1, table: vm.NewFlatTable(8), exe: exe}
		})

		It("should load code pages from the executable", func() {
			e := handler.Resolve(space, 1)

			Expect(m.Frame(e.PhysicalPage)).To(Equal(code[64:128]))
			Expect(e.ReadOnly).To(BeTrue())
			Expect(e.Dirty).To(BeFalse())
			Expect(e.Use).To(BeFalse())
			Expect(m.Stats.NumPageFaults).To(Equal(uint64(1)))
			Expect(m.Stats.NumExecReads).To(Equal(uint64(1)))
		})

		It("should zero-fill pages outside the file", func() {
			e := handler.Resolve(space, 6)

			Expect(m.Frame(e.PhysicalPage)).To(Equal(make([]byte, pageSize)))
			Expect(e.ReadOnly).To(BeFalse())
			Expect(m.Stats.NumExecReads).To(BeZero())
		})

		It("should zero the part of a page past the data segment", func() {
			e := handler.Resolve(space, 3)
			frame := m.Frame(e.PhysicalPage)

			Expect(frame[:8]).To(Equal(code[192:200]))
			Expect(frame[8:12]).To(Equal([]byte{9, 8, 7, 6}))
			Expect(frame[12:]).To(Equal(make([]byte, pageSize-12)))
			Expect(e.ReadOnly).To(BeFalse())
		})

		It("should resolve a mapped page to the same frame", func() {
			first := handler.Resolve(space, 2)
			second := handler.Resolve(space, 2)

			Expect(second.PhysicalPage).To(Equal(first.PhysicalPage))
			Expect(m.Stats.NumPageFaults).To(Equal(uint64(1)))
		})

		It("should refill the TLB on a miss", func() {
			counter := newHookCounter()
			handler.AcceptHook(counter)

			handler.HandleTLBMiss(space, 2*pageSize+5)

			phys, exception := m.Translate(2*pageSize+5, 1, false)
			Expect(exception).To(Equal(machine.NoException))
			Expect(m.MainMemory[phys]).To(Equal(code[2*pageSize+5]))
			Expect(m.Stats.NumTLBMisses).To(Equal(uint64(1)))
			Expect(counter.counts).To(HaveKeyWithValue("TLBMiss", 1))
			Expect(counter.counts).To(HaveKeyWithValue("PageFault", 1))
		})

		It("should treat running out of frames as fatal", func() {
			for vpn := uint64(0); vpn < 4; vpn++ {
				handler.Resolve(space, vpn)
			}

			Expect(func() { handler.Resolve(space, 4) }).To(Panic())
		})
	})

	Context("with an inverted page table", func() {
		var (
			inverted *vm.InvertedTable
			space    *testSpace
		)

		BeforeEach(func() {
			m = newMachine(4)
			tlbMgr = tlb.NewManager(m.TLB, tlb.FIFO, m.Interrupt)
			exe, code = sampleExecutable()
			inverted = vm.NewInvertedTable(4, 2)
			handler = MakeBuilder().
				WithMachine(m).
				WithTLB(tlbMgr).
				WithLayout(vm.InvertedLayout).
				WithInvertedTable(inverted).
				Build()
			space = &testSpace{owner: 1, table: inverted, exe: exe}
		})

		It("should keep pages of different owners apart", func() {
			other := &testSpace{owner: 2, table: inverted, exe: exe}

			mine := handler.Resolve(space, 0)
			theirs := handler.Resolve(other, 0)

			Expect(theirs.PhysicalPage).NotTo(Equal(mine.PhysicalPage))
			Expect(m.Frame(theirs.PhysicalPage)).To(Equal(code[:64]))
		})

		It("should evict a clean page without swapping it", func() {
			for vpn := uint64(0); vpn < 4; vpn++ {
				handler.Resolve(space, vpn)
			}
			m.Stats.TotalTicks = 6

			e := handler.Resolve(space, 4)

			Expect(e.PhysicalPage).To(Equal(2))
			Expect(m.Stats.NumEvictions).To(Equal(uint64(1)))
			Expect(m.Stats.NumSwapOuts).To(BeZero())
			_, found := inverted.Lookup(1, 2)
			Expect(found).To(BeFalse())
		})

		It("should restore a dirty page from swap", func() {
			counter := newHookCounter()
			handler.AcceptHook(counter)

			for _, vpn := range []uint64{0, 1, 2} {
				handler.HandleTLBMiss(space, vpn*pageSize)
			}
			handler.HandleTLBMiss(space, 5*pageSize)
			Expect(m.WriteMem(5*pageSize+3, 1, 0x7f)).To(BeTrue())
			dirtyFrame := make([]byte, pageSize)
			copy(dirtyFrame, m.Frame(3))

			m.Stats.TotalTicks = 3
			handler.HandleTLBMiss(space, 6*pageSize)

			Expect(handler.SwapStore().Contains(1, 5)).To(BeTrue())
			Expect(m.Stats.NumSwapOuts).To(Equal(uint64(1)))
			_, stillCached := m.Translate(5*pageSize, 1, false)
			Expect(stillCached).To(Equal(machine.PageFaultException))

			m.Stats.TotalTicks = 1
			handler.HandleTLBMiss(space, 5*pageSize)

			e, found := inverted.Lookup(1, 5)
			Expect(found).To(BeTrue())
			Expect(e.PhysicalPage).To(Equal(1))
			Expect(e.Dirty).To(BeTrue())
			Expect(m.Frame(1)).To(Equal(dirtyFrame))
			Expect(handler.SwapStore().Len()).To(BeZero())
			Expect(m.Stats.NumSwapIns).To(Equal(uint64(1)))
			Expect(counter.counts).To(HaveKeyWithValue("SwapOut", 1))
			Expect(counter.counts).To(HaveKeyWithValue("SwapIn", 1))
			Expect(counter.counts).To(HaveKeyWithValue("PageEvict", 2))
		})
	})
})
