package tlb

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/nachosim/mem/vm"
	"github.com/sarchlab/nachosim/sim"
)

type fakeClock struct {
	now sim.Tick
}

func (c *fakeClock) CurrentTime() sim.Tick {
	return c.now
}

type recordingHook struct {
	positions []*sim.HookPos
}

func (h *recordingHook) Func(ctx sim.HookCtx) {
	h.positions = append(h.positions, ctx.Pos)
}

func page(vpn uint64) vm.TranslationEntry {
	return vm.TranslationEntry{
		VirtualPage:  vpn,
		PhysicalPage: int(vpn) + 100,
		Owner:        1,
	}
}

var _ = Describe("Manager", func() {
	var (
		mockCtrl   *gomock.Controller
		translator *MockTranslator
		clock      *fakeClock
		entries    []vm.TranslationEntry
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		translator = NewMockTranslator(mockCtrl)
		clock = &fakeClock{}
		entries = make([]vm.TranslationEntry, 4)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Context("with FIFO replacement", func() {
		var m *Manager

		BeforeEach(func() {
			m = NewManager(entries, FIFO, clock)
		})

		It("should fill free slots first", func() {
			for vpn := uint64(0); vpn < 4; vpn++ {
				Expect(m.Refill(page(vpn), translator)).To(Equal(int(vpn)))
			}

			Expect(entries[2].Valid).To(BeTrue())
			Expect(entries[2].VirtualPage).To(Equal(uint64(2)))
		})

		It("should reuse a slot freed in the middle", func() {
			for vpn := uint64(0); vpn < 4; vpn++ {
				m.Refill(page(vpn), translator)
			}
			entries[1].Valid = false

			Expect(m.Refill(page(9), translator)).To(Equal(1))
		})

		It("should evict in rotation and write victims back", func() {
			for vpn := uint64(0); vpn < 4; vpn++ {
				m.Refill(page(vpn), translator)
			}

			gomock.InOrder(
				translator.EXPECT().WriteBack(gomock.Any()).
					Do(func(e vm.TranslationEntry) {
						Expect(e.VirtualPage).To(Equal(uint64(0)))
					}),
				translator.EXPECT().WriteBack(gomock.Any()).
					Do(func(e vm.TranslationEntry) {
						Expect(e.VirtualPage).To(Equal(uint64(1)))
					}),
			)

			Expect(m.Refill(page(4), translator)).To(Equal(0))
			Expect(m.Refill(page(5), translator)).To(Equal(1))
		})

		It("should pass the dirty state of the victim to the translator", func() {
			for vpn := uint64(0); vpn < 4; vpn++ {
				m.Refill(page(vpn), translator)
			}
			entries[0].Dirty = true
			entries[0].Use = true

			translator.EXPECT().WriteBack(vm.TranslationEntry{
				VirtualPage:  0,
				PhysicalPage: 100,
				Owner:        1,
				Valid:        true,
				Dirty:        true,
				Use:          true,
			})

			m.Refill(page(4), translator)
		})

		It("should invoke hooks on refill and eviction", func() {
			hook := &recordingHook{}
			m.AcceptHook(hook)

			for vpn := uint64(0); vpn < 5; vpn++ {
				translator.EXPECT().WriteBack(gomock.Any()).AnyTimes()
				m.Refill(page(vpn), translator)
			}

			Expect(hook.positions).To(Equal([]*sim.HookPos{
				HookPosRefill, HookPosRefill, HookPosRefill, HookPosRefill,
				HookPosEvict, HookPosRefill,
			}))
		})
	})

	Context("with LRU replacement", func() {
		var m *Manager

		access := func(vpn uint64) (evicted []uint64) {
			clock.now++

			for i := range entries {
				if entries[i].Valid && entries[i].VirtualPage == vpn {
					entries[i].LastUse = clock.now
					return nil
				}
			}

			full := true
			for i := range entries {
				if !entries[i].Valid {
					full = false
				}
			}

			if full {
				translator.EXPECT().WriteBack(gomock.Any()).
					Do(func(e vm.TranslationEntry) {
						evicted = append(evicted, e.VirtualPage)
					})
			}

			m.Refill(page(vpn), translator)

			return evicted
		}

		BeforeEach(func() {
			m = NewManager(entries, LRU, clock)
		})

		It("should stamp refilled entries with the current tick", func() {
			clock.now = 17

			slot := m.Refill(page(3), translator)

			Expect(entries[slot].LastUse).To(Equal(sim.Tick(17)))
		})

		It("should evict the least recently used entry", func() {
			for vpn := uint64(0); vpn < 4; vpn++ {
				access(vpn)
			}
			access(0)

			Expect(access(4)).To(Equal([]uint64{1}))
		})

		It("should evict the lowest slot among entries stamped in the same tick", func() {
			clock.now = 5
			for vpn := uint64(0); vpn < 4; vpn++ {
				m.Refill(page(vpn), translator)
			}

			var evicted vm.TranslationEntry
			translator.EXPECT().WriteBack(gomock.Any()).
				Do(func(e vm.TranslationEntry) { evicted = e })

			slot := m.Refill(page(4), translator)

			Expect(slot).To(Equal(0))
			Expect(evicted.VirtualPage).To(Equal(uint64(0)))
		})

		It("should never evict a page that is touched between misses", func() {
			var evictionOrder []uint64

			access(0)
			for vpn := uint64(1); vpn <= 12; vpn++ {
				evictionOrder = append(evictionOrder, access(vpn)...)
				access(0)
			}

			Expect(evictionOrder).NotTo(ContainElement(uint64(0)))
			Expect(evictionOrder).To(Equal([]uint64{1, 2, 3, 4, 5, 6, 7, 8, 9}))
		})
	})

	It("should flush valid entries back to the translator", func() {
		m := NewManager(entries, FIFO, clock)
		m.Refill(page(0), translator)
		m.Refill(page(1), translator)

		translator.EXPECT().WriteBack(gomock.Any()).Times(2)

		m.Flush(translator)

		for _, e := range m.Entries() {
			Expect(e.Valid).To(BeFalse())
		}
	})

	It("should invalidate the slot of a frame for its owner only", func() {
		m := NewManager(entries, FIFO, clock)
		m.Refill(page(2), translator)

		_, found := m.InvalidateFrame(2, 102)
		Expect(found).To(BeFalse())

		e, found := m.InvalidateFrame(1, 102)
		Expect(found).To(BeTrue())
		Expect(e.VirtualPage).To(Equal(uint64(2)))
		Expect(entries[0].Valid).To(BeFalse())
	})

	It("should parse policies", func() {
		p, err := ParsePolicy("LRU")
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(Equal(LRU))
		Expect(p.String()).To(Equal("lru"))

		_, err = ParsePolicy("clock")
		Expect(err).To(HaveOccurred())
	})
})
