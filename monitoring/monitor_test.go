package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/nachosim/kernel"
	"github.com/sarchlab/nachosim/machine"
	"github.com/sarchlab/nachosim/mem/vm"
	"github.com/sarchlab/nachosim/sim"
	"github.com/sarchlab/nachosim/thread"
	"github.com/sarchlab/nachosim/tracing"
)

type sampleComponent struct {
	Name  string
	Count int
}

var _ = Describe("Monitor", func() {
	var (
		mockCtrl  *gomock.Controller
		inspector *MockInspector
		m         *Monitor
		router    http.Handler
	)

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		return rec
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		inspector = NewMockInspector(mockCtrl)

		m = NewMonitor()
		m.RegisterInspector(inspector)
		router = m.Router()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should pause and continue", func() {
		inspector.EXPECT().Pause()
		Expect(get("/api/pause").Code).To(Equal(http.StatusOK))

		inspector.EXPECT().Continue()
		Expect(get("/api/continue").Code).To(Equal(http.StatusOK))
	})

	It("should report the current time", func() {
		inspector.EXPECT().CurrentTime().Return(sim.Tick(1234))

		rec := get("/api/now")

		Expect(rec.Body.String()).To(MatchJSON(`{"now":1234}`))
	})

	It("should report the statistics", func() {
		inspector.EXPECT().Stats().Return(machine.Stats{
			TotalTicks:    100,
			NumPageFaults: 3,
		})

		rec := get("/api/stats")

		var stats machine.Stats
		Expect(json.Unmarshal(rec.Body.Bytes(), &stats)).To(Succeed())
		Expect(stats.TotalTicks).To(Equal(sim.Tick(100)))
		Expect(stats.NumPageFaults).To(Equal(uint64(3)))
	})

	It("should list threads", func() {
		inspector.EXPECT().Threads().Return([]ThreadInfo{
			{ID: 0, Name: "main", Priority: 0, Status: "Running"},
		})

		rec := get("/api/threads")

		Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))
		Expect(rec.Body.String()).To(MatchJSON(
			`[{"id":0,"name":"main","priority":0,"status":"Running"}]`))
	})

	It("should send an empty list when there are no spaces", func() {
		inspector.EXPECT().Spaces().Return(nil)

		Expect(get("/api/spaces").Body.String()).To(MatchJSON(`[]`))
	})

	It("should list the TLB entries and the used frames", func() {
		inspector.EXPECT().TLBEntries().Return([]vm.TranslationEntry{
			{VirtualPage: 2, PhysicalPage: 5, Valid: true},
		})
		inspector.EXPECT().UsedFrames().Return([]int{1, 5})

		var entries []vm.TranslationEntry
		Expect(json.Unmarshal(get("/api/tlb").Body.Bytes(), &entries)).
			To(Succeed())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].PhysicalPage).To(Equal(5))

		Expect(get("/api/frames").Body.String()).To(MatchJSON(`[1,5]`))
	})

	It("should answer 404 for events when nothing counts them", func() {
		Expect(get("/api/events").Code).To(Equal(http.StatusNotFound))
	})

	It("should report the event counts", func() {
		counter := tracing.NewEventCounter()
		counter.Func(sim.HookCtx{Pos: &sim.HookPos{Name: "TLBMiss"}})
		counter.Func(sim.HookCtx{Pos: &sim.HookPos{Name: "TLBMiss"}})
		m.RegisterEventCounter(counter)

		Expect(get("/api/events").Body.String()).
			To(MatchJSON(`{"TLBMiss":2}`))
	})

	It("should list components", func() {
		inspector.EXPECT().ComponentNames().Return([]string{"machine", "tlb"})

		Expect(get("/api/list_components").Body.String()).
			To(MatchJSON(`["machine","tlb"]`))
	})

	It("should serialize a component", func() {
		inspector.EXPECT().
			Component("sample").
			Return(&sampleComponent{Name: "sample", Count: 3}, true)
		inspector.EXPECT().
			Inspect(gomock.Any()).
			Do(func(fn func()) { fn() })

		rec := get("/api/component/sample")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.Len()).NotTo(BeZero())
	})

	It("should answer 404 for an unknown component", func() {
		inspector.EXPECT().Component("nothing").Return(nil, false)

		rec := get("/api/component/nothing")

		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(rec.Body.String()).To(Equal("Component not found"))
	})

	It("should report resource usage", func() {
		rec := get("/api/resource")

		var rsp map[string]any
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp).To(HaveKey("cpu_percent"))
		Expect(rsp["memory_size"]).To(BeNumerically(">", 0))
	})

	It("should serve the dashboard", func() {
		rec := get("/")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("/api/now"))
	})

	It("should refuse a small port number", func() {
		m.WithPortNumber(80)

		Expect(m.portNumber).To(Equal(0))
	})
})

var _ = Describe("Kernel Inspector", func() {
	var k *kernel.Kernel

	BeforeEach(func() {
		loader := kernel.NewMemLoader()
		kernel.RegisterDemos(loader)

		k = kernel.MakeBuilder().
			WithLoader(loader).
			WithLayout(vm.InvertedLayout).
			WithNumPhysPages(8).
			Build()
	})

	It("should describe a kernel after a run", func() {
		Expect(k.RunProgram("exit")).To(Succeed())

		i := NewKernelInspector(k)

		Expect(i.CurrentTime()).To(Equal(k.Stats().TotalTicks))
		Expect(i.Stats().NumSyscalls).To(BeNumerically(">", 0))

		spaces := i.Spaces()
		Expect(spaces).To(HaveLen(1))
		Expect(spaces[0].Name).To(Equal("exit"))
		Expect(spaces[0].State).To(Equal("Freed"))
		Expect(spaces[0].ExitCode).To(Equal(42))

		Expect(i.ComponentNames()).To(ContainElements(
			"machine", "tlb", "swap", "inverted"))

		_, found := i.Component("tlb")
		Expect(found).To(BeTrue())
		_, found = i.Component("gpu")
		Expect(found).To(BeFalse())
	})

	It("should read a kernel while it runs", func() {
		const numThreads = 2000

		i := NewKernelInspector(k)
		done := make(chan error)

		go func() {
			done <- k.Run(func() {
				s := k.Scheduler()

				for n := 0; n < numThreads; n++ {
					s.Fork(s.NewThread("empty", thread.DefaultPriority), func() {})
					s.Yield()
				}
			})
		}()

		reads := 0

	loop:
		for {
			select {
			case err := <-done:
				Expect(err).NotTo(HaveOccurred())
				break loop
			default:
				for _, t := range i.Threads() {
					Expect(t.Name).NotTo(BeEmpty())
				}

				i.CurrentTime()
				i.Stats()
				i.Spaces()
				reads++
			}
		}

		Expect(reads).To(BeNumerically(">", 0))
		Expect(i.Threads()).To(BeEmpty())
		Expect(i.Stats().NumContextSwitches).To(BeNumerically(">=", numThreads))
	})

	It("should wait for the clock to stop when pausing", func() {
		i := NewKernelInspector(k)
		done := make(chan error)

		i.Pause()
		paused := i.CurrentTime()

		go func() {
			done <- k.Run(func() {
				for {
					k.Scheduler().Yield()
					k.Interrupt().SetLevel(machine.IntOff)
					k.Interrupt().SetLevel(machine.IntOn)

					if k.Interrupt().CurrentTime() > 1000 {
						return
					}
				}
			})
		}()

		Consistently(i.CurrentTime).Should(BeNumerically("<=", paused+machine.SystemTick))

		i.Continue()
		Eventually(done).Should(Receive(BeNil()))
	})
})
