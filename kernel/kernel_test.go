package kernel

import (
	"bytes"
	"errors"
	"fmt"
	"log"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/nachosim/mem/vm"
	"github.com/sarchlab/nachosim/mem/vm/tlb"
	"github.com/sarchlab/nachosim/noff"
	"github.com/sarchlab/nachosim/thread"
)

var _ = Describe("Kernel", func() {
	var loader *MemLoader

	BeforeEach(func() {
		loader = NewMemLoader()
		RegisterDemos(loader)
	})

	It("should halt from user mode", func() {
		k := MakeBuilder().WithLoader(loader).Build()

		err := k.RunProgram("halt")

		Expect(err).NotTo(HaveOccurred())
		space, found := k.Space(0)
		Expect(found).To(BeTrue())
		Expect(space.State()).To(Equal(Running))
	})

	It("should load the data segment from the executable", func() {
		k := MakeBuilder().WithLoader(loader).Build()

		err := k.RunProgram("exit")

		Expect(err).NotTo(HaveOccurred())
		space, _ := k.Space(0)
		Expect(space.State()).To(Equal(Freed))
		Expect(space.ExitCode()).To(Equal(42))
		Expect(k.Machine().MemUsage.NumClear()).To(Equal(DefaultNumPhysPages))
	})

	It("should report a missing executable", func() {
		k := MakeBuilder().WithLoader(loader).Build()

		err := k.RunProgram("nonexistent")

		Expect(err).To(MatchError(ContainSubstring("not found")))
	})

	It("should write to the console", func() {
		console := new(bytes.Buffer)
		k := MakeBuilder().WithLoader(loader).WithConsole(console).Build()

		Expect(k.RunProgram("hello")).To(Succeed())
		Expect(console.String()).To(Equal("Hello, world!\n"))
	})

	It("should sort with a flat page table", func() {
		k := MakeBuilder().WithLoader(loader).Build()

		Expect(k.RunProgram("sort")).To(Succeed())

		space, _ := k.Space(0)
		Expect(space.ExitCode()).To(Equal(1))
		Expect(space.NumPages()).To(Equal(19))
		Expect(k.Stats().NumPageFaults).To(BeNumerically("==", 9),
			"only the data pages are touched")
		Expect(k.Stats().NumEvictions).To(BeZero())
	})

	It("should sort with an inverted page table smaller than the program", func() {
		k := MakeBuilder().
			WithLoader(loader).
			WithLayout(vm.InvertedLayout).
			WithNumPhysPages(6).
			WithTLBPolicy(tlb.LRU).
			Build()

		Expect(k.RunProgram("sort")).To(Succeed())

		space, _ := k.Space(0)
		Expect(space.NumPages()).To(BeNumerically(">", 6))
		Expect(space.ExitCode()).To(Equal(1))
		Expect(k.Stats().NumEvictions).NotTo(BeZero())
		Expect(k.Stats().NumSwapOuts).NotTo(BeZero())
		Expect(k.Stats().NumSwapIns).NotTo(BeZero())
	})

	It("should refuse a program larger than memory with a flat table", func() {
		k := MakeBuilder().WithLoader(loader).WithNumPhysPages(8).Build()

		err := k.RunProgram("sort")

		Expect(err).To(BeAssignableToTypeOf(&thread.FatalError{}))
		Expect(err.Error()).To(ContainSubstring("needs"))
	})

	It("should run two processes sliced in time", func() {
		loader.Register("sortA", SortImage(64), SortProgram)
		loader.Register("sortB", SortImage(64), SortProgram)

		k := MakeBuilder().
			WithLoader(loader).
			WithLayout(vm.InvertedLayout).
			WithNumPhysPages(12).
			WithRandomSlice(1).
			Build()

		var codes []int
		var execErr error

		err := k.Run(func() {
			a, errA := k.Exec("sortA")
			b, errB := k.Exec("sortB")
			execErr = errors.Join(errA, errB)

			codes = append(codes, k.Join(a), k.Join(b))
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(execErr).NotTo(HaveOccurred())
		Expect(codes).To(Equal([]int{1, 1}))
		Expect(k.Stats().NumContextSwitches).To(BeNumerically(">", 4))
	})

	It("should wake a joiner once, after the last thread of the space exits",
		func() {
			var trace []string

			loader.Register("twins", noff.Image{Code: code(64)},
				func(ctx *UserContext) {
					ctx.Fork(func(child *UserContext) {
						trace = append(trace, "exit 7")
						child.Exit(7)
					})

					trace = append(trace, "exit 3")
					ctx.Exit(3)
				})

			k := MakeBuilder().WithLoader(loader).Build()

			err := k.Run(func() {
				id, _ := k.Exec("twins")
				trace = append(trace, fmt.Sprintf("joined %d", k.Join(id)))
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(trace).To(Equal([]string{"exit 3", "exit 7", "joined 7"}))
		})

	It("should return the exit code to a late joiner", func() {
		k := MakeBuilder().WithLoader(loader).Build()
		var (
			code  int
			state SpaceState
		)

		err := k.Run(func() {
			id, _ := k.Exec("exit")
			k.Scheduler().Yield()

			space, _ := k.Space(id)
			state = space.State()
			code = k.Join(id)
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(state).To(Equal(Freed))
		Expect(code).To(Equal(42))
	})

	It("should run exec and join through system calls", func() {
		k := MakeBuilder().WithLoader(loader).Build()

		Expect(k.RunProgram("exec")).To(Succeed())

		parent, _ := k.Space(0)
		Expect(parent.ExitCode()).To(Equal(42))
		Expect(k.Spaces()).To(HaveLen(2))
	})

	It("should share memory with forked threads", func() {
		k := MakeBuilder().WithLoader(loader).Build()

		Expect(k.RunProgram("fork")).To(Succeed())

		space, _ := k.Space(0)
		Expect(space.ExitCode()).To(Equal(7))
		Expect(space.Refs()).To(BeZero())
	})

	It("should return -1 when joining an unknown process", func() {
		k := MakeBuilder().WithLoader(loader).Build()
		code := 0

		err := k.Run(func() {
			code = k.Join(99)
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(-1))
	})

	It("should stop on a write to a code page", func() {
		loader.Register("vandal", noff.Image{Code: code(256)},
			func(ctx *UserContext) {
				ctx.StoreWord(0, 1)
			})
		k := MakeBuilder().WithLoader(loader).Build()

		err := k.RunProgram("vandal")

		Expect(err).To(BeAssignableToTypeOf(&thread.FatalError{}))
		Expect(err.Error()).To(ContainSubstring("ReadOnlyException"))
	})

	It("should stop when exec finds a malformed executable", func() {
		loader.RegisterEncoded("broken", make([]byte, noff.HeaderSize),
			func(ctx *UserContext) {})
		loader.Register("launcher", noff.Image{Code: code(64)},
			func(ctx *UserContext) {
				ctx.Exit(ctx.Join(ctx.Exec("broken")))
			})
		k := MakeBuilder().WithLoader(loader).Build()

		err := k.RunProgram("launcher")

		Expect(err).To(BeAssignableToTypeOf(&thread.FatalError{}))
		Expect(err.Error()).To(ContainSubstring("bad magic"))
	})

	It("should stop on an access beyond the address space", func() {
		loader.Register("wild", noff.Image{Code: code(64)},
			func(ctx *UserContext) {
				end := ctx.Space().NumPages() * DefaultPageSize
				ctx.LoadWord(uint64(end))
			})
		k := MakeBuilder().WithLoader(loader).Build()

		err := k.RunProgram("wild")

		Expect(err).To(BeAssignableToTypeOf(&thread.FatalError{}))
		Expect(err.Error()).To(ContainSubstring("AddressErrorException"))
	})

	It("should log the enabled debug flags", func() {
		out := new(bytes.Buffer)
		k := MakeBuilder().
			WithLoader(loader).
			WithDebugFlags("a").
			WithLogger(log.New(out, "", 0)).
			Build()

		Expect(k.RunProgram("exit")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("SpaceCreate"))
		Expect(out.String()).To(ContainSubstring("SpaceFree"))
		Expect(out.String()).NotTo(ContainSubstring("TLBMiss"))
	})

	It("should print statistics when the machine halts", func() {
		out := new(bytes.Buffer)
		k := MakeBuilder().WithLoader(loader).WithStatsOutput(out).Build()

		Expect(k.RunProgram("exit")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Ticks: total"))
	})

	Context("with a mock loader", func() {
		var (
			mockCtrl *gomock.Controller
			mock     *MockLoader
		)

		BeforeEach(func() {
			mockCtrl = gomock.NewController(GinkgoT())
			mock = NewMockLoader(mockCtrl)
		})

		AfterEach(func() {
			mockCtrl.Finish()
		})

		It("should return -1 to a user program executing a missing file",
			func() {
				parent, err := loader.Load("exec")
				Expect(err).NotTo(HaveOccurred())

				mock.EXPECT().Load("exec").Return(parent, nil)
				mock.EXPECT().Load("exit").
					Return(nil, errors.New("no such file"))

				k := MakeBuilder().WithLoader(mock).Build()

				Expect(k.RunProgram("exec")).To(Succeed())

				space, _ := k.Space(0)
				Expect(space.ExitCode()).To(Equal(-1))
			})
	})
})
