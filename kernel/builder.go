package kernel

import (
	"io"
	"log"
	"math/rand"
	"os"

	"github.com/sarchlab/nachosim/machine"
	"github.com/sarchlab/nachosim/mem/vm"
	"github.com/sarchlab/nachosim/mem/vm/mmu"
	"github.com/sarchlab/nachosim/mem/vm/tlb"
	"github.com/sarchlab/nachosim/sim"
	"github.com/sarchlab/nachosim/thread"
)

// Default machine parameters.
const (
	DefaultPageSize      = 128
	DefaultNumPhysPages  = 32
	DefaultTLBSize       = 4
	DefaultUserStackSize = 1024
)

// A Builder can build kernels.
type Builder struct {
	pageSize      int
	numPhysPages  int
	tlbSize       int
	tlbPolicy     tlb.Policy
	layout        vm.Layout
	numBuckets    int
	userStackSize int
	loader        Loader
	timeSlicing   bool
	randomSlice   bool
	seed          int64
	debugFlags    string
	logger        *log.Logger
	console       io.Writer
	statsOut      io.Writer
	hooks         []sim.Hook
}

// MakeBuilder creates a builder with the default machine.
func MakeBuilder() Builder {
	return Builder{
		pageSize:      DefaultPageSize,
		numPhysPages:  DefaultNumPhysPages,
		tlbSize:       DefaultTLBSize,
		tlbPolicy:     tlb.FIFO,
		layout:        vm.FlatLayout,
		userStackSize: DefaultUserStackSize,
		loader:        NewMemLoader(),
		console:       os.Stdout,
	}
}

// WithPageSize sets the size of a page in bytes.
func (b Builder) WithPageSize(n int) Builder {
	b.pageSize = n
	return b
}

// WithNumPhysPages sets the number of physical frames.
func (b Builder) WithNumPhysPages(n int) Builder {
	b.numPhysPages = n
	return b
}

// WithTLBSize sets the number of TLB slots.
func (b Builder) WithTLBSize(n int) Builder {
	b.tlbSize = n
	return b
}

// WithTLBPolicy sets the TLB replacement policy.
func (b Builder) WithTLBPolicy(p tlb.Policy) Builder {
	b.tlbPolicy = p
	return b
}

// WithLayout sets the page table layout.
func (b Builder) WithLayout(l vm.Layout) Builder {
	b.layout = l
	return b
}

// WithHashBuckets sets the number of hash buckets of the inverted table. It
// defaults to the number of physical frames.
func (b Builder) WithHashBuckets(n int) Builder {
	b.numBuckets = n
	return b
}

// WithUserStackSize sets the stack space added to every address space.
func (b Builder) WithUserStackSize(n int) Builder {
	b.userStackSize = n
	return b
}

// WithLoader sets where executables are loaded from.
func (b Builder) WithLoader(l Loader) Builder {
	b.loader = l
	return b
}

// WithTimeSlicing makes the timer preempt running threads at a fixed
// interval.
func (b Builder) WithTimeSlicing() Builder {
	b.timeSlicing = true
	return b
}

// WithRandomSlice makes the timer preempt running threads at random
// intervals drawn from the seed.
func (b Builder) WithRandomSlice(seed int64) Builder {
	b.timeSlicing = true
	b.randomSlice = true
	b.seed = seed
	return b
}

// WithDebugFlags enables the debug messages of the given flag letters.
func (b Builder) WithDebugFlags(flags string) Builder {
	b.debugFlags = flags
	return b
}

// WithLogger sets where debug messages go. It defaults to standard error.
func (b Builder) WithLogger(l *log.Logger) Builder {
	b.logger = l
	return b
}

// WithConsole sets where user programs write to the console.
func (b Builder) WithConsole(w io.Writer) Builder {
	b.console = w
	return b
}

// WithStatsOutput makes the kernel print its statistics when the machine
// halts.
func (b Builder) WithStatsOutput(w io.Writer) Builder {
	b.statsOut = w
	return b
}

// WithHook attaches a hook to every component of the kernel.
func (b Builder) WithHook(h sim.Hook) Builder {
	b.hooks = append(b.hooks, h)
	return b
}

// Build creates the kernel and boots the machine.
func (b Builder) Build() *Kernel {
	stats := &machine.Stats{}
	interrupt := machine.NewInterrupt(stats)
	m := machine.NewMachine(machine.Config{
		PageSize:     b.pageSize,
		NumPhysPages: b.numPhysPages,
		TLBSize:      b.tlbSize,
	}, interrupt, stats)

	k := &Kernel{
		machine:       m,
		interrupt:     interrupt,
		stats:         stats,
		scheduler:     thread.NewScheduler(interrupt, m),
		layout:        b.layout,
		userStackSize: b.userStackSize,
		loader:        b.loader,
		console:       b.console,
		statsOut:      b.statsOut,
		spaces:        make(map[vm.Owner]*AddrSpace),
	}

	k.tlb = tlb.NewManager(m.TLB, b.tlbPolicy, interrupt)

	faults := mmu.MakeBuilder().
		WithMachine(m).
		WithTLB(k.tlb).
		WithLayout(b.layout).
		WithSwapStore(vm.NewSwapStore())

	if b.layout == vm.InvertedLayout {
		numBuckets := b.numBuckets
		if numBuckets <= 0 {
			numBuckets = b.numPhysPages
		}

		k.inverted = vm.NewInvertedTable(b.numPhysPages, numBuckets)
		faults = faults.WithInvertedTable(k.inverted)
	}

	k.faults = faults.Build()
	m.SetExceptionHandler(k)

	if b.timeSlicing {
		var rng *rand.Rand
		if b.randomSlice {
			rng = rand.New(rand.NewSource(b.seed))
		}

		k.timer = machine.NewTimer(interrupt, rng, k.scheduler.TimerExpired)
	}

	b.attachHooks(k)

	return k
}

func (b Builder) attachHooks(k *Kernel) {
	hooks := b.hooks

	if b.debugFlags != "" {
		logger := b.logger
		if logger == nil {
			logger = log.New(os.Stderr, "", 0)
		}

		hooks = append(hooks, sim.NewDebugLogger(logger, b.debugFlags))
	}

	for _, h := range hooks {
		for _, c := range k.hookables() {
			c.AcceptHook(h)
		}
	}
}
