package monitoring

import (
	"sort"

	"github.com/sarchlab/nachosim/kernel"
	"github.com/sarchlab/nachosim/machine"
	"github.com/sarchlab/nachosim/mem/vm"
	"github.com/sarchlab/nachosim/sim"
)

// ThreadInfo describes a kernel thread.
type ThreadInfo struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Status   string `json:"status"`
}

// SpaceInfo describes an address space.
type SpaceInfo struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	State    string `json:"state"`
	Refs     int    `json:"refs"`
	NumPages int    `json:"num_pages"`
	ExitCode int    `json:"exit_code"`
}

// An Inspector exposes the state of a running kernel to the monitor.
type Inspector interface {
	Pause()
	Continue()
	Inspect(fn func())
	CurrentTime() sim.Tick
	Stats() machine.Stats
	Threads() []ThreadInfo
	Spaces() []SpaceInfo
	TLBEntries() []vm.TranslationEntry
	UsedFrames() []int
	ComponentNames() []string
	Component(name string) (any, bool)
}

type kernelInspector struct {
	k *kernel.Kernel
}

// NewKernelInspector inspects a kernel. Every read waits for the running
// thread to reach the end of a tick, so the kernel may be inspected while it
// runs.
func NewKernelInspector(k *kernel.Kernel) Inspector {
	return kernelInspector{k: k}
}

// Pause returns once the clock has stopped.
func (i kernelInspector) Pause() {
	i.k.Interrupt().Pause()
	i.Inspect(func() {})
}

func (i kernelInspector) Continue() {
	i.k.Interrupt().Continue()
}

func (i kernelInspector) Inspect(fn func()) {
	i.k.Interrupt().Inspect(fn)
}

func (i kernelInspector) CurrentTime() (now sim.Tick) {
	i.Inspect(func() {
		now = i.k.Interrupt().CurrentTime()
	})

	return now
}

func (i kernelInspector) Stats() (stats machine.Stats) {
	i.Inspect(func() {
		stats = *i.k.Stats()
	})

	return stats
}

func (i kernelInspector) Threads() []ThreadInfo {
	var infos []ThreadInfo

	i.Inspect(func() {
		for _, t := range i.k.Scheduler().Threads() {
			infos = append(infos, ThreadInfo{
				ID:       t.ID,
				Name:     t.Name,
				Priority: t.Priority,
				Status:   t.Status().String(),
			})
		}
	})

	return infos
}

func (i kernelInspector) Spaces() []SpaceInfo {
	var infos []SpaceInfo

	i.Inspect(func() {
		for _, s := range i.k.Spaces() {
			infos = append(infos, SpaceInfo{
				ID:       s.ID(),
				Name:     s.Name(),
				State:    s.State().String(),
				Refs:     s.Refs(),
				NumPages: s.NumPages(),
				ExitCode: s.ExitCode(),
			})
		}
	})

	return infos
}

func (i kernelInspector) TLBEntries() (entries []vm.TranslationEntry) {
	i.Inspect(func() {
		entries = i.k.TLB().Entries()
	})

	return entries
}

func (i kernelInspector) UsedFrames() (frames []int) {
	i.Inspect(func() {
		frames = i.k.Machine().MemUsage.UsedFrames()
	})

	return frames
}

func (i kernelInspector) components() map[string]any {
	c := map[string]any{
		"machine":   i.k.Machine(),
		"interrupt": i.k.Interrupt(),
		"scheduler": i.k.Scheduler(),
		"tlb":       i.k.TLB(),
		"faults":    i.k.FaultHandler(),
		"swap":      i.k.FaultHandler().SwapStore(),
	}

	if t := i.k.InvertedTable(); t != nil {
		c["inverted"] = t
	}

	return c
}

func (i kernelInspector) ComponentNames() []string {
	var names []string
	for name := range i.components() {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Component returns a live component. Read it within Inspect.
func (i kernelInspector) Component(name string) (any, bool) {
	c, found := i.components()[name]
	return c, found
}
