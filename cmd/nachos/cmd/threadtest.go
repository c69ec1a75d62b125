package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sarchlab/nachosim/kernel"
	"github.com/sarchlab/nachosim/machine"
	"github.com/sarchlab/nachosim/synch"
	"github.com/sarchlab/nachosim/thread"
)

var threadTests = map[string]selfTest{
	"pingpong": {
		description: "two threads hand the CPU back and forth",
		run:         pingPong,
	},
	"many": {
		description: "several yielding threads take turns",
		run:         manyThreads,
	},
	"priority": {
		description: "ready threads run by priority",
		run:         priorities,
	},
	"slice": {
		description: "the timer preempts threads that never yield",
		timeSlicing: true,
		run:         timeSlices,
	},
}

var threadTestCmd = &cobra.Command{
	Use:   "threadtest [test...]",
	Short: "Run the thread self tests.",
	Long: "`threadtest` runs the thread self tests, each on a fresh machine. " +
		"With no argument, all the tests run.\n\n" + selfTestUsage(threadTests),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSelfTests(cmd, threadTests, args)
	},
}

func init() {
	rootCmd.AddCommand(threadTestCmd)
}

func pingPong(k *kernel.Kernel, w io.Writer) {
	s := k.Scheduler()

	loop := func(which int) {
		for i := 0; i < 5; i++ {
			fmt.Fprintf(w, "*** thread %d looped %d times\n", which, i)
			s.Yield()
		}
	}

	forkDefault(k, "forked thread", func() { loop(1) })
	loop(0)
}

func manyThreads(k *kernel.Kernel, w io.Writer) {
	const numThreads = 4

	s := k.Scheduler()
	done := synch.NewSemaphore(s, "done", 0)

	for i := 0; i < numThreads; i++ {
		name := fmt.Sprintf("thread %d", i)

		forkDefault(k, name, func() {
			for j := 0; j < 3; j++ {
				fmt.Fprintf(w, "%s turn %d\n", name, j)
				s.Yield()
			}

			done.V()
		})
	}

	for i := 0; i < numThreads; i++ {
		done.P()
	}

	fmt.Fprintf(w, "all %d threads finished\n", numThreads)
}

func priorities(k *kernel.Kernel, w io.Writer) {
	s := k.Scheduler()

	for _, t := range []struct {
		name     string
		priority int
	}{
		{"low", thread.DefaultPriority + 4},
		{"high", thread.DefaultPriority - 6},
		{"normal", thread.DefaultPriority},
	} {
		name, priority := t.name, t.priority

		fork(k, name, priority, func() {
			fmt.Fprintf(w, "%s (priority %d) runs\n", name, priority)
		})
	}

	s.Yield()
	fmt.Fprintf(w, "main (priority %d) runs\n", thread.DefaultPriority)
}

func timeSlices(k *kernel.Kernel, w io.Writer) {
	const spins = 50

	spin := func(name string) {
		for i := 0; i < spins; i++ {
			k.Interrupt().SetLevel(machine.IntOff)
			k.Interrupt().SetLevel(machine.IntOn)
		}

		fmt.Fprintf(w, "%s finished at tick %d after %d context switches\n",
			name, k.Interrupt().CurrentTime(), k.Stats().NumContextSwitches)
	}

	forkDefault(k, "spinner a", func() { spin("spinner a") })
	forkDefault(k, "spinner b", func() { spin("spinner b") })
}
