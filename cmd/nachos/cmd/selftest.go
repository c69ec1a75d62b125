package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sarchlab/nachosim/kernel"
	"github.com/sarchlab/nachosim/thread"
)

// A selfTest exercises kernel threads on a machine that runs no user
// program.
type selfTest struct {
	description string

	// timeSlicing preempts the threads with the timer even when no random
	// seed is given.
	timeSlicing bool

	run func(k *kernel.Kernel, w io.Writer)
}

func testNames(tests map[string]selfTest) []string {
	names := make([]string, 0, len(tests))
	for name := range tests {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func selfTestUsage(tests map[string]selfTest) string {
	usage := "Available tests:\n"
	for _, name := range testNames(tests) {
		usage += fmt.Sprintf("  %-10s %s\n", name, tests[name].description)
	}

	return usage
}

// runSelfTests runs the named tests, or all of them, each on a fresh
// machine.
func runSelfTests(
	cmd *cobra.Command,
	tests map[string]selfTest,
	names []string,
) error {
	o, err := readOptions(cmd)
	if err != nil {
		return err
	}

	if len(names) == 0 {
		names = testNames(tests)
	}

	for _, name := range names {
		if _, found := tests[name]; !found {
			return fmt.Errorf("unknown test %q\n%s", name, selfTestUsage(tests))
		}
	}

	if o.monitor && len(names) > 1 {
		return fmt.Errorf("the monitor watches one test at a time")
	}

	out := cmd.OutOrStdout()

	var last *session

	for _, name := range names {
		last, err = runSelfTest(o, name, tests[name], out)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	last.hold()

	return nil
}

func runSelfTest(
	o options,
	name string,
	test selfTest,
	out io.Writer,
) (*session, error) {
	if o.traceDB != "" {
		o.traceDB += "_" + name
	}

	b := o.builder(out)
	if test.timeSlicing && o.seed == 0 {
		b = b.WithTimeSlicing()
	}

	fmt.Fprintf(out, "=== %s\n", name)

	s := newSession(o, b, out)
	err := s.run(func(k *kernel.Kernel) error {
		return k.Run(func() { test.run(k, out) })
	})

	return s, err
}

// fork starts a kernel thread. Threads begin with interrupts off.
func fork(k *kernel.Kernel, name string, priority int, fn func()) {
	s := k.Scheduler()
	s.Fork(s.NewThread(name, priority), func() {
		k.Interrupt().Enable()
		fn()
	})
}

func forkDefault(k *kernel.Kernel, name string, fn func()) {
	fork(k, name, thread.DefaultPriority, fn)
}
