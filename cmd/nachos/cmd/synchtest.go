package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sarchlab/nachosim/kernel"
	"github.com/sarchlab/nachosim/synch"
)

var synchTests = map[string]selfTest{
	"semaphore": {
		description: "a producer and a consumer share a buffer of two slots",
		run:         semaphoreBuffer,
	},
	"lock": {
		description: "threads that yield inside a lock do not lose updates",
		run:         lockedCounter,
	},
	"condition": {
		description: "a bounded buffer guarded by a lock and two conditions",
		run:         conditionBuffer,
	},
	"barrier": {
		description: "workers wait for each other at the end of each round",
		run:         barrierRounds,
	},
	"rwlock": {
		description: "readers share the data, the writer has it alone",
		run:         readersWriter,
	},
}

var synchTestCmd = &cobra.Command{
	Use:   "synchtest [test...]",
	Short: "Run the synchronization self tests.",
	Long: "`synchtest` runs the synchronization self tests, each on a fresh " +
		"machine. With no argument, all the tests run.\n\n" +
		selfTestUsage(synchTests),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSelfTests(cmd, synchTests, args)
	},
}

func init() {
	rootCmd.AddCommand(synchTestCmd)
}

const numItems = 6

func semaphoreBuffer(k *kernel.Kernel, w io.Writer) {
	s := k.Scheduler()

	var buffer []int

	empty := synch.NewSemaphore(s, "empty", 2)
	full := synch.NewSemaphore(s, "full", 0)
	done := synch.NewSemaphore(s, "done", 0)

	forkDefault(k, "producer", func() {
		for i := 0; i < numItems; i++ {
			empty.P()
			buffer = append(buffer, i)
			fmt.Fprintf(w, "produced %d\n", i)
			full.V()
		}
	})

	forkDefault(k, "consumer", func() {
		for i := 0; i < numItems; i++ {
			full.P()
			v := buffer[0]
			buffer = buffer[1:]
			fmt.Fprintf(w, "consumed %d\n", v)
			empty.V()
		}

		done.V()
	})

	done.P()
	fmt.Fprintln(w, "all items consumed")
}

func lockedCounter(k *kernel.Kernel, w io.Writer) {
	const numThreads = 3

	s := k.Scheduler()
	lock := synch.NewLock(s, "counter")
	finished := synch.NewSemaphore(s, "finished", 0)
	counter := 0

	for i := 0; i < numThreads; i++ {
		forkDefault(k, fmt.Sprintf("adder %d", i), func() {
			for j := 0; j < 3; j++ {
				lock.Acquire()
				v := counter
				s.Yield()
				counter = v + 1
				lock.Release()
			}

			finished.V()
		})
	}

	for i := 0; i < numThreads; i++ {
		finished.P()
	}

	fmt.Fprintf(w, "counter is %d\n", counter)
}

func conditionBuffer(k *kernel.Kernel, w io.Writer) {
	const capacity = 2

	s := k.Scheduler()
	lock := synch.NewLock(s, "buffer")
	notFull := synch.NewCondition(s, "not full")
	notEmpty := synch.NewCondition(s, "not empty")
	done := synch.NewSemaphore(s, "done", 0)

	var buffer []int

	forkDefault(k, "producer", func() {
		for i := 0; i < numItems; i++ {
			lock.Acquire()
			for len(buffer) == capacity {
				notFull.Wait(lock)
			}

			buffer = append(buffer, i)
			fmt.Fprintf(w, "put %d\n", i)
			notEmpty.Signal(lock)
			lock.Release()
		}
	})

	forkDefault(k, "consumer", func() {
		for i := 0; i < numItems; i++ {
			lock.Acquire()
			for len(buffer) == 0 {
				notEmpty.Wait(lock)
			}

			v := buffer[0]
			buffer = buffer[1:]
			fmt.Fprintf(w, "took %d\n", v)
			notFull.Signal(lock)
			lock.Release()
		}

		done.V()
	})

	done.P()
	fmt.Fprintln(w, "buffer drained")
}

func barrierRounds(k *kernel.Kernel, w io.Writer) {
	const (
		numWorkers = 3
		numRounds  = 2
	)

	s := k.Scheduler()
	barrier := synch.NewBarrier(s, "round", numWorkers)
	finished := synch.NewSemaphore(s, "finished", 0)

	for i := 0; i < numWorkers; i++ {
		id := i

		forkDefault(k, fmt.Sprintf("worker %d", id), func() {
			for r := 0; r < numRounds; r++ {
				fmt.Fprintf(w, "worker %d reached round %d\n", id, r)
				barrier.Wait()
			}

			finished.V()
		})
	}

	for i := 0; i < numWorkers; i++ {
		finished.P()
	}

	fmt.Fprintf(w, "%d rounds completed\n", barrier.Generation())
}

func readersWriter(k *kernel.Kernel, w io.Writer) {
	const numReaders = 2

	s := k.Scheduler()
	rw := synch.NewReadWriteLock(s, "data")
	finished := synch.NewSemaphore(s, "finished", 0)
	value := 0

	for i := 0; i < numReaders; i++ {
		id := i

		forkDefault(k, fmt.Sprintf("reader %d", id), func() {
			for r := 0; r < 2; r++ {
				rw.ReaderAcquire()
				fmt.Fprintf(w, "reader %d sees %d with %d readers\n",
					id, value, rw.Readers())
				s.Yield()
				rw.ReaderRelease()
				s.Yield()
			}

			finished.V()
		})
	}

	forkDefault(k, "writer", func() {
		for r := 0; r < 2; r++ {
			rw.WriterAcquire()
			value++
			fmt.Fprintf(w, "writer sets %d\n", value)
			rw.WriterRelease()
			s.Yield()
		}

		finished.V()
	})

	for i := 0; i < numReaders+1; i++ {
		finished.P()
	}

	fmt.Fprintf(w, "final value %d\n", value)
}
