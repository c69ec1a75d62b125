package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/pkg/browser"

	"github.com/sarchlab/nachosim/datarecording"
	"github.com/sarchlab/nachosim/kernel"
	"github.com/sarchlab/nachosim/monitoring"
	"github.com/sarchlab/nachosim/tracing"
)

// A session is a kernel along with the tracer and the monitor the options
// ask for.
type session struct {
	kernel     *kernel.Kernel
	tracer     *tracing.DBTracer
	monitorURL string
	out        io.Writer
}

func newSession(o options, b kernel.Builder, out io.Writer) *session {
	s := &session{
		kernel: b.Build(),
		out:    out,
	}

	if o.trace {
		s.startTracing(o)
	}

	if o.monitor {
		s.startMonitoring(o)
	}

	return s
}

func (s *session) startTracing(o options) {
	s.tracer = tracing.NewDBTracer(datarecording.New(o.traceDB))

	settings := o.settings()

	properties := make([]string, 0, len(settings))
	for p := range settings {
		properties = append(properties, p)
	}

	sort.Strings(properties)

	for _, p := range properties {
		s.tracer.RecordSetting(p, settings[p])
	}

	tracing.Attach(s.tracer, s.kernel)
}

func (s *session) startMonitoring(o options) {
	counter := tracing.NewEventCounter()
	tracing.Attach(counter, s.kernel)

	m := monitoring.NewMonitor().WithPortNumber(o.monitorPort)
	m.RegisterInspector(monitoring.NewKernelInspector(s.kernel))
	m.RegisterEventCounter(counter)

	s.monitorURL = m.StartServer()

	if o.openBrowser {
		err := browser.OpenURL(s.monitorURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open a browser: %s\n", err)
		}
	}
}

// run runs fn on the kernel and writes out the trace.
func (s *session) run(fn func(k *kernel.Kernel) error) error {
	err := fn(s.kernel)

	s.reportStranded()

	if s.tracer != nil {
		s.tracer.Terminate()
		fmt.Fprintf(s.out, "Traced %d events\n", s.tracer.NumRecords())
	}

	return err
}

// reportStranded tells if the machine halted only because every remaining
// thread was blocked.
func (s *session) reportStranded() {
	stranded := s.kernel.Scheduler().Stranded()
	if len(stranded) == 0 {
		return
	}

	names := make([]string, 0, len(stranded))
	for _, t := range stranded {
		names = append(names, t.Name)
	}

	fmt.Fprintf(s.out, "No runnable threads, blocked: %s\n",
		strings.Join(names, ", "))
}

// hold keeps the monitor serving the halted machine until the process is
// interrupted.
func (s *session) hold() {
	if s.monitorURL == "" {
		return
	}

	fmt.Fprintf(os.Stderr,
		"Machine halted, still serving %s. Press Ctrl-C to exit.\n",
		s.monitorURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	<-ctx.Done()
}
