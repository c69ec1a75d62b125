package tracing

import (
	"sync"

	"github.com/sarchlab/nachosim/datarecording"
	"github.com/sarchlab/nachosim/sim"
	"github.com/tebeka/atexit"
)

// Tables written by the DBTracer.
const (
	VMTable      = "vm_events"
	ThreadTable  = "thread_events"
	ProcessTable = "process_events"
	SettingTable = "settings"
)

// Setting is a property of the traced run, such as the command line or the
// page table layout.
type Setting struct {
	Property string
	Value    string
}

// DBTracer is a hook that stores the events of a kernel into a database.
type DBTracer struct {
	mu      sync.Mutex
	backend datarecording.DataRecorder

	startTime, endTime sim.Tick
	numRecords         uint64
}

// NewDBTracer creates the tables of the trace. The buffered records are
// flushed when the program exits through atexit.
func NewDBTracer(recorder datarecording.DataRecorder) *DBTracer {
	recorder.CreateTable(VMTable, VMEvent{})
	recorder.CreateTable(ThreadTable, ThreadEvent{})
	recorder.CreateTable(ProcessTable, ProcessEvent{})
	recorder.CreateTable(SettingTable, Setting{})

	t := &DBTracer{backend: recorder}

	atexit.Register(func() {
		t.Terminate()
	})

	return t
}

// SetTimeRange restricts tracing to events within [start, end]. An end of
// zero means no upper bound.
func (t *DBTracer) SetTimeRange(start, end sim.Tick) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.startTime = start
	t.endTime = end
}

// RecordSetting stores a property of the run.
func (t *DBTracer) RecordSetting(property, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.backend.InsertData(SettingTable, Setting{Property: property, Value: value})
}

// NumRecords returns the number of events stored so far.
func (t *DBTracer) NumRecords() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.numRecords
}

// Func records the event of a hook context.
func (t *DBTracer) Func(ctx sim.HookCtx) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ctx.Now < t.startTime || (t.endTime > 0 && ctx.Now > t.endTime) {
		return
	}

	record, ok := convert(ctx)
	if !ok {
		return
	}

	t.backend.InsertData(tableOf(record), record)
	t.numRecords++
}

// Terminate writes the buffered records.
func (t *DBTracer) Terminate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.backend.Flush()
}
