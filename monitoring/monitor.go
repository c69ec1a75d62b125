// Package monitoring serves the state of a running kernel over HTTP.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/nachosim/monitoring/web"
	"github.com/sarchlab/nachosim/tracing"
)

// Monitor turns a kernel run into a server that can be watched and paused
// from a browser.
type Monitor struct {
	inspector  Inspector
	counter    *tracing.EventCounter
	portNumber int
	profileFor time.Duration
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		profileFor: time.Second,
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterInspector sets where the kernel state comes from.
func (m *Monitor) RegisterInspector(i Inspector) {
	m.inspector = i
}

// RegisterEventCounter makes the monitor report the hook counts.
func (m *Monitor) RegisterEventCounter(c *tracing.EventCounter) {
	m.counter = c
}

// Router returns the HTTP routes of the monitor.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pause)
	r.HandleFunc("/api/continue", m.continueRun)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/stats", m.stats)
	r.HandleFunc("/api/threads", m.threads)
	r.HandleFunc("/api/spaces", m.spaces)
	r.HandleFunc("/api/tlb", m.tlb)
	r.HandleFunc("/api/frames", m.frames)
	r.HandleFunc("/api/events", m.events)
	r.HandleFunc("/api/list_components", m.listComponents)
	r.HandleFunc("/api/component/{name}", m.componentDetails)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts serving in the background and returns the URL of the
// monitor.
func (m *Monitor) StartServer() string {
	addr := ":" + strconv.Itoa(m.portNumber)

	listener, err := net.Listen("tcp", addr)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	router := m.Router()

	go func() {
		err := http.Serve(listener, router)
		dieOnErr(err)
	}()

	return url
}

func (m *Monitor) pause(w http.ResponseWriter, _ *http.Request) {
	m.inspector.Pause()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) continueRun(w http.ResponseWriter, _ *http.Request) {
	m.inspector.Continue()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprintf(w, "{\"now\":%d}", m.inspector.CurrentTime())
}

func (m *Monitor) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.inspector.Stats())
}

func (m *Monitor) threads(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, emptyIfNil(m.inspector.Threads()))
}

func (m *Monitor) spaces(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, emptyIfNil(m.inspector.Spaces()))
}

func (m *Monitor) tlb(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, emptyIfNil(m.inspector.TLBEntries()))
}

func (m *Monitor) frames(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, emptyIfNil(m.inspector.UsedFrames()))
}

func (m *Monitor) events(w http.ResponseWriter, _ *http.Request) {
	if m.counter == nil {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "Event counting is not enabled")

		return
	}

	writeJSON(w, m.counter.Counts())
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, emptyIfNil(m.inspector.ComponentNames()))
}

func (m *Monitor) componentDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	component, found := m.inspector.Component(name)
	if !found {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "Component not found")

		return
	}

	buf := bytes.NewBuffer(nil)

	var err error

	m.inspector.Inspect(func() {
		serializer := goseth.NewSerializer()
		serializer.SetRoot(component)
		serializer.SetMaxDepth(1)

		err = serializer.Serialize(buf)
	})
	dieOnErr(err)

	_, err = w.Write(buf.Bytes())
	dieOnErr(err)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	p, err := process.NewProcess(int32(os.Getpid()))
	dieOnErr(err)

	cpuPercent, err := p.CPUPercent()
	dieOnErr(err)

	memory, err := p.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memory.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	time.Sleep(m.profileFor)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")

	_, err = w.Write(b)
	dieOnErr(err)
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}

	return s
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
