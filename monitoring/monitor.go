// Package monitoring provides a small HTTP server that exposes the live
// state of a running simulation.
package monitoring

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"

	// Enable profiling.
	_ "net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"

	"github.com/stephen422/netsim/sim"
)

// A NodeCounter is a node that exposes its flit counters to the monitor.
type NodeCounter interface {
	Name() string
	GeneratedCount() int64
	ArrivedCount() int64
}

// Monitor can turn a simulation into a server that exposes engine time and
// node counters over HTTP.
type Monitor struct {
	engine     sim.TimeTeller
	nodes      []NodeCounter
	portNumber int
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port the server listens on. Without it, an
// ephemeral port is picked.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	m.portNumber = portNumber
	return m
}

// RegisterEngine registers the engine whose time is reported.
func (m *Monitor) RegisterEngine(t sim.TimeTeller) {
	m.engine = t
}

// RegisterNode registers one node whose counters are reported.
func (m *Monitor) RegisterNode(n NodeCounter) {
	m.nodes = append(m.nodes, n)
}

// StartServer starts the monitor server in the background and returns the
// address it listens on.
func (m *Monitor) StartServer() string {
	r := mux.NewRouter()
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/nodes", m.listNodes)
	r.HandleFunc("/api/resources", m.listResources)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	listener, err := net.Listen("tcp",
		fmt.Sprintf("localhost:%d", m.portNumber))
	if err != nil {
		log.Panic(err)
	}

	fmt.Fprintf(os.Stderr,
		"Monitoring simulation at http://localhost:%d\n",
		listener.Addr().(*net.TCPAddr).Port)

	go func() {
		if err := http.Serve(listener, r); err != nil {
			log.Panic(err)
		}
	}()

	return listener.Addr().String()
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]int64{
		"now": int64(m.engine.CurrentTime()),
	})
}

type nodeStatus struct {
	Name      string `json:"name"`
	Generated int64  `json:"generated"`
	Arrived   int64  `json:"arrived"`
}

func (m *Monitor) listNodes(w http.ResponseWriter, _ *http.Request) {
	statuses := make([]nodeStatus, 0, len(m.nodes))
	for _, n := range m.nodes {
		statuses = append(statuses, nodeStatus{
			Name:      n.Name(),
			Generated: n.GeneratedCount(),
			Arrived:   n.ArrivedCount(),
		})
	}
	writeJSON(w, statuses)
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	proc, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := proc.CPUPercent()
	dieOnErr(err)

	memorySize, err := proc.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, map[string]float64{
		"cpu_percent": cpuPercent,
		"memory_rss":  float64(memorySize.RSS),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
