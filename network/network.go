package network

import (
	"fmt"
	"io"

	"gonum.org/v1/gonum/stat"

	"github.com/stephen422/netsim/datarecording"
	"github.com/stephen422/netsim/noc"
	"github.com/stephen422/netsim/sim"
)

// A Network is a fully wired simulation: nodes, channels, and the engine
// that drives them.
type Network struct {
	engine       sim.Engine
	topology     *noc.Topology
	stats        *noc.Stats
	inputBufSize int
	recorder     datarecording.DataRecorder

	nodes     map[noc.NodeID]*noc.Router
	nodeOrder []noc.NodeID
	channels  []*noc.Channel
}

// nodeTotalEntry is one row of the node_totals result table.
type nodeTotalEntry struct {
	Node      string
	Kind      string
	Generated int64
	Arrived   int64
}

// latencyEntry is one row of the flit_latencies result table.
type latencyEntry struct {
	Sample  int
	Latency float64
}

// Run drives the simulation until the horizon cycle, or until the event
// queue drains, whichever comes first.
func (n *Network) Run(horizon sim.VTimeInCycle) error {
	return n.engine.RunUntil(horizon)
}

// Node returns the node with the given ID.
func (n *Network) Node(id noc.NodeID) *noc.Router {
	return n.nodes[id]
}

// Nodes returns all node IDs ordered by kind then index.
func (n *Network) Nodes() []noc.NodeID {
	return n.nodeOrder
}

// Stats returns the shared statistics sink.
func (n *Network) Stats() *noc.Stats {
	return n.stats
}

// Quiescent reports whether every unit is idle with a full credit count and
// every buffer is empty.
func (n *Network) Quiescent() bool {
	for _, id := range n.nodeOrder {
		node := n.nodes[id]
		for port := 0; port < node.Radix(); port++ {
			iu := node.InputUnit(port)
			if len(iu.Buf) != 0 || iu.STReady != nil {
				return false
			}
			// A destination's input unit parks in Routing after its first
			// arrival; only routers cycle their units back to Idle.
			if id.Kind == noc.NodeRouter && iu.Global != noc.StateIdle {
				return false
			}
			ou := node.OutputUnit(port)
			if id.Kind != noc.NodeDestination {
				if ou.Global != noc.StateIdle ||
					ou.CreditCount != n.inputBufSize {
					return false
				}
			}
		}
	}
	return true
}

// Report writes the final counters to w and, when a recorder is attached,
// stores them as result tables.
func (n *Network) Report(w io.Writer) {
	fmt.Fprintf(w, "== Simulation report @%d ==\n", n.engine.CurrentTime())

	var totalGen, totalArrive int64
	for _, id := range n.nodeOrder {
		node := n.nodes[id]
		switch id.Kind {
		case noc.NodeSource:
			fmt.Fprintf(w, "%v: generated %d flits\n",
				id, node.GeneratedCount())
			totalGen += node.GeneratedCount()
		case noc.NodeDestination:
			fmt.Fprintf(w, "%v: arrived %d flits\n", id, node.ArrivedCount())
			totalArrive += node.ArrivedCount()
		}
	}
	fmt.Fprintf(w, "total: generated %d, arrived %d\n", totalGen, totalArrive)
	fmt.Fprintf(w, "double ticks: %d\n", n.stats.DoubleTickCount)
	fmt.Fprintf(w, "credit stalls: %d\n", n.stats.CreditStallCount)

	if len(n.stats.Latencies) > 0 {
		mean := stat.Mean(n.stats.Latencies, nil)
		stddev := stat.StdDev(n.stats.Latencies, nil)
		fmt.Fprintf(w, "flit latency: mean %.2f, stddev %.2f over %d flits\n",
			mean, stddev, len(n.stats.Latencies))
	}

	if n.recorder != nil {
		n.recordResults()
	}
}

func (n *Network) recordResults() {
	n.recorder.CreateTable("node_totals", nodeTotalEntry{})
	for _, id := range n.nodeOrder {
		node := n.nodes[id]
		n.recorder.InsertData("node_totals", nodeTotalEntry{
			Node:      id.String(),
			Kind:      id.Kind.String(),
			Generated: node.GeneratedCount(),
			Arrived:   node.ArrivedCount(),
		})
	}

	n.recorder.CreateTable("flit_latencies", latencyEntry{})
	for i, l := range n.stats.Latencies {
		n.recorder.InsertData("flit_latencies", latencyEntry{
			Sample:  i,
			Latency: l,
		})
	}

	n.recorder.Flush()
}
