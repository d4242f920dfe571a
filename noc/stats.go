package noc

import (
	"github.com/stephen422/netsim/sim"
)

// Stats collects the network-wide counters that individual nodes cannot own.
type Stats struct {
	// DoubleTickCount counts ticks that were suppressed because the node had
	// already ticked in the same cycle.
	DoubleTickCount int64

	// CreditStallCount counts cycles in which a sender held a flit but no
	// credit, at a source or in switch allocation.
	CreditStallCount int64

	// Latencies holds one sample per consumed flit: the cycles between its
	// creation at the source and its consumption at the destination.
	Latencies []float64
}

// RecordLatency adds one flit latency sample.
func (s *Stats) RecordLatency(l sim.VTimeInCycle) {
	s.Latencies = append(s.Latencies, float64(l))
}
