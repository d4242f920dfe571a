// Package network assembles nodes and channels from a topology, drives the
// simulation to a horizon, and reports the collected statistics.
package network

import (
	"log"

	"github.com/iti/rngstream"
	"github.com/pkg/errors"

	"github.com/stephen422/netsim/datarecording"
	"github.com/stephen422/netsim/noc"
	"github.com/stephen422/netsim/sim"
)

// A Builder can build a Network.
type Builder struct {
	engine          sim.Engine
	topology        *noc.Topology
	terminalCount   int
	routerRadix     int
	packetLength    int
	packetLimit     int
	channelDelay    sim.VTimeInCycle
	inputBufSize    int
	consumeInterval sim.VTimeInCycle
	logger          *log.Logger
	routeRNG        *rngstream.RngStream
	destFor         func(src int) int
	recorder        datarecording.DataRecorder
	activeSources   []int
}

// MakeBuilder creates a Builder with the default parameters: a ring of 4
// routers of radix 3, 4-flit packets, delay-1 channels, and 100-deep input
// buffers.
func MakeBuilder() Builder {
	return Builder{
		terminalCount:   4,
		routerRadix:     3,
		packetLength:    4,
		channelDelay:    1,
		inputBufSize:    100,
		consumeInterval: 1,
	}
}

// WithEngine sets the event engine that drives the network.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithTopology replaces the default ring with an explicit topology.
func (b Builder) WithTopology(t *noc.Topology) Builder {
	b.topology = t
	return b
}

// WithTerminalCount sets the number of source/destination pairs, which is
// also the ring size.
func (b Builder) WithTerminalCount(n int) Builder {
	b.terminalCount = n
	return b
}

// WithRouterRadix sets the expected per-router radix.
func (b Builder) WithRouterRadix(n int) Builder {
	b.routerRadix = n
	return b
}

// WithPacketLength sets the number of flits per packet.
func (b Builder) WithPacketLength(n int) Builder {
	b.packetLength = n
	return b
}

// WithPacketLimit bounds the number of packets each source generates. Zero
// means unbounded.
func (b Builder) WithPacketLimit(n int) Builder {
	b.packetLimit = n
	return b
}

// WithChannelDelay sets the per-channel propagation delay in cycles.
func (b Builder) WithChannelDelay(d sim.VTimeInCycle) Builder {
	b.channelDelay = d
	return b
}

// WithInputBufSize sets the input buffer depth and initial credit count.
func (b Builder) WithInputBufSize(n int) Builder {
	b.inputBufSize = n
	return b
}

// WithConsumeInterval sets the destination consume interval in cycles.
func (b Builder) WithConsumeInterval(n sim.VTimeInCycle) Builder {
	b.consumeInterval = n
	return b
}

// WithLogger enables per-action tracing through the given logger.
func (b Builder) WithLogger(logger *log.Logger) Builder {
	b.logger = logger
	return b
}

// WithRouteRNG randomizes half-ring route ties using the given stream.
func (b Builder) WithRouteRNG(rng *rngstream.RngStream) Builder {
	b.routeRNG = rng
	return b
}

// WithDestinationFunc sets the traffic pattern. The default sends each
// source to the terminal halfway around the ring.
func (b Builder) WithDestinationFunc(f func(src int) int) Builder {
	b.destFor = f
	return b
}

// WithActiveSources limits traffic generation to the named source indices.
// By default every source offers load.
func (b Builder) WithActiveSources(indices ...int) Builder {
	b.activeSources = indices
	return b
}

// WithDataRecorder attaches a recorder that the final report writes node
// totals and latency samples into.
func (b Builder) WithDataRecorder(rec datarecording.DataRecorder) Builder {
	b.recorder = rec
	return b
}

// Build assembles the network: one channel per connection, one node per
// node ID, and a seeded tick for every source at cycle 0.
func (b Builder) Build() (*Network, error) {
	if b.engine == nil {
		return nil, errors.New("network needs an engine")
	}
	if b.channelDelay < 1 {
		return nil, errors.Errorf(
			"channel delay must be at least 1, got %d", b.channelDelay)
	}
	if b.packetLength < 2 {
		return nil, errors.Errorf(
			"packet length must be at least 2, got %d", b.packetLength)
	}
	if b.inputBufSize < 1 {
		return nil, errors.Errorf(
			"input buffer size must be at least 1, got %d", b.inputBufSize)
	}

	topology := b.topology
	if topology == nil {
		var err error
		topology, err = noc.Ring(b.terminalCount)
		if err != nil {
			return nil, err
		}
	}

	n := &Network{
		engine:       b.engine,
		topology:     topology,
		stats:        &noc.Stats{},
		inputBufSize: b.inputBufSize,
		recorder:     b.recorder,
		nodes:        make(map[noc.NodeID]*noc.Router),
	}

	bySrc := make(map[noc.RouterPortPair]*noc.Channel)
	byDst := make(map[noc.RouterPortPair]*noc.Channel)
	for _, conn := range topology.Connections() {
		ch := noc.NewChannel(b.engine, b.channelDelay, conn)
		n.channels = append(n.channels, ch)
		bySrc[conn.Src] = ch
		byDst[conn.Dst] = ch
	}

	routerCount := 0
	for _, id := range topology.Nodes() {
		if id.Kind == noc.NodeRouter {
			routerCount++
		}
	}

	routerBuilder := noc.MakeRouterBuilder().
		WithEngine(b.engine).
		WithStats(n.stats).
		WithLogger(b.logger).
		WithTopoDesc(noc.TopoDesc{Type: noc.TopoRing, K: routerCount}).
		WithPacketLength(b.packetLength).
		WithPacketLimit(b.packetLimit).
		WithInputBufSize(b.inputBufSize).
		WithConsumeInterval(b.consumeInterval).
		WithDestinationFunc(b.destFor).
		WithRouteRNG(b.routeRNG)

	for _, id := range topology.Nodes() {
		radix := topology.Radix(id)
		if id.Kind == noc.NodeRouter &&
			b.routerRadix > 0 && radix != b.routerRadix {
			return nil, errors.Errorf(
				"%v has radix %d, expected %d", id, radix, b.routerRadix)
		}

		// Sources have no input channel and destinations have no output
		// channel; router ports must be wired on both sides.
		inChs := make([]*noc.Channel, radix)
		outChs := make([]*noc.Channel, radix)
		for port := 0; port < radix; port++ {
			pair := noc.RouterPortPair{Node: id, Port: port}
			inCh, hasIn := byDst[pair]
			outCh, hasOut := bySrc[pair]

			if !hasIn && (id.Kind == noc.NodeRouter ||
				id.Kind == noc.NodeDestination) {
				return nil, errors.Errorf(
					"no channel feeds input port {%v, %d}", id, port)
			}
			if !hasOut && (id.Kind == noc.NodeRouter ||
				id.Kind == noc.NodeSource) {
				return nil, errors.Errorf(
					"no channel drains output port {%v, %d}", id, port)
			}

			inChs[port] = inCh
			outChs[port] = outCh
		}

		node := routerBuilder.Build(id, radix, inChs, outChs)
		n.nodes[id] = node
		n.nodeOrder = append(n.nodeOrder, id)
	}

	for _, ch := range n.channels {
		srcNode := n.nodes[ch.Conn.Src.Node]
		dstNode := n.nodes[ch.Conn.Dst.Node]
		ch.PlugIn(srcNode, dstNode)
	}

	// Sources kickstart the simulation. A source that is never seeded stays
	// silent for the whole run.
	active := func(int) bool { return true }
	if b.activeSources != nil {
		set := make(map[int]bool)
		for _, i := range b.activeSources {
			set[i] = true
		}
		active = func(i int) bool { return set[i] }
	}
	for _, id := range n.nodeOrder {
		if id.Kind == noc.NodeSource && active(id.Index) {
			b.engine.Schedule(sim.MakeTickEvent(n.nodes[id], 0))
		}
	}

	return n, nil
}
