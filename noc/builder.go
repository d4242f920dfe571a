package noc

import (
	"log"

	"github.com/iti/rngstream"

	"github.com/stephen422/netsim/sim"
)

// RouterBuilder can build network nodes of any kind.
type RouterBuilder struct {
	engine          sim.Engine
	stats           *Stats
	logger          *log.Logger
	topoDesc        TopoDesc
	packetLength    int
	packetLimit     int
	inputBufSize    int
	consumeInterval sim.VTimeInCycle
	destFor         func(src int) int
	routeRNG        *rngstream.RngStream
}

// MakeRouterBuilder creates a RouterBuilder with default parameters.
func MakeRouterBuilder() RouterBuilder {
	return RouterBuilder{
		packetLength:    4,
		inputBufSize:    100,
		consumeInterval: 1,
	}
}

// WithEngine sets the engine that drives the node.
func (b RouterBuilder) WithEngine(engine sim.Engine) RouterBuilder {
	b.engine = engine
	return b
}

// WithStats sets the shared statistics sink.
func (b RouterBuilder) WithStats(stats *Stats) RouterBuilder {
	b.stats = stats
	return b
}

// WithLogger sets the trace logger. A nil logger silences tracing.
func (b RouterBuilder) WithLogger(logger *log.Logger) RouterBuilder {
	b.logger = logger
	return b
}

// WithTopoDesc sets the routing-relevant shape of the network.
func (b RouterBuilder) WithTopoDesc(td TopoDesc) RouterBuilder {
	b.topoDesc = td
	return b
}

// WithPacketLength sets the number of flits per packet, head and tail
// included.
func (b RouterBuilder) WithPacketLength(n int) RouterBuilder {
	b.packetLength = n
	return b
}

// WithPacketLimit bounds the number of packets a source generates. Zero
// means unbounded.
func (b RouterBuilder) WithPacketLimit(n int) RouterBuilder {
	b.packetLimit = n
	return b
}

// WithInputBufSize sets the input buffer depth, which is also the initial
// credit count of every upstream output unit.
func (b RouterBuilder) WithInputBufSize(n int) RouterBuilder {
	b.inputBufSize = n
	return b
}

// WithConsumeInterval sets the minimum number of cycles between consumes at a
// destination node.
func (b RouterBuilder) WithConsumeInterval(n sim.VTimeInCycle) RouterBuilder {
	b.consumeInterval = n
	return b
}

// WithDestinationFunc sets the traffic pattern: the destination index a
// source sends to.
func (b RouterBuilder) WithDestinationFunc(f func(src int) int) RouterBuilder {
	b.destFor = f
	return b
}

// WithRouteRNG makes half-ring route ties random instead of always
// clockwise.
func (b RouterBuilder) WithRouteRNG(rng *rngstream.RngStream) RouterBuilder {
	b.routeRNG = rng
	return b
}

// Build creates a node with the given ID and channels. Source and destination
// nodes must have radix 1.
func (b RouterBuilder) Build(
	id NodeID,
	radix int,
	inputChannels, outputChannels []*Channel,
) *Router {
	if b.engine == nil {
		log.Panic("router needs an engine")
	}
	if b.stats == nil {
		log.Panic("router needs a stats sink")
	}
	if b.packetLength < 2 {
		log.Panicf("packet length must be at least 2, got %d", b.packetLength)
	}
	if b.inputBufSize < 1 {
		log.Panicf("input buffer size must be at least 1, got %d",
			b.inputBufSize)
	}
	if len(inputChannels) != radix || len(outputChannels) != radix {
		log.Panicf("%v: radix %d but %d input and %d output channels",
			id, radix, len(inputChannels), len(outputChannels))
	}
	if b.consumeInterval < 1 {
		b.consumeInterval = 1
	}

	r := &Router{
		id:                 id,
		engine:             b.engine,
		stats:              b.stats,
		logger:             b.logger,
		topoDesc:           b.topoDesc,
		packetLength:       b.packetLength,
		packetLimit:        b.packetLimit,
		inputBufSize:       b.inputBufSize,
		consumeInterval:    b.consumeInterval,
		destFor:            b.destFor,
		routeRNG:           b.routeRNG,
		lastTick:           -1,
		lastRescheduleTick: -1,
		lastConsumeTick:    -b.consumeInterval,
		inputChannels:      inputChannels,
		outputChannels:     outputChannels,
	}

	if r.destFor == nil {
		k := b.topoDesc.K
		r.destFor = func(src int) int {
			return (src + k/2) % k
		}
	}

	for port := 0; port < radix; port++ {
		r.inputUnits = append(r.inputUnits, NewInputUnit())
		r.outputUnits = append(r.outputUnits, NewOutputUnit(b.inputBufSize))
	}

	if id.Kind != NodeRouter {
		if radix != 1 {
			log.Panicf("%v: terminal nodes must have radix 1, got %d",
				id, radix)
		}
		r.inputUnits[0].RoutePort = 0
		r.outputUnits[0].InputPort = 0
	}

	return r
}
