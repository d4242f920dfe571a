package noc

import (
	"fmt"
	"log"

	"github.com/iti/rngstream"

	"github.com/stephen422/netsim/sim"
)

// A Router is a node of the network. Despite its name, it can represent any
// of a router node, a source node and a destination node; the node kind of
// its ID selects the tick behavior.
type Router struct {
	id     NodeID
	engine sim.Engine
	stats  *Stats
	logger *log.Logger

	topoDesc     TopoDesc
	packetLength int
	packetLimit  int
	inputBufSize int

	// consumeInterval is the minimum number of cycles between two consumes at
	// a destination node. The default of 1 models a sink that drains its
	// buffer every cycle.
	consumeInterval sim.VTimeInCycle

	destFor  func(src int) int
	routeRNG *rngstream.RngStream

	flitArriveCount int64
	flitGenCount    int64

	lastTick           sim.VTimeInCycle
	lastRescheduleTick sim.VTimeInCycle
	lastConsumeTick    sim.VTimeInCycle
	flitPayloadCounter int
	packetsSent        int
	rescheduleNextTick bool

	inputChannels  []*Channel
	outputChannels []*Channel
	inputUnits     []*InputUnit
	outputUnits    []*OutputUnit

	vaLastGrantInput int
	saLastGrantInput int
}

// ID returns the node ID of the router.
func (r *Router) ID() NodeID {
	return r.id
}

// Name returns the rendered node ID, e.g. "rtr2".
func (r *Router) Name() string {
	return r.id.String()
}

// Radix returns the number of ports on the router.
func (r *Router) Radix() int {
	return len(r.inputUnits)
}

// GeneratedCount returns the number of flits this node has generated.
func (r *Router) GeneratedCount() int64 {
	return r.flitGenCount
}

// ArrivedCount returns the number of flits this node has consumed.
func (r *Router) ArrivedCount() int64 {
	return r.flitArriveCount
}

// InputUnit exposes the input unit of the given port, for invariant checking.
func (r *Router) InputUnit(port int) *InputUnit {
	return r.inputUnits[port]
}

// OutputUnit exposes the output unit of the given port, for invariant
// checking.
func (r *Router) OutputUnit(port int) *OutputUnit {
	return r.outputUnits[port]
}

// Handle processes a tick event targeted at this node.
func (r *Router) Handle(_ sim.Event) error {
	r.tick()
	return nil
}

func (r *Router) tick() {
	now := r.engine.CurrentTime()

	// Tolerate being nominated by several schedulers in the same cycle.
	if now == r.lastTick {
		r.stats.DoubleTickCount++
		return
	}

	r.rescheduleNextTick = false

	switch r.id.Kind {
	case NodeSource:
		r.sourceGenerate()
		// Source nodes also manage credits in order to send flits at the
		// right time.
		r.creditUpdate()
		r.fetchCredit()
	case NodeDestination:
		r.destinationConsume()
		r.fetchFlit()
	default:
		// Stages are processed in reverse dependency order to prevent a
		// coherence bug: a flit that succeeds in routeCompute and advances to
		// the VA stage must not get processed again by vcAlloc in the same
		// cycle.
		r.switchTraverse()
		r.switchAlloc()
		r.vcAlloc()
		r.routeCompute()
		r.creditUpdate()
		r.fetchCredit()
		r.fetchFlit()
	}

	r.updateStates()

	// Reschedule once at the end of the tick to avoid flooding the event
	// queue.
	r.doReschedule()

	r.lastTick = now
}

func (r *Router) markReschedule() {
	r.rescheduleNextTick = true
}

func (r *Router) doReschedule() {
	now := r.engine.CurrentTime()
	if r.rescheduleNextTick && now != r.lastRescheduleTick {
		r.engine.Schedule(sim.MakeTickEvent(r, now+1))
		r.lastRescheduleTick = now
	}
}

func (r *Router) logf(format string, args ...interface{}) {
	if r.logger == nil {
		return
	}
	r.logger.Printf("[@%3d] [%v] %s",
		r.engine.CurrentTime(), r.id, fmt.Sprintf(format, args...))
}

func (r *Router) sourceGenerate() {
	if r.packetLimit > 0 && r.packetsSent >= r.packetLimit {
		return
	}

	ou := r.outputUnits[0]

	if ou.CreditCount <= 0 {
		r.logf("Credit stall!")
		r.stats.CreditStallCount++
		return
	}

	now := r.engine.CurrentTime()
	builder := FlitBuilder{}.
		WithType(FlitBody).
		WithSrc(r.id.Index).
		WithDst(r.destFor(r.id.Index)).
		WithPayload(int64(r.flitPayloadCounter)).
		WithCreateTime(now)

	flit := builder.Build()
	switch r.flitPayloadCounter {
	case 0:
		flit.Type = FlitHead
		flit.RouteInfo.Path = SourceRouteCompute(
			r.topoDesc, flit.RouteInfo.Src, flit.RouteInfo.Dst, r.routeRNG)
		r.logf("Source route computation: %d -> %d : %v",
			flit.RouteInfo.Src, flit.RouteInfo.Dst, flit.RouteInfo.Path)
		r.flitPayloadCounter++
	case r.packetLength - 1:
		flit.Type = FlitTail
		r.flitPayloadCounter = 0
		r.packetsSent++
	default:
		r.flitPayloadCounter++
	}

	outCh := r.outputChannels[0]
	outCh.Put(flit)

	r.logf("Credit decrement, credit=%d->%d", ou.CreditCount, ou.CreditCount-1)
	ou.CreditCount--

	r.flitGenCount++

	r.logf("Flit created and sent: %v", flit)

	// Sources offer load on every cycle they hold credit.
	r.markReschedule()
}

func (r *Router) destinationConsume() {
	iu := r.inputUnits[0]

	if len(iu.Buf) == 0 {
		return
	}

	now := r.engine.CurrentTime()
	if now-r.lastConsumeTick < r.consumeInterval {
		// Not this node's turn to drain; try again next cycle.
		r.markReschedule()
		return
	}

	flit := iu.Buf[0]
	r.logf("Destination buf size=%d", len(iu.Buf))
	r.logf("Flit arrived: %v", flit)

	r.flitArriveCount++
	r.stats.RecordLatency(now - flit.CreateTime)
	iu.Buf = iu.Buf[1:]
	r.lastConsumeTick = now

	if r.consumeInterval == 1 && len(iu.Buf) != 0 {
		log.Panicf("%v: destination buffer did not drain, %d flits left",
			r.id, len(iu.Buf))
	}

	inCh := r.inputChannels[0]
	inCh.PutCredit(Credit{})

	srcPair := inCh.Conn.Src
	r.logf("Credit sent to {%v, %d}", srcPair.Node, srcPair.Port)

	r.markReschedule()
}

func (r *Router) fetchFlit() {
	for iport := 0; iport < r.Radix(); iport++ {
		ich := r.inputChannels[iport]
		iu := r.inputUnits[iport]

		flit := ich.Get()
		if flit == nil {
			continue
		}

		r.logf("Fetched flit %v, buf.size=%d", flit, len(iu.Buf))

		// If the buffer was empty, this is the only place to kickstart the
		// pipeline.
		if len(iu.Buf) == 0 {
			r.logf("fetch: buf was empty")
			// If the input unit state was also idle (empty != idle!), start
			// the route computation stage.
			if iu.NextGlobal == StateIdle {
				iu.NextGlobal = StateRouting
				iu.Stage = StageRC
			}

			r.markReschedule()
		}

		iu.Buf = append(iu.Buf, flit)

		if len(iu.Buf) > r.inputBufSize {
			log.Panicf("%v: input buffer overflow on port %d", r.id, iport)
		}
	}
}

func (r *Router) fetchCredit() {
	for oport := 0; oport < r.Radix(); oport++ {
		ou := r.outputUnits[oport]
		och := r.outputChannels[oport]

		credit, ok := och.GetCredit()
		if !ok {
			continue
		}

		r.logf("Fetched credit, oport=%d", oport)
		ou.BufCredit = &credit
		r.markReschedule()
	}
}

func (r *Router) creditUpdate() {
	for oport := 0; oport < r.Radix(); oport++ {
		ou := r.outputUnits[oport]
		if ou.BufCredit == nil {
			continue
		}

		r.logf("Credit update, credit=%d->%d (oport=%d)",
			ou.CreditCount, ou.CreditCount+1, oport)

		// The input and output unit receiving this credit may or may not be
		// in the CreditWait state. If they are, switch them back to Active so
		// that they can proceed in the SA stage.
		if ou.InputPort == -1 {
			log.Panicf("%v: credit arrived at oport %d with no allocation",
				r.id, oport)
		}
		iu := r.inputUnits[ou.InputPort]
		if ou.CreditCount == 0 {
			if ou.NextGlobal == StateCreditWait {
				if iu.NextGlobal != StateCreditWait {
					log.Panicf("%v: output in CreditWait but input is %v",
						r.id, iu.NextGlobal)
				}
				iu.NextGlobal = StateActive
				ou.NextGlobal = StateActive
			}
			r.markReschedule()
			r.logf("Credit update with kickstart (iport=%d)", ou.InputPort)
		}

		ou.CreditCount++
		ou.BufCredit = nil
	}
}

func (r *Router) routeCompute() {
	for port := 0; port < r.Radix(); port++ {
		iu := r.inputUnits[port]

		if iu.Global != StateRouting {
			continue
		}

		if len(iu.Buf) == 0 {
			log.Panicf("%v: routing with an empty input buffer on port %d",
				r.id, port)
		}
		flit := iu.Buf[0]
		r.logf("RC: %v", flit)

		if flit.RouteInfo.Idx >= len(flit.RouteInfo.Path) {
			log.Panicf("%v: route path exhausted for %v before a terminal",
				r.id, flit)
		}
		iu.RoutePort = flit.RouteInfo.Path[flit.RouteInfo.Idx]
		r.logf("RC success for %v (idx=%d, oport=%d)",
			flit, flit.RouteInfo.Idx, iu.RoutePort)
		flit.RouteInfo.Idx++

		// RC -> VA transition.
		iu.NextGlobal = StateVCWait
		iu.Stage = StageVA
		r.markReschedule()
	}
}

// vcArbitRoundRobin expects the given output VC to be in the Idle state. It
// returns the granted input port, or -1 when there was no request.
func (r *Router) vcArbitRoundRobin(outPort int) int {
	iport := (r.vaLastGrantInput + 1) % r.Radix()
	for i := 0; i < r.Radix(); i++ {
		iu := r.inputUnits[iport]
		if iu.Global == StateVCWait && iu.RoutePort == outPort {
			if iu.Stage != StageVA {
				log.Panicf("%v: input %d in VCWait but stage is %v",
					r.id, iport, iu.Stage)
			}
			r.vaLastGrantInput = iport
			return iport
		}
		iport = (iport + 1) % r.Radix()
	}
	return -1
}

// saArbitRoundRobin expects the given output VC to be in the Active state. It
// returns the granted input port, or -1 when there was no request. Inputs
// waiting on credit are skipped.
func (r *Router) saArbitRoundRobin(outPort int) int {
	iport := (r.saLastGrantInput + 1) % r.Radix()
	for i := 0; i < r.Radix(); i++ {
		iu := r.inputUnits[iport]

		if iu.Stage == StageSA && iu.RoutePort == outPort {
			if iu.Global == StateActive {
				r.saLastGrantInput = iport
				return iport
			}
			if iu.Global == StateCreditWait {
				r.logf("Credit stall! port=%d", iu.RoutePort)
				r.stats.CreditStallCount++
			}
		}

		iport = (iport + 1) % r.Radix()
	}
	return -1
}

func (r *Router) vcAlloc() {
	for oport := 0; oport < r.Radix(); oport++ {
		ou := r.outputUnits[oport]

		// Only arbitrate for inactive output VCs.
		if ou.Global != StateIdle {
			continue
		}

		iport := r.vcArbitRoundRobin(oport)
		if iport == -1 {
			continue
		}

		iu := r.inputUnits[iport]
		r.logf("VA success for %v from iport %d to oport %d",
			iu.Buf[0], iport, oport)

		// The VC is allocated, but the SA stage cannot start until there is
		// credit.
		if ou.CreditCount == 0 {
			r.logf("VA: no credit, switching to CreditWait")
			iu.NextGlobal = StateCreditWait
			ou.NextGlobal = StateCreditWait
		} else {
			iu.NextGlobal = StateActive
			ou.NextGlobal = StateActive
		}

		ou.InputPort = iport

		iu.Stage = StageSA
		r.markReschedule()
	}
}

func (r *Router) switchAlloc() {
	for oport := 0; oport < r.Radix(); oport++ {
		ou := r.outputUnits[oport]

		// Only arbitrate for output VCs that hold credit.
		if ou.Global != StateActive {
			continue
		}

		iport := r.saArbitRoundRobin(oport)
		if iport == -1 {
			continue
		}

		iu := r.inputUnits[iport]

		// Input units in the Active state may be empty, e.g. when their body
		// flits have not arrived yet.
		if len(iu.Buf) == 0 {
			log.Panicf("%v: SA grant with an empty input buffer on port %d",
				r.id, iport)
		}

		flit := iu.Buf[0]
		r.logf("SA success for %v from iport %d to oport %d",
			flit, iport, oport)

		// The flit leaves the buffer here.
		iu.Buf = iu.Buf[1:]

		if iu.STReady != nil {
			log.Panicf("%v: switch traversal slot already occupied on port %d",
				r.id, iport)
		}
		iu.STReady = flit

		r.logf("Credit decrement, credit=%d->%d (oport=%d)",
			ou.CreditCount, ou.CreditCount-1, oport)
		if ou.CreditCount <= 0 {
			log.Panicf("%v: switch allocated with no credit on oport %d",
				r.id, oport)
		}
		ou.CreditCount--

		// Set the next state according to the flit type and the credit
		// count. Switching to CreditWait does not prevent the subsequent ST:
		// the flit that succeeded SA this cycle lives in STReady, and that is
		// the only thing the ST stage sees.
		switch {
		case flit.Type == FlitTail:
			ou.NextGlobal = StateIdle
			if len(iu.Buf) == 0 {
				iu.NextGlobal = StateIdle
				iu.Stage = StageIdle
				r.logf("SA: next state is Idle")
			} else {
				iu.NextGlobal = StateRouting
				iu.Stage = StageRC
				r.logf("SA: next state is Routing")
			}
			r.markReschedule()
		case ou.CreditCount == 0:
			iu.NextGlobal = StateCreditWait
			ou.NextGlobal = StateCreditWait
			r.logf("SA: next state is CreditWait")
		default:
			iu.NextGlobal = StateActive
			iu.Stage = StageSA
			r.logf("SA: next state is Active")
			r.markReschedule()
		}
	}
}

func (r *Router) switchTraverse() {
	for iport := 0; iport < r.Radix(); iport++ {
		iu := r.inputUnits[iport]

		if iu.STReady == nil {
			continue
		}

		flit := iu.STReady
		iu.STReady = nil
		r.logf("Switch traverse: %v", flit)

		// No output speedup: flits that exit the switch are placed directly
		// on the channel, with no output buffer in between.
		outCh := r.outputChannels[iu.RoutePort]
		outCh.Put(flit)
		dstPair := outCh.Conn.Dst
		r.logf("Flit %v sent to {%v, %d}", flit, dstPair.Node, dstPair.Port)

		// CT stage: return a credit to the upstream node.
		inCh := r.inputChannels[iport]
		inCh.PutCredit(Credit{})
		srcPair := inCh.Conn.Src
		r.logf("Credit sent to {%v, %d}", srcPair.Node, srcPair.Port)
	}
}

func (r *Router) updateStates() {
	changed := false

	for port := 0; port < r.Radix(); port++ {
		iu := r.inputUnits[port]
		ou := r.outputUnits[port]

		if iu.Global != iu.NextGlobal {
			iu.Global = iu.NextGlobal
			changed = true
		}
		if ou.Global != ou.NextGlobal {
			if ou.NextGlobal == StateCreditWait && ou.CreditCount > 0 {
				log.Panicf("%v: committing CreditWait with %d credits on oport %d",
					r.id, ou.CreditCount, port)
			}
			ou.Global = ou.NextGlobal
			changed = true
		}
	}

	// Any state change means there is more work next cycle.
	if changed {
		r.markReschedule()
	}
}
