package noc

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stephen422/netsim/sim"
)

func dummyChannels(engine sim.Engine, n int, node NodeID) []*Channel {
	chs := make([]*Channel, n)
	for i := range chs {
		conn := Connection{
			Src:  RouterPortPair{Node: node, Port: i},
			Dst:  RouterPortPair{Node: RtrID(99), Port: i},
			Uniq: i,
		}
		chs[i] = NewChannel(engine, 1, conn)
		chs[i].PlugIn(&tickRecorder{}, &tickRecorder{})
	}
	return chs
}

var _ = Describe("Router arbiters", func() {
	var (
		engine *sim.SerialEngine
		stats  *Stats
		router *Router
	)

	BeforeEach(func() {
		engine = sim.NewSerialEngine()
		stats = &Stats{}
		router = MakeRouterBuilder().
			WithEngine(engine).
			WithStats(stats).
			WithTopoDesc(TopoDesc{Type: TopoRing, K: 4}).
			Build(RtrID(0), 3,
				dummyChannels(engine, 3, RtrID(0)),
				dummyChannels(engine, 3, RtrID(0)))
	})

	It("should grant VC requests round-robin", func() {
		for _, iport := range []int{1, 2} {
			iu := router.InputUnit(iport)
			iu.Global = StateVCWait
			iu.RoutePort = 2
			iu.Stage = StageVA
		}

		Expect(router.vcArbitRoundRobin(2)).To(Equal(1))
		Expect(router.vcArbitRoundRobin(2)).To(Equal(2))
		Expect(router.vcArbitRoundRobin(2)).To(Equal(1))
	})

	It("should return -1 when nothing requests the output", func() {
		Expect(router.vcArbitRoundRobin(0)).To(Equal(-1))
		Expect(router.saArbitRoundRobin(0)).To(Equal(-1))
	})

	It("should skip credit-starved inputs in switch allocation", func() {
		active := router.InputUnit(1)
		active.Global = StateActive
		active.RoutePort = 2
		active.Stage = StageSA

		starved := router.InputUnit(2)
		starved.Global = StateCreditWait
		starved.RoutePort = 2
		starved.Stage = StageSA

		Expect(router.saArbitRoundRobin(2)).To(Equal(1))
		Expect(router.saArbitRoundRobin(2)).To(Equal(1))
		Expect(stats.CreditStallCount).To(BeNumerically(">", 0))
	})

	It("should refuse to commit CreditWait while credit remains", func() {
		ou := router.OutputUnit(0)
		ou.NextGlobal = StateCreditWait
		Expect(ou.CreditCount).To(BeNumerically(">", 0))

		Expect(func() { router.updateStates() }).To(Panic())
	})
})

var _ = Describe("Source node", func() {
	var (
		engine *sim.SerialEngine
		stats  *Stats
		outCh  *Channel
		source *Router
	)

	BeforeEach(func() {
		engine = sim.NewSerialEngine()
		stats = &Stats{}
		outCh = NewChannel(engine, 1, Connection{
			Src: RouterPortPair{Node: SrcID(0), Port: 0},
			Dst: RouterPortPair{Node: RtrID(0), Port: TerminalPort},
		})
		outCh.PlugIn(&tickRecorder{}, &tickRecorder{})

		source = MakeRouterBuilder().
			WithEngine(engine).
			WithStats(stats).
			WithTopoDesc(TopoDesc{Type: TopoRing, K: 4}).
			WithInputBufSize(2).
			Build(SrcID(0), 1, []*Channel{nil}, []*Channel{outCh})
	})

	It("should emit a head with a computed route first", func() {
		source.sourceGenerate()

		Expect(outCh.buf).To(HaveLen(1))
		head := outCh.buf[0].flit
		Expect(head.Type).To(Equal(FlitHead))
		Expect(head.RouteInfo.Src).To(Equal(0))
		Expect(head.RouteInfo.Dst).To(Equal(2))
		Expect(head.RouteInfo.Path).To(Equal(
			[]int{CWPort, CWPort, TerminalPort}))
	})

	It("should stall when out of credit", func() {
		source.sourceGenerate()
		source.sourceGenerate()
		Expect(source.OutputUnit(0).CreditCount).To(Equal(0))

		source.sourceGenerate()

		Expect(outCh.buf).To(HaveLen(2))
		Expect(source.GeneratedCount()).To(Equal(int64(2)))
		Expect(stats.CreditStallCount).To(Equal(int64(1)))
	})

	It("should close each packet with a tail", func() {
		source = MakeRouterBuilder().
			WithEngine(engine).
			WithStats(stats).
			WithTopoDesc(TopoDesc{Type: TopoRing, K: 4}).
			WithInputBufSize(100).
			WithPacketLength(3).
			Build(SrcID(0), 1, []*Channel{nil}, []*Channel{outCh})

		for i := 0; i < 6; i++ {
			source.sourceGenerate()
		}

		types := make([]FlitType, 0, len(outCh.buf))
		for _, tf := range outCh.buf {
			types = append(types, tf.flit.Type)
		}
		Expect(types).To(Equal([]FlitType{
			FlitHead, FlitBody, FlitTail,
			FlitHead, FlitBody, FlitTail,
		}))

		// Only the heads carry a path.
		Expect(outCh.buf[0].flit.RouteInfo.Path).NotTo(BeEmpty())
		Expect(outCh.buf[1].flit.RouteInfo.Path).To(BeEmpty())
	})

	It("should stop at the packet limit", func() {
		source = MakeRouterBuilder().
			WithEngine(engine).
			WithStats(stats).
			WithTopoDesc(TopoDesc{Type: TopoRing, K: 4}).
			WithInputBufSize(100).
			WithPacketLength(2).
			WithPacketLimit(1).
			Build(SrcID(0), 1, []*Channel{nil}, []*Channel{outCh})

		for i := 0; i < 5; i++ {
			source.sourceGenerate()
		}

		Expect(source.GeneratedCount()).To(Equal(int64(2)))
	})
})

var _ = Describe("Destination node", func() {
	var (
		engine *sim.SerialEngine
		stats  *Stats
		inCh   *Channel
		dest   *Router
	)

	BeforeEach(func() {
		engine = sim.NewSerialEngine()
		stats = &Stats{}
		inCh = NewChannel(engine, 1, Connection{
			Src: RouterPortPair{Node: RtrID(0), Port: TerminalPort},
			Dst: RouterPortPair{Node: DstID(0), Port: 0},
		})
		inCh.PlugIn(&tickRecorder{}, &tickRecorder{})

		dest = MakeRouterBuilder().
			WithEngine(engine).
			WithStats(stats).
			WithTopoDesc(TopoDesc{Type: TopoRing, K: 4}).
			Build(DstID(0), 1, []*Channel{inCh}, []*Channel{nil})
	})

	It("should consume one flit and return a credit", func() {
		flit := FlitBuilder{}.WithType(FlitHead).WithCreateTime(0).Build()
		dest.InputUnit(0).Buf = append(dest.InputUnit(0).Buf, flit)

		dest.destinationConsume()

		Expect(dest.ArrivedCount()).To(Equal(int64(1)))
		Expect(dest.InputUnit(0).Buf).To(BeEmpty())
		Expect(inCh.bufCredit).To(HaveLen(1))
		Expect(stats.Latencies).To(HaveLen(1))
	})

	It("should do nothing on an empty buffer", func() {
		dest.destinationConsume()

		Expect(dest.ArrivedCount()).To(Equal(int64(0)))
		Expect(inCh.bufCredit).To(BeEmpty())
	})
})
