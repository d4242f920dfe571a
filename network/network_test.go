package network

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stephen422/netsim/noc"
	"github.com/stephen422/netsim/sim"
)

var _ = Describe("Network", func() {
	var engine *sim.SerialEngine

	BeforeEach(func() {
		engine = sim.NewSerialEngine()
	})

	// The scenarios run on a ring of 4 with radix-3 routers, 3-deep buffers
	// and delay-1 channels.
	baseBuilder := func() Builder {
		return MakeBuilder().
			WithEngine(engine).
			WithTerminalCount(4).
			WithInputBufSize(3).
			WithChannelDelay(1).
			WithPacketLength(3).
			WithPacketLimit(1)
	}

	It("should deliver a lone packet clockwise", func() {
		net, err := baseBuilder().
			WithActiveSources(0).
			Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(net.Run(1000)).To(Succeed())

		Expect(net.Node(noc.SrcID(0)).GeneratedCount()).To(Equal(int64(3)))
		Expect(net.Node(noc.DstID(2)).ArrivedCount()).To(Equal(int64(3)))
		for _, i := range []int{0, 1, 3} {
			Expect(net.Node(noc.DstID(i)).ArrivedCount()).To(BeZero())
		}
		Expect(engine.Pending()).To(BeZero())
	})

	It("should deliver a lone packet counter-clockwise", func() {
		net, err := baseBuilder().
			WithActiveSources(0).
			WithDestinationFunc(func(src int) int { return (src + 3) % 4 }).
			Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(net.Run(1000)).To(Succeed())

		Expect(net.Node(noc.DstID(3)).ArrivedCount()).To(Equal(int64(3)))
		Expect(net.Node(noc.DstID(2)).ArrivedCount()).To(BeZero())
	})

	It("should return to all-idle quiescence after delivery", func() {
		net, err := baseBuilder().
			WithActiveSources(0).
			Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(net.Run(1000)).To(Succeed())

		Expect(net.Quiescent()).To(BeTrue())
		Expect(engine.Pending()).To(BeZero())
	})

	It("should ride out credit stalls into a slow destination", func() {
		net, err := baseBuilder().
			WithPacketLength(10).
			WithConsumeInterval(5).
			WithActiveSources(0).
			Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(net.Run(5000)).To(Succeed())

		generated := net.Node(noc.SrcID(0)).GeneratedCount()
		arrived := net.Node(noc.DstID(2)).ArrivedCount()
		Expect(generated).To(Equal(int64(10)))
		Expect(arrived).To(Equal(generated))
		Expect(net.Stats().CreditStallCount).To(BeNumerically(">", 0))
		Expect(net.Quiescent()).To(BeTrue())
	})

	It("should interleave contending sources fairly", func() {
		net, err := baseBuilder().
			WithActiveSources(0, 1).
			WithDestinationFunc(func(src int) int { return 2 }).
			Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(net.Run(1000)).To(Succeed())

		Expect(net.Node(noc.DstID(2)).ArrivedCount()).To(Equal(int64(6)))
		Expect(net.Node(noc.SrcID(0)).GeneratedCount()).To(Equal(int64(3)))
		Expect(net.Node(noc.SrcID(1)).GeneratedCount()).To(Equal(int64(3)))
		Expect(net.Stats().DoubleTickCount).To(BeNumerically(">", 0))
		Expect(net.Quiescent()).To(BeTrue())
	})

	It("should record one latency sample per consumed flit", func() {
		net, err := baseBuilder().
			WithActiveSources(0).
			Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(net.Run(1000)).To(Succeed())

		Expect(net.Stats().Latencies).To(HaveLen(3))
		for _, l := range net.Stats().Latencies {
			Expect(l).To(BeNumerically(">", 0))
		}
	})

	It("should keep offering load without a packet limit", func() {
		net, err := MakeBuilder().
			WithEngine(engine).
			WithTerminalCount(4).
			WithPacketLength(3).
			Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(net.Run(300)).To(Succeed())

		var generated, arrived int64
		for i := 0; i < 4; i++ {
			generated += net.Node(noc.SrcID(i)).GeneratedCount()
			arrived += net.Node(noc.DstID(i)).ArrivedCount()
		}
		Expect(generated).To(BeNumerically(">", 0))
		Expect(arrived).To(BeNumerically(">", 0))
		Expect(arrived).To(BeNumerically("<=", generated))
	})

	It("should report totals and latency statistics", func() {
		net, err := baseBuilder().
			WithActiveSources(0).
			Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(net.Run(1000)).To(Succeed())

		var buf bytes.Buffer
		net.Report(&buf)

		Expect(buf.String()).To(ContainSubstring("src0: generated 3 flits"))
		Expect(buf.String()).To(ContainSubstring("dst2: arrived 3 flits"))
		Expect(buf.String()).To(ContainSubstring("double ticks:"))
		Expect(buf.String()).To(ContainSubstring("flit latency: mean"))
	})
})
