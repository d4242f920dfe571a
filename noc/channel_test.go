package noc

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stephen422/netsim/sim"
)

// tickRecorder records the times of the ticks delivered to it.
type tickRecorder struct {
	ticks []sim.VTimeInCycle
}

func (h *tickRecorder) Handle(e sim.Event) error {
	h.ticks = append(h.ticks, e.Time())
	return nil
}

var _ = Describe("Channel", func() {
	var (
		engine  *sim.SerialEngine
		channel *Channel
		srcNode *tickRecorder
		dstNode *tickRecorder
	)

	conn := Connection{
		Src: RouterPortPair{Node: RtrID(0), Port: CWPort},
		Dst: RouterPortPair{Node: RtrID(1), Port: CCWPort},
	}

	BeforeEach(func() {
		engine = sim.NewSerialEngine()
		channel = NewChannel(engine, 2, conn)
		srcNode = &tickRecorder{}
		dstNode = &tickRecorder{}
		channel.PlugIn(srcNode, dstNode)
	})

	It("should reject delays below one cycle", func() {
		Expect(func() { NewChannel(engine, 0, conn) }).To(Panic())
	})

	It("should wake the receiver exactly at the release time", func() {
		flit := FlitBuilder{}.WithType(FlitHead).Build()
		channel.Put(flit)

		Expect(engine.Run()).To(Succeed())
		Expect(dstNode.ticks).To(Equal([]sim.VTimeInCycle{2}))
		Expect(srcNode.ticks).To(BeEmpty())
	})

	It("should hold a flit until the release time", func() {
		flit := FlitBuilder{}.WithType(FlitHead).Build()
		channel.Put(flit)

		// Repeated early gets return nothing and do not mutate the buffer.
		Expect(channel.Get()).To(BeNil())
		Expect(channel.Get()).To(BeNil())

		Expect(engine.Run()).To(Succeed())
		Expect(engine.CurrentTime()).To(Equal(sim.VTimeInCycle(2)))
		Expect(channel.Get()).To(BeIdenticalTo(flit))
		Expect(channel.Get()).To(BeNil())
	})

	It("should panic on a stagnant flit", func() {
		flit := FlitBuilder{}.WithType(FlitHead).Build()
		channel.Put(flit)

		// Let the delivery cycle pass without consuming the flit.
		engine.Schedule(sim.MakeTickEvent(&tickRecorder{}, 5))
		Expect(engine.Run()).To(Succeed())

		Expect(func() { channel.Get() }).To(Panic())
	})

	It("should carry credits toward the flit sender", func() {
		channel.PutCredit(Credit{})

		_, ok := channel.GetCredit()
		Expect(ok).To(BeFalse())

		Expect(engine.Run()).To(Succeed())
		Expect(srcNode.ticks).To(Equal([]sim.VTimeInCycle{2}))
		Expect(dstNode.ticks).To(BeEmpty())

		_, ok = channel.GetCredit()
		Expect(ok).To(BeTrue())
		_, ok = channel.GetCredit()
		Expect(ok).To(BeFalse())
	})

	It("should keep flits in arrival order", func() {
		first := FlitBuilder{}.WithType(FlitHead).WithPayload(0).Build()
		channel.Put(first)

		Expect(engine.RunUntil(0)).To(Succeed())

		second := FlitBuilder{}.WithType(FlitBody).WithPayload(1).Build()

		// Move to cycle 1 and put the second flit.
		engine.Schedule(sim.MakeTickEvent(&tickRecorder{}, 1))
		Expect(engine.RunUntil(1)).To(Succeed())
		channel.Put(second)

		Expect(engine.RunUntil(2)).To(Succeed())
		Expect(channel.Get()).To(BeIdenticalTo(first))

		Expect(engine.RunUntil(3)).To(Succeed())
		Expect(channel.Get()).To(BeIdenticalTo(second))
	})
})
