package noc

import (
	"log"

	"github.com/stephen422/netsim/sim"
)

type timedFlit struct {
	releaseTime sim.VTimeInCycle
	flit        *Flit
}

type timedCredit struct {
	releaseTime sim.VTimeInCycle
	credit      Credit
}

// A Channel is a unidirectional delay line between two ports. Flits travel
// from the source port to the destination port; credits travel the opposite
// way on the same channel object. Every item becomes visible to the receiver
// exactly delay cycles after it was put.
type Channel struct {
	Conn  Connection
	Delay sim.VTimeInCycle

	engine    sim.Engine
	srcNode   sim.Handler
	dstNode   sim.Handler
	buf       []timedFlit
	bufCredit []timedCredit
}

// NewChannel creates a channel for the given connection.
func NewChannel(
	engine sim.Engine,
	delay sim.VTimeInCycle,
	conn Connection,
) *Channel {
	if delay < 1 {
		log.Panicf("channel delay must be at least 1, got %d", delay)
	}

	return &Channel{
		Conn:   conn,
		Delay:  delay,
		engine: engine,
	}
}

// PlugIn attaches the nodes on both ends of the channel. The channel wakes
// the destination node when a flit becomes deliverable and the source node
// when a credit does.
func (c *Channel) PlugIn(srcNode, dstNode sim.Handler) {
	c.srcNode = srcNode
	c.dstNode = dstNode
}

// Put places a flit on the channel. The receiver is scheduled to tick exactly
// when the flit becomes deliverable, so delivery needs no polling.
func (c *Channel) Put(flit *Flit) {
	now := c.engine.CurrentTime()
	c.buf = append(c.buf, timedFlit{releaseTime: now + c.Delay, flit: flit})
	c.engine.Schedule(sim.MakeTickEvent(c.dstNode, now+c.Delay))
}

// PutCredit places a credit on the channel, traveling toward the flit sender.
func (c *Channel) PutCredit(credit Credit) {
	now := c.engine.CurrentTime()
	c.bufCredit = append(c.bufCredit,
		timedCredit{releaseTime: now + c.Delay, credit: credit})
	c.engine.Schedule(sim.MakeTickEvent(c.srcNode, now+c.Delay))
}

// Get pops the front flit if its release time is now. A front flit whose
// release time has already passed means the receiver missed a delivery, which
// is a protocol error.
func (c *Channel) Get() *Flit {
	if len(c.buf) == 0 {
		return nil
	}

	front := c.buf[0]
	now := c.engine.CurrentTime()
	if now < front.releaseTime {
		return nil
	}
	if now > front.releaseTime {
		log.Panicf("stagnant flit in channel %v->%v: released at %d, now %d",
			c.Conn.Src.Node, c.Conn.Dst.Node, front.releaseTime, now)
	}

	c.buf = c.buf[1:]
	return front.flit
}

// GetCredit pops the front credit if its release time is now.
func (c *Channel) GetCredit() (Credit, bool) {
	if len(c.bufCredit) == 0 {
		return Credit{}, false
	}

	front := c.bufCredit[0]
	now := c.engine.CurrentTime()
	if now < front.releaseTime {
		return Credit{}, false
	}
	if now > front.releaseTime {
		log.Panicf("stagnant credit in channel %v->%v: released at %d, now %d",
			c.Conn.Src.Node, c.Conn.Dst.Node, front.releaseTime, now)
	}

	c.bufCredit = c.bufCredit[1:]
	return front.credit, true
}
