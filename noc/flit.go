package noc

import (
	"fmt"

	"github.com/stephen422/netsim/sim"
)

// FlitType distinguishes the positions a flit can take within a packet.
type FlitType int

const (
	// FlitHead opens a packet and carries its route.
	FlitHead FlitType = iota
	// FlitBody carries payload between the head and the tail.
	FlitBody
	// FlitTail closes a packet and releases its VC allocation.
	FlitTail
)

func (t FlitType) String() string {
	switch t {
	case FlitHead:
		return "head"
	case FlitBody:
		return "body"
	case FlitTail:
		return "tail"
	}
	return fmt.Sprintf("FlitType(%d)", int(t))
}

// RouteInfo carries the source-computed route of a packet. Path is populated
// only on the head flit; the body and tail flits follow the head through the
// VC the head allocated.
type RouteInfo struct {
	Src  int
	Dst  int
	Path []int
	Idx  int
}

// A Flit is the smallest unit of buffering and transport on the network.
type Flit struct {
	ID         string
	Type       FlitType
	RouteInfo  RouteInfo
	Payload    int64
	CreateTime sim.VTimeInCycle
}

func (f *Flit) String() string {
	return fmt.Sprintf("{%d.p%d}", f.RouteInfo.Src, f.Payload)
}

// A FlitBuilder can build flits.
type FlitBuilder struct {
	flitType   FlitType
	src, dst   int
	payload    int64
	createTime sim.VTimeInCycle
}

// WithType sets the type of the flit to build.
func (b FlitBuilder) WithType(t FlitType) FlitBuilder {
	b.flitType = t
	return b
}

// WithSrc sets the source node index.
func (b FlitBuilder) WithSrc(src int) FlitBuilder {
	b.src = src
	return b
}

// WithDst sets the destination node index.
func (b FlitBuilder) WithDst(dst int) FlitBuilder {
	b.dst = dst
	return b
}

// WithPayload sets the payload of the flit to build.
func (b FlitBuilder) WithPayload(p int64) FlitBuilder {
	b.payload = p
	return b
}

// WithCreateTime stamps the flit with its creation cycle, used for latency
// accounting at the destination.
func (b FlitBuilder) WithCreateTime(t sim.VTimeInCycle) FlitBuilder {
	b.createTime = t
	return b
}

// Build creates a new flit.
func (b FlitBuilder) Build() *Flit {
	f := &Flit{}
	f.ID = fmt.Sprintf("flit-%s", sim.GetIDGenerator().Generate())
	f.Type = b.flitType
	f.RouteInfo.Src = b.src
	f.RouteInfo.Dst = b.dst
	f.Payload = b.payload
	f.CreateTime = b.createTime

	return f
}

// A Credit signals one freed slot in the downstream input buffer. With a
// single VC per physical channel it carries no VC field.
type Credit struct {
}
