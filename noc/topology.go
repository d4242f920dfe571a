package noc

import (
	"sort"

	"github.com/pkg/errors"
)

// A RouterPortPair addresses one port of one node. It is the endpoint of a
// channel.
type RouterPortPair struct {
	Node NodeID
	Port int
}

// A Connection is one unidirectional channel between two ports. Uniq is the
// creation order of the connection; it gives channels a stable, deterministic
// numbering.
type Connection struct {
	Src  RouterPortPair
	Dst  RouterPortPair
	Uniq int
}

// A Topology encodes channel connectivity in a bidirectional map. It supports
// construction-time checking for connectivity errors.
type Topology struct {
	forward map[RouterPortPair]Connection
	reverse map[RouterPortPair]Connection
}

// NewTopology creates an empty Topology.
func NewTopology() *Topology {
	return &Topology{
		forward: make(map[RouterPortPair]Connection),
		reverse: make(map[RouterPortPair]Connection),
	}
}

// Connect wires src to dst with one unidirectional channel. It fails, leaving
// the topology unchanged, if either side is already bound.
func (t *Topology) Connect(src, dst RouterPortPair) error {
	if _, bound := t.forward[src]; bound {
		return errors.Errorf(
			"output port {%v, %d} is already connected", src.Node, src.Port)
	}
	if _, bound := t.reverse[dst]; bound {
		return errors.Errorf(
			"input port {%v, %d} is already connected", dst.Node, dst.Port)
	}

	conn := Connection{Src: src, Dst: dst, Uniq: len(t.forward)}
	t.forward[src] = conn
	t.reverse[dst] = conn

	return nil
}

// FindForward returns the connection whose output side is the given port.
func (t *Topology) FindForward(out RouterPortPair) (Connection, bool) {
	conn, ok := t.forward[out]
	return conn, ok
}

// FindReverse returns the connection whose input side is the given port.
func (t *Topology) FindReverse(in RouterPortPair) (Connection, bool) {
	conn, ok := t.reverse[in]
	return conn, ok
}

// Connections returns all connections ordered by creation. The order is what
// makes channel construction deterministic from run to run.
func (t *Topology) Connections() []Connection {
	conns := make([]Connection, 0, len(t.forward))
	for _, conn := range t.forward {
		conns = append(conns, conn)
	}
	sort.Slice(conns, func(i, j int) bool {
		return conns[i].Uniq < conns[j].Uniq
	})
	return conns
}

// Nodes returns the IDs of every node that appears in the topology, ordered
// by kind then index.
func (t *Topology) Nodes() []NodeID {
	seen := make(map[NodeID]bool)
	for _, conn := range t.forward {
		seen[conn.Src.Node] = true
		seen[conn.Dst.Node] = true
	}

	ids := make([]NodeID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].Before(ids[j])
	})
	return ids
}

// Radix returns the number of ports the given node uses, that is, one more
// than the highest port number bound on either direction.
func (t *Topology) Radix(id NodeID) int {
	radix := 0
	for _, conn := range t.forward {
		if conn.Src.Node == id && conn.Src.Port+1 > radix {
			radix = conn.Src.Port + 1
		}
		if conn.Dst.Node == id && conn.Dst.Port+1 > radix {
			radix = conn.Dst.Port + 1
		}
	}
	return radix
}

// connectTerminals wires each router's terminal port to the source and
// destination nodes that share the router's index, bidirectionally.
func (t *Topology) connectTerminals(ids []int) error {
	for _, id := range ids {
		srcPort := RouterPortPair{Node: SrcID(id), Port: 0}
		dstPort := RouterPortPair{Node: DstID(id), Port: 0}
		rtrPort := RouterPortPair{Node: RtrID(id), Port: TerminalPort}

		if err := t.Connect(srcPort, rtrPort); err != nil {
			return errors.Wrap(err, "connecting terminals")
		}
		if err := t.Connect(rtrPort, dstPort); err != nil {
			return errors.Wrap(err, "connecting terminals")
		}
	}
	return nil
}

// connectRing wires consecutive routers bidirectionally, clockwise out of
// port 2 and counter-clockwise out of port 1.
func (t *Topology) connectRing(ids []int) error {
	for i := range ids {
		l := ids[i]
		r := ids[(i+1)%len(ids)]
		lport := RouterPortPair{Node: RtrID(l), Port: CWPort}
		rport := RouterPortPair{Node: RtrID(r), Port: CCWPort}

		if err := t.Connect(lport, rport); err != nil {
			return errors.Wrap(err, "connecting ring")
		}
		if err := t.Connect(rport, lport); err != nil {
			return errors.Wrap(err, "connecting ring")
		}
	}
	return nil
}

// Ring builds the topology of a ring of n routers, each with a source and a
// destination attached to its terminal port.
func Ring(n int) (*Topology, error) {
	if n < 2 {
		return nil, errors.Errorf("ring needs at least 2 routers, got %d", n)
	}

	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}

	t := NewTopology()
	if err := t.connectRing(ids); err != nil {
		return nil, err
	}
	if err := t.connectTerminals(ids); err != nil {
		return nil, err
	}
	return t, nil
}

// Torus builds a k-ary r-dimensional torus topology.
//
// TODO: implement once a dimension-order route computation exists; the ring
// is the only topology the source router can currently route over.
func Torus(k, r int) (*Topology, error) {
	return nil, errors.Errorf("torus(%d,%d) topology is not implemented", k, r)
}

// FromConnections builds a topology from an explicit list of (src, dst) port
// pairs.
func FromConnections(pairs [][2]RouterPortPair) (*Topology, error) {
	t := NewTopology()
	for _, pair := range pairs {
		if err := t.Connect(pair[0], pair[1]); err != nil {
			return nil, err
		}
	}
	return t, nil
}
