// Package noc models a virtual-channel wormhole network-on-chip: flits,
// credits, delay channels, and the router pipeline that moves flits from
// source nodes to destination nodes.
package noc

import (
	"fmt"
)

// NodeKind tags the role of a node in the network.
type NodeKind int

// The three kinds of node. A source generates traffic, a router forwards it,
// and a destination consumes it.
const (
	NodeSource NodeKind = iota
	NodeRouter
	NodeDestination
)

func (k NodeKind) String() string {
	switch k {
	case NodeSource:
		return "src"
	case NodeRouter:
		return "rtr"
	case NodeDestination:
		return "dst"
	}
	return fmt.Sprintf("NodeKind(%d)", int(k))
}

// A NodeID identifies one node in the network. IDs order totally by kind
// first and index second.
type NodeID struct {
	Kind  NodeKind
	Index int
}

// SrcID returns the ID of the i-th source node.
func SrcID(i int) NodeID {
	return NodeID{Kind: NodeSource, Index: i}
}

// RtrID returns the ID of the i-th router node.
func RtrID(i int) NodeID {
	return NodeID{Kind: NodeRouter, Index: i}
}

// DstID returns the ID of the i-th destination node.
func DstID(i int) NodeID {
	return NodeID{Kind: NodeDestination, Index: i}
}

func (id NodeID) String() string {
	return fmt.Sprintf("%v%d", id.Kind, id.Index)
}

// Before reports whether id orders before other, by kind then index.
func (id NodeID) Before(other NodeID) bool {
	if id.Kind != other.Kind {
		return id.Kind < other.Kind
	}
	return id.Index < other.Index
}
