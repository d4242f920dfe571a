package noc

import (
	"log"

	"github.com/iti/rngstream"
)

// Ring router port usage.
const (
	// TerminalPort connects a router to its source and destination nodes.
	TerminalPort = 0
	// CCWPort leads to the counter-clockwise neighbor.
	CCWPort = 1
	// CWPort leads to the clockwise neighbor.
	CWPort = 2
)

// TopoType enumerates the topology families a TopoDesc can name.
// SourceRouteCompute routes over TopoRing only.
type TopoType int

const (
	// TopoRing is a unidimensional torus.
	TopoRing TopoType = iota
	// TopoTorus is a k-ary r-dimensional torus.
	TopoTorus
)

// A TopoDesc is the routing-relevant shape of the network: its family and
// dimensions. K is the side length and R the dimension count.
type TopoDesc struct {
	Type TopoType
	K    int
	R    int
}

// SourceRouteCompute returns the whole output-port path a packet takes from
// source to destination, ending with the terminal port that ejects the flit
// at the destination router.
//
// On a ring, the direction taken is the shorter way around; an exact half-way
// tie goes clockwise unless rng is given, in which case the tie is decided by
// a coin flip on the stream.
func SourceRouteCompute(
	td TopoDesc,
	src, dst int,
	rng *rngstream.RngStream,
) []int {
	if td.Type != TopoRing {
		log.Panicf("no route computation for topology type %d", td.Type)
	}

	total := td.K
	cwDist := (dst - src + total) % total

	clockwise := cwDist <= total/2
	if rng != nil && total%2 == 0 && cwDist == total/2 {
		clockwise = rng.RandU01() < 0.5
	}

	var path []int
	if clockwise {
		for i := 0; i < cwDist; i++ {
			path = append(path, CWPort)
		}
	} else {
		for i := 0; i < total-cwDist; i++ {
			path = append(path, CCWPort)
		}
	}
	path = append(path, TerminalPort)

	return path
}
