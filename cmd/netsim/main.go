// Package main provides the netsim command, a cycle-accurate simulator for
// virtual-channel wormhole networks-on-chip.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/iti/rngstream"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/stephen422/netsim/datarecording"
	"github.com/stephen422/netsim/monitoring"
	"github.com/stephen422/netsim/network"
	"github.com/stephen422/netsim/noc"
	"github.com/stephen422/netsim/sim"
)

var (
	debug           bool
	cycles          int64
	terminals       int
	packetLength    int
	packetLimit     int
	channelDelay    int64
	bufSize         int
	consumeInterval int64
	topologyFile    string
	randomTies      bool
	seed            int64
	monitorOn       bool
	monitorPort     int
	output          string
	record          bool
)

var rootCmd = &cobra.Command{
	Use:   "netsim",
	Short: "netsim simulates flits flowing through a ring of wormhole routers",
	Long: `netsim is a discrete-event, cycle-accurate simulator for an ` +
		`on-chip network built from virtual-channel wormhole routers. ` +
		`Sources generate packets, routers forward them through the ` +
		`RC-VA-SA-ST pipeline with credit-based flow control, and ` +
		`destinations consume them.`,
	RunE: run,
}

func init() {
	flags := rootCmd.Flags()
	flags.BoolVarP(&debug, "debug", "d", false,
		"enable per-event and per-action tracing")
	flags.Int64Var(&cycles, "cycles", 10000, "simulation horizon in cycles")
	flags.IntVar(&terminals, "terminals", 4,
		"number of source/destination pairs (ring size)")
	flags.IntVar(&packetLength, "packet-length", 4,
		"flits per packet, head and tail included")
	flags.IntVar(&packetLimit, "packet-limit", 0,
		"packets per source, 0 for unbounded")
	flags.Int64Var(&channelDelay, "channel-delay", 1,
		"per-channel propagation delay in cycles")
	flags.IntVar(&bufSize, "buf-size", 100,
		"input buffer depth and initial credit count")
	flags.Int64Var(&consumeInterval, "consume-interval", 1,
		"cycles between consumes at each destination")
	flags.StringVar(&topologyFile, "topology-file", "",
		"explicit topology description (.yaml, .yml or .json)")
	flags.BoolVar(&randomTies, "random-ties", false,
		"randomize the direction of half-ring route ties")
	flags.Int64Var(&seed, "seed", 1, "seed material for the tie-break stream")
	flags.BoolVar(&monitorOn, "monitor", false, "start the HTTP monitor")
	flags.IntVar(&monitorPort, "monitor-port", 0,
		"port for the HTTP monitor, 0 for ephemeral")
	flags.BoolVar(&record, "record", false,
		"record results into a SQLite database")
	flags.StringVar(&output, "output", "",
		"name of the result database, empty for a generated one")
}

func run(_ *cobra.Command, _ []string) error {
	engine := sim.NewSerialEngine()

	var logger *log.Logger
	if debug {
		logger = log.New(os.Stdout, "", 0)
		engine.AcceptHook(sim.NewEventLogger(logger))
	}

	builder := network.MakeBuilder().
		WithEngine(engine).
		WithTerminalCount(terminals).
		WithPacketLength(packetLength).
		WithPacketLimit(packetLimit).
		WithChannelDelay(sim.VTimeInCycle(channelDelay)).
		WithInputBufSize(bufSize).
		WithConsumeInterval(sim.VTimeInCycle(consumeInterval)).
		WithLogger(logger)

	if topologyFile != "" {
		desc, err := noc.ReadTopologyDesc(topologyFile)
		if err != nil {
			return err
		}
		topology, err := desc.Build()
		if err != nil {
			return err
		}
		builder = builder.WithTopology(topology)
	}

	if randomTies {
		rng := rngstream.New(fmt.Sprintf("netsim-%d", seed))
		builder = builder.WithRouteRNG(rng)
	}

	var recorder datarecording.DataRecorder
	if record {
		recorder = datarecording.New(output)
		builder = builder.WithDataRecorder(recorder)
	}

	net, err := builder.Build()
	if err != nil {
		return err
	}

	if monitorOn {
		monitor := monitoring.NewMonitor().WithPortNumber(monitorPort)
		monitor.RegisterEngine(engine)
		for _, id := range net.Nodes() {
			monitor.RegisterNode(net.Node(id))
		}
		monitor.StartServer()
	}

	if err := net.Run(sim.VTimeInCycle(cycles)); err != nil {
		return err
	}

	net.Report(os.Stdout)

	if recorder != nil {
		recorder.Close()
	}

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}
