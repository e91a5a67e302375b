// Package router implements the per-node protocol core of the sensor
// tree: the parent-selection state machine, neighbor and routing
// tables, duplicate-suppression cache, subscription/reporting engine,
// and forwarding engine described in spec §4. Every method prefixed
// with an underscore may only be called from within the Node's own
// actor mailbox (github.com/Arceliar/phony.Inbox), matching the
// teacher's convention in state_tree.go/state_snek.go and giving the
// "no locks, atomicity is structural" property spec §5 requires.
package router

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/Arceliar/phony"
	"github.com/tii-ssrc/sensortree/timer"
	"github.com/tii-ssrc/sensortree/transport"
	"github.com/tii-ssrc/sensortree/types"
)

// Role distinguishes the two node roles named in spec §1.
type Role int

const (
	RoleSensor Role = iota
	RoleRoot
)

// Protocol constants from spec §6. Values in config.ConstantOverrides
// are not applied to these.
const (
	MaxChildren     = 10
	Timeout         = 45 * time.Second
	DataTime        = 30 * time.Second
	DedupCacheSize  = 10
	BeaconBase      = 6 * time.Second
	BeaconJitterMax = 6 * time.Second
)

// Node is the per-node actor: root and sensor share this type, with
// Role gating the small number of behavioral differences named in §4.10
// (root: rank pinned at 0, no parent timer, always beacons, never sends
// data) exactly as original_source's root_node*.c and sensor_node*.c
// are near-identical skeletons differing only in those spots.
type Node struct {
	phony.Inbox

	Self  types.NodeAddress
	Role  Role
	Clock timer.Clock
	Log   *log.Logger

	transport transport.Transport

	// Parent state (sensor only). Invariants per spec §3: HasParent =>
	// Rank < RankInfinite && !Parent.IsNull(); !HasParent => Rank ==
	// RankInfinite.
	hasParent   bool
	parent      types.NodeAddress
	rank        types.Rank
	config      types.ReportingConfig
	parentTimer timer.Timer

	neighbors *NeighborTable
	routes    *RoutingTable
	dedup     *DedupCache
	reporting *ReportingEngine
	telemetry TelemetryHandler
	peerStats map[types.NodeAddress]*PeerStats

	dataTimer timer.Timer

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRootNode constructs the root actor: rank 0 forever, no parent, and
// the gateway bridge (wired separately by package gateway) is the only
// other collaborator it needs.
func NewRootNode(self types.NodeAddress, clock timer.Clock, xport transport.Transport, logger *log.Logger) *Node {
	n := newNode(self, RoleRoot, clock, xport, logger)
	n.rank = types.RootRank
	n.hasParent = true // the root always "has" itself as its own root
	return n
}

// NewSensorNode constructs a sensor actor, orphaned until a beacon is
// received.
func NewSensorNode(self types.NodeAddress, clock timer.Clock, xport transport.Transport, logger *log.Logger) *Node {
	return newNode(self, RoleSensor, clock, xport, logger)
}

func newNode(self types.NodeAddress, role Role, clock timer.Clock, xport transport.Transport, logger *log.Logger) *Node {
	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		Self:      self,
		Role:      role,
		Clock:     clock,
		Log:       logger,
		transport: xport,
		rank:      types.RankInfinite,
		config:    types.ReportingPeriodic,
		neighbors: NewNeighborTable(clock),
		routes:    NewRoutingTable(),
		dedup:     NewDedupCache(DedupCacheSize),
		ctx:       ctx,
		cancel:    cancel,
	}
	n.reporting = NewReportingEngine(n)
	n.parentTimer = clock.NewTimer(Timeout)
	n.dataTimer = clock.NewTimer(DataTime)
	return n
}

// Close stops the node's background loops.
func (n *Node) Close() {
	n.cancel()
}

// Run drives the node's single suspension point (spec §5): it waits on
// either the jittered periodic tick or an incoming transport frame, and
// on each wake runs to completion before yielding again, exactly as the
// Contiki PROCESS_THREAD loop in original_source does.
func (n *Node) Run() {
	go n.receiveLoop()
	for {
		wait := jitteredTick()
		select {
		case <-n.ctx.Done():
			return
		case <-n.Clock.After(wait):
			n.Act(nil, func() { n._onTick() })
		}
	}
}

func jitteredTick() time.Duration {
	return BeaconBase + time.Duration(rand.Int63n(int64(BeaconJitterMax)))
}

func (n *Node) receiveLoop() {
	for {
		in, err := n.transport.Receive(n.ctx)
		if err != nil {
			return
		}
		incoming := in
		n.Act(nil, func() { n._onReceive(incoming) })
	}
}

// _onTick is the single per-wake entry point. Ordering matches spec §5
// guarantee (3): beacons precede ALIVE announcements within a tick so a
// freshly-adopted parent observes its new child the same cycle.
func (n *Node) _onTick() {
	select {
	case <-n.ctx.Done():
		return
	default:
	}

	if n.Role == RoleRoot || n.hasParent {
		n._sendBeacon()
	}
	if n.Role == RoleSensor && n.hasParent {
		n._sendAlive()
		n.reporting._onTick()
	}

	n._checkParentTimeout()
	n.neighbors.Sweep(n.routes)
}

func (n *Node) _checkParentTimeout() {
	if n.Role == RoleRoot || !n.hasParent {
		return
	}
	if n.parentTimer.Expired() {
		n._becomeOrphan()
	}
}

// _becomeOrphan implements the orphan transition of §4.1.
func (n *Node) _becomeOrphan() {
	n.hasParent = false
	n.parent = types.NullAddress
	n.rank = types.RankInfinite
	if n.Log != nil {
		n.Log.Printf("node %s: lost parent, now orphan", n.Self)
	}
}

func (n *Node) _onReceive(in transport.Incoming) {
	switch in.Channel {
	case types.ChannelBroadcast:
		n._onBeaconFrame(in.From, in.Payload)
	case types.ChannelUnicast:
		n._onAliveFrame(in.From, in.Payload)
	case types.ChannelRunicast:
		n._onRunicastFrame(in.From, in.Seqno, in.Payload)
	}
}

// HasParent reports the current attachment state; safe to call from
// any goroutine via phony.Block.
func (n *Node) HasParent() (has bool, parent types.NodeAddress, rank types.Rank) {
	phony.Block(n, func() {
		has, parent, rank = n.hasParent, n.parent, n.rank
	})
	return
}

// Config returns the node's current reporting configuration.
func (n *Node) Config() (cfg types.ReportingConfig) {
	phony.Block(n, func() { cfg = n.config })
	return
}

// Neighbors returns a snapshot of the live neighbor-table addresses:
// the direct children registered from their ALIVE announcements (the
// parent is never in this table).
func (n *Node) Neighbors() (addrs []types.NodeAddress) {
	phony.Block(n, func() { addrs = n.neighbors.LiveAddresses() })
	return
}

// Routes returns a snapshot of the routing table.
func (n *Node) Routes() (routes map[types.NodeAddress]types.NodeAddress) {
	phony.Block(n, func() { routes = n.routes.Snapshot() })
	return
}

// Tick synchronously runs one wake cycle (spec §5's single suspension
// point) without waiting for the jittered timer — used by tests and by
// tools that want to drive the protocol deterministically instead of
// through Run's real-time loop.
func (n *Node) Tick() {
	phony.Block(n, func() { n._onTick() })
}

// DeliverFrame synchronously feeds one transport.Incoming frame into
// the node, bypassing the background receive loop — used by tests that
// drive scenarios directly against transport.Medium without starting
// Run.
func (n *Node) DeliverFrame(in transport.Incoming) {
	phony.Block(n, func() { n._onReceive(in) })
}
