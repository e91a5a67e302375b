// Package simtest builds static topologies over transport.Medium and
// real router.Node actors, then checks the tree's post-convergence
// shape against an independently computed shortest-hop-count oracle
// from github.com/RyanCarrier/dijkstra — so the Convergence law of §8
// is checked against a solver that shares none of router's own
// parent-selection logic, rather than re-deriving the same arithmetic
// under test.
package simtest

import (
	"fmt"
	"time"

	"github.com/RyanCarrier/dijkstra"

	"github.com/tii-ssrc/sensortree/router"
	"github.com/tii-ssrc/sensortree/timer"
	"github.com/tii-ssrc/sensortree/transport"
	"github.com/tii-ssrc/sensortree/types"
)

// Topology is a static adjacency list of which addresses can hear each
// other directly; it drives both the in-memory medium's DropLink hook
// and the oracle graph.
type Topology struct {
	Root  types.NodeAddress
	Edges map[types.NodeAddress][]types.NodeAddress
}

// vertexIDs assigns dijkstra's required small-int vertex IDs to every
// address appearing in the topology.
func (tp Topology) vertexIDs() (ids map[types.NodeAddress]int, addrs []types.NodeAddress) {
	ids = make(map[types.NodeAddress]int)
	seen := func(a types.NodeAddress) {
		if _, ok := ids[a]; !ok {
			ids[a] = len(addrs)
			addrs = append(addrs, a)
		}
	}
	seen(tp.Root)
	for from, neighbors := range tp.Edges {
		seen(from)
		for _, to := range neighbors {
			seen(to)
		}
	}
	return ids, addrs
}

// OracleHops computes, for every address in the topology, the
// ground-truth minimum hop count to Root via Dijkstra's algorithm with
// unit edge weights — the independent check for router's own
// rank-by-beacon convergence.
func (tp Topology) OracleHops() (map[types.NodeAddress]int, error) {
	ids, addrs := tp.vertexIDs()

	graph := dijkstra.NewGraph()
	for _, a := range addrs {
		graph.AddVertex(ids[a])
	}
	for from, neighbors := range tp.Edges {
		for _, to := range neighbors {
			if err := graph.AddArc(ids[from], ids[to], 1); err != nil {
				return nil, fmt.Errorf("simtest: add arc %s->%s: %w", from, to, err)
			}
			if err := graph.AddArc(ids[to], ids[from], 1); err != nil {
				return nil, fmt.Errorf("simtest: add arc %s->%s: %w", to, from, err)
			}
		}
	}

	hops := make(map[types.NodeAddress]int, len(addrs))
	rootID := ids[tp.Root]
	for _, a := range addrs {
		if a.Equal(tp.Root) {
			hops[a] = 0
			continue
		}
		best, err := graph.Shortest(rootID, ids[a])
		if err != nil {
			hops[a] = -1 // unreachable in this topology
			continue
		}
		hops[a] = int(best.Distance)
	}
	return hops, nil
}

// Harness wires a Topology onto a transport.Medium and a set of real
// router.Node actors, enforcing the adjacency via Medium.DropLink.
type Harness struct {
	Topology Topology
	Medium   *transport.Medium
	Clock    *timer.Virtual
	Nodes    map[types.NodeAddress]*router.Node
	links    map[types.NodeAddress]*transport.MediumLink
}

// NewHarness builds the medium, attaches one node per address named in
// tp, and installs the DropLink hook that makes the medium behave like
// tp's adjacency instead of a full mesh.
func NewHarness(tp Topology) *Harness {
	h := &Harness{
		Topology: tp,
		Medium:   transport.NewMedium(),
		Clock:    timer.NewVirtual(time.Unix(0, 0)),
		Nodes:    make(map[types.NodeAddress]*router.Node),
		links:    make(map[types.NodeAddress]*transport.MediumLink),
	}

	adjacent := func(a, b types.NodeAddress) bool {
		if a.Equal(b) {
			return true
		}
		for _, n := range tp.Edges[a] {
			if n.Equal(b) {
				return true
			}
		}
		for _, n := range tp.Edges[b] {
			if n.Equal(a) {
				return true
			}
		}
		return false
	}
	h.Medium.DropLink = func(from, to types.NodeAddress, broadcast bool) bool {
		return !adjacent(from, to)
	}

	_, addrs := tp.vertexIDs()
	for _, addr := range addrs {
		link := h.Medium.Join(addr)
		h.links[addr] = link
		if addr.Equal(tp.Root) {
			h.Nodes[addr] = router.NewRootNode(addr, h.Clock, link, nil)
		} else {
			h.Nodes[addr] = router.NewSensorNode(addr, h.Clock, link, nil)
		}
	}
	return h
}

// Settle runs rounds ticks, draining every node's pending frames after
// each tick, giving the tree time to converge. Nodes are ticked and
// drained in vertexIDs order: the root first, then the order of
// Topology.Edges map iteration.
func (h *Harness) Settle(rounds int) {
	_, addrs := h.Topology.vertexIDs()
	for i := 0; i < rounds; i++ {
		for _, addr := range addrs {
			h.Nodes[addr].Tick()
			h.drainAll()
		}
	}
}

func (h *Harness) drainAll() {
	_, addrs := h.Topology.vertexIDs()
	for _, addr := range addrs {
		link := h.links[addr]
		node := h.Nodes[addr]
		for {
			in, ok := link.TryReceive()
			if !ok {
				break
			}
			node.DeliverFrame(in)
		}
	}
}

// Ranks returns the converged rank of every node, for comparison
// against OracleHops.
func (h *Harness) Ranks() map[types.NodeAddress]types.Rank {
	_, addrs := h.Topology.vertexIDs()
	out := make(map[types.NodeAddress]types.Rank, len(addrs))
	for _, addr := range addrs {
		_, _, rank := h.Nodes[addr].HasParent()
		out[addr] = rank
	}
	return out
}
