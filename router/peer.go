package router

import (
	"github.com/Arceliar/phony"
	"go.uber.org/atomic"

	"github.com/tii-ssrc/sensortree/types"
)

// PeerStats is a lock-free per-neighbor counter block, grounded on the
// teacher pack's own router.Peer pattern (peerStatistics in the
// matrix-org/pinecone lineage): every field is touched with atomic
// ops so the monitor surface (gateway/monitor) reads live traffic
// counters outside the node's actor mailbox; only the map of counter
// blocks is copied inside it.
type PeerStats struct {
	RxBeacons   atomic.Uint64
	RxAlive     atomic.Uint64
	RxData      atomic.Uint64
	RxSubUpdate atomic.Uint64
	RxDuplicate atomic.Uint64
	RxDropped   atomic.Uint64
}

// PeerStatsSnapshot is the plain-value copy handed out to callers
// outside the actor.
type PeerStatsSnapshot struct {
	RxBeacons   uint64
	RxAlive     uint64
	RxData      uint64
	RxSubUpdate uint64
	RxDuplicate uint64
	RxDropped   uint64
}

func (s *PeerStats) snapshot() PeerStatsSnapshot {
	return PeerStatsSnapshot{
		RxBeacons:   s.RxBeacons.Load(),
		RxAlive:     s.RxAlive.Load(),
		RxData:      s.RxData.Load(),
		RxSubUpdate: s.RxSubUpdate.Load(),
		RxDuplicate: s.RxDuplicate.Load(),
		RxDropped:   s.RxDropped.Load(),
	}
}

// _peerStats returns (creating if necessary) the stats block for addr.
// Actor-only: the map itself is mutated exclusively from within the
// node's mailbox, which is why insertion needs no lock; the counters
// inside each block are atomic so a concurrent reader (PeerStats
// below) enters the mailbox only to copy the map, not to read them.
func (n *Node) _peerStats(addr types.NodeAddress) *PeerStats {
	if n.peerStats == nil {
		n.peerStats = make(map[types.NodeAddress]*PeerStats)
	}
	s, ok := n.peerStats[addr]
	if !ok {
		s = &PeerStats{}
		n.peerStats[addr] = s
	}
	return s
}

// PeerStats returns a snapshot of every known neighbor's traffic
// counters. The map of pointers (one per sender this node has heard a
// frame from) is copied inside the actor, after which every counter read happens
// lock-free outside it.
func (n *Node) PeerStats() map[types.NodeAddress]PeerStatsSnapshot {
	var blocks map[types.NodeAddress]*PeerStats
	phony.Block(n, func() {
		blocks = make(map[types.NodeAddress]*PeerStats, len(n.peerStats))
		for addr, s := range n.peerStats {
			blocks[addr] = s
		}
	})
	out := make(map[types.NodeAddress]PeerStatsSnapshot, len(blocks))
	for addr, s := range blocks {
		out[addr] = s.snapshot()
	}
	return out
}
