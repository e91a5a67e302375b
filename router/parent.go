package router

import (
	"github.com/tii-ssrc/sensortree/codec"
	"github.com/tii-ssrc/sensortree/types"
)

// _onBeaconFrame implements the parent-selection state machine of spec
// §4.1, adapted from the teacher's _handleTreeAnnouncement in
// state_tree.go: there, a beacon is accepted when it carries a better
// root key; here, shortest-hop-count is the only metric; the adopt /
// refresh / ignore trichotomy is otherwise the same shape.
func (n *Node) _onBeaconFrame(from types.NodeAddress, payload []byte) {
	if n.Role == RoleRoot {
		// The root has no parent to select; it only ever sends beacons.
		return
	}
	f, err := codec.DecodeBeacon(payload)
	if err != nil {
		if n.Log != nil {
			n.Log.Printf("node %s: dropping malformed beacon from %s: %v", n.Self, from, err)
		}
		n._peerStats(from).RxDropped.Inc()
		return
	}
	n._peerStats(from).RxBeacons.Inc()

	switch {
	case f.Rank+1 < n.rank:
		// Adopt: strictly shorter hop count than our current rank.
		n._adoptParent(from, f.Rank+1, f.Config)

	case n.hasParent && from.Equal(n.parent):
		// Refresh: our current parent re-announced.
		n.parentTimer.Restart()
		if f.Rank < n.rank {
			// A beacon whose rank is strictly lower than ours is
			// authoritative for configuration (spec §4.1).
			n.config = f.Config
		}

	default:
		// Ignore: neither a better parent nor our current one.
	}
}

func (n *Node) _adoptParent(parent types.NodeAddress, rank types.Rank, cfg types.ReportingConfig) {
	n.hasParent = true
	n.parent = parent
	n.rank = rank
	n.config = cfg
	n.parentTimer.Restart()
	if n.Log != nil {
		n.Log.Printf("node %s: adopted parent %s, rank %d", n.Self, parent, rank)
	}
}

// _sendBeacon implements spec §4.4: root and every attached sensor
// broadcast "O<rank><cfg>" each tick. Orphan sensors must not beacon —
// _onTick already gates the call on n.hasParent for sensors.
func (n *Node) _sendBeacon() {
	payload := codec.EncodeBeacon(n.rank, n.config)
	if err := n.transport.SendBroadcast(payload); err != nil && n.Log != nil {
		n.Log.Printf("node %s: beacon send failed: %v", n.Self, err)
	}
}
