package router

import (
	"sort"

	"github.com/tii-ssrc/sensortree/codec"
	"github.com/tii-ssrc/sensortree/types"
)

// _sendAlive implements spec §4.3: at each tick, a sensor with a parent
// transmits "A" plus every node it can currently reach to its parent
// via best-effort unicast — its direct children (n.neighbors) plus
// every deeper descendant reached through them (n.routes) — matching
// original_source's children_nodes list, which holds both. The
// sender's own address is implicit in the packet's `from`, matching
// original_source's unicast_send, which never encodes the source in
// the payload. The list is sorted for deterministic announcement
// generation (spec §9).
func (n *Node) _sendAlive() {
	seen := make(map[types.NodeAddress]bool)
	list := make([]types.NodeAddress, 0)
	for _, child := range n.neighbors.LiveAddresses() {
		if !seen[child] {
			seen[child] = true
			list = append(list, child)
		}
	}
	for d := range n.routes.Snapshot() {
		if !seen[d] {
			seen[d] = true
			list = append(list, d)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].A != list[j].A {
			return list[i].A < list[j].A
		}
		return list[i].B < list[j].B
	})

	payload := codec.EncodeAlive(list)
	if err := n.transport.SendUnicast(n.parent, payload); err != nil && n.Log != nil {
		n.Log.Printf("node %s: alive send failed: %v", n.Self, err)
	}
}

// _onAliveFrame implements the receive side of spec §4.3: root and
// sensor parse identically (the root simply never forwards upward).
func (n *Node) _onAliveFrame(from types.NodeAddress, payload []byte) {
	if !from.InRange() {
		// Address out of range: drop, per §7.
		return
	}
	f, err := codec.DecodeAlive(payload)
	if err != nil {
		if n.Log != nil {
			n.Log.Printf("node %s: dropping malformed alive frame from %s: %v", n.Self, from, err)
		}
		n._peerStats(from).RxDropped.Inc()
		return
	}
	n._peerStats(from).RxAlive.Inc()

	if ok := n.neighbors.RegisterOrRefresh(from); !ok {
		// Table full (§7): drop the registration; a later sweep may
		// reclaim a slot. The descendant list is still meaningless
		// without a live child slot, so there's nothing further to do.
		return
	}
	// The child itself is reachable via itself, mirroring
	// original_source's children_nodes[from] = from: without this, a
	// direct child has no routing-table entry at all, since routes only
	// ever holds entries installed from ALIVE payloads.
	n.routes.InstallOrRefresh(from, from)
	for _, d := range f.Descendants {
		// Latest refresh wins (§4.3 rule 3): installing unconditionally
		// overwrites any prior owner of this descendant.
		n.routes.InstallOrRefresh(d, from)
	}
}
