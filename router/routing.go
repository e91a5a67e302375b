package router

import "github.com/tii-ssrc/sensortree/types"

// routeEntry records the next-hop child; the route's liveness is bound
// to that child's neighbor slot, so RoutingTable.InvalidateNextHop
// (driven by NeighborTable.Sweep) can clear every descendant reached
// through that child, per spec
// §3 "routing entries expire with the announcing child's liveness".
type routeEntry struct {
	nextHop types.NodeAddress
}

// RoutingTable maps a descendant address to the direct child it's
// currently reached through (spec §3 "Routing Table", §4.3). The
// spec's design notes (§9) call this out explicitly: "two-dimensional
// routing matrix → address-keyed map".
type RoutingTable struct {
	entries map[types.NodeAddress]routeEntry
}

func NewRoutingTable() *RoutingTable {
	return &RoutingTable{entries: make(map[types.NodeAddress]routeEntry)}
}

// InstallOrRefresh records that descendant is currently reachable via
// nextHop. Per §4.3 rule 3, a descendant reachable via two different
// children resolves in favor of the latest refresh — which is exactly
// what an unconditional overwrite gives us here, since refreshes only
// arrive via this call.
func (t *RoutingTable) InstallOrRefresh(descendant, nextHop types.NodeAddress) {
	t.entries[descendant] = routeEntry{nextHop: nextHop}
}

// Lookup returns the next-hop child for descendant, if any live route
// exists.
func (t *RoutingTable) Lookup(descendant types.NodeAddress) (types.NodeAddress, bool) {
	e, ok := t.entries[descendant]
	if !ok {
		return types.NodeAddress{}, false
	}
	return e.nextHop, true
}

// InvalidateNextHop removes every routing entry whose next-hop is
// child — called when child's neighbor slot is swept (spec §4.2).
func (t *RoutingTable) InvalidateNextHop(child types.NodeAddress) {
	for descendant, e := range t.entries {
		if e.nextHop.Equal(child) {
			delete(t.entries, descendant)
		}
	}
}

// Snapshot returns a copy of the descendant -> next-hop map, for
// introspection (gateway monitor, tests).
func (t *RoutingTable) Snapshot() map[types.NodeAddress]types.NodeAddress {
	out := make(map[types.NodeAddress]types.NodeAddress, len(t.entries))
	for k, v := range t.entries {
		out[k] = v.nextHop
	}
	return out
}
