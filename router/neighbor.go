package router

import (
	"github.com/tii-ssrc/sensortree/timer"
	"github.com/tii-ssrc/sensortree/types"
)

// neighborSlot is one entry of the bounded neighbor table (spec §3
// "NeighborEntry"): address == NullAddress iff the slot is free.
type neighborSlot struct {
	address types.NodeAddress
	liveness timer.Timer
}

// NeighborTable tracks up to MaxChildren direct children (spec §4.2).
// Slot allocation is deterministic — lowest index first — per the §9
// open-question resolution ("first empty slot, break").
type NeighborTable struct {
	clock timer.Clock
	slots [MaxChildren]neighborSlot
}

func NewNeighborTable(clock timer.Clock) *NeighborTable {
	t := &NeighborTable{clock: clock}
	for i := range t.slots {
		t.slots[i].address = types.NullAddress
	}
	return t
}

// RegisterOrRefresh implements spec §4.2: if address already occupies a
// slot, its liveness timer is restarted; otherwise the first free slot
// is claimed. Returns true iff a slot was available (new or existing).
func (t *NeighborTable) RegisterOrRefresh(address types.NodeAddress) bool {
	firstFree := -1
	for i := range t.slots {
		if t.slots[i].address.Equal(address) {
			t.slots[i].liveness.Restart()
			return true
		}
		if firstFree == -1 && t.slots[i].address.IsNull() {
			firstFree = i
		}
	}
	if firstFree == -1 {
		// Table full: drop the registration (spec §7 "table full").
		// The would-be child stops being refreshed and re-enters
		// orphan search within Timeout (§4.2 edge case, §8 scenario 6).
		return false
	}
	t.slots[firstFree].address = address
	t.slots[firstFree].liveness = t.clock.NewTimer(Timeout)
	return true
}

// Sweep clears any slot whose liveness timer has expired, and
// invalidates routing entries whose next-hop equals the cleared
// address (spec §4.2).
func (t *NeighborTable) Sweep(routes *RoutingTable) {
	for i := range t.slots {
		if t.slots[i].address.IsNull() {
			continue
		}
		if t.slots[i].liveness.Expired() {
			cleared := t.slots[i].address
			t.slots[i].address = types.NullAddress
			t.slots[i].liveness = nil
			routes.InvalidateNextHop(cleared)
		}
	}
}

// Contains reports whether address currently occupies a live slot.
func (t *NeighborTable) Contains(address types.NodeAddress) bool {
	for i := range t.slots {
		if t.slots[i].address.Equal(address) {
			return true
		}
	}
	return false
}

// LiveAddresses returns every currently-occupied address, in slot
// order, for use when generating the ALIVE announcement (spec §4.3).
func (t *NeighborTable) LiveAddresses() []types.NodeAddress {
	out := make([]types.NodeAddress, 0, MaxChildren)
	for i := range t.slots {
		if !t.slots[i].address.IsNull() {
			out = append(out, t.slots[i].address)
		}
	}
	return out
}
