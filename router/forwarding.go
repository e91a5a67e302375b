package router

import (
	"github.com/tii-ssrc/sensortree/codec"
	"github.com/tii-ssrc/sensortree/types"
)

// TelemetryHandler receives every Data frame that terminates at this
// node (i.e. the root). Wired by package gateway to the serial bridge's
// output framing (spec §4.9 "Output framing").
type TelemetryHandler func(source types.NodeAddress, ch types.ChannelId, value string)

// SetTelemetryHandler installs the root-only sink for terminated
// telemetry. A no-op on sensor nodes, which never terminate telemetry
// locally.
func (n *Node) SetTelemetryHandler(h TelemetryHandler) {
	n.telemetry = h
}

// _onRunicastFrame is the forwarding engine of spec §4.6, applying
// duplicate suppression (§4.8) before either direction acts, adapted
// from original_source's runicast_recv and from the teacher's
// _handleSetup dispatch-by-destination-match shape in state_snek.go.
func (n *Node) _onRunicastFrame(from types.NodeAddress, seq uint8, payload []byte) {
	if !from.InRange() {
		return // address out of range (§7): drop
	}
	if !n.dedup.Accept(from, seq) {
		// Duplicate delivery of an already-processed reliable frame
		// (§4.8, §8 "idempotence" law): return early, no forward.
		n._peerStats(from).RxDuplicate.Inc()
		return
	}

	f, err := codec.DecodeRunicast(payload)
	if err != nil {
		if n.Log != nil {
			n.Log.Printf("node %s: dropping malformed runicast frame from %s: %v", n.Self, from, err)
		}
		n._peerStats(from).RxDropped.Inc()
		return
	}

	switch f.Kind {
	case types.FrameSubUpdate:
		n._peerStats(from).RxSubUpdate.Inc()
		n._forwardDownward(f, payload)
	case types.FrameData:
		n._peerStats(from).RxData.Inc()
		n._forwardUpward(f, payload)
	}
}

// _forwardDownward implements spec §4.6 "Downward" and §4.7: apply
// locally if the destination matches this node, else forward via the
// routing table to the correct child, else drop.
func (n *Node) _forwardDownward(f types.Frame, payload []byte) {
	if f.Target.Equal(n.Self) {
		n.reporting.applySubUpdate(f.Channel, f.Subscribe)
		return
	}
	nextHop, ok := n.routes.Lookup(f.Target)
	if !ok {
		return // no route: drop (§4.6, §7)
	}
	if err := n.transport.SendRunicast(nextHop, payload, nil); err != nil && n.Log != nil {
		n.Log.Printf("node %s: downward forward failed: %v", n.Self, err)
	}
}

// _forwardUpward implements spec §4.6 "Upward": a sensor retransmits
// any Data frame it receives to its own parent; the root instead hands
// it to the telemetry handler (gateway bridge), since it has no parent
// to forward to.
func (n *Node) _forwardUpward(f types.Frame, payload []byte) {
	if n.Role == RoleRoot {
		if n.telemetry != nil {
			n.telemetry(f.Source, f.Channel, f.Value)
		}
		return
	}
	if !n.hasParent {
		return // no parent: drop silently (§4.6 failure path)
	}
	if err := n.transport.SendRunicast(n.parent, payload, nil); err != nil && n.Log != nil {
		n.Log.Printf("node %s: upward forward failed: %v", n.Self, err)
	}
}
