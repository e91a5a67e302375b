package router

import (
	"github.com/Arceliar/phony"
	"github.com/tii-ssrc/sensortree/codec"
	"github.com/tii-ssrc/sensortree/types"
)

// RequestSubscription routes a subscription-update control command
// toward its target, applying it locally if this node is the target.
// This is how package gateway turns a host-supplied control command
// (spec §4.9, §6) into the "F<a>.<b>/<channel>/<bit>" frame of §4.7/§6.
func (n *Node) RequestSubscription(target types.NodeAddress, ch types.ChannelId, subscribe bool) {
	n.Act(nil, func() {
		payload := codec.EncodeSubUpdate(target, ch, subscribe)
		f := types.Frame{Kind: types.FrameSubUpdate, Target: target, Channel: ch, Subscribe: subscribe}
		n._forwardDownward(f, payload)
	})
}

// SetReportingConfig sets the node-wide reporting configuration
// broadcast in beacons (spec §4.4, §4.9 "global command"). On the root
// this is how the gateway's single-byte 'P'/'O' host command takes
// effect; a sensor only ever adopts config from a shallower beacon
// (spec §4.1), so calling this directly on a sensor would be
// overwritten on the next beacon from its parent — callers should only
// invoke this on the root.
func (n *Node) SetReportingConfig(cfg types.ReportingConfig) {
	n.Act(nil, func() { n.config = cfg })
}

// SubscriptionSnapshot returns the current subscribed state for every
// tracked channel, for diagnostics and tests.
func (n *Node) SubscriptionSnapshot() map[types.ChannelId]bool {
	out := make(map[types.ChannelId]bool)
	phony.Block(n, func() {
		for ch, st := range n.reporting.state {
			out[ch] = st.subscribed
		}
	})
	return out
}
