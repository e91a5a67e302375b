package router

import (
	"github.com/tii-ssrc/sensortree/codec"
	"github.com/tii-ssrc/sensortree/types"
)

// ReportingEngine is the subscription & reporting engine of spec §4.5,
// grounded on original_source's send_temperature/send_battery: each
// channel independently gates on (subscribed) AND (discipline fires),
// then emits a reliable-unicast data frame to the parent.
type ReportingEngine struct {
	node    *Node
	sensors SensorReader
	state   map[types.ChannelId]*channelState
}

func NewReportingEngine(n *Node) *ReportingEngine {
	e := &ReportingEngine{node: n, sensors: NullSensorReader{}, state: make(map[types.ChannelId]*channelState)}
	for _, ch := range trackedChannels {
		e.state[ch] = &channelState{}
	}
	return e
}

// _onTick is called once per wake, after the ALIVE announcement (spec
// §5 ordering guarantee 3 only constrains beacon-before-alive; data
// emission has no ordering requirement against either). Under the
// periodic discipline both channels share the node's data timer: every
// subscribed channel emits on the tick the timer is found expired, and
// the timer restarts once after those emissions.
func (e *ReportingEngine) _onTick() {
	due := e.node.dataTimer.Expired()
	sentT := e.emit(types.ChannelTemperature, e.sensors.ReadTemperature, due)
	sentB := e.emit(types.ChannelBattery, e.sensors.ReadBattery, due)
	if e.node.config == types.ReportingPeriodic && (sentT || sentB) {
		e.node.dataTimer.Restart()
	}
}

func (e *ReportingEngine) emit(ch types.ChannelId, read func() string, periodicDue bool) bool {
	st := e.state[ch]
	if !st.subscribed {
		return false
	}
	switch e.node.config {
	case types.ReportingPeriodic:
		if !periodicDue {
			return false
		}
		value := read()
		e.send(ch, value)
		return true

	case types.ReportingOnChange:
		value := read()
		if st.hasValue && st.lastValue == value {
			return false
		}
		st.hasValue = true
		st.lastValue = value
		// The data timer is only relevant to the periodic discipline
		// (§9 open-question resolution); on-change emission never
		// touches it.
		e.send(ch, value)
		return true
	}
	return false
}

func (e *ReportingEngine) send(ch types.ChannelId, value string) {
	n := e.node
	if !n.hasParent {
		// No parent: drop the outbound frame (§4.6 failure path).
		return
	}
	payload := codec.EncodeData(n.Self, ch, value)
	parent := n.parent
	if err := n.transport.SendRunicast(parent, payload, nil); err != nil && n.Log != nil {
		n.Log.Printf("node %s: data send failed: %v", n.Self, err)
	}
}

// applySubUpdate implements spec §4.7: a destination-matched
// subscription-update frame sets the channel's subscribed flag.
// Unknown channel codes were already rejected by the codec and never
// reach here.
func (e *ReportingEngine) applySubUpdate(ch types.ChannelId, subscribe bool) {
	st, ok := e.state[ch]
	if !ok {
		return
	}
	st.subscribed = subscribe
}
