package router

import "github.com/tii-ssrc/sensortree/types"

// SensorReader is the Sensor Drivers external collaborator named in
// spec §2: it supplies the current reading for each channel. Readings
// are returned pre-formatted for the wire (spec §4.5: temperature as
// "d1.d2", battery as a plain decimal), since formatting is a driver
// concern, not a protocol one.
type SensorReader interface {
	ReadTemperature() string
	ReadBattery() string
}

// NullSensorReader always returns the fixed readings "0.0" and "0";
// useful for the root (which never reads sensors) and for tests that
// only exercise the protocol core. The first on-change reading is
// always emitted because channelState.hasValue starts false, not
// because of these values.
type NullSensorReader struct{}

func (NullSensorReader) ReadTemperature() string { return "0.0" }
func (NullSensorReader) ReadBattery() string     { return "0" }

// SetSensors attaches the sensor driver collaborator. Must be called
// before Run on sensor nodes that use OnChange/Periodic data reporting;
// root nodes never call it.
func (n *Node) SetSensors(r SensorReader) {
	n.reporting.sensors = r
}

// channelState tracks subscription + on-change baseline for one
// channel (spec §3 "SubscriptionState", "Sensor Last-Values").
type channelState struct {
	subscribed bool
	lastValue  string
	hasValue   bool
}

var trackedChannels = []types.ChannelId{types.ChannelTemperature, types.ChannelBattery}
