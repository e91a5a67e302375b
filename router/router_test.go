package router

import (
	"testing"
	"time"

	"github.com/Arceliar/phony"
	"github.com/stretchr/testify/require"
	"github.com/tii-ssrc/sensortree/codec"
	"github.com/tii-ssrc/sensortree/timer"
	"github.com/tii-ssrc/sensortree/transport"
	"github.com/tii-ssrc/sensortree/types"
)

// drain delivers every frame currently queued for link into node, used
// to deterministically pump the in-memory medium between ticks instead
// of running Node.Run's real-time loop.
func drain(t *testing.T, link *transport.MediumLink, node *Node) {
	t.Helper()
	for {
		in, ok := link.TryReceive()
		if !ok {
			return
		}
		node.DeliverFrame(in)
	}
}

// lineTopology restricts medium to the chain root—a—b, dropping the
// direct root<->b edge so a two-hop attach actually has to go through
// a, instead of the default full-mesh medium letting b hear root's
// beacon straight away.
func lineTopology(root, a, b types.NodeAddress) func(from, to types.NodeAddress, broadcast bool) bool {
	adjacent := func(x, y types.NodeAddress) bool {
		return (x.Equal(root) && y.Equal(a)) || (x.Equal(a) && y.Equal(root)) ||
			(x.Equal(a) && y.Equal(b)) || (x.Equal(b) && y.Equal(a))
	}
	return func(from, to types.NodeAddress, broadcast bool) bool {
		return !adjacent(from, to)
	}
}

func newTestNode(t *testing.T, medium *transport.Medium, addr types.NodeAddress, role Role, clock timer.Clock) (*Node, *transport.MediumLink) {
	t.Helper()
	link := medium.Join(addr)
	var node *Node
	if role == RoleRoot {
		node = NewRootNode(addr, clock, link, nil)
	} else {
		node = NewSensorNode(addr, clock, link, nil)
	}
	return node, link
}

// TestTwoHopAttach is spec §8 scenario 1: root(1.1) — A(2.1) — B(3.1).
func TestTwoHopAttach(t *testing.T) {
	medium := transport.NewMedium()
	medium.DropLink = lineTopology(types.Address(1, 1), types.Address(2, 1), types.Address(3, 1))
	clock := timer.NewVirtual(time.Unix(0, 0))

	root, rootLink := newTestNode(t, medium, types.Address(1, 1), RoleRoot, clock)
	a, aLink := newTestNode(t, medium, types.Address(2, 1), RoleSensor, clock)
	b, bLink := newTestNode(t, medium, types.Address(3, 1), RoleSensor, clock)

	// Tick 1: root beacons; A adopts root as parent. A's own tick then
	// beacons (it has a parent now), so B already adopts A this round.
	root.Tick()
	drain(t, aLink, a)
	drain(t, bLink, b)
	a.Tick()
	drain(t, rootLink, root)
	drain(t, bLink, b)

	hasParent, parent, rank := a.HasParent()
	require.True(t, hasParent)
	require.True(t, parent.Equal(types.Address(1, 1)))
	require.Equal(t, types.Rank(1), rank)

	// Tick 2: B, attached to A, sends its alive announcement to A, and
	// A's alive announcement refreshes A at the root.
	root.Tick()
	a.Tick()
	drain(t, bLink, b)
	b.Tick()
	drain(t, aLink, a)
	drain(t, rootLink, root)

	hasParent, parent, rank = b.HasParent()
	require.True(t, hasParent)
	require.True(t, parent.Equal(types.Address(2, 1)))
	require.Equal(t, types.Rank(2), rank)

	// A's alive announcement has registered it in root's neighbor table.
	require.Contains(t, root.Neighbors(), types.Address(2, 1))

	// B's alive announcement (forwarded by A's own alive message)
	// installs a routing entry 3.1 -> 2.1 at the root.
	a.Tick()
	drain(t, rootLink, root)
	routes := root.Routes()
	nextHop, ok := routes[types.Address(3, 1)]
	require.True(t, ok)
	require.True(t, nextHop.Equal(types.Address(2, 1)))
}

// TestParentLoss is spec §8 scenario 2: silencing A orphans B within
// TIME_OUT, and the root's route to B disappears with A's liveness.
func TestParentLoss(t *testing.T) {
	medium := transport.NewMedium()
	medium.DropLink = lineTopology(types.Address(1, 1), types.Address(2, 1), types.Address(3, 1))
	clock := timer.NewVirtual(time.Unix(0, 0))

	root, rootLink := newTestNode(t, medium, types.Address(1, 1), RoleRoot, clock)
	a, aLink := newTestNode(t, medium, types.Address(2, 1), RoleSensor, clock)
	b, bLink := newTestNode(t, medium, types.Address(3, 1), RoleSensor, clock)

	attach(t, root, rootLink, a, aLink, b, bLink)

	// Silence A: remove it from the medium so neither its beacons nor
	// its alive announcements are observed anymore.
	medium.Leave(types.Address(2, 1))

	clock.Advance(Timeout + time.Second)
	root.Tick()
	b.Tick()
	drain(t, aLink, a) // A is gone, nothing to drain in practice
	drain(t, rootLink, root)

	hasParent, _, rank := b.HasParent()
	require.False(t, hasParent)
	require.Equal(t, types.RankInfinite, rank)

	_, ok := root.Routes()[types.Address(3, 1)]
	require.False(t, ok)
}

// attach runs enough ticks to reach the converged tree for the
// medium's topology (the two-hop tree of scenario 1 under lineTopology,
// a star around the root on a full-mesh medium), for tests that want to
// start from steady state.
func attach(t *testing.T, root *Node, rootLink *transport.MediumLink, a *Node, aLink *transport.MediumLink, b *Node, bLink *transport.MediumLink) {
	t.Helper()
	for i := 0; i < 4; i++ {
		root.Tick()
		drain(t, aLink, a)
		drain(t, bLink, b)
		a.Tick()
		drain(t, rootLink, root)
		drain(t, bLink, b)
		b.Tick()
		drain(t, aLink, a)
	}
}

// TestSubscriptionFanOut is spec §8 scenario 3: the root routes a
// subscription update to A, who applies it locally.
func TestSubscriptionFanOut(t *testing.T) {
	medium := transport.NewMedium()
	clock := timer.NewVirtual(time.Unix(0, 0))

	root, rootLink := newTestNode(t, medium, types.Address(1, 1), RoleRoot, clock)
	a, aLink := newTestNode(t, medium, types.Address(2, 1), RoleSensor, clock)
	b, bLink := newTestNode(t, medium, types.Address(3, 1), RoleSensor, clock)
	attach(t, root, rootLink, a, aLink, b, bLink)

	root.RequestSubscription(types.Address(2, 1), types.ChannelTemperature, true)
	// RequestSubscription is queued on root's actor; wait for it to run so
	// the frame is on A's link before draining it.
	phony.Block(root, func() {})
	drain(t, aLink, a)

	require.True(t, a.SubscriptionSnapshot()[types.ChannelTemperature])
}

// TestOnChangeDiscipline is spec §8 scenario 4.
func TestOnChangeDiscipline(t *testing.T) {
	medium := transport.NewMedium()
	clock := timer.NewVirtual(time.Unix(0, 0))

	root, rootLink := newTestNode(t, medium, types.Address(1, 1), RoleRoot, clock)
	a, aLink := newTestNode(t, medium, types.Address(2, 1), RoleSensor, clock)
	for i := 0; i < 2; i++ {
		root.Tick()
		drain(t, aLink, a)
		a.Tick()
		drain(t, rootLink, root)
	}

	a.SetReportingConfig(types.ReportingOnChange)
	root.RequestSubscription(types.Address(2, 1), types.ChannelTemperature, true)
	phony.Block(root, func() {}) // wait for the queued RequestSubscription
	drain(t, aLink, a)

	sensor := &fakeSensor{temp: "23.4"}
	a.SetSensors(sensor)

	var received []string
	root.SetTelemetryHandler(func(source types.NodeAddress, ch types.ChannelId, value string) {
		if ch == types.ChannelTemperature {
			received = append(received, value)
		}
	})

	a.Tick() // first reading always emits
	drain(t, rootLink, root)
	a.Tick() // steady at 23.4: no new frame
	drain(t, rootLink, root)
	require.Len(t, received, 1)

	sensor.temp = "23.5"
	a.Tick()
	drain(t, rootLink, root)
	require.Equal(t, []string{"23.4", "23.5"}, received)
}

type fakeSensor struct {
	temp string
	bat  string
}

func (f *fakeSensor) ReadTemperature() string { return f.temp }
func (f *fakeSensor) ReadBattery() string     { return f.bat }

// TestDuplicateSuppression is spec §8 scenario 5.
func TestDuplicateSuppression(t *testing.T) {
	cache := NewDedupCache(DedupCacheSize)
	src := types.Address(3, 1)

	require.True(t, cache.Accept(src, 5))
	require.False(t, cache.Accept(src, 5), "second delivery of the same seqno must be dropped")
	require.True(t, cache.Accept(src, 6), "a new seqno from the same source is accepted")
}

// TestNeighborOverflow is spec §8 scenario 6.
func TestNeighborOverflow(t *testing.T) {
	clock := timer.NewVirtual(time.Unix(0, 0))
	table := NewNeighborTable(clock)
	for i := 0; i < MaxChildren; i++ {
		ok := table.RegisterOrRefresh(types.Address(uint8(i), 0))
		require.True(t, ok)
	}
	ok := table.RegisterOrRefresh(types.Address(10, 10))
	require.False(t, ok, "an 11th registration must be rejected")
	require.Equal(t, MaxChildren, len(table.LiveAddresses()))
}

func TestCodecRoundTrip(t *testing.T) {
	beacon := codec.EncodeBeacon(types.Rank(3), types.ReportingOnChange)
	f, err := codec.DecodeBeacon(beacon)
	require.NoError(t, err)
	require.Equal(t, types.Rank(3), f.Rank)
	require.Equal(t, types.ReportingOnChange, f.Config)

	// Legacy 'C' on-change encoding must still decode (§3).
	legacy, err := codec.DecodeBeacon([]byte("O3C"))
	require.NoError(t, err)
	require.Equal(t, types.ReportingOnChange, legacy.Config)

	alive := codec.EncodeAlive([]types.NodeAddress{types.Address(3, 1), types.Address(4, 2)})
	af, err := codec.DecodeAlive(alive)
	require.NoError(t, err)
	require.Equal(t, []types.NodeAddress{types.Address(3, 1), types.Address(4, 2)}, af.Descendants)

	data := codec.EncodeData(types.Address(2, 1), types.ChannelTemperature, "23.4")
	df, err := codec.DecodeRunicast(data)
	require.NoError(t, err)
	require.Equal(t, types.FrameData, df.Kind)
	require.Equal(t, "23.4", df.Value)

	sub := codec.EncodeSubUpdate(types.Address(2, 1), types.ChannelBattery, true)
	sf, err := codec.DecodeRunicast(sub)
	require.NoError(t, err)
	require.Equal(t, types.FrameSubUpdate, sf.Kind)
	require.True(t, sf.Subscribe)
}
