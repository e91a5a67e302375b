// Package transport names the Radio Transport external collaborator
// from spec §2: three logical channels — best-effort broadcast,
// best-effort unicast, and reliable unicast with bounded
// retransmission and per-peer sequence numbers.
package transport

import (
	"context"

	"github.com/tii-ssrc/sensortree/types"
)

// RetransmissionLimit is RETRANSMISSION from spec §6.
const RetransmissionLimit = 5

// RunicastResult is delivered to the callback passed to SendRunicast
// once the transport has either delivered the frame or exhausted
// RetransmissionLimit attempts (spec §5 "cancellation & timeouts").
type RunicastResult struct {
	Delivered bool
	Attempts  int
}

// Transport is the interface router.Node depends on. It deliberately
// does not expose MAC-layer or packetization details (spec §1 names
// those out of scope) — only the three logical channels and their
// delivery semantics.
type Transport interface {
	// SendBroadcast sends payload on the best-effort broadcast channel
	// (129) to all neighbors in radio range.
	SendBroadcast(payload []byte) error
	// SendUnicast sends payload on the best-effort unicast channel (136)
	// to a specific neighbor.
	SendUnicast(to types.NodeAddress, payload []byte) error
	// SendRunicast sends payload on the reliable unicast channel (144)
	// to a specific neighbor, retrying internally up to
	// RetransmissionLimit times. done, if non-nil, is invoked exactly
	// once when the outcome is known: inline by Medium, from a
	// transport-owned goroutine by quictransport. Per spec §5 it must
	// only affect node state at a wake boundary.
	SendRunicast(to types.NodeAddress, payload []byte, done func(RunicastResult)) error

	// Receive blocks until a frame arrives on any channel, or ctx is
	// done. Implementations deliver broadcast/unicast frames as-is and
	// deliver runicast frames with a per-sender sequence number,
	// possibly repeating a delivery for a retransmitted frame (spec
	// §4.8 "duplicate-suppression cache" exists precisely to absorb
	// this).
	Receive(ctx context.Context) (Incoming, error)
}

// Incoming is one received frame, tagged with the channel it arrived
// on and (for runicast) its sequence number.
type Incoming struct {
	Channel types.TransportChannel
	From    types.NodeAddress
	Payload []byte
	Seqno   uint8 // valid only when Channel == ChannelRunicast
}
