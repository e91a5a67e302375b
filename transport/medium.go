package transport

import (
	"context"
	"sync"

	"github.com/tii-ssrc/sensortree/types"
)

// Medium is an in-memory, goroutine-safe broadcast medium standing in
// for the radio: every node registered on the same Medium can reach
// every other node, subject to the link-loss hook below. It is what
// internal/simtest and router's own tests build topologies out of,
// instead of real sockets.
type Medium struct {
	mu    sync.Mutex
	nodes map[types.NodeAddress]*MediumLink

	// DropLink, if set, reports whether a frame from 'from' to 'to'
	// (for unicast/runicast) or a broadcast from 'from' should be
	// dropped. Used to simulate §8 scenario 2 ("silence A") and similar.
	DropLink func(from, to types.NodeAddress, broadcast bool) bool
}

// NewMedium returns an empty medium.
func NewMedium() *Medium {
	return &Medium{nodes: make(map[types.NodeAddress]*MediumLink)}
}

// Join attaches addr to the medium and returns its Transport.
func (m *Medium) Join(addr types.NodeAddress) *MediumLink {
	m.mu.Lock()
	defer m.mu.Unlock()
	link := &MediumLink{medium: m, self: addr, inbox: make(chan Incoming, 256)}
	m.nodes[addr] = link
	return link
}

// Leave detaches addr, simulating a node going silent (§8 scenario 2).
func (m *Medium) Leave(addr types.NodeAddress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nodes, addr)
}

func (m *Medium) peers() []*MediumLink {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MediumLink, 0, len(m.nodes))
	for _, l := range m.nodes {
		out = append(out, l)
	}
	return out
}

func (m *Medium) link(addr types.NodeAddress) *MediumLink {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nodes[addr]
}

func (m *Medium) dropped(from, to types.NodeAddress, broadcast bool) bool {
	if m.DropLink == nil {
		return false
	}
	return m.DropLink(from, to, broadcast)
}

// MediumLink is one node's Transport handle onto a Medium.
type MediumLink struct {
	medium *Medium
	self   types.NodeAddress
	inbox  chan Incoming

	mu      sync.Mutex
	seqnos  map[types.NodeAddress]uint8
}

var _ Transport = (*MediumLink)(nil)

func (l *MediumLink) SendBroadcast(payload []byte) error {
	for _, peer := range l.medium.peers() {
		if peer.self.Equal(l.self) {
			continue
		}
		if l.medium.dropped(l.self, peer.self, true) {
			continue
		}
		deliver(peer, Incoming{Channel: types.ChannelBroadcast, From: l.self, Payload: clone(payload)})
	}
	return nil
}

func (l *MediumLink) SendUnicast(to types.NodeAddress, payload []byte) error {
	peer := l.medium.link(to)
	if peer == nil || l.medium.dropped(l.self, to, false) {
		return nil // best-effort: silently lost, per §7
	}
	deliver(peer, Incoming{Channel: types.ChannelUnicast, From: l.self, Payload: clone(payload)})
	return nil
}

func (l *MediumLink) SendRunicast(to types.NodeAddress, payload []byte, done func(RunicastResult)) error {
	l.mu.Lock()
	if l.seqnos == nil {
		l.seqnos = make(map[types.NodeAddress]uint8)
	}
	seq := l.seqnos[to]
	l.seqnos[to] = seq + 1
	l.mu.Unlock()

	attempts := 0
	delivered := false
	for attempts < RetransmissionLimit && !delivered {
		attempts++
		peer := l.medium.link(to)
		if peer != nil && !l.medium.dropped(l.self, to, false) {
			deliver(peer, Incoming{Channel: types.ChannelRunicast, From: l.self, Payload: clone(payload), Seqno: seq})
			delivered = true
		}
	}
	if done != nil {
		done(RunicastResult{Delivered: delivered, Attempts: attempts})
	}
	return nil
}

func (l *MediumLink) Receive(ctx context.Context) (Incoming, error) {
	select {
	case <-ctx.Done():
		return Incoming{}, ctx.Err()
	case in := <-l.inbox:
		return in, nil
	}
}

// TryReceive is a non-blocking drain of one pending frame, used by
// internal/simtest and router's own tests to deterministically pump
// frames between nodes without running a background receive loop.
func (l *MediumLink) TryReceive() (Incoming, bool) {
	select {
	case in := <-l.inbox:
		return in, true
	default:
		return Incoming{}, false
	}
}

func deliver(to *MediumLink, in Incoming) {
	select {
	case to.inbox <- in:
	default:
		// Inbox full: drop, same as a lossy link (§7 transient link error).
	}
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
