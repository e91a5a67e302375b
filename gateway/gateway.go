// Package gateway implements the root-only serial bridge of spec §4.9:
// a framed byte stream to the gateway host, translating host control
// commands into subscription-update frames routed downward, and
// relaying terminated telemetry upward verbatim.
//
// The accumulation state machine is adapted from original_source's
// uart_rx_callback in src/root_node_v2.c, which used a bare byte
// counter (`counter`) indexing into a fixed `gateway_msg` buffer; here
// that counter becomes a named Stage enum driving a small struct, per
// the §9 design note about replacing ad-hoc C state with explicit,
// typed state.
package gateway

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/tii-ssrc/sensortree/router"
	"github.com/tii-ssrc/sensortree/types"
)

// Bridge wires a serial-like io.ReadWriter to a root router.Node,
// implementing both framing directions of spec §4.9.
type Bridge struct {
	node *router.Node
	out  *bufio.Writer

	mu    sync.Mutex
	stage stage
	buf   [8]byte // "<cmd><a>.<b>/<channel>/<bit>"; <cmd> is any byte other than 'P'/'O'
	n     int
}

type stage int

const (
	stageIdle stage = iota
	stageAccumulating
)

// NewBridge constructs a Bridge and wires it as the node's telemetry
// sink (spec §4.9 "Output framing").
func NewBridge(node *router.Node, w io.Writer) *Bridge {
	b := &Bridge{node: node, out: bufio.NewWriter(w)}
	node.SetTelemetryHandler(b.onTelemetry)
	return b
}

// onTelemetry implements spec §4.9 "Output framing": any telemetry
// arriving at the root is written verbatim followed by a newline.
func (b *Bridge) onTelemetry(source types.NodeAddress, ch types.ChannelId, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	line := fmt.Sprintf("%s/%c/%s", source, ch.Byte(), value)
	fmt.Fprintln(b.out, line)
	b.out.Flush()
}

// Feed consumes bytes arriving from the gateway host, per spec §4.9
// "Input framing". A single leading 'P' or 'O' sets the global
// reporting configuration broadcast in beacons; any other leading byte
// is the command byte that starts accumulation of an eight-byte control
// command "<cmd><a>.<b>/<channel>/<bit>", re-emitted as the
// subscription-update frame "F<a>.<b>/<channel>/<bit>" once complete.
// A 'P' or 'O' arriving mid-command discards the partial command and is
// applied as a global command.
func (b *Bridge) Feed(data []byte) {
	for _, c := range data {
		b.feedByte(c)
	}
}

func (b *Bridge) feedByte(c byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stage == stageAccumulating && (c == 'P' || c == 'O') {
		// Gateway frame under-length (spec §7): no byte after <cmd> in a
		// well-formed command is 'P' or 'O', so one arriving here drops
		// the partial command and is handled as a global command below.
		b.stage = stageIdle
		b.n = 0
	}

	if b.stage == stageIdle {
		switch c {
		case 'P':
			b.node.SetReportingConfig(types.ReportingPeriodic)
			return
		case 'O':
			b.node.SetReportingConfig(types.ReportingOnChange)
			return
		default:
			b.stage = stageAccumulating
			b.n = 0
			b.buf[b.n] = c
			b.n++
			return
		}
	}

	// Accumulating the remaining bytes of a control command.
	b.buf[b.n] = c
	b.n++
	if b.n < len(b.buf) {
		return
	}

	b.stage = stageIdle
	frame := b.buf
	b.n = 0
	b.applyControlCommand(frame)
}

// applyControlCommand parses the accumulated 8 host bytes
// "<cmd><a>.<b>/<channel>/<bit>" and routes the equivalent
// "F<a>.<b>/<channel>/<bit>" frame downward as a subscription update,
// per spec §4.9/§6.
func (b *Bridge) applyControlCommand(frame [8]byte) {
	// frame layout: [0]=cmd [1]=a [2]='.' [3]=b [4]='/' [5]=channel [6]='/' [7]=bit
	addr, err := types.ParseAddress(frame[1], frame[3])
	if err != nil {
		return // malformed: drop, per §7
	}
	ch, err := types.ParseChannelId(frame[5])
	if err != nil {
		return // unknown channel: drop
	}
	bit := frame[7]
	if bit != '0' && bit != '1' {
		return
	}
	b.node.RequestSubscription(addr, ch, bit == '1')
}
