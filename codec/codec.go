// Package codec parses and formats the ASCII wire messages defined in
// spec §6, turning raw transport payloads into the types.Frame sum type
// at the boundary so the rest of the system never touches raw strings
// (design note in spec §9).
package codec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tii-ssrc/sensortree/types"
)

// DecodeBeacon parses a broadcast beacon "O<rank><cfg>" (§6). rank is a
// single decimal digit in the original wire format; we accept any
// decimal run so a tree deeper than 9 hops still parses.
func DecodeBeacon(payload []byte) (types.Frame, error) {
	if len(payload) < 3 || payload[0] != 'O' {
		return types.Frame{}, fmt.Errorf("codec: not a beacon frame: %q", payload)
	}
	body := payload[1:]
	cfgByte := body[len(body)-1]
	rankDigits := body[:len(body)-1]
	rank, err := strconv.ParseUint(string(rankDigits), 10, 32)
	if err != nil {
		return types.Frame{}, fmt.Errorf("codec: malformed beacon rank %q: %w", rankDigits, err)
	}
	cfg, err := types.ParseReportingConfig(cfgByte)
	if err != nil {
		return types.Frame{}, fmt.Errorf("codec: malformed beacon config: %w", err)
	}
	return types.Frame{Kind: types.FrameBeacon, Rank: types.Rank(rank), Config: cfg}, nil
}

// EncodeBeacon formats "O<rank><cfg>".
func EncodeBeacon(rank types.Rank, cfg types.ReportingConfig) []byte {
	return []byte(fmt.Sprintf("O%d%c", rank, cfg.Byte()))
}

// DecodeAlive parses "A" or "A/d.d/d.d/..." (§6): the sender's own
// address is implicit (it's the packet's `from`), descendants follow.
func DecodeAlive(payload []byte) (types.Frame, error) {
	s := string(payload)
	if s != "A" && !strings.HasPrefix(s, "A/") {
		return types.Frame{}, fmt.Errorf("codec: not an alive frame: %q", payload)
	}
	f := types.Frame{Kind: types.FrameAlive}
	rest := strings.TrimPrefix(s, "A")
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return f, nil
	}
	for _, tok := range strings.Split(rest, "/") {
		addr, err := parseDotted(tok)
		if err != nil {
			return types.Frame{}, fmt.Errorf("codec: malformed descendant %q: %w", tok, err)
		}
		f.Descendants = append(f.Descendants, addr)
	}
	return f, nil
}

// EncodeAlive formats "A" ("/" descendant)* as specified in §4.3.
func EncodeAlive(descendants []types.NodeAddress) []byte {
	var b strings.Builder
	b.WriteString("A")
	for _, d := range descendants {
		b.WriteString("/")
		b.WriteString(d.String())
	}
	return []byte(b.String())
}

// DecodeRunicast parses a reliable-unicast payload into either a
// telemetry Data frame ("<a>.<b>/<ch>/<val>") or a SubUpdate frame
// ("F<a>.<b>/<ch>/<bit>"), per §6/§4.5/§4.7.
func DecodeRunicast(payload []byte) (types.Frame, error) {
	s := string(payload)
	if strings.HasPrefix(s, "F") {
		return decodeSubUpdate(s[1:])
	}
	return decodeData(s)
}

func decodeData(s string) (types.Frame, error) {
	parts := strings.SplitN(s, "/", 3)
	if len(parts) != 3 {
		return types.Frame{}, fmt.Errorf("codec: malformed data frame %q", s)
	}
	addr, err := parseDotted(parts[0])
	if err != nil {
		return types.Frame{}, fmt.Errorf("codec: malformed data source: %w", err)
	}
	if len(parts[1]) != 1 {
		return types.Frame{}, fmt.Errorf("codec: malformed data channel %q", parts[1])
	}
	ch, err := types.ParseChannelId(parts[1][0])
	if err != nil {
		return types.Frame{}, err
	}
	return types.Frame{Kind: types.FrameData, Source: addr, Channel: ch, Value: parts[2]}, nil
}

// EncodeData formats "<a>.<b>/<channel>/<value>" (§4.5).
func EncodeData(source types.NodeAddress, ch types.ChannelId, value string) []byte {
	return []byte(fmt.Sprintf("%s/%c/%s", source, ch.Byte(), value))
}

func decodeSubUpdate(s string) (types.Frame, error) {
	parts := strings.SplitN(s, "/", 3)
	if len(parts) != 3 {
		return types.Frame{}, fmt.Errorf("codec: malformed sub-update %q", s)
	}
	addr, err := parseDotted(parts[0])
	if err != nil {
		return types.Frame{}, fmt.Errorf("codec: malformed sub-update target: %w", err)
	}
	if len(parts[1]) != 1 {
		return types.Frame{}, fmt.Errorf("codec: malformed sub-update channel %q", parts[1])
	}
	ch, err := types.ParseChannelId(parts[1][0])
	if err != nil {
		// Unknown channel codes are ignored per §4.7, but at the codec
		// boundary we still need to report it so the caller can drop
		// the frame without acting on it.
		return types.Frame{}, fmt.Errorf("codec: unknown sub-update channel: %w", err)
	}
	if len(parts[2]) != 1 || (parts[2][0] != '0' && parts[2][0] != '1') {
		return types.Frame{}, fmt.Errorf("codec: malformed sub-update bit %q", parts[2])
	}
	return types.Frame{
		Kind:      types.FrameSubUpdate,
		Target:    addr,
		Channel:   ch,
		Subscribe: parts[2][0] == '1',
	}, nil
}

// EncodeSubUpdate formats "F<a>.<b>/<channel>/<bit>" (§4.7).
func EncodeSubUpdate(target types.NodeAddress, ch types.ChannelId, subscribe bool) []byte {
	bit := '0'
	if subscribe {
		bit = '1'
	}
	return []byte(fmt.Sprintf("F%s/%c/%c", target, ch.Byte(), bit))
}

func parseDotted(tok string) (types.NodeAddress, error) {
	a, b, ok := strings.Cut(tok, ".")
	if !ok || len(a) == 0 || len(b) == 0 {
		return types.NodeAddress{}, fmt.Errorf("codec: expected \"a.b\", got %q", tok)
	}
	av, err := strconv.ParseUint(a, 10, 8)
	if err != nil {
		return types.NodeAddress{}, err
	}
	bv, err := strconv.ParseUint(b, 10, 8)
	if err != nil {
		return types.NodeAddress{}, err
	}
	addr := types.Address(uint8(av), uint8(bv))
	if !addr.InRange() {
		return types.NodeAddress{}, fmt.Errorf("codec: address %s out of range", addr)
	}
	return addr, nil
}
