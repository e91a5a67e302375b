// Package quictransport is a concrete transport.Transport over real
// UDP sockets using QUIC (github.com/lucas-clemente/quic-go), for the
// cmd/sensornode and cmd/rootnode binaries and for integration tests
// that want a real network instead of transport.Medium. The three
// logical channels named in spec §6 are multiplexed over one QUIC
// datagram connection per neighbor: broadcast and best-effort unicast
// ride unreliable datagrams, reliable unicast opens a short-lived
// stream per send so the protocol's own RETRANSMISSION bound (not
// QUIC's) governs delivery.
package quictransport

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"sync"

	"github.com/lucas-clemente/quic-go"
	"github.com/tii-ssrc/sensortree/transport"
	"github.com/tii-ssrc/sensortree/types"
)

// Transport is a transport.Transport backed by one QUIC listener and a
// pool of outbound connections, one per known neighbor address.
type Transport struct {
	self     types.NodeAddress
	listener quic.Listener
	resolve  func(types.NodeAddress) (string, error) // address book: node -> "host:port"

	mu    sync.Mutex
	conns map[types.NodeAddress]quic.Connection
	seq   map[types.NodeAddress]uint8

	incoming chan transport.Incoming
}

var _ transport.Transport = (*Transport)(nil)

// Listen opens a UDP/QUIC listener on listenAddr for node self.
// resolve maps a peer NodeAddress to a dial target; the gateway/config
// layer supplies this from the node's static configuration since the
// protocol itself has no address-resolution mechanism (spec §1 names
// MAC/addressing below 2 bytes as the only addressing concern in
// scope).
func Listen(self types.NodeAddress, listenAddr string, resolve func(types.NodeAddress) (string, error)) (*Transport, error) {
	tlsConf, err := selfSignedTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("quictransport: tls config: %w", err)
	}
	ln, err := quic.ListenAddr(listenAddr, tlsConf, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("quictransport: listen: %w", err)
	}
	t := &Transport{
		self:     self,
		listener: ln,
		resolve:  resolve,
		conns:    make(map[types.NodeAddress]quic.Connection),
		seq:      make(map[types.NodeAddress]uint8),
		incoming: make(chan transport.Incoming, 256),
	}
	go t.acceptLoop()
	return t, nil
}

func quicConfig() *quic.Config {
	return &quic.Config{EnableDatagrams: true}
}

func (t *Transport) acceptLoop() {
	for {
		conn, err := t.listener.Accept(context.Background())
		if err != nil {
			return
		}
		go t.serveConn(conn)
	}
}

func (t *Transport) serveConn(conn quic.Connection) {
	go t.readDatagrams(conn)
	for {
		stream, err := conn.AcceptStream(context.Background())
		if err != nil {
			return
		}
		go t.readRunicastStream(stream)
	}
}

func (t *Transport) readDatagrams(conn quic.Connection) {
	for {
		msg, err := conn.ReceiveMessage()
		if err != nil {
			return
		}
		in, ok := decodeDatagram(msg)
		if !ok {
			continue
		}
		t.incoming <- in
	}
}

func (t *Transport) readRunicastStream(stream quic.Stream) {
	defer stream.Close()
	buf := make([]byte, 4096)
	n, err := stream.Read(buf)
	if err != nil || n < 4 {
		return
	}
	from := types.Address(buf[0], buf[1])
	seq := buf[2]
	_ = buf[3] // reserved
	t.incoming <- transport.Incoming{
		Channel: types.ChannelRunicast,
		From:    from,
		Payload: append([]byte(nil), buf[4:n]...),
		Seqno:   seq,
	}
}

// datagram wire format: [channel:1][fromA:1][fromB:1][payload...]
func encodeDatagram(ch types.TransportChannel, from types.NodeAddress, payload []byte) []byte {
	out := make([]byte, 3+len(payload))
	out[0] = byte(ch)
	out[1] = from.A
	out[2] = from.B
	copy(out[3:], payload)
	return out
}

func decodeDatagram(msg []byte) (transport.Incoming, bool) {
	if len(msg) < 3 {
		return transport.Incoming{}, false
	}
	return transport.Incoming{
		Channel: types.TransportChannel(msg[0]),
		From:    types.Address(msg[1], msg[2]),
		Payload: append([]byte(nil), msg[3:]...),
	}, true
}

func (t *Transport) connFor(to types.NodeAddress) (quic.Connection, error) {
	t.mu.Lock()
	if c, ok := t.conns[to]; ok {
		t.mu.Unlock()
		return c, nil
	}
	t.mu.Unlock()

	addr, err := t.resolve(to)
	if err != nil {
		return nil, err
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := quic.DialAddr(udpAddr.String(), insecureTLSConfig(), quicConfig())
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.conns[to] = conn
	t.mu.Unlock()
	go t.readDatagrams(conn)
	return conn, nil
}

func (t *Transport) SendBroadcast(payload []byte) error {
	return t.fanout(types.ChannelBroadcast, payload)
}

func (t *Transport) SendUnicast(to types.NodeAddress, payload []byte) error {
	conn, err := t.connFor(to)
	if err != nil {
		return nil // best-effort: unreachable peer is silently dropped, per §7
	}
	return conn.SendMessage(encodeDatagram(types.ChannelUnicast, t.self, payload))
}

// fanout sends a datagram to every neighbor this node currently has an
// open connection to. Real broadcast radio reaches everyone in range
// without per-peer dialing; the address book supplies that knowledge
// here since a QUIC socket has no broadcast primitive.
func (t *Transport) fanout(ch types.TransportChannel, payload []byte) error {
	t.mu.Lock()
	conns := make([]quic.Connection, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	t.mu.Unlock()
	for _, c := range conns {
		_ = c.SendMessage(encodeDatagram(ch, t.self, payload))
	}
	return nil
}

func (t *Transport) SendRunicast(to types.NodeAddress, payload []byte, done func(transport.RunicastResult)) error {
	t.mu.Lock()
	seq := t.seq[to]
	t.seq[to] = seq + 1
	t.mu.Unlock()

	go func() {
		attempts := 0
		delivered := false
		for attempts < transport.RetransmissionLimit && !delivered {
			attempts++
			conn, err := t.connFor(to)
			if err != nil {
				continue
			}
			stream, err := conn.OpenStreamSync(context.Background())
			if err != nil {
				continue
			}
			header := []byte{t.self.A, t.self.B, seq, 0}
			if _, err := stream.Write(append(header, payload...)); err == nil {
				delivered = true
			}
			stream.Close()
		}
		if done != nil {
			done(transport.RunicastResult{Delivered: delivered, Attempts: attempts})
		}
	}()
	return nil
}

func (t *Transport) Receive(ctx context.Context) (transport.Incoming, error) {
	select {
	case <-ctx.Done():
		return transport.Incoming{}, ctx.Err()
	case in := <-t.incoming:
		return in, nil
	}
}

func (t *Transport) Close() error {
	return t.listener.Close()
}

func selfSignedTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	template := &x509.Certificate{SerialNumber: big.NewInt(1)}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, NextProtos: []string{"sensortree"}}, nil
}

func insecureTLSConfig() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true, NextProtos: []string{"sensortree"}}
}

