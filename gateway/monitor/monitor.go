// Package monitor serves a read-only operator view of the root node's
// live state over websocket, streaming its neighbor table, routing
// table, and reporting configuration as JSON snapshots — the
// production analogue of the teacher's own unauthenticated debug
// surfaces. It is not part of the wire protocol; see spec §4.9.
package monitor

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/netutil"

	"github.com/tii-ssrc/sensortree/router"
	"github.com/tii-ssrc/sensortree/types"
)

// MaxConnections bounds concurrent monitor clients so a slow operator
// tool cannot pin unbounded goroutines on the root.
const MaxConnections = 8

// PushInterval is how often a snapshot is pushed to each connected
// client.
const PushInterval = 2 * time.Second

// Snapshot is the JSON shape pushed to every connected client.
type Snapshot struct {
	Self      types.NodeAddress                       `json:"self"`
	Config    types.ReportingConfig                   `json:"reporting_config"`
	Neighbors []types.NodeAddress                      `json:"neighbors"`
	Routes    map[string]types.NodeAddress             `json:"routes"`
	PeerStats map[string]router.PeerStatsSnapshot       `json:"peer_stats"`
}

func snapshotOf(node *router.Node) Snapshot {
	routes := node.Routes()
	byString := make(map[string]types.NodeAddress, len(routes))
	for dest, next := range routes {
		byString[dest.String()] = next
	}
	stats := node.PeerStats()
	statsByString := make(map[string]router.PeerStatsSnapshot, len(stats))
	for addr, s := range stats {
		statsByString[addr.String()] = s
	}
	return Snapshot{
		Self:      node.Self,
		Config:    node.Config(),
		Neighbors: node.Neighbors(),
		Routes:    byString,
		PeerStats: statsByString,
	}
}

// Server hosts the monitor websocket endpoint for a single root node.
type Server struct {
	node     *router.Node
	upgrader websocket.Upgrader
	Log      *log.Logger
}

// NewServer constructs a monitor Server for node. The upgrader's
// CheckOrigin accepts same-origin and cross-origin requests alike, since
// this is local-network diagnostics rather than a browser-facing
// service (security is out of scope, per spec's Non-goals).
func NewServer(node *router.Node, logger *log.Logger) *Server {
	return &Server{
		node: node,
		Log:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ListenAndServe binds addr and serves the monitor endpoint until ctx
// is cancelled, bounding concurrent connections with
// netutil.LimitListener exactly as spec §4.9's monitor surface
// requires.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	limited := netutil.LimitListener(ln, MaxConnections)

	mux := http.NewServeMux()
	mux.HandleFunc("/tree", s.handleTree)
	srv := &http.Server{Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	err = srv.Serve(limited)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.Log != nil {
			s.Log.Printf("monitor: upgrade failed: %v", err)
		}
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(PushInterval)
	defer ticker.Stop()

	// Detect client disconnects without blocking the push loop.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			snap := snapshotOf(s.node)
			payload, err := json.Marshal(snap)
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}
