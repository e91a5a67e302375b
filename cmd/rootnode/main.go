// Command rootnode runs the root of the tree: it loads configuration,
// opens a QUIC transport for the sensor-facing side, bridges the
// gateway host over a serial line (spec §4.9), and optionally serves
// the read-only websocket monitor.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tii-ssrc/sensortree/config"
	"github.com/tii-ssrc/sensortree/gateway"
	"github.com/tii-ssrc/sensortree/gateway/monitor"
	"github.com/tii-ssrc/sensortree/gateway/serial"
	"github.com/tii-ssrc/sensortree/router"
	"github.com/tii-ssrc/sensortree/timer"
	"github.com/tii-ssrc/sensortree/transport/quictransport"
	"github.com/tii-ssrc/sensortree/types"
)

func main() {
	configPath := flag.String("config", "rootnode.yaml", "path to node configuration file")
	listenAddr := flag.String("listen", ":9000", "QUIC listen address for sensor-facing traffic")
	flag.Parse()

	logger := log.New(os.Stderr, "rootnode: ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if cfg.Role() != router.RoleRoot {
		logger.Fatalf("config: %s is configured as role %q, not root", *configPath, cfg.RoleName)
	}

	// The root never dials out; its only neighbors are children that
	// dial in, so it needs no address-book resolver of its own.
	noResolve := func(addr types.NodeAddress) (string, error) {
		return "", nil
	}
	xport, err := quictransport.Listen(cfg.Address, *listenAddr, noResolve)
	if err != nil {
		logger.Fatalf("transport: %v", err)
	}
	defer xport.Close()

	node := router.NewRootNode(cfg.Address, timer.Realtime{}, xport, logger)
	defer node.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Serial.Device != "" {
		port, err := serial.Open(cfg.Serial.Device)
		if err != nil {
			logger.Fatalf("serial: %v", err)
		}
		defer port.Close()
		bridge := gateway.NewBridge(node, port)
		go pumpSerial(ctx, port, bridge, logger)
	}

	if cfg.Monitor.Enabled {
		mon := monitor.NewServer(node, logger)
		go func() {
			if err := mon.ListenAndServe(ctx, cfg.Monitor.ListenAddress); err != nil {
				logger.Printf("monitor: %v", err)
			}
		}()
	}

	go node.Run()
	logger.Printf("root node %s listening on %s", cfg.Address, *listenAddr)
	<-ctx.Done()
	logger.Printf("shutting down")
}

func pumpSerial(ctx context.Context, r interface{ Read([]byte) (int, error) }, bridge *gateway.Bridge, logger *log.Logger) {
	buf := make([]byte, 256)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := r.Read(buf)
		if n > 0 {
			bridge.Feed(buf[:n])
		}
		if err != nil {
			logger.Printf("serial: read: %v", err)
			return
		}
	}
}
