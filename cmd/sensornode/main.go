// Command sensornode runs a single sensor-role node of the tree: it
// loads its YAML configuration, opens a QUIC transport, and drives the
// router.Node actor's real-time loop until killed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/tii-ssrc/sensortree/config"
	"github.com/tii-ssrc/sensortree/router"
	"github.com/tii-ssrc/sensortree/timer"
	"github.com/tii-ssrc/sensortree/transport/quictransport"
	"github.com/tii-ssrc/sensortree/types"
)

func main() {
	configPath := flag.String("config", "sensornode.yaml", "path to node configuration file")
	listenAddr := flag.String("listen", ":9100", "QUIC listen address for this node")
	peers := flagStringSlice("peer", `neighbor address book entry "a.b=host:port" (repeatable)`)
	flag.Parse()

	logger := log.New(os.Stderr, "sensornode: ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if cfg.Role() != router.RoleSensor {
		logger.Fatalf("config: %s is configured as role %q, not a sensor", *configPath, cfg.RoleName)
	}

	resolve, err := addressBook(*peers)
	if err != nil {
		logger.Fatalf("peer: %v", err)
	}

	xport, err := quictransport.Listen(cfg.Address, *listenAddr, resolve)
	if err != nil {
		logger.Fatalf("transport: %v", err)
	}
	defer xport.Close()

	node := router.NewSensorNode(cfg.Address, timer.Realtime{}, xport, logger)
	defer node.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go node.Run()
	logger.Printf("sensor node %s listening on %s", cfg.Address, *listenAddr)
	<-ctx.Done()
	logger.Printf("shutting down")
}

// addressBook parses "a.b=host:port" entries into the static resolver
// quictransport.Listen requires, since the protocol itself carries no
// address-resolution mechanism (spec §1 treats addressing as out of
// scope beyond the two-byte NodeAddress).
func addressBook(entries []string) (func(types.NodeAddress) (string, error), error) {
	book := make(map[types.NodeAddress]string, len(entries))
	for _, e := range entries {
		addrPart, target, ok := strings.Cut(e, "=")
		if !ok {
			return nil, fmt.Errorf("malformed entry %q, want \"a.b=host:port\"", e)
		}
		a, b, ok := strings.Cut(addrPart, ".")
		if !ok {
			return nil, fmt.Errorf("malformed address %q", addrPart)
		}
		ai, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("malformed address %q: %w", addrPart, err)
		}
		bi, err := strconv.Atoi(b)
		if err != nil {
			return nil, fmt.Errorf("malformed address %q: %w", addrPart, err)
		}
		book[types.Address(uint8(ai), uint8(bi))] = target
	}
	return func(addr types.NodeAddress) (string, error) {
		target, ok := book[addr]
		if !ok {
			return "", fmt.Errorf("no address book entry for %s", addr)
		}
		return target, nil
	}, nil
}

type stringSlice []string

func (s *stringSlice) String() string { return "" }
func (s *stringSlice) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func flagStringSlice(name, usage string) *stringSlice {
	s := &stringSlice{}
	flag.Var(s, name, usage)
	return s
}
