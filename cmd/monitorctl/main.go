// Command monitorctl is a standalone client for the root node's
// read-only monitor websocket (gateway/monitor), deliberately built on
// a different websocket stack (nhooyr.io/websocket) than the server
// (gorilla/websocket) so the wire format is exercised by two
// independent implementations.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"nhooyr.io/websocket"
)

func main() {
	addr := flag.String("addr", "ws://127.0.0.1:9001/tree", "monitor websocket URL")
	flag.Parse()

	logger := log.New(os.Stderr, "monitorctl: ", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		logger.Fatalf("dial %s: %v", *addr, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "monitorctl exiting")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Fatalf("read: %v", err)
		}

		var pretty map[string]interface{}
		if err := json.Unmarshal(data, &pretty); err != nil {
			fmt.Println(string(data))
			continue
		}
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(out))
	}
}
