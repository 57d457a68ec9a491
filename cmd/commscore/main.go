// Command commscore runs the Communications Core as a standalone process:
// it wires a logger, an event bus, and a dispatcher.Core together and then
// drains the bus to stdout. The typed command surface (dispatcher.Core's
// exported methods) is what an embedding GUI shell would call directly;
// this binary exists so the Core can be exercised and observed on its own,
// the way the teacher's cmd/server and cmd/logger binaries exercise a bare
// Modbus server or client without a GUI in front of them.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vienkmt/commscore/common"
	"github.com/vienkmt/commscore/dispatcher"
	"github.com/vienkmt/commscore/eventbus"
	"github.com/vienkmt/commscore/logging"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logLevel := common.LevelInfo
	if *debug {
		logLevel = common.LevelDebug
	}
	logger := logging.NewLogger(logging.WithLevel(logLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := eventbus.New()
	core := dispatcher.New(bus)
	core.Logger = logger

	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()
	go drainEvents(ctx, events)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info(ctx, "received shutdown signal, closing every endpoint...")
		core.Close(ctx)
		cancel()
	}()

	logger.Info(ctx, "communications core ready")
	<-ctx.Done()
	logger.Info(ctx, "shut down")
}

// drainEvents prints every bus event as a JSON line to stdout, standing in
// for the shell's event subscriber (the GUI itself is out of scope of this
// repo, per spec.md §1).
func drainEvents(ctx context.Context, events <-chan common.Event) {
	enc := json.NewEncoder(os.Stdout)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := enc.Encode(map[string]interface{}{
				"topic":     evt.Topic,
				"timestamp": evt.Timestamp,
				"payload":   evt.Payload,
			}); err != nil {
				fmt.Fprintln(os.Stderr, "encode event:", err)
			}
		}
	}
}
