// Command spindle-worker is a reference worker module. It performs the launch
// handshake by echoing the nonce from the environment, emits a heartbeat log
// line every few seconds, and exits cleanly on SIGTERM.
//
// It exists so a spindle deployment can be smoke-tested without writing a
// worker: point SPINDLE_MODULE_DIR at a directory containing this binary and
// launch it by name.
package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spindlehq/spindle/internal/protocol"
)

const heartbeatInterval = 5 * time.Second

func main() {
	out := os.Stdout

	ready := protocol.Message{
		Type:  protocol.MsgTypeReady,
		Nonce: os.Getenv(protocol.NonceEnv),
	}
	if err := protocol.Write(out, ready); err != nil {
		log.Fatalf("write ready: %v", err)
	}

	// SPINDLE_WORKER_BEATS bounds the run for smoke tests; 0 runs until SIGTERM.
	maxBeats := 0
	if v := os.Getenv("SPINDLE_WORKER_BEATS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Fatalf("invalid SPINDLE_WORKER_BEATS: %v", err)
		}
		maxBeats = n
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	beats := 0
	for {
		select {
		case <-quit:
			_ = protocol.Write(out, protocol.Message{Type: protocol.MsgTypeExit, Code: 0})
			return
		case <-ticker.C:
			beats++
			msg := protocol.Message{
				Type: protocol.MsgTypeLog,
				Line: "heartbeat " + strconv.Itoa(beats),
			}
			if err := protocol.Write(out, msg); err != nil {
				// stdout is gone, so is the launcher.
				os.Exit(1)
			}
			if maxBeats > 0 && beats >= maxBeats {
				_ = protocol.Write(out, protocol.Message{Type: protocol.MsgTypeExit, Code: 0})
				return
			}
		}
	}
}
