// Package protocol defines the line-delimited JSON messages a worker module
// writes on stdout while it runs. The launcher never sends anything back; the
// stream is one-way observability plus a single launch handshake.
package protocol

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/tidwall/gjson"
)

// Worker→launcher message types.
const (
	// MsgTypeReady is sent once after startup and must echo the launch nonce.
	MsgTypeReady = "ready"

	// MsgTypeLog carries one line of worker output.
	MsgTypeLog = "log"

	// MsgTypeExit is sent immediately before the worker exits on its own.
	MsgTypeExit = "exit"
)

// NonceEnv is the environment variable through which the launcher hands the
// worker its launch nonce.
const NonceEnv = "SPINDLE_LAUNCH_NONCE"

// MaxLineSize is the largest accepted protocol line (1 MiB). Longer stdout
// lines are truncated by the scanner before they reach DecodeLine.
const MaxLineSize = 1 << 20

// Message is the envelope for all worker→launcher messages.
type Message struct {
	Type  string `json:"type"`
	Nonce string `json:"nonce,omitempty"`
	Line  string `json:"line,omitempty"`
	Code  int    `json:"code,omitempty"`
}

// Write encodes m as a single JSON line on w.
func Write(w io.Writer, m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// DecodeLine interprets one line of worker stdout. Lines that are valid
// protocol envelopes decode into their message. Anything else (plain text,
// malformed JSON, JSON without a recognized type) degrades to a log message
// carrying the raw line, so workers that know nothing about the protocol
// still stream output.
func DecodeLine(line []byte) Message {
	t := gjson.GetBytes(line, "type")
	switch t.String() {
	case MsgTypeReady, MsgTypeLog, MsgTypeExit:
	default:
		return Message{Type: MsgTypeLog, Line: string(line)}
	}

	var m Message
	if err := json.Unmarshal(line, &m); err != nil {
		return Message{Type: MsgTypeLog, Line: string(line)}
	}
	return m
}
