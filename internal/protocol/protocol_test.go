package protocol

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriteProducesOneLine(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, Message{Type: MsgTypeReady, Nonce: "abc"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	out := buf.String()
	if !strings.HasSuffix(out, "\n") {
		t.Errorf("output %q does not end with newline", out)
	}
	if strings.Count(out, "\n") != 1 {
		t.Errorf("output %q contains embedded newlines", out)
	}
}

func TestDecodeLineRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := Message{Type: MsgTypeExit, Code: 3}
	if err := Write(&buf, want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := DecodeLine(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	if got != want {
		t.Errorf("DecodeLine = %+v, want %+v", got, want)
	}
}

func TestDecodeLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Message
	}{
		{
			name: "ready with nonce",
			line: `{"type":"ready","nonce":"0193e5-abc"}`,
			want: Message{Type: MsgTypeReady, Nonce: "0193e5-abc"},
		},
		{
			name: "log line",
			line: `{"type":"log","line":"hello"}`,
			want: Message{Type: MsgTypeLog, Line: "hello"},
		},
		{
			name: "exit with code",
			line: `{"type":"exit","code":2}`,
			want: Message{Type: MsgTypeExit, Code: 2},
		},
		{
			name: "plain text degrades to log",
			line: "starting up...",
			want: Message{Type: MsgTypeLog, Line: "starting up..."},
		},
		{
			name: "unrecognized type degrades to log",
			line: `{"type":"metrics","value":1}`,
			want: Message{Type: MsgTypeLog, Line: `{"type":"metrics","value":1}`},
		},
		{
			name: "json without type degrades to log",
			line: `{"level":"info","msg":"tick"}`,
			want: Message{Type: MsgTypeLog, Line: `{"level":"info","msg":"tick"}`},
		},
		{
			name: "empty line degrades to empty log",
			line: "",
			want: Message{Type: MsgTypeLog, Line: ""},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DecodeLine([]byte(tc.line))
			if got != tc.want {
				t.Errorf("DecodeLine(%q) = %+v, want %+v", tc.line, got, tc.want)
			}
		})
	}
}
