package transaction

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"hamlink/internal/caps"
	"hamlink/internal/protocol"
	"hamlink/internal/protocol/fake"
	"hamlink/pkg/driver"
)

var timing = caps.Timing{Timeout: 200 * time.Millisecond, Retry: 3}

func echo(cmd []byte) []byte { return cmd }

func TestExecuteWithReply(t *testing.T) {
	tr := fake.NewTransport(echo)
	e := NewEngine(tr, timing, zaptest.NewLogger(t))

	cmd := []byte{0xFF, 0x01, 0x00, 0x51, 0x00, 0x00, 0x52}
	reply, err := e.Execute(cmd, len(cmd))
	if err != nil {
		t.Fatalf("Execute() err=%v", err)
	}
	if !bytes.Equal(reply, cmd) {
		t.Fatalf("Execute() reply=% X, want % X", reply, cmd)
	}
	if tr.Flushes() != 1 || len(tr.Writes()) != 1 || tr.Reads() != 1 {
		t.Fatalf("flushes=%d writes=%d reads=%d, want 1/1/1", tr.Flushes(), len(tr.Writes()), tr.Reads())
	}
}

func TestExecuteNoReplySkipsRead(t *testing.T) {
	tr := fake.NewTransport(echo)
	e := NewEngine(tr, timing, zaptest.NewLogger(t))

	reply, err := e.Execute([]byte{0xFF, 0x01, 0x00, 0x00, 0x00, 0x00, 0x01}, 0)
	if err != nil || reply != nil {
		t.Fatalf("Execute() = %v, %v; want nil, nil", reply, err)
	}
	if tr.Reads() != 0 {
		t.Fatalf("reads=%d, want 0", tr.Reads())
	}
}

func TestExecuteErrors(t *testing.T) {
	tests := []struct {
		name     string
		writeErr error
		readErr  error
		respond  fake.Responder
		want     error
		wantCode string
	}{
		{"write failure", errors.New("device gone"), nil, echo, driver.ErrTransportWrite, CodeIO},
		{"short write", protocol.ErrShortWrite, nil, echo, driver.ErrTransportWrite, CodeShortWrite},
		{"read timeout", nil, protocol.ErrTimeout, echo, driver.ErrTransportRead, CodeTimeout},
		{"short read", nil, nil, func([]byte) []byte { return []byte{0xFF} }, driver.ErrTransportRead, CodeTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := fake.NewTransport(tt.respond)
			tr.WriteErrs = []error{tt.writeErr}
			tr.ReadErrs = []error{tt.readErr}
			e := NewEngine(tr, timing, zaptest.NewLogger(t))

			_, err := e.Execute([]byte{0xFF, 0x01, 0x00, 0x51, 0x00, 0x00, 0x52}, 7)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Execute() err=%v, want %v", err, tt.want)
			}
			var txErr *Error
			if !errors.As(err, &txErr) || txErr.Code != tt.wantCode {
				t.Fatalf("Execute() err=%#v, want code %s", err, tt.wantCode)
			}
			if len(tr.Writes()) != 1 {
				t.Fatalf("writes=%d, want exactly 1", len(tr.Writes()))
			}
		})
	}
}

func TestWriteFailureDoesNotRead(t *testing.T) {
	tr := fake.NewTransport(echo)
	tr.WriteErrs = []error{errors.New("boom")}
	e := NewEngine(tr, timing, zaptest.NewLogger(t))

	if _, err := e.Execute([]byte{1, 2, 3}, 3); err == nil {
		t.Fatal("Execute() err=nil")
	}
	if tr.Reads() != 0 {
		t.Fatalf("reads=%d, want 0", tr.Reads())
	}
}

func TestWritePacing(t *testing.T) {
	tr := fake.NewTransport(nil)
	paced := caps.Timing{Timeout: time.Second, WriteDelay: 5 * time.Millisecond, PostWriteDelay: 50 * time.Millisecond}
	e := NewEngine(tr, paced, zaptest.NewLogger(t))

	var slept []time.Duration
	e.sleep = func(d time.Duration) { slept = append(slept, d) }

	if _, err := e.Execute([]byte{1, 2, 3}, 0); err != nil {
		t.Fatalf("Execute() err=%v", err)
	}
	if len(tr.Writes()) != 3 {
		t.Fatalf("writes=%d, want one per byte", len(tr.Writes()))
	}
	want := []time.Duration{5 * time.Millisecond, 5 * time.Millisecond, 5 * time.Millisecond, 50 * time.Millisecond}
	if len(slept) != len(want) {
		t.Fatalf("slept=%v, want %v", slept, want)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Fatalf("slept=%v, want %v", slept, want)
		}
	}
}

func TestExecuteTerminated(t *testing.T) {
	tests := []struct {
		name    string
		respond fake.Responder
		maxLen  int
		want    string
		wantErr error
	}{
		{"reply", func([]byte) []byte { return []byte("FA014074000;") }, 32, "FA014074000;", nil},
		{"stops at terminator", func([]byte) []byte { return []byte("TX0;junk") }, 32, "TX0;", nil},
		{"no reply expected", func([]byte) []byte { return []byte("x;") }, 0, "", nil},
		{"missing terminator", func([]byte) []byte { return []byte("FA0140") }, 32, "", driver.ErrTransportRead},
		{"overflow", func([]byte) []byte { return []byte("FA014074000;") }, 4, "", driver.ErrProtocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := fake.NewTransport(tt.respond)
			e := NewEngine(tr, timing, zaptest.NewLogger(t))

			got, err := e.ExecuteTerminated([]byte("FA;"), ';', tt.maxLen)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ExecuteTerminated() err=%v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExecuteTerminated() err=%v", err)
			}
			if string(got) != tt.want {
				t.Fatalf("ExecuteTerminated() = %q, want %q", got, tt.want)
			}
		})
	}
}
