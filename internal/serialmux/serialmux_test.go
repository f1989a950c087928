package serialmux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/banshee-data/passenger.counter/internal/counting"
	"github.com/banshee-data/passenger.counter/internal/monitoring"
	"github.com/banshee-data/passenger.counter/internal/stream"
)

func init() {
	monitoring.SetLogger(nil)
}

func TestPortOptions(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "N"}, opts)

	mode, err := PortOptions{BaudRate: 115200, StopBits: 2, Parity: "even"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, &serial.Mode{BaudRate: 115200, DataBits: 8, StopBits: serial.TwoStopBits, Parity: serial.EvenParity}, mode)

	for _, bad := range []PortOptions{{DataBits: 9}, {StopBits: 3}, {Parity: "mark"}} {
		_, err := bad.SerialMode()
		assert.Error(t, err, "%+v", bad)
	}
}

func TestParseRequest(t *testing.T) {
	cases := []struct {
		line string
		want Request
		err  bool
	}{
		{line: "RESET", want: Request{Verb: VerbReset}},
		{line: "reset door-1", want: Request{Verb: VerbReset, Stream: "door-1"}},
		{line: "  PING ", want: Request{Verb: VerbPing}},
		{line: "STATUS", want: Request{Verb: VerbStatus}},
		{line: "", err: true},
		{line: "RESET a b", err: true},
		{line: "PING now", err: true},
		{line: "OPEN doors", err: true},
	}
	for _, tc := range cases {
		got, err := ParseRequest(tc.line)
		if tc.err {
			assert.Error(t, err, tc.line)
			continue
		}
		require.NoError(t, err, tc.line)
		assert.Equal(t, tc.want, got)
	}
	assert.Equal(t, "COUNT door-1 IN=3 OUT=2", FormatCount("door-1", 3, 2))
}

func TestSerialMux_MonitorFansOut(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	id1, ch1 := mux.Subscribe()
	_, ch2 := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	port.AddReadData("PING\r\nSTATUS\n")
	assert.Equal(t, "PING", <-ch1)
	assert.Equal(t, "PING", <-ch2)
	assert.Equal(t, "STATUS", <-ch1)
	assert.Equal(t, "STATUS", <-ch2)

	mux.Unsubscribe(id1)
	_, ok := <-ch1
	assert.False(t, ok)

	require.NoError(t, mux.Close())
	_, ok = <-ch2
	assert.False(t, ok)
	assert.NoError(t, <-done)

	_, late := mux.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscriptions after Close are already closed")
	assert.NoError(t, mux.Close())
}

func TestSerialMux_MonitorReportsReadErrors(t *testing.T) {
	mux := NewSerialMux(failingPort{err: errors.New("cable pulled")})
	err := mux.Monitor(context.Background())
	assert.ErrorContains(t, err, "cable pulled")

	eof := NewSerialMux(failingPort{err: io.EOF})
	assert.NoError(t, eof.Monitor(context.Background()))
}

type failingPort struct{ err error }

func (p failingPort) Read([]byte) (int, error)    { return 0, p.err }
func (p failingPort) Write(b []byte) (int, error) { return len(b), nil }
func (p failingPort) Close() error                { return nil }

func TestSerialMux_SendCommand(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	require.NoError(t, mux.SendCommand("PONG"))
	require.NoError(t, mux.SendCommand("OK\n"))
	assert.Equal(t, "PONG\nOK\n", port.Written())

	port.WriteError = errors.New("unplugged")
	assert.Error(t, mux.SendCommand("PONG"))
}

type fakeStreams struct {
	mu      sync.Mutex
	snaps   map[string]counting.Snapshot
	stopped map[string]bool
	resets  []string
}

func (f *fakeStreams) Names() []string { return []string{"door-1", "door-2"} }

func (f *fakeStreams) Snapshot(name string) (counting.Snapshot, bool) {
	s, ok := f.snaps[name]
	return s, ok
}

func (f *fakeStreams) Reset(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.snaps[name]; !ok {
		return fmt.Errorf("%w: %s", stream.ErrUnknownStream, name)
	}
	if f.stopped[name] {
		return fmt.Errorf("%w: %s", stream.ErrStreamStopped, name)
	}
	f.resets = append(f.resets, name)
	return nil
}

func (f *fakeStreams) ResetAll() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, "*")
	return []string{"door-2"}
}

func (f *fakeStreams) resetCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.resets...)
}

func TestDisplay_HandlesRequests(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	streams := &fakeStreams{snaps: map[string]counting.Snapshot{
		"door-1": {Counters: counting.Counters{In: 4, Out: 1}},
		"door-2": {Counters: counting.Counters{In: 0, Out: 2}},
		"door-3": {},
	}, stopped: map[string]bool{"door-3": true}}
	d := NewDisplay(mux, streams)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)
	runDone := make(chan error, 1)
	go func() { runDone <- d.Run(ctx) }()

	require.NoError(t, d.Hello())
	// Give Run a moment to subscribe before the device talks.
	require.Eventually(t, func() bool { return mux.SubscriberCount() == 1 }, time.Second, time.Millisecond)

	port.AddReadData("PING\nSTATUS\nRESET door-2\nRESET\nRESET door-9\nRESET door-3\nJUMP\n")

	want := strings.Join([]string{
		"HELLO pcn dev",
		"PONG",
		"COUNT door-1 IN=4 OUT=1",
		"COUNT door-2 IN=0 OUT=2",
		"OK RESET door-2",
		"OK RESET",
		`ERR unknown stream "door-9"`,
		`ERR stream "door-3" is not running`,
		`ERR unknown verb "JUMP"`,
	}, "\n") + "\n"
	require.Eventually(t, func() bool { return port.Written() == want }, 2*time.Second, 5*time.Millisecond, port.Written())
	assert.Equal(t, []string{"door-2", "*"}, streams.resetCalls())

	cancel()
	assert.ErrorIs(t, <-runDone, context.Canceled)
}

func TestDisplay_OnFrameSendsChanges(t *testing.T) {
	port := NewTestableSerialPort()
	d := NewDisplay(NewSerialMux(port), &fakeStreams{})
	ctx := context.Background()

	send := func(in, out int) {
		require.NoError(t, d.OnFrame(ctx, stream.Output{
			Stream:   "door-1",
			Snapshot: counting.Snapshot{Counters: counting.Counters{In: in, Out: out}},
		}))
	}
	send(0, 0)
	send(0, 0)
	send(1, 0)
	send(1, 0)
	send(0, 0) // after a reset

	assert.Equal(t, "COUNT door-1 IN=0 OUT=0\nCOUNT door-1 IN=1 OUT=0\nCOUNT door-1 IN=0 OUT=0\n", port.Written())
}

func TestAdminRoutes(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	req := httptest.NewRequest(http.MethodGet, "/debug/serial", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Counter display console")

	form := url.Values{"command": {"PONG"}}
	req = httptest.NewRequest(http.MethodPost, "/debug/serial-send", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "127.0.0.1:5555"
	rec = httptest.NewRecorder()
	httpMux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PONG\n", port.Written())

	req = httptest.NewRequest(http.MethodPost, "/debug/serial-send", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec = httptest.NewRecorder()
	httpMux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
