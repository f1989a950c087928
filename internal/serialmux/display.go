package serialmux

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/passenger.counter/internal/counting"
	"github.com/banshee-data/passenger.counter/internal/monitoring"
	"github.com/banshee-data/passenger.counter/internal/stream"
	"github.com/banshee-data/passenger.counter/internal/version"
)

var logf = monitoring.Prefixed("serial")

// Streams is the part of stream.Manager the display drives.
type Streams interface {
	Names() []string
	Snapshot(name string) (counting.Snapshot, bool)
	Reset(name string) error
	ResetAll() []string
}

// Display keeps a serial counter display in step with the streams and
// carries out the requests it sends back. It is a stream.Sink.
type Display struct {
	mux     SerialMuxInterface
	streams Streams

	mu   sync.Mutex
	last map[string]counting.Counters
}

// NewDisplay connects mux to streams.
func NewDisplay(mux SerialMuxInterface, streams Streams) *Display {
	return &Display{mux: mux, streams: streams, last: make(map[string]counting.Counters)}
}

// Hello announces the counter to the device.
func (d *Display) Hello() error {
	return d.mux.SendCommand("HELLO pcn " + version.Version)
}

// OnFrame sends a COUNT line whenever a stream's totals change,
// including the drop to zero after a reset.
func (d *Display) OnFrame(ctx context.Context, out stream.Output) error {
	c := out.Snapshot.Counters
	d.mu.Lock()
	prev, seen := d.last[out.Stream]
	if seen && prev == c {
		d.mu.Unlock()
		return nil
	}
	d.last[out.Stream] = c
	d.mu.Unlock()
	return d.mux.SendCommand(FormatCount(out.Stream, c.In, c.Out))
}

// Run handles requests from the device until ctx ends or the mux is
// closed.
func (d *Display) Run(ctx context.Context) error {
	id, lines := d.mux.Subscribe()
	defer d.mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := d.handle(line); err != nil {
				logf("request %q: %v", line, err)
				if err := d.mux.SendCommand("ERR " + err.Error()); err != nil {
					return fmt.Errorf("write error reply: %w", err)
				}
			}
		}
	}
}

func (d *Display) handle(line string) error {
	req, err := ParseRequest(line)
	if err != nil {
		return err
	}
	switch req.Verb {
	case VerbPing:
		return d.mux.SendCommand("PONG")
	case VerbStatus:
		for _, name := range d.streams.Names() {
			snap, ok := d.streams.Snapshot(name)
			if !ok {
				continue
			}
			if err := d.mux.SendCommand(FormatCount(name, snap.Counters.In, snap.Counters.Out)); err != nil {
				return err
			}
		}
		return nil
	case VerbReset:
		if req.Stream == "" {
			names := d.streams.ResetAll()
			logf("reset requested for %d streams", len(names))
			return d.mux.SendCommand("OK RESET")
		}
		if err := d.streams.Reset(req.Stream); err != nil {
			if errors.Is(err, stream.ErrUnknownStream) {
				return fmt.Errorf("unknown stream %q", req.Stream)
			}
			return fmt.Errorf("stream %q is not running", req.Stream)
		}
		logf("reset requested for %s", req.Stream)
		return d.mux.SendCommand("OK RESET " + req.Stream)
	}
	return nil
}
