// Package serialmux shares one serial link to a passenger display
// between the goroutines that talk to it: every line the display sends
// is broadcast to all subscribers, and outgoing lines are written one at
// a time.
package serialmux

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var ErrWriteFailed = errors.New("failed to write to serial port")

// subscriberBuffer is how many lines a subscriber may fall behind
// before further lines are dropped for it.
const subscriberBuffer = 16

// SerialMuxInterface is what the display and the admin routes need.
type SerialMuxInterface interface {
	// Subscribe registers a receiver for incoming lines.
	Subscribe() (string, chan string)
	Unsubscribe(string)
	// SendCommand writes one newline terminated line.
	SendCommand(string) error
	// Monitor reads from the port until it closes or ctx ends.
	Monitor(context.Context) error
	Close() error
	AttachAdminRoutes(*http.ServeMux)
}

// SerialMux multiplexes a port.
type SerialMux[T SerialPorter] struct {
	port T

	writeMu sync.Mutex

	mu     sync.Mutex
	subs   map[string]chan string
	closed bool
}

// NewSerialMux wraps port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{port: port, subs: make(map[string]chan string)}
}

// Subscribe returns an id and a buffered channel of incoming lines. The
// channel is closed by Unsubscribe or Close.
func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := uuid.NewString()
	ch := make(chan string, subscriberBuffer)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return id, ch
	}
	s.subs[id] = ch
	return id, ch
}

// Unsubscribe closes and forgets the subscription. Unknown ids are
// ignored.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

// SubscriberCount returns the number of live subscriptions.
func (s *SerialMux[T]) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// SendCommand writes line to the port, adding the newline if missing.
func (s *SerialMux[T]) SendCommand(line string) error {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	n, err := io.WriteString(s.port, line)
	if err != nil {
		return err
	}
	if n != len(line) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor broadcasts lines read from the port until ctx ends (ctx.Err),
// the port reaches EOF or is closed through Close (nil), or a read
// fails (wrapped error). The reader goroutine is left blocked on the
// port when ctx ends first; closing the port releases it.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- s.readLines() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if errors.Is(err, io.EOF) || s.isClosed() {
			return nil
		}
		return fmt.Errorf("read serial port: %w", err)
	}
}

func (s *SerialMux[T]) readLines() error {
	r := bufio.NewReader(s.port)
	for {
		line, err := r.ReadString('\n')
		if line = strings.TrimRight(line, "\r\n"); line != "" && !s.isClosed() {
			s.broadcast(line)
		}
		if err != nil {
			return err
		}
	}
}

// broadcast never blocks: a subscriber with a full buffer misses line.
func (s *SerialMux[T]) broadcast(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- line:
		default:
		}
	}
}

func (s *SerialMux[T]) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close ends every subscription and closes the port.
func (s *SerialMux[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()
	return s.port.Close()
}
