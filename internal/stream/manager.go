package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/passenger.counter/internal/counting"
)

// Manager owns a set of independently running streams.
type Manager struct {
	mu      sync.RWMutex
	runners map[string]*Runner
	order   []string
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{runners: make(map[string]*Runner)}
}

// Add registers a runner. Names must be unique.
func (m *Manager) Add(r *Runner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runners[r.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateStream, r.Name())
	}
	m.runners[r.Name()] = r
	m.order = append(m.order, r.Name())
	return nil
}

// Names returns stream names in registration order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Get returns the named runner.
func (m *Manager) Get(name string) (*Runner, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runners[name]
	return r, ok
}

// Snapshot returns the latest snapshot of the named stream.
func (m *Manager) Snapshot(name string) (counting.Snapshot, bool) {
	r, ok := m.Get(name)
	if !ok {
		return counting.Snapshot{}, false
	}
	return r.Snapshot(), true
}

// SessionID returns the current session of the named stream.
func (m *Manager) SessionID(name string) (string, bool) {
	r, ok := m.Get(name)
	if !ok {
		return "", false
	}
	return r.SessionID(), true
}

// Reset requests a counter reset on the named stream. It fails with
// ErrUnknownStream or ErrStreamStopped.
func (m *Manager) Reset(name string) error {
	r, ok := m.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStream, name)
	}
	return r.RequestReset()
}

// ResetAll requests a counter reset on every running stream and returns
// their names.
func (m *Manager) ResetAll() []string {
	reset := []string{}
	for _, name := range m.Names() {
		if m.Reset(name) == nil {
			reset = append(reset, name)
		}
	}
	return reset
}

// Run runs every registered stream until each has returned. A failing
// stream does not stop the others. Cancellation is not reported as an
// error.
func (m *Manager) Run(ctx context.Context) error {
	var g errgroup.Group
	for _, name := range m.Names() {
		r, _ := m.Get(name)
		g.Go(func() error {
			err := r.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}
