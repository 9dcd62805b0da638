package convert

import (
	"context"
	"sync"
)

// gate blocks dispatch while paused. Waiters wake on resume or context end.
type gate struct {
	mu     sync.Mutex
	paused bool
	open   chan struct{}
}

func newGate() *gate {
	open := make(chan struct{})
	close(open)
	return &gate{open: open}
}

// Pause closes the gate and reports whether the state changed.
func (g *gate) Pause() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return false
	}
	g.paused = true
	g.open = make(chan struct{})
	return true
}

// Resume opens the gate and reports whether the state changed.
func (g *gate) Resume() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return false
	}
	g.paused = false
	close(g.open)
	return true
}

// Paused reports the current state.
func (g *gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Wait returns once the gate is open or ctx is done.
func (g *gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	open := g.open
	g.mu.Unlock()

	select {
	case <-open:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
