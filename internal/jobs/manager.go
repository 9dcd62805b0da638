package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"oh-opus/internal/domain"
)

// ErrRunAlreadyActive is returned when starting a second concurrent run.
var ErrRunAlreadyActive = errors.New("conversion already running")

// ErrNoActiveRun is returned when pause, resume or cancel is requested while idle.
var ErrNoActiveRun = errors.New("no conversion running")

// Manager tracks the single allowed active run and its transitions.
type Manager struct {
	mu      sync.RWMutex
	current domain.Run
	now     func() time.Time
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{
		current: domain.Run{Status: domain.RunStatusIdle},
		now:     time.Now,
	}
}

// Start records a new running run. It leaves state untouched when a run is
// already active.
func (m *Manager) Start(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Status == domain.RunStatusRunning {
		return ErrRunAlreadyActive
	}
	if !isValidTransition(m.current.Status, domain.RunStatusRunning) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Status, domain.RunStatusRunning)
	}

	m.current = domain.Run{
		ID:        runID,
		Status:    domain.RunStatusRunning,
		StartedAt: m.now().UTC(),
	}
	return nil
}

// Finish moves the running run to a terminal status.
func (m *Manager) Finish(status domain.RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID == "" {
		return fmt.Errorf("cannot transition without an active run")
	}
	if status == m.current.Status {
		return nil
	}
	if !isValidTransition(m.current.Status, status) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Status, status)
	}

	m.current.Status = status
	m.current.Paused = false
	m.current.FinishedAt = m.now().UTC()
	return nil
}

// SetPaused records the pause flag of the running run.
func (m *Manager) SetPaused(paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Status != domain.RunStatusRunning {
		return ErrNoActiveRun
	}
	m.current.Paused = paused
	return nil
}

// RequestCancel marks the running run as cancel-requested. The run stays
// running until its in-flight work has drained.
func (m *Manager) RequestCancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Status != domain.RunStatusRunning {
		return ErrNoActiveRun
	}
	m.current.CancelRequested = true
	return nil
}

// Current returns a snapshot of the current run.
func (m *Manager) Current() domain.Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsRunning reports whether a run is active.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Status == domain.RunStatusRunning
}

// isValidTransition enforces the allowed run state machine edges.
func isValidTransition(from, to domain.RunStatus) bool {
	switch from {
	case domain.RunStatusIdle:
		return to == domain.RunStatusRunning
	case domain.RunStatusRunning:
		return to == domain.RunStatusCompleted || to == domain.RunStatusCancelled || to == domain.RunStatusFailed
	case domain.RunStatusCompleted, domain.RunStatusCancelled, domain.RunStatusFailed:
		return to == domain.RunStatusRunning || to == domain.RunStatusIdle
	default:
		return false
	}
}
