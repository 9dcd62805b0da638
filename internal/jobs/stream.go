package jobs

import (
	"sync"
	"time"
)

// Stream is an unbounded multi-producer event queue drained into a single
// channel. Emit never blocks on the consumer, so a slow UI cannot stall
// encoding workers.
type Stream struct {
	runID string
	out   chan Event

	mu      sync.Mutex
	pending []Event
	seq     int64
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

// NewStream creates a stream for one run and starts its forwarder.
func NewStream(runID string) *Stream {
	s := &Stream{
		runID: runID,
		out:   make(chan Event, 64),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go s.forward()
	return s
}

// Events returns the consumer side. It is closed after Close once every
// queued event has been delivered.
func (s *Stream) Events() <-chan Event {
	return s.out
}

// Emit queues an event, stamping run ID, sequence and timestamp. Events
// emitted after Close are dropped.
func (s *Stream) Emit(event Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.seq++
	event.Seq = s.seq
	event.RunID = s.runID
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	s.pending = append(s.pending, event)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Close stops accepting events; the output channel closes after the backlog drains.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Done is closed once the output channel has been closed.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func (s *Stream) forward() {
	defer close(s.done)
	defer close(s.out)

	for {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		closed := s.closed
		s.mu.Unlock()

		for _, event := range batch {
			s.out <- event
		}

		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-s.wake
	}
}
