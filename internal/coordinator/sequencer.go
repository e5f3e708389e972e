package coordinator

import (
	"context"
	"sync"
)

// sequencer runs jobs one after another per key and concurrently across
// keys. A job starts only after the previous job for its key has finished.
type sequencer struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
	jobs  int
	idle  chan struct{} // closed while jobs == 0
}

func newSequencer() *sequencer {
	idle := make(chan struct{})
	close(idle)
	return &sequencer{tails: make(map[string]chan struct{}), idle: idle}
}

// run queues fn behind every earlier job for key.
func (s *sequencer) run(key string, fn func()) {
	done := make(chan struct{})

	s.mu.Lock()
	prev := s.tails[key]
	s.tails[key] = done
	s.jobs++
	if s.jobs == 1 {
		s.idle = make(chan struct{})
	}
	s.mu.Unlock()

	go func() {
		if prev != nil {
			<-prev
		}
		fn()
		close(done)

		s.mu.Lock()
		if s.tails[key] == done {
			delete(s.tails, key)
		}
		s.jobs--
		if s.jobs == 0 {
			close(s.idle)
		}
		s.mu.Unlock()
	}()
}

// wait blocks until no job is queued or running, or ctx ends.
func (s *sequencer) wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// inflight returns the number of queued or running jobs.
func (s *sequencer) inflight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs
}
