package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Supervisor is the control worker: it runs the current worker set, one
// goroutine per worker, and swaps it for a new set on reload.
type Supervisor struct {
	mu      sync.Mutex
	baseCtx context.Context
	current *generation
}

type generation struct {
	workers []Worker
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Int32
}

func NewSupervisor() *Supervisor {
	return &Supervisor{baseCtx: context.Background()}
}

// SetBaseContext sets the parent context of future worker sets. Cancelling
// it stops the workers the same way Stop does.
func (s *Supervisor) SetBaseContext(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
}

// Replace stops the running set, waits for it to drain and starts workers.
// A worker in the middle of a task finishes that task before it exits.
func (s *Supervisor) Replace(workers []Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old := s.current; old != nil {
		old.cancel()
		old.wg.Wait()
		log.Info().Int("workers", len(old.workers)).Msg("previous workers stopped")
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	gen := &generation{workers: workers, cancel: cancel}
	for _, w := range workers {
		w := w
		gen.wg.Add(1)
		gen.running.Add(1)
		go func() {
			defer gen.wg.Done()
			defer gen.running.Add(-1)
			w.Run(ctx)
		}()
	}
	s.current = gen
	log.Info().Int("workers", len(workers)).Msg("workers started")
}

// Workers returns the current worker set.
func (s *Supervisor) Workers() []Worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return append([]Worker(nil), s.current.workers...)
}

// Running reports how many workers of the current set have not returned.
func (s *Supervisor) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return 0
	}
	return int(s.current.running.Load())
}

// WaitAll blocks until the current workers return or ctx is done.
// Returns true if all workers finished, false if timed out.
func (s *Supervisor) WaitAll(ctx context.Context) bool {
	s.mu.Lock()
	gen := s.current
	s.mu.Unlock()
	if gen == nil {
		return true
	}

	done := make(chan struct{})
	go func() {
		gen.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stop cancels the current workers and waits for them like WaitAll.
func (s *Supervisor) Stop(ctx context.Context) bool {
	s.mu.Lock()
	if s.current != nil {
		s.current.cancel()
	}
	s.mu.Unlock()
	return s.WaitAll(ctx)
}
