package tracker

import (
	"context"
	"errors"
	"log"
	"sync"
)

// Runner executes a single poll job
type Runner interface {
	Run(ctx context.Context, job PollJob) error
}

// LocalScheduler runs each poll job on its own goroutine
type LocalScheduler struct {
	runner Runner

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

func NewLocalScheduler(runner Runner) *LocalScheduler {
	return &LocalScheduler{
		runner:  runner,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Schedule starts job. A job already running for the same local task is
// replaced. The caller's ctx only bounds scheduling, not the poll itself.
func (s *LocalScheduler) Schedule(_ context.Context, job PollJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("scheduler closed")
	}
	if cancel, ok := s.cancels[job.LocalID]; ok {
		cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancels[job.LocalID] = cancel
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			// Only drop our own registration
			if c, ok := s.cancels[job.LocalID]; ok && ctx.Err() == nil {
				c()
				delete(s.cancels, job.LocalID)
			}
			s.mu.Unlock()
		}()
		if err := s.runner.Run(ctx, job); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[Export] Poll job %s failed: %v", job.LocalID, err)
		}
	}()
	return nil
}

// Close cancels every running job and waits for them to exit
func (s *LocalScheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for id, cancel := range s.cancels {
		cancel()
		delete(s.cancels, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
