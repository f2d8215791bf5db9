package main

import (
	"sync"
	"time"

	"github.com/comalice/hsm/lifecycle"
)

// simService is an in-memory service whose workers need a number of
// interrupts before they are gone.
type simService struct {
	name  string
	delay time.Duration

	mu      sync.Mutex
	workers int
	stuck   int
}

func newSimService(name string, stuck int, delay time.Duration) *simService {
	return &simService{name: name, stuck: stuck, delay: delay}
}

func (s *simService) ServiceName() string { return s.name }

func (s *simService) WorkingContext() lifecycle.WorkingContext { return s }

func (s *simService) ActiveWorkers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workers
}

func (s *simService) Shutdown() {}

// Interrupt releases one stuck worker.
func (s *simService) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workers > 0 {
		s.workers--
	}
}

func (s *simService) Prepare(lifecycle.Environment) error {
	time.Sleep(s.delay)
	return nil
}

func (s *simService) Launch(lifecycle.Environment, []string) error {
	time.Sleep(s.delay)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = s.stuck
	return nil
}

func (s *simService) Stop(lifecycle.Environment) error {
	time.Sleep(s.delay)
	return nil
}
