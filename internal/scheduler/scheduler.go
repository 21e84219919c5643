// Package scheduler triggers periodic subscription refreshes.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

// minInterval protects feed servers from overly aggressive polling.
const minInterval = time.Minute

// Scheduler wraps a gocron scheduler with per-node job bookkeeping.
type Scheduler struct {
	logger    zerolog.Logger
	scheduler *gocron.Scheduler
	jobs      map[string]*gocron.Job
	mu        sync.RWMutex
	running   bool
}

// New creates a stopped scheduler.
func New(logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		logger:    logger.With().Str("component", "scheduler").Logger(),
		scheduler: gocron.NewScheduler(time.UTC),
		jobs:      make(map[string]*gocron.Job),
	}
}

// Start begins executing scheduled jobs asynchronously.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Warn().Msg("Scheduler is already running")
		return
	}
	s.scheduler.StartAsync()
	s.running = true
	s.logger.Info().Msg("Scheduler started")
}

// Stop halts job execution and clears all jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.scheduler.Stop()
	s.jobs = make(map[string]*gocron.Job)
	s.running = false
	s.logger.Info().Msg("Scheduler stopped")
}

// Schedule registers (or replaces) the periodic refresh of a node.
func (s *Scheduler) Schedule(nodeID string, interval time.Duration, handler func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return fmt.Errorf("scheduler is not running")
	}
	if interval < minInterval {
		return fmt.Errorf("interval %v below minimum %v", interval, minInterval)
	}

	if job, exists := s.jobs[nodeID]; exists {
		s.scheduler.RemoveByReference(job)
		delete(s.jobs, nodeID)
	}

	job, err := s.scheduler.Every(interval).Do(s.wrapHandler(nodeID, handler))
	if err != nil {
		return fmt.Errorf("failed to schedule node %s: %w", nodeID, err)
	}
	s.jobs[nodeID] = job

	s.logger.Debug().
		Str("node_id", nodeID).
		Dur("interval", interval).
		Time("next_run", job.NextRun()).
		Msg("Node scheduled")
	return nil
}

// Remove drops the schedule of a node; unknown nodes are not an error.
func (s *Scheduler) Remove(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, exists := s.jobs[nodeID]; exists {
		s.scheduler.RemoveByReference(job)
		delete(s.jobs, nodeID)
		s.logger.Debug().Str("node_id", nodeID).Msg("Schedule removed")
	}
}

// JobCount returns the number of scheduled nodes.
func (s *Scheduler) JobCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// wrapHandler shields the scheduler from panicking handlers.
func (s *Scheduler) wrapHandler(nodeID string, handler func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().
					Str("node_id", nodeID).
					Interface("panic", r).
					Msg("Panic during scheduled refresh")
			}
		}()
		handler()
	}
}
