// Package sweep runs the periodic maintenance jobs: campaign expiry and
// deadline reminders.
package sweep

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is one periodic maintenance task. Run receives the tick time.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(now time.Time) error
}

// Scheduler drives each registered job on its own ticker. A failing or
// panicking job is logged and retried on the next tick, never fatal.
type Scheduler struct {
	mu     sync.Mutex
	jobs   []Job
	log    *slog.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(log *slog.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs, log: log}
}

// Start begins every job loop. Each job runs once right away, then on its
// interval: a restart must not postpone overdue maintenance by a full period.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(job Job) {
			defer s.wg.Done()
			s.runJob(job, time.Now())

			ticker := time.NewTicker(job.Interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case now := <-ticker.C:
					s.runJob(job, now)
				}
			}
		}(job)
	}
}

// Stop cancels the loops and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) runJob(job Job, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("sweep job panicked", "job", job.Name, "panic", r)
		}
	}()
	if err := job.Run(now); err != nil {
		s.log.Error("sweep job failed", "job", job.Name, "err", err)
	}
}
