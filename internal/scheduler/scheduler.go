package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"pharos.xyz/statschecker/pkg/logger"
)

const jobTimeout = 2 * time.Minute

type Scheduler struct {
	cron *cron.Cron
	jobs []Job
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithLocation(time.UTC)),
		jobs: make([]Job, 0),
	}
}

// RegisterJob adds job and, when it has a schedule, puts it on the cron table.
func (s *Scheduler) RegisterJob(job Job) error {
	schedule := job.GetSchedule()
	if schedule != "" {
		if _, err := s.cron.AddFunc(schedule, func() { s.run(context.Background(), job) }); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", job.GetName(), schedule, err)
		}
		logger.Infof("📅 [%s] Scheduled with cron: %s (UTC)", job.GetName(), schedule)
	} else {
		logger.Infof("📝 [%s] Registered as on-demand job", job.GetName())
	}

	s.jobs = append(s.jobs, job)
	return nil
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	start := time.Now()
	logger.Infof("🤖 [%s] Starting job...", job.GetName())
	if err := job.Execute(ctx); err != nil {
		logger.Errorf("❌ [%s] Job failed after %s: %v", job.GetName(), time.Since(start).Round(time.Millisecond), err)
		return err
	}
	logger.Infof("✅ [%s] Job completed in %s", job.GetName(), time.Since(start).Round(time.Millisecond))
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Infof("🚀 Scheduler started with %d registered jobs", len(s.jobs))
}

// Stop stops the cron table and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		logger.Infof("🛑 Scheduler stopped")
	case <-ctx.Done():
		logger.Warnf("🛑 Scheduler stop timed out with jobs still running")
	}
}

// RunJobByName runs a registered job synchronously.
func (s *Scheduler) RunJobByName(ctx context.Context, name string) error {
	for _, job := range s.jobs {
		if job.GetName() == name {
			logger.Infof("🎯 [%s] Running on-demand execution...", name)
			return s.run(ctx, job)
		}
	}
	return fmt.Errorf("job %q not registered", name)
}

// RunInBackground runs a registered job once without waiting for it.
func (s *Scheduler) RunInBackground(name string) {
	go func() {
		_ = s.RunJobByName(context.Background(), name)
	}()
}

func (s *Scheduler) GetRegisteredJobs() []string {
	names := make([]string, len(s.jobs))
	for i, job := range s.jobs {
		names[i] = job.GetName()
	}
	return names
}
