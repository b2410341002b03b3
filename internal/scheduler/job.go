package scheduler

import "context"

// Job is a unit of background work the scheduler can run.
type Job interface {
	// GetName is the unique job name used in logs and RunJobByName.
	GetName() string

	// GetSchedule returns a standard five-field cron expression evaluated in UTC, or
	// "" for a job that only runs on demand.
	GetSchedule() string

	Execute(ctx context.Context) error
}
