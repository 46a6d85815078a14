package interfaces

import "context"

// SchedulerService runs recurring scrape jobs on a cron schedule.
type SchedulerService interface {
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool
}
