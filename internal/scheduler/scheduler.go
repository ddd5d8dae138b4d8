package scheduler

import (
	"context"
	"fmt"
	"time"

	"rental-service/internal/util"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const jobTimeout = 5 * time.Minute

// Job is a unit of periodic work
type Job interface {
	Run(ctx context.Context) (int64, error)
}

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// NewScheduler creates a scheduler running in UTC with seconds precision
func NewScheduler() *Scheduler {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	return &Scheduler{
		cron:   c,
		logger: util.GetLogger(),
	}
}

// Register adds a named job on a six-field cron schedule
func (s *Scheduler) Register(name, schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() { s.run(name, job) })
	if err != nil {
		return fmt.Errorf("failed to register %s job: %w", name, err)
	}
	s.logger.Info("Cron job registered", zap.String("job", name), zap.String("schedule", schedule))
	return nil
}

// RunNow runs a job once, outside its schedule
func (s *Scheduler) RunNow(name string, job Job) {
	s.run(name, job)
}

func (s *Scheduler) run(name string, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	n, err := job.Run(ctx)
	if err != nil {
		s.logger.Error("Cron job failed", zap.String("job", name), zap.Error(err))
		return
	}
	s.logger.Info("Cron job finished",
		zap.String("job", name),
		zap.Int64("affected", n),
		zap.Duration("took", time.Since(start)))
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	s.logger.Info("Starting cron scheduler")
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping cron scheduler")
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// IsRunning returns true if any job is registered
func (s *Scheduler) IsRunning() bool {
	return len(s.cron.Entries()) > 0
}
