// Package scheduler triggers orchestrator runs on each job's cron
// schedule. The orchestrator's per-job in-flight state makes overlapping
// triggers harmless: a tick arriving while the previous run is still
// going is a logged no-op.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/datamill-io/syncmill/pkg/config"
	"github.com/datamill-io/syncmill/pkg/logger"
	"github.com/datamill-io/syncmill/pkg/orchestrator"
)

// Scheduler owns the cron runner.
type Scheduler struct {
	cron *cron.Cron
	orch *orchestrator.Orchestrator
}

// New builds a scheduler over the orchestrator.
func New(orch *orchestrator.Orchestrator) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		orch: orch,
	}
}

// Add registers a job's schedule. Jobs without a schedule are skipped;
// they only run on demand.
func (s *Scheduler) Add(ctx context.Context, job config.JobConfig) error {
	if job.Schedule == "" {
		return nil
	}

	name := job.Name
	_, err := s.cron.AddFunc(job.Schedule, func() {
		if _, err := s.orch.Run(ctx, name); err != nil {
			logger.WithContext(ctx).Error("scheduled run failed",
				zap.String("job", name),
				zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	logger.Get().Info("job scheduled",
		zap.String("job", name),
		zap.String("schedule", job.Schedule))
	return nil
}

// Start begins triggering schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the cron runner and waits for in-flight triggers.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
