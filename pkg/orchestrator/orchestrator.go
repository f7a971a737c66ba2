// Package orchestrator sequences a sync run for one job: reconcile the
// destination schema, walk the remote pages, upsert every record, and
// report the outcome. Each job is serialized with itself through an
// atomic in-flight state; jobs run freely concurrent with each other.
package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/datamill-io/syncmill/pkg/alert"
	"github.com/datamill-io/syncmill/pkg/config"
	"github.com/datamill-io/syncmill/pkg/errors"
	"github.com/datamill-io/syncmill/pkg/logger"
	"github.com/datamill-io/syncmill/pkg/metrics"
	"github.com/datamill-io/syncmill/pkg/schema"
	"github.com/datamill-io/syncmill/pkg/source"
	"github.com/datamill-io/syncmill/pkg/store"
	"github.com/datamill-io/syncmill/pkg/writer"
)

// Job states.
const (
	stateIdle    int32 = 0
	stateRunning int32 = 1
)

// RunResult summarizes one run.
type RunResult struct {
	Job      string
	RunID    string
	Started  time.Time
	Elapsed  time.Duration
	Pages    int
	Upserted int
	Skipped  int
	Err      error

	// AlreadyRunning marks a start request that was refused because a
	// run was in flight; nothing was fetched or written
	AlreadyRunning bool
}

// Succeeded reports whether the run completed without a run-level error.
func (r *RunResult) Succeeded() bool { return r.Err == nil && !r.AlreadyRunning }

type jobRunner struct {
	job    config.JobConfig
	api    source.RemoteAPI
	writer *writer.Writer
	state  int32
}

// Orchestrator owns every registered job's run state.
type Orchestrator struct {
	store    store.Store
	synchro  *schema.Synchronizer
	notifier alert.Notifier
	jobs     map[string]*jobRunner
	now      func() time.Time
}

// New builds an orchestrator over the destination store.
func New(st store.Store, notifier alert.Notifier) *Orchestrator {
	return &Orchestrator{
		store:    st,
		synchro:  schema.NewSynchronizer(st),
		notifier: notifier,
		jobs:     make(map[string]*jobRunner),
		now:      time.Now,
	}
}

// Register wires a job to its remote API. Jobs must be registered before
// the scheduler starts triggering runs.
func (o *Orchestrator) Register(job config.JobConfig, api source.RemoteAPI) {
	o.jobs[job.Name] = &jobRunner{
		job:    job,
		api:    api,
		writer: writer.NewWriter(o.store, job),
	}
}

// Jobs lists the registered job names.
func (o *Orchestrator) Jobs() []string {
	names := make([]string, 0, len(o.jobs))
	for name := range o.jobs {
		names = append(names, name)
	}
	return names
}

// Run executes one sync run for the named job. A request while the job
// is already running is a logged no-op, not queued. The in-flight state
// is always released, and run-level failures are reported to the
// alerting collaborator before returning.
func (o *Orchestrator) Run(ctx context.Context, jobName string) (*RunResult, error) {
	runner, ok := o.jobs[jobName]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown job %q", jobName)
	}

	if !atomic.CompareAndSwapInt32(&runner.state, stateIdle, stateRunning) {
		logger.WithContext(ctx).Info("run already in flight, skipping",
			zap.String("job", jobName))
		metrics.RunsSkipped.WithLabelValues(jobName).Inc()
		return &RunResult{Job: jobName, AlreadyRunning: true}, nil
	}
	defer atomic.StoreInt32(&runner.state, stateIdle)

	result := &RunResult{
		Job:     jobName,
		RunID:   uuid.NewString(),
		Started: o.now(),
	}
	ctx = logger.WithJob(ctx, jobName, result.RunID)
	log := logger.WithContext(ctx)
	log.Info("sync run started")

	result.Err = o.execute(ctx, runner, result)
	result.Elapsed = o.now().Sub(result.Started)
	metrics.ObserveRun(jobName, result.Elapsed, result.Err)

	if result.Err != nil {
		log.Error("sync run failed",
			zap.Error(result.Err),
			zap.Int("pages", result.Pages),
			zap.Int("upserted", result.Upserted))
		o.notifier.Notify(ctx,
			fmt.Sprintf("sync job %s failed", jobName),
			result.Err.Error())
		return result, result.Err
	}

	log.Info("sync run finished",
		zap.Int("pages", result.Pages),
		zap.Int("upserted", result.Upserted),
		zap.Int("skipped", result.Skipped),
		zap.Duration("elapsed", result.Elapsed))
	return result, nil
}

func (o *Orchestrator) execute(ctx context.Context, r *jobRunner, result *RunResult) error {
	fields, err := r.api.ListFields(ctx)
	if err != nil {
		return err
	}

	mapping, err := o.synchro.Reconcile(ctx, r.job, fields)
	if err != nil {
		return err
	}

	if r.job.PresenceColumn != "" {
		if err := o.store.ResetFlag(ctx, r.job.Table, r.job.PresenceColumn); err != nil {
			return err
		}
	}

	if r.job.Pagination == config.PaginationDateWindow {
		return o.walkWindows(ctx, r, mapping, result)
	}
	return o.walk(ctx, source.NewWalker(r.api, r.job), r, mapping, result)
}

// walk drains one walker, upserting records in page order. Record-level
// failures are skipped; anything else aborts the remaining pages.
func (o *Orchestrator) walk(ctx context.Context, w *source.Walker, r *jobRunner, mapping *schema.Mapping, result *RunResult) error {
	log := logger.WithContext(ctx)
	for {
		page, err := w.Next(ctx)
		if err != nil {
			return err
		}
		if page == nil {
			break
		}
		result.Pages++
		metrics.PagesTotal.WithLabelValues(r.job.Name).Inc()

		for _, rec := range page.Records {
			if err := r.writer.Write(ctx, mapping, rec); err != nil {
				if errors.IsRecordLevel(err) {
					result.Skipped++
					metrics.RecordsTotal.WithLabelValues(r.job.Name, metrics.ResultSkipped).Inc()
					log.Warn("record skipped",
						zap.String("reason", string(errors.TypeOf(err))),
						zap.Error(err))
					continue
				}
				return err
			}
			result.Upserted++
			metrics.RecordsTotal.WithLabelValues(r.job.Name, metrics.ResultUpserted).Inc()
		}
	}
	result.Skipped += w.Skipped()
	return nil
}

// walkWindows drives a date-window job: the requested range is tiled
// into sub-ranges whose length adapts to the source's page ceiling, and
// each sub-range is drained like a normal walk.
func (o *Orchestrator) walkWindows(ctx context.Context, r *jobRunner, mapping *schema.Mapping, result *RunResult) error {
	start, end, err := o.windowRange(r.job)
	if err != nil {
		return err
	}

	part := source.NewPartitioner(start, end, r.job.WindowDays, r.job.MinWindowDays, r.job.PageCeiling)
	for {
		win, ok := part.Next()
		if !ok {
			return nil
		}

		w := source.NewRangeWalker(r.api, r.job, win.Start, win.End)
		if err := o.walk(ctx, w, r, mapping, result); err != nil {
			return err
		}
		part.Observe(win, w.Fetched())
	}
}

// windowRange derives the overall date range for a run: the configured
// backfill start when set, otherwise a lookback from now, always ending
// at the start of tomorrow so today's records are covered.
func (o *Orchestrator) windowRange(job config.JobConfig) (time.Time, time.Time, error) {
	today := o.now().UTC().Truncate(24 * time.Hour)
	end := today.AddDate(0, 0, 1)

	if job.WindowStart != "" {
		start, err := time.Parse("2006-01-02", job.WindowStart)
		if err != nil {
			return time.Time{}, time.Time{}, errors.Wrap(err, errors.ErrorTypeConfig,
				fmt.Sprintf("invalid window_start for job %s", job.Name))
		}
		return start, end, nil
	}

	lookback := job.LookbackDays
	if lookback <= 0 {
		lookback = 30
	}
	return today.AddDate(0, 0, -lookback), end, nil
}

// State reports whether the job currently has a run in flight.
func (o *Orchestrator) State(jobName string) (running bool, ok bool) {
	runner, exists := o.jobs[jobName]
	if !exists {
		return false, false
	}
	return atomic.LoadInt32(&runner.state) == stateRunning, true
}
