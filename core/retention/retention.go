// Package retention purges expired predictions, optimization tasks and
// resolved alerts on a cron schedule.
package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kilianp07/sitepower/core/dispatch/logging"
	"github.com/kilianp07/sitepower/core/logger"
	coremon "github.com/kilianp07/sitepower/core/monitoring"
	"github.com/kilianp07/sitepower/core/store"
)

// KeepForever disables the cleanup of one record kind. A zero day count
// selects the default instead.
const KeepForever = -1

// Config defines how long records are kept, in days.
type Config struct {
	Schedule          string `json:"schedule"`
	PredictionDays    int    `json:"prediction_days"`
	TaskDays          int    `json:"task_days"`
	ResolvedAlertDays int    `json:"resolved_alert_days"`
	TimeoutSeconds    int    `json:"timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Schedule == "" {
		c.Schedule = "0 3 * * *"
	}
	if c.PredictionDays == 0 {
		c.PredictionDays = 7
	}
	if c.TaskDays == 0 {
		c.TaskDays = 30
	}
	if c.ResolvedAlertDays == 0 {
		c.ResolvedAlertDays = 90
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 300
	}
}

// Validate checks the schedule and the day counts.
func (c Config) Validate() error {
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return fmt.Errorf("retention: invalid schedule %q: %w", c.Schedule, err)
	}
	if c.PredictionDays < KeepForever || c.TaskDays < KeepForever || c.ResolvedAlertDays < KeepForever {
		return fmt.Errorf("retention: day counts must be positive or %d to keep forever", KeepForever)
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("retention: timeout_seconds must be positive")
	}
	return nil
}

// days converts a day count to a store retention, where zero keeps the
// records.
func days(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * 24 * time.Hour
}

// Report counts the records removed by one cleanup.
type Report struct {
	store.CleanupResult
	Tasks int64
}

// Job runs the cleanup against the store and the optional task log.
type Job struct {
	cfg    Config
	store  store.Store
	tasks  logging.TaskStore
	logger logger.Logger
	now    func() time.Time
}

// NewJob creates a cleanup job. tasks may be nil.
func NewJob(cfg Config, st store.Store, tasks logging.TaskStore, log logger.Logger) (*Job, error) {
	if st == nil || log == nil {
		return nil, fmt.Errorf("retention: nil parameter provided to NewJob")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Job{cfg: cfg, store: st, tasks: tasks, logger: log, now: time.Now}, nil
}

// RunOnce purges every expired record. The task log is pruned even when the
// store cleanup fails.
func (j *Job) RunOnce(ctx context.Context) (Report, error) {
	now := j.now().UTC()
	var (
		rep  Report
		errs []error
	)
	res, err := j.store.Cleanup(ctx, store.Retention{
		Predictions:    days(j.cfg.PredictionDays),
		ResolvedAlerts: days(j.cfg.ResolvedAlertDays),
	}, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("store cleanup: %w", err))
	}
	rep.CleanupResult = res
	if j.tasks != nil && j.cfg.TaskDays > 0 {
		n, err := j.tasks.Prune(ctx, now.Add(-days(j.cfg.TaskDays)))
		if err != nil {
			errs = append(errs, fmt.Errorf("task log prune: %w", err))
		}
		rep.Tasks = n
	}
	j.logger.Infof("retention cleanup: %d predictions, %d resolved alerts, %d tasks removed",
		rep.Predictions, rep.ResolvedAlerts, rep.Tasks)
	return rep, errors.Join(errs...)
}

// Run schedules the job until ctx is done. Overlapping runs are skipped.
func (j *Job) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(j.cfg.Schedule, func() {
		coremon.Guard(map[string]string{"module": "retention"}, func() {
			rctx, cancel := context.WithTimeout(ctx, time.Duration(j.cfg.TimeoutSeconds)*time.Second)
			defer cancel()
			if _, err := j.RunOnce(rctx); err != nil {
				j.logger.Errorf("retention cleanup failed: %v", err)
				coremon.CaptureException(err, map[string]string{"module": "retention"})
			}
		})
	})
	if err != nil {
		return fmt.Errorf("retention: schedule %q: %w", j.cfg.Schedule, err)
	}
	c.Start()
	j.logger.Infof("retention job scheduled (%s)", j.cfg.Schedule)
	<-ctx.Done()
	<-c.Stop().Done()
	j.logger.Infof("retention job stopped")
	return nil
}
