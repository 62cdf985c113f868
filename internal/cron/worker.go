package cron

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/bher20/powerdash/internal/metrics"
	"github.com/bher20/powerdash/internal/storage"
)

// DefaultInterval is the refresh period, in seconds, used when none is
// configured. It matches the dashboard's 30 second polling.
const DefaultInterval = "30"

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

// ParseInterval accepts integer seconds or a standard five-field cron
// expression.
func ParseInterval(setting string) (cron.Schedule, error) {
	setting = strings.TrimSpace(setting)
	if v, err := strconv.Atoi(setting); err == nil {
		if v <= 0 {
			return nil, fmt.Errorf("cron: interval must be positive, got %d", v)
		}
		return cron.Every(time.Duration(v) * time.Second), nil
	}
	sched, err := cron.ParseStandard(setting)
	if err != nil {
		return nil, fmt.Errorf("cron: invalid interval %q: %w", setting, err)
	}
	return sched, nil
}

// Worker runs a Job on an interval. The interval can be changed at run
// time through the refresh_interval setting, and an advisory lock keeps
// replicas from running the job concurrently.
type Worker struct {
	name     string
	interval string
	job      Job
	store    storage.Storage
	locker   storage.Locker
	poll     time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Worker.
type Option func(*Worker)

// WithStorage enables the interval override and job bookkeeping.
func WithStorage(st storage.Storage) Option {
	return func(w *Worker) { w.store = st }
}

// WithLocker sets the advisory locker. Without one every run proceeds.
func WithLocker(l storage.Locker) Option {
	return func(w *Worker) {
		if l != nil {
			w.locker = l
		}
	}
}

// WithPollInterval sets how often the control loop wakes up.
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.poll = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWorker returns a worker for job. interval is integer seconds or a
// cron expression; empty means DefaultInterval.
func NewWorker(name, interval string, job Job, opts ...Option) *Worker {
	if interval == "" {
		interval = DefaultInterval
	}
	w := &Worker{
		name:     name,
		interval: interval,
		job:      job,
		locker:   storage.NopLocker{},
		poll:     5 * time.Second,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Worker) currentSetting(ctx context.Context) string {
	if w.store == nil {
		return w.interval
	}
	v, err := w.store.GetSetting(ctx, storage.SettingRefreshInterval)
	if err != nil {
		w.logger.Warn("cron: read interval setting failed", zap.Error(err))
		return w.interval
	}
	if v == "" {
		return w.interval
	}
	return v
}

func (w *Worker) schedule(setting string) cron.Schedule {
	sched, err := ParseInterval(setting)
	if err == nil {
		return sched
	}
	w.logger.Warn("cron: falling back to default interval", zap.String("setting", setting), zap.Error(err))
	sched, _ = ParseInterval(DefaultInterval)
	return sched
}

// Run executes the job immediately and then on every scheduled tick until
// ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	setting := w.currentSetting(ctx)
	sched := w.schedule(setting)
	nextRun := w.now()

	w.logger.Info("cron worker starting", zap.String("job", w.name), zap.String("interval", setting))

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		if !w.now().Before(nextRun) {
			_ = w.RunOnce(ctx)
			nextRun = sched.Next(w.now())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if val := w.currentSetting(ctx); val != setting {
			w.logger.Info("cron: interval updated", zap.String("from", setting), zap.String("to", val))
			setting = val
			sched = w.schedule(setting)
			nextRun = sched.Next(w.now())
		}
	}
}

// RunOnce takes the advisory lock and runs the job a single time. A lock
// held elsewhere skips the run without error.
func (w *Worker) RunOnce(ctx context.Context) error {
	started := w.now()

	unlock, ok, err := w.locker.TryLock(ctx, w.name)
	if err != nil {
		w.logger.Warn("cron: acquire advisory lock failed", zap.String("job", w.name), zap.Error(err))
		metrics.UpdateJobMetrics(w.name, started, err)
		return err
	}
	if !ok {
		w.logger.Info("cron: advisory lock held by another worker, skipping run", zap.String("job", w.name))
		return nil
	}

	var runErr error
	func() {
		defer unlock()
		runErr = w.job(ctx)
	}()

	metrics.UpdateJobMetrics(w.name, started, runErr)
	dur := w.now().Sub(started)
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if w.store != nil {
		if err := w.store.UpdateScheduledJob(ctx, w.name, started, dur, runErr == nil, errMsg); err != nil {
			w.logger.Warn("cron: update scheduled_jobs failed", zap.Error(err))
		}
	}

	if runErr != nil {
		w.logger.Warn("cron: job completed with error", zap.String("job", w.name), zap.Duration("duration", dur), zap.Error(runErr))
	} else {
		w.logger.Info("cron: job completed successfully", zap.String("job", w.name), zap.Duration("duration", dur))
	}
	return runErr
}
