// Package scheduler runs the fee engine's time-based jobs
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	appfee "github.com/feesettle/backend/internal/application/fee"
	"github.com/feesettle/backend/internal/domain/fee"
	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SystemActorID identifies scheduled jobs in the audit trail
var SystemActorID = uuid.MustParse("00000000-0000-0000-0000-00000000f5ee")

// YearSource lists the academic year each school is currently billing
type YearSource interface {
	FindCurrentYears(ctx context.Context) ([]fee.AcademicYear, error)
}

// OverdueRefresher persists OVERDUE transitions for one year
type OverdueRefresher interface {
	RefreshOverdue(ctx context.Context, opCtx appfee.OperationContext, academicYearID uuid.UUID) (int, error)
}

// OverdueTriggerConfig holds the daily run time, in UTC
type OverdueTriggerConfig struct {
	Hour   int
	Minute int

	// CheckInterval is how often the clock is compared to the run time
	CheckInterval time.Duration

	// LockTTL bounds the cross-instance claim on a day's run
	LockTTL time.Duration
}

// DefaultOverdueTriggerConfig returns 01:00 UTC checked every minute
func DefaultOverdueTriggerConfig() OverdueTriggerConfig {
	return OverdueTriggerConfig{
		Hour:          1,
		Minute:        0,
		CheckInterval: time.Minute,
		LockTTL:       time.Hour,
	}
}

// RunReport summarizes one pass over all schools
type RunReport struct {
	Years     int
	Refreshed int
	Failed    int
}

// OverdueTrigger flips past-due invoices of every school's current year to
// OVERDUE once a day. With a shared locker only one instance runs per day.
type OverdueTrigger struct {
	config    OverdueTriggerConfig
	years     YearSource
	refresher OverdueRefresher
	locker    shared.Locker
	logger    *zap.Logger
	now       func() time.Time

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	isRunning   bool
	lastRunDate string
}

// OverdueTriggerOption configures an OverdueTrigger
type OverdueTriggerOption func(*OverdueTrigger)

// WithClock overrides the wall clock
func WithClock(now func() time.Time) OverdueTriggerOption {
	return func(t *OverdueTrigger) {
		t.now = now
	}
}

// NewOverdueTrigger creates a new trigger
func NewOverdueTrigger(
	config OverdueTriggerConfig,
	years YearSource,
	refresher OverdueRefresher,
	locker shared.Locker,
	logger *zap.Logger,
	opts ...OverdueTriggerOption,
) *OverdueTrigger {
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	if config.LockTTL <= 0 {
		config.LockTTL = time.Hour
	}
	t := &OverdueTrigger{
		config:    config,
		years:     years,
		refresher: refresher,
		locker:    locker,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start starts the trigger loop
func (t *OverdueTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Overdue refresh trigger started",
		zap.Int("hour_utc", t.config.Hour),
		zap.Int("minute_utc", t.config.Minute),
		zap.Duration("check_interval", t.config.CheckInterval),
	)
	return nil
}

// Stop stops the loop, waiting for a run in progress until ctx ends
func (t *OverdueTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Overdue refresh trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *OverdueTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.checkAndTrigger(ctx)
		}
	}
}

// checkAndTrigger runs at most once per day, at the configured minute
func (t *OverdueTrigger) checkAndTrigger(ctx context.Context) bool {
	now := t.now().UTC()
	today := now.Format("2006-01-02")

	t.mu.Lock()
	if t.lastRunDate == today || now.Hour() != t.config.Hour || now.Minute() != t.config.Minute {
		t.mu.Unlock()
		return false
	}
	t.lastRunDate = today
	t.mu.Unlock()

	// The claim is never released; it expires after LockTTL so instances
	// checking later the same minute skip the run
	if _, err := t.locker.Obtain(ctx, "overdue-refresh:"+today, shared.LockOptions{TTL: t.config.LockTTL}); err != nil {
		if errors.Is(err, shared.ErrLockNotObtained) {
			t.logger.Debug("Overdue refresh claimed by another instance", zap.String("date", today))
		} else {
			t.logger.Error("Failed to claim overdue refresh", zap.Error(err))
		}
		return false
	}

	report, err := t.RunOnce(ctx)
	if err != nil {
		t.logger.Error("Overdue refresh failed", zap.Error(err))
		return true
	}
	t.logger.Info("Overdue refresh finished",
		zap.Int("years", report.Years),
		zap.Int("refreshed", report.Refreshed),
		zap.Int("failed", report.Failed),
	)
	return true
}

// RunOnce refreshes the current year of every school. A failing school is
// logged and counted; the others still run.
func (t *OverdueTrigger) RunOnce(ctx context.Context) (RunReport, error) {
	var report RunReport

	years, err := t.years.FindCurrentYears(ctx)
	if err != nil {
		return report, err
	}

	for _, y := range years {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Years++

		opCtx := appfee.OperationContext{
			SchoolID:  y.SchoolID,
			ActorID:   SystemActorID,
			RequestID: "overdue-refresh-" + t.now().UTC().Format("20060102"),
		}
		n, err := t.refresher.RefreshOverdue(ctx, opCtx, y.ID)
		if err != nil {
			report.Failed++
			t.logger.Warn("Overdue refresh failed for school",
				zap.String("school_id", y.SchoolID.String()),
				zap.String("academic_year_id", y.ID.String()),
				zap.Error(err),
			)
			continue
		}
		report.Refreshed += n
	}
	return report, nil
}
