package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/timesheet-approval/internal/application/service"
	"github.com/garyjia/timesheet-approval/internal/domain/event"
)

// BillingWorkerConfig holds configuration for the billing worker
type BillingWorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	RunTimeout   time.Duration
}

// DefaultBillingWorkerConfig returns default configuration
func DefaultBillingWorkerConfig() BillingWorkerConfig {
	return BillingWorkerConfig{
		PollInterval: time.Minute,
		BatchSize:    50,
		RunTimeout:   2 * time.Minute,
	}
}

// BillingStats is a snapshot of the worker's counters
type BillingStats struct {
	Runs      int       `json:"runs"`
	Billed    int       `json:"billed"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	LastRun   time.Time `json:"last_run"`
	LastError string    `json:"last_error,omitempty"`
}

// BillingWorker bills frozen timesheets on a poll interval, and right away
// when a timesheet.frozen event arrives
type BillingWorker struct {
	config  BillingWorkerConfig
	billing service.BillingService
	logger  *zap.Logger

	nudge chan struct{}

	mu        sync.RWMutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
	stats     BillingStats
}

// NewBillingWorker creates a new billing worker
func NewBillingWorker(config BillingWorkerConfig, billing service.BillingService, logger *zap.Logger) *BillingWorker {
	defaults := DefaultBillingWorkerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = defaults.RunTimeout
	}
	return &BillingWorker{
		config:  config,
		billing: billing,
		logger:  logger,
		nudge:   make(chan struct{}, 1),
	}
}

// Name returns the worker name for identification
func (w *BillingWorker) Name() string {
	return "BillingWorker"
}

// Start begins the polling loop
func (w *BillingWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return fmt.Errorf("billing worker already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("BillingWorker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize))

	go w.pollLoop(loopCtx, w.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight run to finish
func (w *BillingWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	stats := w.Stats()
	w.logger.Info("BillingWorker stopped",
		zap.Int("runs", stats.Runs),
		zap.Int("billed", stats.Billed),
		zap.Int("failed", stats.Failed))
	return nil
}

// HandleEvent is subscribed to timesheet.frozen and triggers an early run
func (w *BillingWorker) HandleEvent(ctx context.Context, evt *event.Event) error {
	if evt.Type != event.TypeTimesheetFrozen {
		return nil
	}
	select {
	case w.nudge <- struct{}{}:
	default:
	}
	return nil
}

// Stats returns the worker's counters
func (w *BillingWorker) Stats() BillingStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *BillingWorker) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Billing loop context cancelled")
			return
		case <-ticker.C:
		case <-w.nudge:
		}
		w.RunOnce(ctx)
	}
}

// RunOnce bills one batch of frozen timesheets
func (w *BillingWorker) RunOnce(ctx context.Context) service.BillingRun {
	runCtx, cancel := context.WithTimeout(ctx, w.config.RunTimeout)
	defer cancel()

	run, err := w.billing.BillFrozen(runCtx, w.config.BatchSize)

	w.mu.Lock()
	w.stats.Runs++
	w.stats.Billed += run.Billed
	w.stats.Skipped += run.Skipped
	w.stats.Failed += run.Failed
	w.stats.LastRun = time.Now()
	if err != nil {
		w.stats.LastError = err.Error()
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("Billing run failed", zap.Error(err))
		return run
	}
	if run.Billed+run.Skipped+run.Failed > 0 {
		w.logger.Info("Billing run finished",
			zap.Int("billed", run.Billed),
			zap.Int("skipped", run.Skipped),
			zap.Int("failed", run.Failed))
	}
	return run
}
