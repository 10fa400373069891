// Package dispatcher runs the poll, claim, deliver and report loop shared by
// every channel worker.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"academic360-notifications/internal/common/config"
	apperrors "academic360-notifications/internal/common/errors"
	"academic360-notifications/internal/common/logger"
	"academic360-notifications/internal/common/metrics"
	"academic360-notifications/internal/common/observability"
	"academic360-notifications/internal/models"

	"github.com/google/uuid"
)

// ProcessID identifies this process in claimed_by.
var ProcessID = uuid.NewString()

const (
	claimErrorBackoff = time.Second
	reportTimeout     = 10 * time.Second
)

// Handler delivers one job over a channel. Returning a StandardError controls
// whether the row is retried; any other error counts as transient.
type Handler interface {
	Deliver(ctx context.Context, job *models.DeliveryJob) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *models.DeliveryJob) error

func (f HandlerFunc) Deliver(ctx context.Context, job *models.DeliveryJob) error {
	return f(ctx, job)
}

// Queue is the part of the queue store a worker drives. Reports only apply
// to rows still claimed by workerID.
type Queue interface {
	ClaimBatch(ctx context.Context, queueType models.QueueType, workerID string, limit int) ([]*models.QueueItem, error)
	Touch(ctx context.Context, id int64, workerID string) (bool, error)
	ReportSuccess(ctx context.Context, id int64, workerID string) error
	ReportFailure(ctx context.Context, id int64, workerID, reason string, retryable bool) (*models.FailureOutcome, error)
}

type JobLoader interface {
	LoadJob(ctx context.Context, item *models.QueueItem) (*models.DeliveryJob, error)
}

// OutcomeListener observes reported outcomes. Listener errors are logged and
// never change queue state.
type OutcomeListener interface {
	Name() string
	OnOutcome(ctx context.Context, outcome models.DeliveryOutcome) error
}

// Config holds the polling settings of one worker.
type Config struct {
	BatchSize      int
	PollInterval   time.Duration
	RateDelay      time.Duration
	AttemptTimeout time.Duration
}

// ConfigFromWorker converts the millisecond based worker config.
func ConfigFromWorker(wc config.WorkerConfig) Config {
	return Config{
		BatchSize:      wc.BatchSize,
		PollInterval:   config.GetDuration(wc.PollInterval),
		RateDelay:      config.GetDuration(wc.RateDelay),
		AttemptTimeout: config.GetDuration(wc.AttemptTimeout),
	}
}

func (c Config) withDefaults() Config {
	if c.BatchSize < 1 {
		c.BatchSize = 50
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.RateDelay < 0 {
		c.RateDelay = 0
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 5 * time.Second
	}
	return c
}

// Worker polls one queue type and delivers its rows through a Handler.
type Worker struct {
	TaskType  string
	QueueType models.QueueType

	cfg        Config
	queue      Queue
	loader     JobLoader
	handler    Handler
	errHandler *apperrors.DeliveryErrorHandler
	listeners  []OutcomeListener
	obs        *observability.Observability
	logger     logger.Logger
	workerID   string
}

type Option func(*Worker)

func WithListeners(listeners ...OutcomeListener) Option {
	return func(w *Worker) { w.listeners = append(w.listeners, listeners...) }
}

func WithObservability(obs *observability.Observability) Option {
	return func(w *Worker) { w.obs = obs }
}

// WithInstance distinguishes several workers of the same task type in one process.
func WithInstance(n int) Option {
	return func(w *Worker) { w.workerID = fmt.Sprintf("%s/%s#%d", ProcessID, w.TaskType, n) }
}

func NewWorker(taskType string, queueType models.QueueType, cfg Config, q Queue, loader JobLoader, handler Handler, log logger.Logger, opts ...Option) *Worker {
	log = log.WithFields(map[string]interface{}{"taskType": taskType, "queueType": string(queueType)})
	w := &Worker{
		TaskType:   taskType,
		QueueType:  queueType,
		cfg:        cfg.withDefaults(),
		queue:      q,
		loader:     loader,
		handler:    handler,
		errHandler: apperrors.NewDeliveryErrorHandler(log),
		logger:     log,
		workerID:   fmt.Sprintf("%s/%s#0", ProcessID, taskType),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ID is the value written to claimed_by.
func (w *Worker) ID() string {
	return w.workerID
}

// Run polls until ctx is cancelled. A full batch is followed by another claim
// without waiting for the next tick.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", map[string]interface{}{
		"workerId":     w.workerID,
		"batchSize":    w.cfg.BatchSize,
		"pollInterval": w.cfg.PollInterval.String(),
	})

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopped", map[string]interface{}{"workerId": w.workerID})
			return nil
		}

		n, err := w.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("claim failed", map[string]interface{}{"error": err})
			sleep(ctx, claimErrorBackoff)
			continue
		}
		if n >= w.cfg.BatchSize {
			continue
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

// RunOnce claims one batch and processes it. It returns the number of rows
// claimed.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	items, err := w.queue.ClaimBatch(ctx, w.QueueType, w.workerID, w.cfg.BatchSize)
	if err != nil {
		metrics.QueueClaimErrors.WithLabelValues(string(w.QueueType)).Inc()
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}
	metrics.QueueClaimed.WithLabelValues(string(w.QueueType)).Add(float64(len(items)))

	for i, item := range items {
		if i > 0 && !sleep(ctx, w.cfg.RateDelay) {
			// Rows left IN_FLIGHT are picked up again by the staleness sweep.
			w.logger.Warn("shutdown with claimed rows pending", map[string]interface{}{
				"pending": len(items) - i,
			})
			break
		}
		if !w.touch(ctx, item) {
			continue
		}
		w.process(ctx, item)
	}
	return len(items), nil
}

// touch restarts the row's staleness clock just before its attempt so that
// rows waiting behind slow deliveries in the same batch are not swept. A row
// that was swept and reclaimed elsewhere is skipped.
func (w *Worker) touch(ctx context.Context, item *models.QueueItem) bool {
	ok, err := w.queue.Touch(ctx, item.ID, w.workerID)
	if err != nil {
		w.logger.Error("failed to refresh claim", map[string]interface{}{
			"queueItemId": item.ID,
			"error":       err,
		})
		return false
	}
	if !ok {
		w.logger.Warn("claim lost before attempt", map[string]interface{}{
			"queueItemId": item.ID,
			"workerId":    w.workerID,
		})
		return false
	}
	return true
}

func (w *Worker) process(ctx context.Context, item *models.QueueItem) {
	start := time.Now()
	metrics.DeliveriesActive.WithLabelValues(w.TaskType).Inc()
	defer metrics.DeliveriesActive.WithLabelValues(w.TaskType).Dec()

	spanCtx, span := observability.StartDeliverySpan(ctx, string(w.QueueType), item.ID, item.NotificationID)
	deliverErr := w.attempt(spanCtx, item)
	observability.EndSpan(span, deliverErr)

	duration := time.Since(start)
	metrics.DeliveryDuration.WithLabelValues(w.TaskType, string(w.QueueType)).Observe(duration.Seconds())

	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()

	outcome, ok := w.report(reportCtx, item, deliverErr)
	if !ok {
		return
	}
	w.obs.RecordAttempt(reportCtx, string(w.QueueType), string(outcome.Outcome), duration)
	w.notify(reportCtx, outcome)
}

func (w *Worker) attempt(ctx context.Context, item *models.QueueItem) (err error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.AttemptTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during delivery: %v", r)
		}
	}()

	job, err := w.loader.LoadJob(ctx, item)
	if err != nil {
		return err
	}
	return w.handler.Deliver(ctx, job)
}

func (w *Worker) report(ctx context.Context, item *models.QueueItem, deliverErr error) (models.DeliveryOutcome, bool) {
	outcome := models.DeliveryOutcome{
		EventID:        uuid.NewString(),
		NotificationID: item.NotificationID,
		QueueItemID:    item.ID,
		QueueType:      item.Type,
		RetryAttempts:  item.RetryAttempts,
		WorkerID:       w.workerID,
		OccurredAt:     time.Now().UTC(),
	}

	if deliverErr == nil {
		if err := w.queue.ReportSuccess(ctx, item.ID, w.workerID); err != nil {
			w.logger.Error("failed to report success", map[string]interface{}{
				"queueItemId": item.ID,
				"error":       err,
			})
			return outcome, false
		}
		metrics.DeliveriesSucceeded.WithLabelValues(w.TaskType, string(w.QueueType)).Inc()
		w.logger.Info("notification delivered", map[string]interface{}{
			"queueItemId":    item.ID,
			"notificationId": item.NotificationID,
		})
		outcome.Outcome = models.OutcomeSent
		return outcome, true
	}

	stdErr := w.errHandler.Handle(apperrors.AttemptInfo{
		QueueItemID:    item.ID,
		NotificationID: item.NotificationID,
		QueueType:      string(item.Type),
		Attempt:        item.RetryAttempts + 1,
		WorkerID:       w.workerID,
	}, deliverErr)

	res, err := w.queue.ReportFailure(ctx, item.ID, w.workerID, stdErr.Reason(), stdErr.Retryable)
	if err != nil {
		w.logger.Error("failed to report failure", map[string]interface{}{
			"queueItemId": item.ID,
			"error":       err,
		})
		return outcome, false
	}

	outcome.Outcome = models.OutcomeRetry
	if res.DeadLettered {
		outcome.Outcome = models.OutcomeDeadLetter
	}
	outcome.RetryAttempts = res.RetryAttempts
	outcome.Reason = res.Reason
	outcome.ErrorCode = string(stdErr.Code)

	metrics.DeliveriesFailed.WithLabelValues(w.TaskType, string(w.QueueType), string(stdErr.Code), string(outcome.Outcome)).Inc()
	return outcome, true
}

func (w *Worker) notify(ctx context.Context, outcome models.DeliveryOutcome) {
	for _, l := range w.listeners {
		if err := l.OnOutcome(ctx, outcome); err != nil {
			metrics.OutcomeListenerErrors.WithLabelValues(l.Name()).Inc()
			w.logger.Warn("outcome listener failed", map[string]interface{}{
				"listener":    l.Name(),
				"queueItemId": outcome.QueueItemID,
				"error":       err,
			})
		}
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
