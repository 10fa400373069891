package requeuestale

import (
	"context"
	"fmt"

	"academic360-notifications/internal/common/logger"
	"academic360-notifications/internal/common/metrics"

	"github.com/robfig/cron/v3"
)

const TaskType = "requeue-stale"

// Requeuer resets rows whose claim outlived the staleness threshold.
type Requeuer interface {
	RequeueStale(ctx context.Context) ([]int64, error)
}

type Handler struct {
	config *Config
	queue  Requeuer
	logger logger.Logger
	cron   *cron.Cron
}

func NewHandler(config *Config, queue Requeuer, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		queue:  queue,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

// Start schedules the sweep. Overlapping runs are skipped.
func (h *Handler) Start() error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(h.config.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
		defer cancel()
		_, _ = h.Sweep(ctx)
	}); err != nil {
		return fmt.Errorf("schedule %q: %w", h.config.Schedule, err)
	}
	h.cron = c
	c.Start()

	h.logger.Info("staleness sweep scheduled", map[string]interface{}{"schedule": h.config.Schedule})
	return nil
}

// Stop waits for a running sweep to finish or for ctx to expire.
func (h *Handler) Stop(ctx context.Context) {
	if h.cron == nil {
		return
	}
	select {
	case <-h.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Sweep runs one staleness pass.
func (h *Handler) Sweep(ctx context.Context) ([]int64, error) {
	ids, err := h.queue.RequeueStale(ctx)
	if err != nil {
		h.logger.Error("staleness sweep failed", map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	if len(ids) > 0 {
		metrics.QueueRequeuedStale.Add(float64(len(ids)))
		h.logger.Warn("requeued stale queue items", map[string]interface{}{
			"count":        len(ids),
			"queueItemIds": ids,
		})
	}
	return ids, nil
}
