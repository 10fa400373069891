// Package audit indexes dead-lettered queue items into Elasticsearch so that
// operators can search failures by reason, channel or notification.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"academic360-notifications/internal/common/logger"
	"academic360-notifications/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const DefaultIndex = "notification-dead-letters"

// deadLetterDocument is the indexed shape; the queue item id is the document
// id, so re-indexing the same row overwrites it.
type deadLetterDocument struct {
	QueueItemID    int64  `json:"queueItemId"`
	NotificationID int64  `json:"notificationId"`
	QueueType      string `json:"queueType"`
	RetryAttempts  int    `json:"retryAttempts"`
	Reason         string `json:"reason"`
	ErrorCode      string `json:"errorCode,omitempty"`
	WorkerID       string `json:"workerId"`
	DeadLetterAt   string `json:"deadLetterAt"`
}

// DeadLetterIndexer is an outcome listener that ignores everything but
// DEAD_LETTER outcomes.
type DeadLetterIndexer struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewDeadLetterIndexer(client *elasticsearch.Client, index string, log logger.Logger) *DeadLetterIndexer {
	if index == "" {
		index = DefaultIndex
	}
	return &DeadLetterIndexer{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"listener": "elasticsearch", "index": index}),
	}
}

func (d *DeadLetterIndexer) Name() string { return "elasticsearch" }

func (d *DeadLetterIndexer) OnOutcome(ctx context.Context, outcome models.DeliveryOutcome) error {
	if outcome.Outcome != models.OutcomeDeadLetter {
		return nil
	}

	body, err := json.Marshal(deadLetterDocument{
		QueueItemID:    outcome.QueueItemID,
		NotificationID: outcome.NotificationID,
		QueueType:      string(outcome.QueueType),
		RetryAttempts:  outcome.RetryAttempts,
		Reason:         outcome.Reason,
		ErrorCode:      outcome.ErrorCode,
		WorkerID:       outcome.WorkerID,
		DeadLetterAt:   outcome.OccurredAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      d.index,
		DocumentID: strconv.FormatInt(outcome.QueueItemID, 10),
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, d.client)
	if err != nil {
		return fmt.Errorf("index dead letter %d: %w", outcome.QueueItemID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return fmt.Errorf("index dead letter %d: %s: %s", outcome.QueueItemID, res.Status(), string(msg))
	}

	d.logger.Info("dead letter indexed", map[string]interface{}{
		"queueItemId":    outcome.QueueItemID,
		"notificationId": outcome.NotificationID,
	})
	return nil
}
