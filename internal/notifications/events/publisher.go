// Package events publishes delivery outcomes to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"academic360-notifications/internal/common/logger"
	"academic360-notifications/internal/models"

	"github.com/IBM/sarama"
)

// DefaultTopic receives every reported outcome.
const DefaultTopic = "notification.outcomes"

// NewSyncProducer builds an idempotent producer that waits for all replicas.
func NewSyncProducer(brokers []string, clientID string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Producer.Return.Successes = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return prod, nil
}

// Publisher is an outcome listener writing one message per outcome, keyed by
// notification id so a notification's outcomes stay on one partition.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   logger.Logger
}

func NewPublisher(producer sarama.SyncProducer, topic string, log logger.Logger) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{
		producer: producer,
		topic:    topic,
		logger:   log.WithFields(map[string]interface{}{"listener": "kafka", "topic": topic}),
	}
}

func (p *Publisher) Name() string { return "kafka" }

func (p *Publisher) OnOutcome(ctx context.Context, outcome models.DeliveryOutcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(outcome.NotificationID, 10)),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("outcome"), Value: []byte(outcome.Outcome)},
		},
	}

	done := make(chan error, 1)
	go func() {
		_, _, err := p.producer.SendMessage(msg)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("publish outcome of queue item %d: %w", outcome.QueueItemID, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("publish outcome of queue item %d: %w", outcome.QueueItemID, err)
		}
	}

	p.logger.Debug("outcome published", map[string]interface{}{
		"queueItemId": outcome.QueueItemID,
		"outcome":     string(outcome.Outcome),
	})
	return nil
}

// Close flushes and closes the producer.
func (p *Publisher) Close() error {
	return p.producer.Close()
}
