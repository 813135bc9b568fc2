package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"reorder-service/internal/config"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Publisher emits reorder audit events to Kafka. The engine treats it as
// optional: publish failures are logged by the caller, never propagated into
// the order flow.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewPublisher creates a Kafka publisher, or nil when no brokers are
// configured (auditing disabled).
func NewPublisher(cfg *config.Config, logger *zap.Logger) (*Publisher, error) {
	if !cfg.KafkaEnabled {
		logger.Info("Kafka auditing disabled, no brokers configured")
		return nil, nil
	}

	logger.Info("🔌 Creating Kafka producer",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.KafkaTopic),
	)

	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Retry.Backoff = 100 * time.Millisecond
	saramaConfig.Version = sarama.V2_8_0_0

	saramaConfig.Net.DialTimeout = 10 * time.Second
	saramaConfig.Net.ReadTimeout = 10 * time.Second
	saramaConfig.Net.WriteTimeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(cfg.KafkaBrokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	return &Publisher{
		producer: producer,
		topic:    cfg.KafkaTopic,
		logger:   logger,
	}, nil
}

// Close closes the producer.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.producer.Close()
}

// PublishReorderEvent publishes one audit event keyed by order identifier.
func (p *Publisher) PublishReorderEvent(ctx context.Context, eventType, orderID string, payload map[string]interface{}) error {
	event := map[string]interface{}{
		"eventType":  eventType,
		"eventId":    uuid.New().String(),
		"orderId":    orderID,
		"occurredAt": time.Now().UTC().Format(time.RFC3339),
		"version":    1,
	}
	if payload != nil {
		event["data"] = payload
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(orderID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(eventType)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("Reorder event published",
		zap.String("event_type", eventType),
		zap.String("order_id", orderID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}
