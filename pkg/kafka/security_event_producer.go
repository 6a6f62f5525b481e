package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/IBM/sarama"
)

const DefaultSecurityEventTopic = "bastion.security-events"

// SecurityEventProducer publishes security events to Kafka, keyed by session id
// (or source IP before a session exists) so one login flow stays in one partition.
type SecurityEventProducer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

func NewSecurityEventProducer(brokers []string, topic, clientID string, logger *slog.Logger) (*SecurityEventProducer, error) {
	config := sarama.NewConfig()
	if clientID != "" {
		config.ClientID = clientID
	}
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	return newSecurityEventProducer(producer, topic, logger), nil
}

func newSecurityEventProducer(producer sarama.SyncProducer, topic string, logger *slog.Logger) *SecurityEventProducer {
	if topic == "" {
		topic = DefaultSecurityEventTopic
	}
	return &SecurityEventProducer{producer: producer, topic: topic, logger: logger}
}

func (p *SecurityEventProducer) Name() string { return "kafka" }

// Publish sends one event and waits for the broker acknowledgement
func (p *SecurityEventProducer) Publish(ctx context.Context, event *models.SecurityEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal security event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(partitionKey(event)),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_kind"), Value: []byte(event.Kind)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send security event: %w", err)
	}

	p.logger.Debug("security event published",
		slog.String("kind", string(event.Kind)),
		slog.Int("partition", int(partition)),
		slog.Int64("offset", offset),
	)
	return nil
}

func (p *SecurityEventProducer) Close() error {
	return p.producer.Close()
}

func partitionKey(event *models.SecurityEvent) string {
	switch {
	case event.SessionID != "":
		return event.SessionID
	case event.IPAddress != "":
		return event.IPAddress
	default:
		return event.ID.String()
	}
}
