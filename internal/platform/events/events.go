// Package events publishes order outcomes to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"orderbridge/internal/core/order"
	"orderbridge/internal/logger"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

const (
	TypeCompleted = "order.completed"
	TypeFailed    = "order.failed"
)

// Event describes a finished run. It never carries credentials.
type Event struct {
	Type        string    `json:"type"`
	JobID       string    `json:"job_id"`
	Backend     string    `json:"backend"`
	OccurredAt  time.Time `json:"occurred_at"`
	Client      string    `json:"client"`
	Refs        []string  `json:"refs"`
	Success     bool      `json:"success"`
	ChoganLink  string    `json:"chogan_link,omitempty"`
	Error       string    `json:"error,omitempty"`
	Screenshots []string  `json:"screenshots,omitempty"`
}

func NewEvent(jobID, backend string, req order.OrderRequest, res order.AutomationResult) Event {
	e := Event{
		Type:        TypeFailed,
		JobID:       jobID,
		Backend:     backend,
		OccurredAt:  time.Now().UTC(),
		Client:      req.Client.Prenom + " " + req.Client.Nom,
		Success:     res.Success,
		ChoganLink:  res.ChoganLink,
		Error:       res.Error,
		Screenshots: res.Screenshots,
	}
	if res.Success {
		e.Type = TypeCompleted
	}
	for _, p := range req.Produits {
		e.Refs = append(e.Refs, p.Ref)
	}
	return e
}

type Config struct {
	// Brokers is the bootstrap server list. Empty disables publishing.
	Brokers         string
	Topic           string
	ClientID        string
	DeliveryTimeout time.Duration
}

// Bus is a Kafka producer for order events. A Bus without brokers
// accepts every event and sends nothing.
type Bus struct {
	producer *kafka.Producer
	delivery chan kafka.Event
	cfg      Config
	log      *logger.Logger
}

func New(cfg Config, log *logger.Logger) (*Bus, error) {
	b := &Bus{cfg: cfg, log: log.Named("Events")}
	if cfg.Brokers == "" {
		b.log.LogInfo("KAFKA_BROKERS not set, order events disabled")
		return b, nil
	}
	if cfg.Topic == "" {
		return nil, errors.New("events: topic is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "orderbridge"
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 15 * time.Second
	}
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"client.id":         cfg.ClientID,
		"acks":              "all",
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	b.cfg = cfg
	b.producer = p
	b.delivery = make(chan kafka.Event, 128)
	go b.reports()
	return b, nil
}

// Enabled reports whether events reach a broker.
func (b *Bus) Enabled() bool { return b != nil && b.producer != nil }

// Publish hands the event to the producer, keyed by job ID. Delivery
// failures are logged asynchronously.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	if !b.Enabled() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(e)
	if err != nil {
		return err
	}
	topic := b.cfg.Topic
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(e.JobID),
		Value:          value,
		Timestamp:      e.OccurredAt,
		Headers:        []kafka.Header{{Key: "type", Value: []byte(e.Type)}},
	}
	if err := b.producer.Produce(msg, b.delivery); err != nil {
		return fmt.Errorf("produce %s: %w", e.Type, err)
	}
	return nil
}

func (b *Bus) reports() {
	for evt := range b.delivery {
		m, ok := evt.(*kafka.Message)
		if !ok {
			b.log.Warn().Str("event", evt.String()).Msg("unexpected kafka event")
			continue
		}
		if m.TopicPartition.Error != nil {
			b.log.Error().Err(m.TopicPartition.Error).Str("key", string(m.Key)).Msg("order event delivery failed")
		}
	}
}

// Close flushes pending events and closes the producer.
func (b *Bus) Close() {
	if !b.Enabled() {
		return
	}
	b.producer.Flush(int(b.cfg.DeliveryTimeout.Milliseconds()))
	b.producer.Close()
	close(b.delivery)
}
