package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Operation names a data mutation performed by the database client.
type Operation string

const (
	OperationInsert           Operation = "insert"
	OperationUpdate           Operation = "update"
	OperationDelete           Operation = "delete"
	OperationDeleteDuplicates Operation = "delete_duplicates"
)

// MutationEvent describes one successful batch mutation.
type MutationEvent struct {
	EventID    string    `json:"event_id"`
	Table      string    `json:"table"`
	Operation  Operation `json:"operation"`
	Rows       int64     `json:"rows"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher writes mutation events to a Kafka topic, keyed by table.
type Publisher struct {
	writer    *kafka.Writer
	logger    *zap.Logger
	closeOnce sync.Once
	closeErr  error
}

// NewPublisher builds a publisher that waits for all in-sync replicas.
func NewPublisher(brokers []string, topic string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  3,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Publish sends one event and blocks until it is acknowledged or ctx ends.
func (p *Publisher) Publish(ctx context.Context, e MutationEvent) error {
	msg, err := encodeEvent(e)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish mutation event",
			zap.String("event_id", e.EventID),
			zap.String("table", e.Table),
			zap.Error(err))
		return fmt.Errorf("write kafka message: %w", err)
	}

	p.logger.Debug("mutation event published",
		zap.String("event_id", e.EventID),
		zap.String("table", e.Table),
		zap.String("operation", string(e.Operation)))
	return nil
}

// Close flushes and closes the writer. Safe to call more than once.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.writer.Close()
	})
	return p.closeErr
}

func encodeEvent(e MutationEvent) (kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal mutation event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(e.Table),
		Value: value,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "operation", Value: []byte(e.Operation)},
		},
	}, nil
}
