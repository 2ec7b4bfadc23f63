package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewPublisher_WhenCreated_ThenHasProductionSettings(t *testing.T) {
	// Arrange
	brokers := []string{"broker1:9092", "broker2:9092"}

	// Act
	publisher := NewPublisher(brokers, "datman.mutations", zap.NewNop())

	// Assert
	require.NotNil(t, publisher.writer)
	assert.Equal(t, "datman.mutations", publisher.writer.Topic)
	assert.Equal(t, "broker1:9092,broker2:9092", publisher.writer.Addr.String())
	assert.Equal(t, kafka.RequireAll, publisher.writer.RequiredAcks)
	assert.Equal(t, 3, publisher.writer.MaxAttempts)
	assert.Equal(t, 10*time.Second, publisher.writer.WriteTimeout)
}

func TestNewPublisher_WhenLoggerNil_ThenUsesNop(t *testing.T) {
	publisher := NewPublisher([]string{"localhost:9092"}, "t", nil)

	assert.NotNil(t, publisher.logger)
}

func TestEncodeEvent_WhenMutationEvent_ThenKeyedByTableWithJSONBody(t *testing.T) {
	// Arrange
	at := time.Date(2025, 11, 6, 10, 30, 0, 0, time.UTC)
	event := MutationEvent{
		EventID:    "evt-1",
		Table:      "orders",
		Operation:  OperationInsert,
		Rows:       42,
		OccurredAt: at,
	}

	// Act
	msg, err := encodeEvent(event)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []byte("orders"), msg.Key)
	assert.Equal(t, at, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "insert", string(msg.Headers[0].Value))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "evt-1", decoded["event_id"])
	assert.Equal(t, "orders", decoded["table"])
	assert.Equal(t, "insert", decoded["operation"])
	assert.Equal(t, float64(42), decoded["rows"])
}

func TestPublish_WhenContextCanceled_ThenReturnsError(t *testing.T) {
	// Arrange
	publisher := NewPublisher([]string{"localhost:9092"}, "test-topic", zap.NewNop())
	defer publisher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Act
	err := publisher.Publish(ctx, MutationEvent{EventID: "evt", Table: "t", Operation: OperationDelete})

	// Assert
	assert.Error(t, err)
}

func TestClose_WhenCalledMultipleTimes_ThenReturnsSameResult(t *testing.T) {
	publisher := NewPublisher([]string{"localhost:9092"}, "test-topic", zap.NewNop())

	first := publisher.Close()
	second := publisher.Close()

	assert.Equal(t, first, second)
}
