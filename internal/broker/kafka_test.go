package appkafka

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestNewKafkaWriter_FlushesPromptly(t *testing.T) {
	w := NewKafkaWriter(KafkaConfig{Topic: "blog-events"})
	t.Cleanup(func() { _ = w.Close() })

	assert.Equal(t, DefaultBatchTimeout, w.writer.BatchTimeout)
	assert.LessOrEqual(t, w.writer.BatchTimeout, 10*time.Millisecond)
	assert.IsType(t, &kafka.Hash{}, w.writer.Balancer)
	assert.Equal(t, 10*time.Second, w.timeout)
}

func TestNewKafkaWriter_BatchTimeoutOverride(t *testing.T) {
	w := NewKafkaWriter(KafkaConfig{Topic: "blog-events", BatchTimeout: 20 * time.Millisecond})
	t.Cleanup(func() { _ = w.Close() })

	assert.Equal(t, 20*time.Millisecond, w.writer.BatchTimeout)
}
