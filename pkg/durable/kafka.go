package durable

import (
	"context"
	"encoding/json"

	kafka "github.com/segmentio/kafka-go"
)

// KafkaQueryLogSink is a QueryLogSink that appends raw query events to a
// Kafka topic. Failure to produce is surfaced to the caller, which logs
// and continues rather than blocking query processing on it.
type KafkaQueryLogSink struct {
	writer *kafka.Writer
}

// NewKafkaQueryLogSink constructs a sink writing to topic via brokers.
// Query-log ordering across phrases is not guaranteed, so any balancer
// is acceptable.
func NewKafkaQueryLogSink(brokers []string, topic string) *KafkaQueryLogSink {
	return &KafkaQueryLogSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
	}
}

func (k *KafkaQueryLogSink) Append(ctx context.Context, row QueryLogRow) error {
	value, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(row.Phrase),
		Value: value,
	})
}

// Close flushes and closes the underlying writer, for graceful shutdown.
func (k *KafkaQueryLogSink) Close() error {
	return k.writer.Close()
}
