package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaQueue publishes jobs to a Kafka topic.
type KafkaQueue struct {
	writer *kafka.Writer
}

func NewKafkaQueue(brokers []string, topic string) *KafkaQueue {
	return &KafkaQueue{
		writer: kafka.NewWriter(kafka.WriterConfig{
			Brokers:  brokers,
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		}),
	}
}

func (q *KafkaQueue) Enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(job.Type),
		Value: data,
	}); err != nil {
		return fmt.Errorf("write job message: %w", err)
	}
	return nil
}

func (q *KafkaQueue) Close() error {
	return q.writer.Close()
}

// KafkaWorker consumes jobs from a Kafka topic within a consumer group,
// giving at-least-once delivery across server instances.
type KafkaWorker struct {
	reader   *kafka.Reader
	registry *Registry
	logger   zerolog.Logger
}

func NewKafkaWorker(brokers []string, topic, groupID string, reg *Registry, logger zerolog.Logger) *KafkaWorker {
	return &KafkaWorker{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		registry: reg,
		logger:   logger,
	}
}

// Run fetches and dispatches jobs until the context is cancelled. Messages
// are committed after dispatch; failed jobs are committed too, the retry
// policy lives in the handlers themselves.
func (w *KafkaWorker) Run(ctx context.Context) error {
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("fetch job message: %w", err)
		}

		var job Job
		if err := json.Unmarshal(msg.Value, &job); err != nil {
			w.logger.Error().Err(err).Msg("malformed job message, skipping")
		} else {
			_ = w.registry.Dispatch(ctx, job, w.logger)
		}

		if err := w.reader.CommitMessages(ctx, msg); err != nil {
			w.logger.Error().Err(err).Msg("commit job message")
		}
	}
}

func (w *KafkaWorker) Close() error {
	return w.reader.Close()
}
