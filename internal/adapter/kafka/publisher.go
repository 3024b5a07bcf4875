// Package kafka publishes accepted detections to a downstream topic so
// analytics consumers can react to new hotspots without polling the store.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/firewatch/hotspot-ingest/internal/domain"
)

// Publisher produces detection messages to a Kafka topic.
// It implements pipeline.DetectionPublisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishDetections serializes and publishes the batch in a single
// WriteMessages call. Message keys are the deterministic detection IDs, so
// replays of the same batch land on the same partitions.
func (p *Publisher) PublishDetections(ctx context.Context, recs []domain.Detection) error {
	if len(recs) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(recs))
	for i := range recs {
		msg, err := serializeDetection(recs[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeDetection marshals a Detection into a Kafka message.
func serializeDetection(d domain.Detection) (kafkago.Message, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize detection: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(d.ID()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte(d.Source)},
			{Key: "observed_at", Value: []byte(d.ObservedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
