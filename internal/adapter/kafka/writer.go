package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/observation-series-service/internal/config"
	"github.com/couchcryptid/observation-series-service/internal/domain"
)

// Writer produces series summaries to a Kafka topic, keyed by series ID so
// updates of one series stay ordered within a partition.
// It implements pipeline.ExtremaPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishExtrema serializes and publishes the summaries in a single
// WriteMessages call.
func (w *Writer) PublishExtrema(ctx context.Context, summaries []*domain.SeriesExtrema) error {
	if len(summaries) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(summaries))
	for i, e := range summaries {
		msg, err := serializeToMessage(e)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a SeriesExtrema into a Kafka message.
func serializeToMessage(e *domain.SeriesExtrema) (kafkago.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize series extrema: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(e.SeriesID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "version", Value: []byte(strconv.FormatInt(e.Version, 10))},
			{Key: "updated_at", Value: []byte(e.UpdatedAt.Format(time.RFC3339))},
		},
	}, nil
}
