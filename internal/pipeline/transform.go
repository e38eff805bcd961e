package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/observation-series-service/internal/domain"
)

// ObservationTransformer implements Transformer by decoding and validating
// the JSON observation document carried in the message value.
type ObservationTransformer struct {
	logger *slog.Logger
}

// NewTransformer creates an ObservationTransformer.
func NewTransformer(logger *slog.Logger) *ObservationTransformer {
	return &ObservationTransformer{logger: logger}
}

func (t *ObservationTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.ObservationRecord, error) {
	rec, err := domain.ParseObservation(raw.Value)
	if err != nil {
		return domain.ObservationRecord{}, err
	}
	t.logger.Debug("observation parsed",
		"record_id", rec.ID,
		"series_id", rec.SeriesID(),
		"offset", raw.Offset,
	)
	return rec, nil
}
