package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/observation-series-service/internal/domain"
	"github.com/couchcryptid/observation-series-service/internal/observability"
)

// SeriesTracker applies one observation to its series summary.
type SeriesTracker interface {
	Insert(ctx context.Context, rec domain.ObservationRecord) (*domain.SeriesExtrema, error)
}

// ExtremaPublisher forwards updated series summaries downstream.
type ExtremaPublisher interface {
	PublishExtrema(ctx context.Context, summaries []*domain.SeriesExtrema) error
}

// SeriesLoader implements BatchLoader. It tracks every record of the batch
// and then publishes the latest summary of each touched series once.
type SeriesLoader struct {
	tracker   SeriesTracker
	publisher ExtremaPublisher
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewSeriesLoader creates a SeriesLoader. A nil publisher disables publishing.
func NewSeriesLoader(tracker SeriesTracker, publisher ExtremaPublisher, logger *slog.Logger, metrics *observability.Metrics) *SeriesLoader {
	return &SeriesLoader{
		tracker:   tracker,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
	}
}

func (l *SeriesLoader) LoadBatch(ctx context.Context, records []domain.ObservationRecord) error {
	latest := make(map[string]*domain.SeriesExtrema)
	var order []string

	for i := range records {
		ext, err := l.tracker.Insert(ctx, records[i])
		if err != nil {
			return fmt.Errorf("track record %s: %w", records[i].ID, err)
		}
		if _, seen := latest[ext.SeriesID]; !seen {
			order = append(order, ext.SeriesID)
		}
		latest[ext.SeriesID] = ext
	}

	if l.publisher == nil || len(order) == 0 {
		return nil
	}

	summaries := make([]*domain.SeriesExtrema, 0, len(order))
	for _, id := range order {
		summaries = append(summaries, latest[id])
	}
	if err := l.publisher.PublishExtrema(ctx, summaries); err != nil {
		return fmt.Errorf("publish extrema: %w", err)
	}
	l.metrics.ExtremaPublished.Add(float64(len(summaries)))
	l.logger.Debug("extrema published", "series", len(summaries), "records", len(records))
	return nil
}
