// Package query answers observation requests: it fetches eligible records,
// applies first/latest selection and consolidates compatible records into
// series under a response-size ceiling.
package query

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/couchcryptid/observation-series-service/internal/domain"
	"github.com/couchcryptid/observation-series-service/internal/observability"
)

// RecordSource returns the live records matching a filter, ordered by
// phenomenon start and then ID.
type RecordSource interface {
	FetchRecords(ctx context.Context, filter domain.Filter) ([]domain.ObservationRecord, error)
}

// ExtremaReader serves series summaries.
type ExtremaReader interface {
	Extrema(ctx context.Context, seriesID string) (*domain.SeriesExtrema, error)
}

// Config controls consolidation.
type Config struct {
	Merge         domain.MergeIndicatorConfig
	Chronological bool
	// MaxValues caps the number of values in one response. Zero means no cap.
	MaxValues int
}

// Request describes one observation query.
type Request struct {
	Filter   domain.Filter
	Temporal *domain.IndeterminateTime
	Merge    bool
}

// Service executes observation queries.
type Service struct {
	source  RecordSource
	extrema ExtremaReader
	cfg     Config
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewService creates a query Service.
func NewService(source RecordSource, extrema ExtremaReader, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		source:  source,
		extrema: extrema,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Observations runs req. Exceeding the value ceiling fails the whole request
// with a *domain.ResponseSizeError.
func (s *Service) Observations(ctx context.Context, req Request) ([]domain.ObservationRecord, error) {
	start := time.Now()
	mode := "plain"
	if req.Temporal != nil {
		mode = req.Temporal.String()
	}
	defer func() {
		s.metrics.QueryDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}()

	records, err := s.source.FetchRecords(ctx, req.Filter)
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	if req.Temporal != nil {
		records = resolvePerSeries(records, *req.Temporal)
	}

	var out []domain.ObservationRecord
	if req.Merge {
		opts := []domain.MergeOption{domain.WithValueObserver(s.checkSize)}
		if s.cfg.Chronological {
			opts = append(opts, domain.WithChronologicalOrder())
		}
		out, err = domain.MergeSequential(records, s.cfg.Merge, opts...)
		if err == nil {
			s.metrics.MergeBuckets.Observe(float64(len(out)))
		}
	} else {
		out, err = records, s.countValues(records)
	}
	if err != nil {
		if errors.Is(err, domain.ErrResponseSizeExceeded) {
			s.metrics.ResponseSizeRejections.Inc()
			s.logger.Warn("response size exceeded", "limit", s.cfg.MaxValues, "filter", fmt.Sprintf("%+v", req.Filter))
		}
		return nil, err
	}

	s.logger.Debug("observations query", "mode", mode, "merge", req.Merge, "records", len(records), "results", len(out))
	return out, nil
}

// Series returns the summary of one series.
func (s *Service) Series(ctx context.Context, seriesID string) (*domain.SeriesExtrema, error) {
	return s.extrema.Extrema(ctx, seriesID)
}

func (s *Service) checkSize(total int) error {
	if s.cfg.MaxValues > 0 && total > s.cfg.MaxValues {
		return &domain.ResponseSizeError{Limit: s.cfg.MaxValues, Count: total}
	}
	return nil
}

func (s *Service) countValues(records []domain.ObservationRecord) error {
	total := 0
	for _, rec := range records {
		if rec.Value != nil {
			total += rec.Value.Len()
		}
		if err := s.checkSize(total); err != nil {
			return err
		}
	}
	return nil
}

// resolvePerSeries keeps one record per series, ordered by series ID.
func resolvePerSeries(records []domain.ObservationRecord, mode domain.IndeterminateTime) []domain.ObservationRecord {
	groups := make(map[string][]domain.ObservationRecord)
	for _, rec := range records {
		id := rec.SeriesID()
		groups[id] = append(groups[id], rec)
	}

	out := make([]domain.ObservationRecord, 0, len(groups))
	for _, group := range groups {
		if rec, ok := domain.Resolve(group, mode); ok {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(a, b domain.ObservationRecord) int {
		return cmp.Compare(a.SeriesID(), b.SeriesID())
	})
	return out
}
