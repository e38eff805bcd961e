// Package series keeps per-series extrema current as observations are
// inserted and deleted.
//
// Every change to a series runs as a read-modify-write cycle: read the
// summary, apply the change, persist the summary and the record change in
// one atomic unit of the store. Two guards keep concurrent cycles from
// losing updates. Inside one process a per-series mutex serializes them.
// Across processes the store detects a stale summary version and reports
// domain.ErrConcurrentUpdate, and the tracker reruns the cycle with backoff.
//
// Summaries read through Extrema can be cached with WithCacheSize. The cache
// is invalidated only by this tracker's own writes, so enable it only when
// the tracker is the sole writer to its store.
package series

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/observation-series-service/internal/domain"
	"github.com/couchcryptid/observation-series-service/internal/observability"
)

const (
	opInsert = "insert"
	opDelete = "delete"

	defaultMaxRetries = 5

	// Conflict retries start at 200ms and double up to 5s.
	defaultMinBackoff = 200 * time.Millisecond
	defaultMaxBackoff = 5 * time.Second
)

// Tracker maintains SeriesExtrema through a Store.
type Tracker struct {
	store      Store
	locks      *keyedMutex
	cache      *extremaCache
	logger     *slog.Logger
	metrics    *observability.Metrics
	maxRetries int
	minBackoff time.Duration
	maxBackoff time.Duration
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithMaxRetries bounds how often a conflicting cycle is rerun.
func WithMaxRetries(n int) Option {
	return func(t *Tracker) { t.maxRetries = n }
}

// WithRetryBackoff overrides the wait between conflicting cycles.
func WithRetryBackoff(initial, maxBackoff time.Duration) Option {
	return func(t *Tracker) { t.minBackoff, t.maxBackoff = initial, maxBackoff }
}

// WithCacheSize sets the number of summaries kept in memory. The cache is off
// by default; it must stay off when other processes write to the same store.
func WithCacheSize(n int) Option {
	return func(t *Tracker) { t.cache = newExtremaCache(n) }
}

// NewTracker creates a Tracker over store.
func NewTracker(store Store, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Tracker {
	t := &Tracker{
		store:      store,
		locks:      newKeyedMutex(),
		cache:      newExtremaCache(0),
		logger:     logger,
		metrics:    metrics,
		maxRetries: defaultMaxRetries,
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Insert stores rec and widens its series' extrema. The first record of a
// series creates the summary; a record arriving for a deleted series revives
// it. Re-inserting a known record ID changes nothing.
func (t *Tracker) Insert(ctx context.Context, rec domain.ObservationRecord) (*domain.SeriesExtrema, error) {
	seriesID := rec.SeriesID()
	var result *domain.SeriesExtrema

	err := t.update(ctx, seriesID, opInsert, func(tx Tx) (bool, error) {
		ext, err := tx.FetchExtrema(ctx)
		if err != nil {
			return false, fmt.Errorf("fetch extrema: %w", err)
		}
		created := ext == nil
		if created {
			ext = domain.NewSeriesExtrema(rec.Constellation)
		}

		inserted, err := tx.InsertRecord(ctx, rec)
		if err != nil {
			return false, fmt.Errorf("insert record %s: %w", rec.ID, err)
		}
		result = ext
		if !inserted {
			t.logger.Debug("observation already stored", "record_id", rec.ID, "series_id", seriesID)
			return false, nil
		}

		changed := ext.ApplyInsert(rec) || created
		if ext.Deleted {
			ext.Deleted = false
			changed = true
		}
		if err := t.persist(ctx, tx, ext); err != nil {
			return false, err
		}
		return changed, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes a record and recomputes any extrema boundary it owned. The
// series is flagged deleted once no records remain.
func (t *Tracker) Delete(ctx context.Context, recordID string) (*domain.SeriesExtrema, error) {
	seriesID, err := t.store.LocateSeries(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("locate series of %s: %w", recordID, err)
	}
	var result *domain.SeriesExtrema

	err = t.update(ctx, seriesID, opDelete, func(tx Tx) (bool, error) {
		ext, err := tx.FetchExtrema(ctx)
		if err != nil {
			return false, fmt.Errorf("fetch extrema: %w", err)
		}
		if ext == nil {
			return false, fmt.Errorf("series %s: %w", seriesID, domain.ErrSeriesNotFound)
		}

		rec, err := tx.DeleteRecord(ctx, recordID)
		if err != nil {
			return false, fmt.Errorf("delete record %s: %w", recordID, err)
		}

		changed, err := ext.ApplyDelete(rec, t.rescan(ctx, tx, domain.First), t.rescan(ctx, tx, domain.Latest))
		if err != nil {
			return false, err
		}
		if ext.Empty() && !ext.Deleted {
			ext.Deleted = true
			changed = true
		}
		result = ext
		if err := t.persist(ctx, tx, ext); err != nil {
			return false, err
		}
		return changed, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Extrema returns the current summary of a series. Cache misses load under
// the series lock so a fill cannot overwrite the invalidation of a write
// that finished in the meantime.
func (t *Tracker) Extrema(ctx context.Context, seriesID string) (*domain.SeriesExtrema, error) {
	if ext, ok := t.cache.get(seriesID); ok {
		t.metrics.SeriesCache.WithLabelValues("hit").Inc()
		return ext, nil
	}

	unlock := t.locks.lock(seriesID)
	defer unlock()
	if ext, ok := t.cache.get(seriesID); ok {
		t.metrics.SeriesCache.WithLabelValues("hit").Inc()
		return ext, nil
	}
	t.metrics.SeriesCache.WithLabelValues("miss").Inc()

	ext, err := t.store.LoadExtrema(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	t.cache.put(seriesID, ext)
	return ext, nil
}

// persist writes the summary even when its fields did not move. The version
// bump it causes is what lets a store detect a concurrent unit that touched
// the same series.
func (t *Tracker) persist(ctx context.Context, tx Tx, ext *domain.SeriesExtrema) error {
	ext.UpdatedAt = domain.Now()
	if err := tx.PersistExtrema(ctx, ext); err != nil {
		return fmt.Errorf("persist extrema: %w", err)
	}
	return nil
}

func (t *Tracker) rescan(ctx context.Context, tx Tx, boundary domain.IndeterminateTime) domain.RescanFunc {
	return func() (*domain.ObservationRecord, error) {
		return tx.FetchBoundaryCandidate(ctx, boundary)
	}
}

// update runs one cycle under the series lock and reruns it on conflicts.
// fn reports whether the summary fields changed.
func (t *Tracker) update(ctx context.Context, seriesID, op string, fn func(Tx) (bool, error)) error {
	unlock := t.locks.lock(seriesID)
	defer unlock()

	wait := t.minBackoff
	for attempt := 0; ; attempt++ {
		var changed bool
		err := t.store.WithSeries(ctx, seriesID, func(tx Tx) error {
			var err error
			changed, err = fn(tx)
			return err
		})
		if err == nil {
			t.cache.invalidate(seriesID)
			outcome := "unchanged"
			if changed {
				outcome = "changed"
			}
			t.metrics.ExtremaUpdates.WithLabelValues(op, outcome).Inc()
			return nil
		}

		if !errors.Is(err, domain.ErrConcurrentUpdate) || attempt >= t.maxRetries {
			t.metrics.ExtremaUpdates.WithLabelValues(op, "error").Inc()
			return fmt.Errorf("%s series %s: %w", op, seriesID, err)
		}

		t.metrics.ConflictRetries.Inc()
		t.logger.Warn("concurrent series update, retrying",
			"series_id", seriesID,
			"operation", op,
			"attempt", attempt+1,
			"backoff", wait,
		)
		if !sharedretry.SleepWithContext(ctx, wait) {
			return fmt.Errorf("%s series %s: %w", op, seriesID, ctx.Err())
		}
		wait = sharedretry.NextBackoff(wait, t.maxBackoff)
	}
}
