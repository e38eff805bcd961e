// Package storetest holds the behaviour every persistence collaborator must
// show to the series tracker and the query service. Adapter packages run it
// from their own tests against a fresh store.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/observation-series-service/internal/domain"
	"github.com/couchcryptid/observation-series-service/internal/observability"
	"github.com/couchcryptid/observation-series-service/internal/series"
)

// Store is a persistence collaborator serving both the tracker and queries.
type Store interface {
	series.Store
	FetchRecords(ctx context.Context, filter domain.Filter) ([]domain.ObservationRecord, error)
}

var baseTime = time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return baseTime.Add(time.Duration(minutes) * time.Minute)
}

// Constellation returns the constellation used by the suite, located at
// the named feature.
func Constellation(feature string) domain.Constellation {
	return domain.Constellation{
		Procedure:          "urn:ogc:object:sensor:hygrometer-2",
		ObservableProperty: "urn:ogc:def:property:relative_humidity",
		FeatureOfInterest:  "urn:ogc:object:feature:" + feature,
		Offerings:          []string{"offering-humidity", "offering-all"},
		ObservationType:    domain.ObservationTypeMeasurement,
	}
}

// Record builds a percent quantity observation at baseTime plus minute.
func Record(id, feature string, minute int, value float64) domain.ObservationRecord {
	return domain.ObservationRecord{
		ID:             id,
		Constellation:  Constellation(feature),
		PhenomenonTime: domain.Instant(at(minute)),
		ResultTime:     at(minute + 1),
		Value:          &domain.Single{Time: domain.Instant(at(minute)), Payload: domain.Quantity{Value: value, Unit: "%"}},
	}
}

func newTracker(store series.Store) *series.Tracker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return series.NewTracker(store, logger, observability.NewMetricsForTesting(),
		series.WithRetryBackoff(time.Millisecond, 10*time.Millisecond),
		series.WithMaxRetries(1000),
		series.WithCacheSize(0))
}

// Run executes the suite. open must return an empty store.
func Run(t *testing.T, open func(t *testing.T) Store) {
	t.Run("TrackerLifecycle", func(t *testing.T) { testTrackerLifecycle(t, open(t)) })
	t.Run("RollbackOnError", func(t *testing.T) { testRollback(t, open(t)) })
	t.Run("DuplicateInsert", func(t *testing.T) { testDuplicateInsert(t, open(t)) })
	t.Run("MissingRecords", func(t *testing.T) { testMissingRecords(t, open(t)) })
	t.Run("StaleVersion", func(t *testing.T) { testStaleVersion(t, open(t)) })
	t.Run("BoundaryCandidates", func(t *testing.T) { testBoundaryCandidates(t, open(t)) })
	t.Run("FetchRecords", func(t *testing.T) { testFetchRecords(t, open(t)) })
	t.Run("RecordFidelity", func(t *testing.T) { testRecordFidelity(t, open(t)) })
	t.Run("ConcurrentTrackers", func(t *testing.T) { testConcurrentTrackers(t, open(t)) })
}

func testTrackerLifecycle(t *testing.T, store Store) {
	ctx := context.Background()
	tracker := newTracker(store)

	for i, v := range []float64{40, 55, 61, 48} {
		_, err := tracker.Insert(ctx, Record(fmt.Sprintf("h%d", i), "kiel", i*10, v))
		require.NoError(t, err)
	}
	seriesID := Constellation("kiel").SeriesID()

	ext, err := store.LoadExtrema(ctx, seriesID)
	require.NoError(t, err)
	assert.Equal(t, at(0), ext.FirstTimestamp.UTC())
	assert.Equal(t, at(30), ext.LastTimestamp.UTC())
	assert.InDelta(t, 40.0, *ext.FirstValue, 1e-9)
	assert.InDelta(t, 48.0, *ext.LastValue, 1e-9)
	assert.Equal(t, "%", ext.Unit)
	assert.Equal(t, int64(4), ext.Version)

	got, err := store.LocateSeries(ctx, "h2")
	require.NoError(t, err)
	assert.Equal(t, seriesID, got)

	ext, err = tracker.Delete(ctx, "h3")
	require.NoError(t, err)
	assert.Equal(t, at(20), ext.LastTimestamp.UTC())
	assert.InDelta(t, 61.0, *ext.LastValue, 1e-9)

	for _, id := range []string{"h0", "h1", "h2"} {
		ext, err = tracker.Delete(ctx, id)
		require.NoError(t, err)
	}
	assert.True(t, ext.Deleted)
	assert.True(t, ext.Empty())

	stored, err := store.LoadExtrema(ctx, seriesID)
	require.NoError(t, err)
	assert.True(t, stored.Deleted)

	_, err = store.LocateSeries(ctx, "h0")
	require.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func testRollback(t *testing.T, store Store) {
	ctx := context.Background()
	rec := Record("r1", "kiel", 0, 50)
	boom := errors.New("abort")

	err := store.WithSeries(ctx, rec.SeriesID(), func(tx series.Tx) error {
		inserted, err := tx.InsertRecord(ctx, rec)
		require.NoError(t, err)
		require.True(t, inserted)

		e := domain.NewSeriesExtrema(rec.Constellation)
		e.ApplyInsert(rec)
		require.NoError(t, tx.PersistExtrema(ctx, e))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.LocateSeries(ctx, "r1")
	require.ErrorIs(t, err, domain.ErrRecordNotFound)
	_, err = store.LoadExtrema(ctx, rec.SeriesID())
	require.ErrorIs(t, err, domain.ErrSeriesNotFound)
}

func testDuplicateInsert(t *testing.T, store Store) {
	ctx := context.Background()
	rec := Record("dup", "kiel", 0, 50)

	for i, want := range []bool{true, false} {
		err := store.WithSeries(ctx, rec.SeriesID(), func(tx series.Tx) error {
			inserted, err := tx.InsertRecord(ctx, rec)
			if err != nil {
				return err
			}
			assert.Equal(t, want, inserted, "attempt %d", i)
			return nil
		})
		require.NoError(t, err)
	}
}

func testMissingRecords(t *testing.T, store Store) {
	ctx := context.Background()
	seriesID := Constellation("kiel").SeriesID()

	_, err := store.LocateSeries(ctx, "ghost")
	require.ErrorIs(t, err, domain.ErrRecordNotFound)
	_, err = store.LoadExtrema(ctx, seriesID)
	require.ErrorIs(t, err, domain.ErrSeriesNotFound)

	err = store.WithSeries(ctx, seriesID, func(tx series.Tx) error {
		e, err := tx.FetchExtrema(ctx)
		require.NoError(t, err)
		assert.Nil(t, e)

		c, err := tx.FetchBoundaryCandidate(ctx, domain.First)
		require.NoError(t, err)
		assert.Nil(t, c)

		_, err = tx.DeleteRecord(ctx, "ghost")
		return err
	})
	require.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func testStaleVersion(t *testing.T, store Store) {
	ctx := context.Background()
	tracker := newTracker(store)
	rec := Record("v1", "kiel", 0, 50)
	_, err := tracker.Insert(ctx, rec)
	require.NoError(t, err)

	err = store.WithSeries(ctx, rec.SeriesID(), func(tx series.Tx) error {
		e, err := tx.FetchExtrema(ctx)
		require.NoError(t, err)
		e.Version = 0
		return tx.PersistExtrema(ctx, e)
	})
	require.ErrorIs(t, err, domain.ErrConcurrentUpdate)

	ext, err := store.LoadExtrema(ctx, rec.SeriesID())
	require.NoError(t, err)
	assert.Equal(t, int64(1), ext.Version)
}

func testBoundaryCandidates(t *testing.T, store Store) {
	ctx := context.Background()
	tracker := newTracker(store)
	records := []domain.ObservationRecord{
		Record("b", "kiel", 5, 1),
		Record("a", "kiel", 5, 2),
		Record("c", "kiel", 9, 3),
		Record("d", "kiel", 9, 4),
	}
	for _, rec := range records {
		_, err := tracker.Insert(ctx, rec)
		require.NoError(t, err)
	}

	err := store.WithSeries(ctx, records[0].SeriesID(), func(tx series.Tx) error {
		first, err := tx.FetchBoundaryCandidate(ctx, domain.First)
		require.NoError(t, err)
		require.NotNil(t, first)
		assert.Equal(t, "a", first.ID, "ties go to the smallest id")

		latest, err := tx.FetchBoundaryCandidate(ctx, domain.Latest)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, "c", latest.ID)

		_, err = tx.DeleteRecord(ctx, "a")
		require.NoError(t, err)
		first, err = tx.FetchBoundaryCandidate(ctx, domain.First)
		require.NoError(t, err)
		assert.Equal(t, "b", first.ID, "deletions are visible inside the unit")
		return nil
	})
	require.NoError(t, err)
}

func testFetchRecords(t *testing.T, store Store) {
	ctx := context.Background()
	tracker := newTracker(store)
	for _, rec := range []domain.ObservationRecord{
		Record("k2", "kiel", 20, 1),
		Record("l1", "luebeck", 5, 2),
		Record("k1", "kiel", 10, 3),
		Record("k0", "kiel", 10, 4),
	} {
		_, err := tracker.Insert(ctx, rec)
		require.NoError(t, err)
	}

	ids := func(records []domain.ObservationRecord) []string {
		out := make([]string, 0, len(records))
		for _, r := range records {
			out = append(out, r.ID)
		}
		return out
	}

	all, err := store.FetchRecords(ctx, domain.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"l1", "k0", "k1", "k2"}, ids(all))

	kiel, err := store.FetchRecords(ctx, domain.Filter{
		FeaturesOfInterest: []string{"urn:ogc:object:feature:kiel"},
		Start:              at(10),
		End:                at(15),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"k0", "k1"}, ids(kiel))

	none, err := store.FetchRecords(ctx, domain.Filter{Offerings: []string{"offering-wind"}})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testRecordFidelity(t *testing.T, store Store) {
	ctx := context.Background()
	valid := domain.NewPeriod(at(0), at(60))
	rec := domain.ObservationRecord{
		ID:             "profile-1",
		Constellation:  Constellation("kiel"),
		PhenomenonTime: domain.NewPeriod(at(0), at(2)),
		ResultTime:     at(3),
		ValidTime:      &valid,
		Value: &domain.Multi{
			Unit: "%",
			Points: []domain.Point{
				{Time: domain.Instant(at(0)), Payload: domain.Quantity{Value: 41, Unit: "%"}},
				{Time: domain.Instant(at(2)), Payload: domain.Quantity{Value: 43.5, Unit: "%"}},
			},
			DefaultMetadata: &domain.PointMetadata{Quality: []domain.Quality{{Name: "flag", Value: "ok"}}},
		},
		Unit:                     "%",
		Parameters:               domain.NewParameterHolder(domain.NamedValue{Name: domain.HeightURL, Value: domain.Quantity{Value: 2, Unit: "m"}}),
		AdditionalMergeIndicator: "mast-a",
		SeriesType:               "profile",
	}

	err := store.WithSeries(ctx, rec.SeriesID(), func(tx series.Tx) error {
		_, err := tx.InsertRecord(ctx, rec)
		return err
	})
	require.NoError(t, err)

	got, err := store.FetchRecords(ctx, domain.Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	if diff := cmp.Diff(rec, got[0], cmp.AllowUnexported(domain.ParameterHolder{})); diff != "" {
		t.Fatalf("stored record mismatch (-want +got):\n%s", diff)
	}
}

func testConcurrentTrackers(t *testing.T, store Store) {
	ctx := context.Background()
	replicas := []*series.Tracker{newTracker(store), newTracker(store)}

	const perWorker = 10
	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			tracker := replicas[w%len(replicas)]
			for i := range perWorker {
				minute := w*perWorker + i
				_, err := tracker.Insert(ctx, Record(fmt.Sprintf("c%d-%02d", w, i), "kiel", minute, float64(minute)))
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	ext, err := store.LoadExtrema(ctx, Constellation("kiel").SeriesID())
	require.NoError(t, err)
	assert.Equal(t, at(0), ext.FirstTimestamp.UTC())
	assert.Equal(t, at(4*perWorker-1), ext.LastTimestamp.UTC())
	assert.Equal(t, int64(4*perWorker), ext.Version)

	all, err := store.FetchRecords(ctx, domain.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 4*perWorker)
}
