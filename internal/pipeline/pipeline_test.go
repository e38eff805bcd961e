package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/observation-series-service/internal/domain"
	"github.com/couchcryptid/observation-series-service/internal/observability"
	"github.com/couchcryptid/observation-series-service/internal/pipeline"
)

// --- mocks ---

type mockExtractor struct {
	batches [][]domain.RawEvent
	index   atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawEvent, error) {
	i := int(m.index.Add(1) - 1)
	if i >= len(m.batches) {
		// block until context cancelled to simulate waiting for messages
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.batches[i], nil
}

type mockLoader struct {
	mu       sync.Mutex
	loaded   []domain.ObservationRecord
	failures int
	calls    int
}

func (m *mockLoader) LoadBatch(_ context.Context, records []domain.ObservationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failures > 0 {
		m.failures--
		return errors.New("store unavailable")
	}
	m.loaded = append(m.loaded, records...)
	return nil
}

func (m *mockLoader) snapshot() []domain.ObservationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ObservationRecord(nil), m.loaded...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func runFor(t *testing.T, p *pipeline.Pipeline, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, p.Run(ctx))
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	raw := makeRawEvent("obs-1", 0, 21.5)

	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}}}
	ldr := &mockLoader{}
	p := pipeline.New(ext, pipeline.NewTransformer(discardLogger()), ldr, discardLogger(), newTestMetrics(), 10)

	runFor(t, p, 500*time.Millisecond)

	loaded := ldr.snapshot()
	require.Len(t, loaded, 1)
	assert.Equal(t, "obs-1", loaded[0].ID)
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ext := &mockExtractor{} // no events, will block
	ldr := &mockLoader{}
	p := pipeline.New(ext, pipeline.NewTransformer(discardLogger()), ldr, discardLogger(), newTestMetrics(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.snapshot())
	assert.Error(t, p.CheckReadiness(ctx))
}

func TestPipeline_Run_InvalidMessageSkipped(t *testing.T) {
	var committed []int64
	var mu sync.Mutex
	commit := func(offset int64) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			committed = append(committed, offset)
			return nil
		}
	}

	bad := domain.RawEvent{Value: []byte("not-json{{{"), Offset: 1, Commit: commit(1)}
	good := makeRawEvent("obs-2", 1, 3)
	good.Offset = 2
	good.Commit = commit(2)

	ext := &mockExtractor{batches: [][]domain.RawEvent{{bad, good}}}
	ldr := &mockLoader{}
	metrics := newTestMetrics()
	p := pipeline.New(ext, pipeline.NewTransformer(discardLogger()), ldr, discardLogger(), metrics, 10)

	runFor(t, p, 500*time.Millisecond)

	loaded := ldr.snapshot()
	require.Len(t, loaded, 1)
	assert.Equal(t, "obs-2", loaded[0].ID)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{1, 2}, committed, "poison pill committed so it is not redelivered")
}

func TestPipeline_Run_OnlyInvalidMessagesNotReady(t *testing.T) {
	missingValue := []byte(`{"procedure":"p","observable_property":"o","feature_of_interest":"f","phenomenon_time":{"start":"2024-04-26T12:00:00Z"}}`)
	ext := &mockExtractor{batches: [][]domain.RawEvent{{{Value: missingValue}}}}
	ldr := &mockLoader{}
	p := pipeline.New(ext, pipeline.NewTransformer(discardLogger()), ldr, discardLogger(), newTestMetrics(), 10)

	runFor(t, p, 300*time.Millisecond)

	assert.Empty(t, ldr.snapshot())
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_RetriesFailedLoadBeforeCommit(t *testing.T) {
	var commits atomic.Int32
	raw := makeRawEvent("obs-3", 2, 7)
	raw.Commit = func(context.Context) error {
		commits.Add(1)
		return nil
	}

	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}}}
	ldr := &mockLoader{failures: 1}
	p := pipeline.New(ext, pipeline.NewTransformer(discardLogger()), ldr, discardLogger(), newTestMetrics(), 10)

	runFor(t, p, time.Second)

	assert.Equal(t, 2, ldr.calls)
	assert.Len(t, ldr.snapshot(), 1)
	assert.Equal(t, int32(1), commits.Load())
}

func TestPipeline_Run_CancelDuringLoadBackoff(t *testing.T) {
	var commits atomic.Int32
	raw := makeRawEvent("obs-4", 0, 1)
	raw.Commit = func(context.Context) error {
		commits.Add(1)
		return nil
	}

	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}}}
	ldr := &mockLoader{failures: 1000}
	p := pipeline.New(ext, pipeline.NewTransformer(discardLogger()), ldr, discardLogger(), newTestMetrics(), 10)

	runFor(t, p, 300*time.Millisecond)

	assert.Zero(t, commits.Load(), "unloaded records are not committed")
	assert.Error(t, p.CheckReadiness(context.Background()))
}

// --- helpers ---

func makeRawEvent(id string, minute int, value float64) domain.RawEvent {
	start := time.Date(2024, time.April, 26, 12, minute, 0, 0, time.UTC)
	doc := fmt.Sprintf(`{
		"id": %q,
		"procedure": "urn:ogc:object:sensor:thermometer-1",
		"observable_property": "urn:ogc:def:property:air_temperature",
		"feature_of_interest": "urn:ogc:object:feature:station-muenster",
		"offerings": ["offering-air"],
		"observation_type": "http://www.opengis.net/def/observationType/OGC-OM/2.0/OM_Measurement",
		"phenomenon_time": {"start": %q},
		"value": {"kind": "single", "payload": {"type": "quantity", "value": %g, "unit": "degC"}}
	}`, id, start.Format(time.RFC3339), value)
	return domain.RawEvent{
		Key:   []byte(id),
		Value: []byte(doc),
	}
}
