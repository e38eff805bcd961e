// Package memory is an in-process persistence collaborator for the series
// tracker and the query service. State is lost on restart.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/couchcryptid/observation-series-service/internal/domain"
	"github.com/couchcryptid/observation-series-service/internal/series"
)

// Store keeps records and summaries in maps. Units on the same series are
// serialized by a per-series mutex and staged until fn succeeds.
type Store struct {
	mu       sync.RWMutex
	records  map[string]domain.ObservationRecord
	bySeries map[string]map[string]struct{}
	extrema  map[string]*domain.SeriesExtrema

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		records:  make(map[string]domain.ObservationRecord),
		bySeries: make(map[string]map[string]struct{}),
		extrema:  make(map[string]*domain.SeriesExtrema),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *Store) seriesLock(seriesID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[seriesID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[seriesID] = l
	}
	return l
}

func (s *Store) WithSeries(ctx context.Context, seriesID string, fn func(series.Tx) error) error {
	l := s.seriesLock(seriesID)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		store:    s,
		seriesID: seriesID,
		inserted: make(map[string]domain.ObservationRecord),
		deleted:  make(map[string]struct{}),
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *Store) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.persisted != nil {
		s.extrema[tx.seriesID] = tx.persisted
	}

	ids := s.bySeries[tx.seriesID]
	if ids == nil {
		ids = make(map[string]struct{})
		s.bySeries[tx.seriesID] = ids
	}
	for id := range tx.deleted {
		delete(s.records, id)
		delete(ids, id)
	}
	for id, rec := range tx.inserted {
		s.records[id] = rec
		ids[id] = struct{}{}
	}
}

func (s *Store) LocateSeries(_ context.Context, recordID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordID]
	if !ok {
		return "", domain.ErrRecordNotFound
	}
	return rec.SeriesID(), nil
}

func (s *Store) LoadExtrema(_ context.Context, seriesID string) (*domain.SeriesExtrema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.extrema[seriesID]
	if !ok {
		return nil, domain.ErrSeriesNotFound
	}
	return e.Clone(), nil
}

// FetchRecords returns copies of the live records matching filter.
func (s *Store) FetchRecords(_ context.Context, filter domain.Filter) ([]domain.ObservationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ObservationRecord
	for _, rec := range s.records {
		if filter.Matches(rec) {
			out = append(out, rec.Clone())
		}
	}
	slices.SortFunc(out, domain.CompareRecords)
	return out, nil
}

// CheckReadiness always succeeds.
func (s *Store) CheckReadiness(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Len reports the number of live records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

type memTx struct {
	store     *Store
	seriesID  string
	inserted  map[string]domain.ObservationRecord
	deleted   map[string]struct{}
	persisted *domain.SeriesExtrema
}

func (t *memTx) FetchExtrema(context.Context) (*domain.SeriesExtrema, error) {
	if t.persisted != nil {
		return t.persisted.Clone(), nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	if e, ok := t.store.extrema[t.seriesID]; ok {
		return e.Clone(), nil
	}
	return nil, nil
}

func (t *memTx) live() []domain.ObservationRecord {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	var out []domain.ObservationRecord
	for id := range t.store.bySeries[t.seriesID] {
		if _, gone := t.deleted[id]; gone {
			continue
		}
		out = append(out, t.store.records[id])
	}
	for _, rec := range t.inserted {
		out = append(out, rec)
	}
	return out
}

func (t *memTx) FetchBoundaryCandidate(_ context.Context, boundary domain.IndeterminateTime) (*domain.ObservationRecord, error) {
	rec, ok := domain.Resolve(t.live(), boundary)
	if !ok {
		return nil, nil
	}
	out := rec.Clone()
	return &out, nil
}

func (t *memTx) InsertRecord(_ context.Context, rec domain.ObservationRecord) (bool, error) {
	if _, ok := t.inserted[rec.ID]; ok {
		return false, nil
	}
	if _, gone := t.deleted[rec.ID]; !gone {
		t.store.mu.RLock()
		_, exists := t.store.records[rec.ID]
		t.store.mu.RUnlock()
		if exists {
			return false, nil
		}
	}
	t.inserted[rec.ID] = rec.Clone()
	return true, nil
}

func (t *memTx) DeleteRecord(_ context.Context, recordID string) (domain.ObservationRecord, error) {
	if rec, ok := t.inserted[recordID]; ok {
		delete(t.inserted, recordID)
		return rec, nil
	}
	if _, gone := t.deleted[recordID]; gone {
		return domain.ObservationRecord{}, domain.ErrRecordNotFound
	}

	t.store.mu.RLock()
	rec, ok := t.store.records[recordID]
	t.store.mu.RUnlock()
	if !ok || rec.SeriesID() != t.seriesID {
		return domain.ObservationRecord{}, domain.ErrRecordNotFound
	}
	t.deleted[recordID] = struct{}{}
	return rec.Clone(), nil
}

func (t *memTx) PersistExtrema(ctx context.Context, e *domain.SeriesExtrema) error {
	current, err := t.FetchExtrema(ctx)
	if err != nil {
		return err
	}
	var version int64
	if current != nil {
		version = current.Version
	}
	if version != e.Version {
		return domain.ErrConcurrentUpdate
	}
	e.Version++
	t.persisted = e.Clone()
	return nil
}
