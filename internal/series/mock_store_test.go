package series

import (
	"context"
	"errors"
	"sync"

	"github.com/couchcryptid/observation-series-service/internal/domain"
)

// mockStore is an optimistic in-memory store. Each unit works on a snapshot
// and commits only if the series version is unchanged, so two trackers
// sharing one mockStore behave like two service replicas.
type mockStore struct {
	mu        sync.Mutex
	records   map[string]domain.ObservationRecord
	extrema   map[string]*domain.SeriesExtrema
	conflicts int   // fail the next N commits with ErrConcurrentUpdate
	failWith  error // fail every unit with this error
	commits   int
	loads     int
	// afterLoad runs once LoadExtrema has read the summary, before it returns.
	afterLoad func()
}

func newMockStore() *mockStore {
	return &mockStore{
		records: make(map[string]domain.ObservationRecord),
		extrema: make(map[string]*domain.SeriesExtrema),
	}
}

func (s *mockStore) WithSeries(ctx context.Context, seriesID string, fn func(Tx) error) error {
	s.mu.Lock()
	if s.failWith != nil {
		s.mu.Unlock()
		return s.failWith
	}
	tx := &mockTx{seriesID: seriesID, records: make(map[string]domain.ObservationRecord)}
	for id, rec := range s.records {
		if rec.SeriesID() == seriesID {
			tx.records[id] = rec
		}
	}
	if e, ok := s.extrema[seriesID]; ok {
		tx.extrema = e.Clone()
		tx.baseVersion = e.Version
	}
	s.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflicts > 0 {
		s.conflicts--
		return domain.ErrConcurrentUpdate
	}
	var current int64
	if e, ok := s.extrema[seriesID]; ok {
		current = e.Version
	}
	if current != tx.baseVersion {
		return domain.ErrConcurrentUpdate
	}
	for _, id := range tx.deleted {
		delete(s.records, id)
	}
	for _, rec := range tx.inserted {
		s.records[rec.ID] = rec
	}
	if tx.persisted != nil {
		s.extrema[seriesID] = tx.persisted
	}
	s.commits++
	return nil
}

func (s *mockStore) LocateSeries(_ context.Context, recordID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[recordID]
	if !ok {
		return "", domain.ErrRecordNotFound
	}
	return rec.SeriesID(), nil
}

func (s *mockStore) LoadExtrema(_ context.Context, seriesID string) (*domain.SeriesExtrema, error) {
	s.mu.Lock()
	s.loads++
	e, ok := s.extrema[seriesID]
	if ok {
		e = e.Clone()
	}
	hook := s.afterLoad
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	if !ok {
		return nil, domain.ErrSeriesNotFound
	}
	return e, nil
}

type mockTx struct {
	seriesID    string
	records     map[string]domain.ObservationRecord
	extrema     *domain.SeriesExtrema
	baseVersion int64
	inserted    []domain.ObservationRecord
	deleted     []string
	persisted   *domain.SeriesExtrema
}

func (tx *mockTx) FetchExtrema(context.Context) (*domain.SeriesExtrema, error) {
	if tx.extrema == nil {
		return nil, nil
	}
	return tx.extrema.Clone(), nil
}

func (tx *mockTx) FetchBoundaryCandidate(_ context.Context, boundary domain.IndeterminateTime) (*domain.ObservationRecord, error) {
	live := make([]domain.ObservationRecord, 0, len(tx.records))
	for _, rec := range tx.records {
		live = append(live, rec)
	}
	rec, ok := domain.Resolve(live, boundary)
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (tx *mockTx) InsertRecord(_ context.Context, rec domain.ObservationRecord) (bool, error) {
	if _, ok := tx.records[rec.ID]; ok {
		return false, nil
	}
	tx.records[rec.ID] = rec
	tx.inserted = append(tx.inserted, rec)
	return true, nil
}

func (tx *mockTx) DeleteRecord(_ context.Context, recordID string) (domain.ObservationRecord, error) {
	rec, ok := tx.records[recordID]
	if !ok {
		return domain.ObservationRecord{}, domain.ErrRecordNotFound
	}
	delete(tx.records, recordID)
	tx.deleted = append(tx.deleted, recordID)
	return rec, nil
}

func (tx *mockTx) PersistExtrema(_ context.Context, e *domain.SeriesExtrema) error {
	if e.Version != tx.baseVersion {
		return errors.New("mock: persisting a summary that was not fetched in this unit")
	}
	e.Version++
	tx.persisted = e.Clone()
	return nil
}
