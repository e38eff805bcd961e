package series

import (
	"context"

	"github.com/couchcryptid/observation-series-service/internal/domain"
)

// Store is the persistence collaborator of the tracker.
type Store interface {
	// WithSeries runs fn as one atomic unit scoped to a series. Implementations
	// return domain.ErrConcurrentUpdate when the unit lost a race with another
	// writer; the tracker then retries the whole unit.
	WithSeries(ctx context.Context, seriesID string, fn func(Tx) error) error

	// LocateSeries maps a live record ID to its series ID, or returns
	// domain.ErrRecordNotFound.
	LocateSeries(ctx context.Context, recordID string) (string, error)

	// LoadExtrema reads the current summary outside any unit, or returns
	// domain.ErrSeriesNotFound.
	LoadExtrema(ctx context.Context, seriesID string) (*domain.SeriesExtrema, error)
}

// Tx is the view of one series inside an atomic unit.
type Tx interface {
	// FetchExtrema returns nil when the series has never been seen.
	FetchExtrema(ctx context.Context) (*domain.SeriesExtrema, error)

	// FetchBoundaryCandidate returns the remaining record holding the given
	// boundary, or nil when no live records remain.
	FetchBoundaryCandidate(ctx context.Context, boundary domain.IndeterminateTime) (*domain.ObservationRecord, error)

	// InsertRecord stores rec and reports false if a record with the same ID
	// already exists.
	InsertRecord(ctx context.Context, rec domain.ObservationRecord) (bool, error)

	// DeleteRecord removes a live record and returns it, or returns
	// domain.ErrRecordNotFound.
	DeleteRecord(ctx context.Context, recordID string) (domain.ObservationRecord, error)

	// PersistExtrema writes e and bumps its Version. It fails with
	// domain.ErrConcurrentUpdate if the stored version is no longer e.Version.
	PersistExtrema(ctx context.Context, e *domain.SeriesExtrema) error
}
