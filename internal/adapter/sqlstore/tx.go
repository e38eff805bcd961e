package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/couchcryptid/observation-series-service/internal/domain"
)

type sqlTx struct {
	tx       *sql.Tx
	store    *Store
	seriesID string
}

func (t *sqlTx) readExtrema(ctx context.Context, suffix string) (*domain.SeriesExtrema, error) {
	row := t.tx.QueryRowContext(ctx, t.store.q(`SELECT version, document FROM series WHERE series_id = ?`+suffix), t.seriesID)
	e, err := scanExtrema(row)
	if err != nil {
		return nil, fmt.Errorf("read series %s: %w", t.seriesID, err)
	}
	return e, nil
}

func (t *sqlTx) FetchExtrema(ctx context.Context) (*domain.SeriesExtrema, error) {
	return t.readExtrema(ctx, "")
}

// FetchBoundaryCandidate loads the records tied at the boundary and lets
// domain.Resolve break the tie, so ID ordering does not depend on collation.
func (t *sqlTx) FetchBoundaryCandidate(ctx context.Context, boundary domain.IndeterminateTime) (*domain.ObservationRecord, error) {
	var query string
	switch boundary {
	case domain.First:
		query = `SELECT document FROM observations WHERE series_id = ? AND phenomenon_start =
			(SELECT MIN(phenomenon_start) FROM observations WHERE series_id = ?)`
	case domain.Latest:
		query = `SELECT document FROM observations WHERE series_id = ? AND phenomenon_end =
			(SELECT MAX(phenomenon_end) FROM observations WHERE series_id = ?)`
	default:
		panic(fmt.Sprintf("sqlstore: unknown boundary %d", int(boundary)))
	}

	tied, err := queryRecords(ctx, t.tx, t.store.q(query), t.seriesID, t.seriesID)
	if err != nil {
		return nil, fmt.Errorf("fetch %s candidate: %w", boundary, err)
	}
	rec, ok := domain.Resolve(tied, boundary)
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (t *sqlTx) InsertRecord(ctx context.Context, rec domain.ObservationRecord) (bool, error) {
	doc, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	res, err := t.tx.ExecContext(ctx, t.store.q(`INSERT INTO observations
		(id, series_id, procedure, observable_property, feature_of_interest, phenomenon_start, phenomenon_end, document)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`),
		rec.ID, t.seriesID,
		rec.Constellation.Procedure, rec.Constellation.ObservableProperty, rec.Constellation.FeatureOfInterest,
		unixNanos(rec.PhenomenonTime.Start), unixNanos(rec.PhenomenonTime.End),
		string(doc),
	)
	if err != nil {
		return false, fmt.Errorf("insert record %s: %w", rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *sqlTx) DeleteRecord(ctx context.Context, recordID string) (domain.ObservationRecord, error) {
	var doc string
	err := t.tx.QueryRowContext(ctx,
		t.store.q(`SELECT document FROM observations WHERE id = ? AND series_id = ?`),
		recordID, t.seriesID,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ObservationRecord{}, domain.ErrRecordNotFound
	}
	if err != nil {
		return domain.ObservationRecord{}, fmt.Errorf("read record %s: %w", recordID, err)
	}
	rec, err := decodeRecord(doc)
	if err != nil {
		return domain.ObservationRecord{}, err
	}
	if _, err := t.tx.ExecContext(ctx, t.store.q(`DELETE FROM observations WHERE id = ?`), recordID); err != nil {
		return domain.ObservationRecord{}, fmt.Errorf("delete record %s: %w", recordID, err)
	}
	return rec, nil
}

func (t *sqlTx) PersistExtrema(ctx context.Context, e *domain.SeriesExtrema) error {
	next := e.Clone()
	next.Version++
	doc, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode series %s: %w", t.seriesID, err)
	}

	if e.Version == 0 {
		_, err := t.tx.ExecContext(ctx,
			t.store.q(`INSERT INTO series (series_id, version, document) VALUES (?, ?, ?)`),
			t.seriesID, next.Version, string(doc))
		if err != nil {
			// A concurrent first insert of the same series won.
			if t.store.dialect.duplicate(err) {
				return fmt.Errorf("%w: %w", domain.ErrConcurrentUpdate, err)
			}
			return fmt.Errorf("insert series %s: %w", t.seriesID, err)
		}
		e.Version = next.Version
		return nil
	}

	res, err := t.tx.ExecContext(ctx,
		t.store.q(`UPDATE series SET version = ?, document = ? WHERE series_id = ? AND version = ?`),
		next.Version, string(doc), t.seriesID, e.Version)
	if err != nil {
		return fmt.Errorf("update series %s: %w", t.seriesID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrConcurrentUpdate
	}
	e.Version = next.Version
	return nil
}
