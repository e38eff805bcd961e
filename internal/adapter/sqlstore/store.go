// Package sqlstore persists observation records and series summaries through
// database/sql, on Postgres (pgx) or SQLite (modernc).
//
// Every unit is one SQL transaction that first reads the series row. On
// Postgres the read takes a row lock; on SQLite the transaction is begun
// IMMEDIATE. Writers that still collide (two first inserts of a new series,
// serialization failures, busy databases) surface as
// domain.ErrConcurrentUpdate so the tracker retries them.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/observation-series-service/internal/domain"
	"github.com/couchcryptid/observation-series-service/internal/series"
)

// Store implements series.Store and query.RecordSource on a SQL database.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// OpenPostgres connects to dsn and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*Store, error) {
	return open(ctx, postgresDialect, dsn)
}

// OpenSQLite opens or creates the database file at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	dsn := "file:" + path + "?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	return open(ctx, sqliteDialect, dsn)
}

func open(ctx context.Context, d dialect, dsn string) (*Store, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.name, err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return &Store{db: db, dialect: d}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) q(query string) string { return s.dialect.rebind(query) }

func (s *Store) WithSeries(ctx context.Context, seriesID string, fn func(series.Tx) error) (retErr error) {
	defer func() {
		if retErr != nil && s.dialect.conflict(retErr) {
			retErr = fmt.Errorf("%w: %w", domain.ErrConcurrentUpdate, retErr)
		}
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	unit := &sqlTx{tx: tx, store: s, seriesID: seriesID}
	if _, err := unit.readExtrema(ctx, s.dialect.lockSeries); err != nil {
		return err
	}
	if err := fn(unit); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) LocateSeries(ctx context.Context, recordID string) (string, error) {
	var seriesID string
	err := s.db.QueryRowContext(ctx, s.q(`SELECT series_id FROM observations WHERE id = ?`), recordID).Scan(&seriesID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrRecordNotFound
	}
	if err != nil {
		return "", fmt.Errorf("locate record %s: %w", recordID, err)
	}
	return seriesID, nil
}

func (s *Store) LoadExtrema(ctx context.Context, seriesID string) (*domain.SeriesExtrema, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT version, document FROM series WHERE series_id = ?`), seriesID)
	e, err := scanExtrema(row)
	if err != nil {
		return nil, fmt.Errorf("load series %s: %w", seriesID, err)
	}
	if e == nil {
		return nil, domain.ErrSeriesNotFound
	}
	return e, nil
}

// FetchRecords narrows by constellation and time in SQL and applies the
// full filter to the decoded records.
func (s *Store) FetchRecords(ctx context.Context, filter domain.Filter) ([]domain.ObservationRecord, error) {
	var (
		where []string
		args  []any
	)
	addIn := func(column string, values []string) {
		if len(values) == 0 {
			return
		}
		where = append(where, column+" IN ("+strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")+")")
		for _, v := range values {
			args = append(args, v)
		}
	}
	addIn("procedure", filter.Procedures)
	addIn("observable_property", filter.ObservableProperties)
	addIn("feature_of_interest", filter.FeaturesOfInterest)
	if !filter.End.IsZero() {
		where = append(where, "phenomenon_start <= ?")
		args = append(args, filter.End.UnixNano())
	}
	if !filter.Start.IsZero() {
		where = append(where, "phenomenon_end >= ?")
		args = append(args, filter.Start.UnixNano())
	}

	query := `SELECT document FROM observations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	records, err := queryRecords(ctx, s.db, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}

	out := records[:0]
	for _, rec := range records {
		if filter.Matches(rec) {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, domain.CompareRecords)
	return out, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryRecords(ctx context.Context, db queryer, query string, args ...any) ([]domain.ObservationRecord, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.ObservationRecord
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		rec, err := decodeRecord(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func decodeRecord(doc string) (domain.ObservationRecord, error) {
	var rec domain.ObservationRecord
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return domain.ObservationRecord{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

func scanExtrema(row *sql.Row) (*domain.SeriesExtrema, error) {
	var (
		version int64
		doc     string
	)
	err := row.Scan(&version, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e domain.SeriesExtrema
	if err := json.Unmarshal([]byte(doc), &e); err != nil {
		return nil, fmt.Errorf("decode series: %w", err)
	}
	e.Version = version
	return &e, nil
}

func unixNanos(t time.Time) int64 { return t.UnixNano() }
