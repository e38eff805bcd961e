// Package badger persists observation records and series summaries in an
// embedded Badger database.
//
// Key layout:
//
//	rec/<series id>/<record id>  zstd-compressed JSON record
//	idx/<record id>              series id of a live record
//	ser/<series id>              JSON series summary
//
// Units run as Badger update transactions. Every unit reads the series key
// first, so two units racing on one series conflict at commit and the loser
// reports domain.ErrConcurrentUpdate.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/couchcryptid/observation-series-service/internal/domain"
	"github.com/couchcryptid/observation-series-service/internal/series"
)

const (
	recordPrefix = "rec/"
	indexPrefix  = "idx/"
	seriesPrefix = "ser/"
)

func recordKey(seriesID, recordID string) []byte {
	return []byte(recordPrefix + seriesID + "/" + recordID)
}

func seriesRecordPrefix(seriesID string) []byte {
	return []byte(recordPrefix + seriesID + "/")
}

func indexKey(recordID string) []byte { return []byte(indexPrefix + recordID) }

func seriesKey(seriesID string) []byte { return []byte(seriesPrefix + seriesID) }

// Options configures the Badger store.
type Options struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path             string
	InMemory         bool
	CompressionLevel int
}

// Store implements series.Store and query.RecordSource on Badger.
type Store struct {
	db    *badgerdb.DB
	codec *codec
}

// Open opens or creates the database described by opts.
func Open(opts Options) (*Store, error) {
	c, err := newCodec(opts.CompressionLevel)
	if err != nil {
		return nil, err
	}

	bopts := badgerdb.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = badgerdb.DefaultOptions("").WithInMemory(true)
	}
	bopts.Logger = nil

	db, err := badgerdb.Open(bopts)
	if err != nil {
		c.close()
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db, codec: c}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	s.codec.close()
	return s.db.Close()
}

// CheckReadiness reports whether the database accepts reads.
func (s *Store) CheckReadiness(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger store is closed")
	}
	return nil
}

func (s *Store) WithSeries(ctx context.Context, seriesID string, fn func(series.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		tx := &badgerTx{txn: txn, codec: s.codec, seriesID: seriesID}
		if _, err := tx.readExtrema(); err != nil {
			return err
		}
		return fn(tx)
	})
	if errors.Is(err, badgerdb.ErrConflict) {
		return domain.ErrConcurrentUpdate
	}
	return err
}

func (s *Store) LocateSeries(_ context.Context, recordID string) (string, error) {
	var seriesID string
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(indexKey(recordID))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return domain.ErrRecordNotFound
		}
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		seriesID = string(v)
		return err
	})
	if err != nil {
		return "", err
	}
	return seriesID, nil
}

func (s *Store) LoadExtrema(_ context.Context, seriesID string) (*domain.SeriesExtrema, error) {
	var e *domain.SeriesExtrema
	err := s.db.View(func(txn *badgerdb.Txn) error {
		var err error
		e, err = readExtrema(txn, seriesID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, domain.ErrSeriesNotFound
	}
	return e, nil
}

// FetchRecords scans every live record and returns those matching filter.
func (s *Store) FetchRecords(ctx context.Context, filter domain.Filter) ([]domain.ObservationRecord, error) {
	var out []domain.ObservationRecord
	err := s.db.View(func(txn *badgerdb.Txn) error {
		return scanRecords(txn, s.codec, []byte(recordPrefix), func(rec domain.ObservationRecord) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if filter.Matches(rec) {
				out = append(out, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}
	slices.SortFunc(out, domain.CompareRecords)
	return out, nil
}

func readExtrema(txn *badgerdb.Txn, seriesID string) (*domain.SeriesExtrema, error) {
	item, err := txn.Get(seriesKey(seriesID))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e domain.SeriesExtrema
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &e)
	})
	if err != nil {
		return nil, fmt.Errorf("decode series %s: %w", seriesID, err)
	}
	return &e, nil
}

func scanRecords(txn *badgerdb.Txn, c *codec, prefix []byte, fn func(domain.ObservationRecord) error) error {
	it := txn.NewIterator(badgerdb.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: prefix})
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		var rec domain.ObservationRecord
		err := it.Item().Value(func(val []byte) error {
			var err error
			rec, err = c.decodeRecord(val)
			return err
		})
		if err != nil {
			return fmt.Errorf("read %s: %w", it.Item().Key(), err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

type badgerTx struct {
	txn      *badgerdb.Txn
	codec    *codec
	seriesID string
}

func (t *badgerTx) readExtrema() (*domain.SeriesExtrema, error) {
	return readExtrema(t.txn, t.seriesID)
}

func (t *badgerTx) FetchExtrema(context.Context) (*domain.SeriesExtrema, error) {
	return t.readExtrema()
}

func (t *badgerTx) FetchBoundaryCandidate(_ context.Context, boundary domain.IndeterminateTime) (*domain.ObservationRecord, error) {
	var live []domain.ObservationRecord
	err := scanRecords(t.txn, t.codec, seriesRecordPrefix(t.seriesID), func(rec domain.ObservationRecord) error {
		live = append(live, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	rec, ok := domain.Resolve(live, boundary)
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (t *badgerTx) InsertRecord(_ context.Context, rec domain.ObservationRecord) (bool, error) {
	_, err := t.txn.Get(indexKey(rec.ID))
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, badgerdb.ErrKeyNotFound):
		return false, err
	}

	data, err := t.codec.encodeRecord(rec)
	if err != nil {
		return false, err
	}
	if err := t.txn.Set(recordKey(t.seriesID, rec.ID), data); err != nil {
		return false, err
	}
	if err := t.txn.Set(indexKey(rec.ID), []byte(t.seriesID)); err != nil {
		return false, err
	}
	return true, nil
}

func (t *badgerTx) DeleteRecord(_ context.Context, recordID string) (domain.ObservationRecord, error) {
	item, err := t.txn.Get(recordKey(t.seriesID, recordID))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return domain.ObservationRecord{}, domain.ErrRecordNotFound
	}
	if err != nil {
		return domain.ObservationRecord{}, err
	}
	var rec domain.ObservationRecord
	err = item.Value(func(val []byte) error {
		var err error
		rec, err = t.codec.decodeRecord(val)
		return err
	})
	if err != nil {
		return domain.ObservationRecord{}, err
	}

	if err := t.txn.Delete(recordKey(t.seriesID, recordID)); err != nil {
		return domain.ObservationRecord{}, err
	}
	if err := t.txn.Delete(indexKey(recordID)); err != nil {
		return domain.ObservationRecord{}, err
	}
	return rec, nil
}

func (t *badgerTx) PersistExtrema(_ context.Context, e *domain.SeriesExtrema) error {
	current, err := t.readExtrema()
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

	next := e.Clone()
	next.Version++
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode series %s: %w", t.seriesID, err)
	}
	if err := t.txn.Set(seriesKey(t.seriesID), data); err != nil {
		return err
	}
	e.Version = next.Version
	return nil
}
