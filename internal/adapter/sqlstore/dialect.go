package sqlstore

import (
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// dialect captures the differences between the supported databases.
type dialect struct {
	name   string
	driver string
	// lockSeries is appended to the series row read that opens every unit.
	lockSeries string
	rebind     func(query string) string
	// conflict reports errors caused by a concurrent writer.
	conflict func(err error) bool
	// duplicate reports a primary key violation.
	duplicate func(err error) bool
}

var postgresDialect = dialect{
	name:       "postgres",
	driver:     "pgx",
	lockSeries: " FOR UPDATE",
	rebind:     dollarPlaceholders,
	conflict:   isPostgresConflict,
	duplicate:  isPostgresDuplicate,
}

// SQLite serializes writers with BEGIN IMMEDIATE, so no row lock is needed.
var sqliteDialect = dialect{
	name:      "sqlite",
	driver:    "sqlite",
	rebind:    func(q string) string { return q },
	conflict:  isSQLiteBusy,
	duplicate: isSQLiteDuplicate,
}

// dollarPlaceholders rewrites ? placeholders to $1, $2, ...
func dollarPlaceholders(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func postgresCode(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return ""
	}
	return pgErr.Code
}

// Serialization failures and deadlocks.
func isPostgresConflict(err error) bool {
	switch postgresCode(err) {
	case "40001", "40P01":
		return true
	}
	return false
}

func isPostgresDuplicate(err error) bool {
	return postgresCode(err) == "23505"
}

// sqliteCode returns the primary result code, or -1 for other errors.
func sqliteCode(err error) int {
	var sqlErr *sqlite.Error
	if !errors.As(err, &sqlErr) {
		return -1
	}
	return sqlErr.Code() & 0xff
}

func isSQLiteBusy(err error) bool {
	switch sqliteCode(err) {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

func isSQLiteDuplicate(err error) bool {
	return sqliteCode(err) == sqlite3.SQLITE_CONSTRAINT
}
