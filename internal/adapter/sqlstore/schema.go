package sqlstore

// Times are stored as Unix nanoseconds so both databases compare them the
// same way. The JSON document is authoritative; the other observation
// columns exist for filtering and ordering.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS observations (
		id                  TEXT PRIMARY KEY,
		series_id           TEXT NOT NULL,
		procedure           TEXT NOT NULL,
		observable_property TEXT NOT NULL,
		feature_of_interest TEXT NOT NULL,
		phenomenon_start    BIGINT NOT NULL,
		phenomenon_end      BIGINT NOT NULL,
		document            TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS observations_series_start_idx ON observations (series_id, phenomenon_start)`,
	`CREATE INDEX IF NOT EXISTS observations_series_end_idx ON observations (series_id, phenomenon_end)`,
	`CREATE TABLE IF NOT EXISTS series (
		series_id TEXT PRIMARY KEY,
		version   BIGINT NOT NULL,
		document  TEXT NOT NULL
	)`,
}
