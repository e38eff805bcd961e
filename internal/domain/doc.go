// Package domain models sensor observations and the consolidation rules that
// turn stored observation records into series.
//
// # Constellations
//
// Every observation belongs to a constellation: the tuple of procedure,
// observable property, feature of interest and offerings, plus the
// observation type. Two constellations are equal when the four identity
// fields are equal; offerings are compared as sets. A series is the set of
// observations sharing one constellation and is addressed by [Constellation.SeriesID].
//
// # Values
//
// A record carries either a [Single] value (one time, one payload) or a
// [Multi] value (an ordered list of time/payload points). Promotion from
// Single to Multi is one-directional:
//
//	Single{t1, 12.5 degC}  ->  Multi{unit: degC, points: [(t1, 12.5)]}
//
// The unit of the payload wins over the record unit, and the quality of the
// Single becomes the default point metadata of the Multi. Template payloads
// (nil placeholders) are never stored as points.
//
// Appending never re-sorts: the point order of a merged series is the order in
// which records were merged. Chronological order is opt-in, see
// [WithChronologicalOrder].
//
// # Merging
//
// [MergeSequential] buckets records first-fit. A record joins the first bucket
// whose representative passes [CanMerge]:
//
//  1. additional merge indicators must be both absent or both equal
//  2. the representative's observation type must be mergeable
//     (not SWE array, complex, generic or unknown)
//  3. with all four identity switches on, the constellations must be equal;
//     otherwise every enabled switch must match
//
// Merged buckets lose their result time because a series has no single
// authoritative one.
//
// # Series extrema
//
// [SeriesExtrema] keeps the first/last phenomenon timestamps and the numeric
// values observed at those boundaries. Inserts only widen the range. Deleting
// the record that owns a boundary rescans the remaining records through a
// callback; deleting anything else leaves the extrema untouched.
//
// # Record IDs
//
// Records ingested without an ID get a deterministic SHA-256 based ID built
// from the series ID, phenomenon time, merge indicator and value. Replaying the
// same message yields the same ID, so storage upserts stay idempotent.
package domain
