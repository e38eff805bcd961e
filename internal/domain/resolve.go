package domain

import (
	"fmt"
	"strings"
)

// IndeterminateTime is a symbolic time selector resolved against stored records.
type IndeterminateTime int

const (
	First IndeterminateTime = iota + 1
	Latest
)

func (t IndeterminateTime) String() string {
	switch t {
	case First:
		return "first"
	case Latest:
		return "latest"
	default:
		return fmt.Sprintf("IndeterminateTime(%d)", int(t))
	}
}

// ParseIndeterminateTime accepts "first" or "latest", case-insensitively.
func ParseIndeterminateTime(s string) (IndeterminateTime, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "first":
		return First, nil
	case "latest":
		return Latest, nil
	default:
		return 0, fmt.Errorf("parse indeterminate time: unknown value %q", s)
	}
}

// Resolve picks the record with the earliest phenomenon start (First) or the
// latest phenomenon end (Latest). Ties go to the smallest ID. The records are
// assumed to be eligible already. It returns false for an empty input and
// panics on an unknown mode.
func Resolve(records []ObservationRecord, mode IndeterminateTime) (ObservationRecord, bool) {
	var better func(a, b ObservationRecord) bool
	switch mode {
	case First:
		better = func(a, b ObservationRecord) bool {
			if !a.PhenomenonTime.Start.Equal(b.PhenomenonTime.Start) {
				return a.PhenomenonTime.Start.Before(b.PhenomenonTime.Start)
			}
			return a.ID < b.ID
		}
	case Latest:
		better = func(a, b ObservationRecord) bool {
			if !a.PhenomenonTime.End.Equal(b.PhenomenonTime.End) {
				return a.PhenomenonTime.End.After(b.PhenomenonTime.End)
			}
			return a.ID < b.ID
		}
	default:
		panic(fmt.Sprintf("resolve: unknown indeterminate time %d", int(mode)))
	}

	if len(records) == 0 {
		return ObservationRecord{}, false
	}
	best := records[0]
	for _, rec := range records[1:] {
		if better(rec, best) {
			best = rec
		}
	}
	return best, true
}
