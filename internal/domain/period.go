package domain

import "time"

// Period is a phenomenon or validity time. An instant has Start == End.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Instant returns a zero-length period at t.
func Instant(t time.Time) Period {
	return Period{Start: t, End: t}
}

// NewPeriod returns the period [start, end].
func NewPeriod(start, end time.Time) Period {
	return Period{Start: start, End: end}
}

func (p Period) IsInstant() bool { return p.Start.Equal(p.End) }

func (p Period) IsZero() bool { return p.Start.IsZero() && p.End.IsZero() }

// Equal compares both bounds by instant, ignoring location.
func (p Period) Equal(o Period) bool {
	return p.Start.Equal(o.Start) && p.End.Equal(o.End)
}

// Overlaps reports whether p intersects [start, end]. A zero bound is open.
func (p Period) Overlaps(start, end time.Time) bool {
	if !end.IsZero() && p.Start.After(end) {
		return false
	}
	if !start.IsZero() && p.End.Before(start) {
		return false
	}
	return true
}

// Union returns the smallest period covering p and o. Zero periods are ignored.
func (p Period) Union(o Period) Period {
	if p.IsZero() {
		return o
	}
	if o.IsZero() {
		return p
	}
	out := p
	if o.Start.Before(out.Start) {
		out.Start = o.Start
	}
	if o.End.After(out.End) {
		out.End = o.End
	}
	return out
}
