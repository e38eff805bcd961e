package domain

import (
	"fmt"
	"time"
)

// SeriesExtrema summarizes a series by its first and last timestamps and
// numeric values. It is never removed, only flagged deleted.
type SeriesExtrema struct {
	SeriesID       string        `json:"series_id"`
	Constellation  Constellation `json:"constellation"`
	FirstTimestamp time.Time     `json:"first_timestamp,omitzero"`
	LastTimestamp  time.Time     `json:"last_timestamp,omitzero"`
	FirstValue     *float64      `json:"first_value,omitempty"`
	LastValue      *float64      `json:"last_value,omitempty"`
	Unit           string        `json:"unit,omitempty"`
	Deleted        bool          `json:"deleted"`
	Version        int64         `json:"version"`
	UpdatedAt      time.Time     `json:"updated_at,omitzero"`
}

// NewSeriesExtrema returns the empty summary of a series that has just come
// into existence.
func NewSeriesExtrema(c Constellation) *SeriesExtrema {
	return &SeriesExtrema{SeriesID: c.SeriesID(), Constellation: c.clone()}
}

// Empty reports whether both boundaries are unset.
func (e *SeriesExtrema) Empty() bool {
	return e.FirstTimestamp.IsZero() && e.LastTimestamp.IsZero()
}

// Clone returns a deep copy.
func (e *SeriesExtrema) Clone() *SeriesExtrema {
	out := *e
	out.Constellation = e.Constellation.clone()
	out.FirstValue = cloneFloat(e.FirstValue)
	out.LastValue = cloneFloat(e.LastValue)
	return &out
}

// ApplyInsert widens the extrema to include rec and reports whether
// anything changed. A boundary value is only replaced when the boundary
// itself moves and rec is numeric.
func (e *SeriesExtrema) ApplyInsert(rec ObservationRecord) bool {
	changed := false
	value, numeric := rec.NumericValue()
	start, end := rec.PhenomenonTime.Start, rec.PhenomenonTime.End

	if e.FirstTimestamp.IsZero() || start.Before(e.FirstTimestamp) {
		e.FirstTimestamp = start
		if numeric {
			e.FirstValue = &value
		}
		changed = true
	}
	if e.LastTimestamp.IsZero() || end.After(e.LastTimestamp) {
		e.LastTimestamp = end
		if numeric {
			v := value
			e.LastValue = &v
		}
		changed = true
	}
	if e.Unit == "" {
		if u := rec.EffectiveUnit(); u != "" {
			e.Unit = u
			changed = true
		}
	}
	return changed
}

// RescanFunc returns the record holding a boundary among the remaining
// records of a series, or nil when none remain.
type RescanFunc func() (*ObservationRecord, error)

// ApplyDelete updates the extrema after rec was removed. A boundary owned by
// rec is recomputed with the matching rescan function. Deleting a record
// that owns neither boundary leaves the extrema unchanged.
func (e *SeriesExtrema) ApplyDelete(rec ObservationRecord, rescanFirst, rescanLast RescanFunc) (bool, error) {
	changed := false
	if !e.FirstTimestamp.IsZero() && rec.PhenomenonTime.Start.Equal(e.FirstTimestamp) {
		candidate, err := rescanFirst()
		if err != nil {
			return false, fmt.Errorf("rescan first: %w", err)
		}
		if candidate == nil {
			e.FirstTimestamp, e.FirstValue = time.Time{}, nil
		} else {
			e.FirstTimestamp = candidate.PhenomenonTime.Start
			e.FirstValue = numericPtr(*candidate)
		}
		changed = true
	}
	if !e.LastTimestamp.IsZero() && rec.PhenomenonTime.End.Equal(e.LastTimestamp) {
		candidate, err := rescanLast()
		if err != nil {
			return false, fmt.Errorf("rescan last: %w", err)
		}
		if candidate == nil {
			e.LastTimestamp, e.LastValue = time.Time{}, nil
		} else {
			e.LastTimestamp = candidate.PhenomenonTime.End
			e.LastValue = numericPtr(*candidate)
		}
		changed = true
	}
	return changed, nil
}

func numericPtr(rec ObservationRecord) *float64 {
	v, ok := rec.NumericValue()
	if !ok {
		return nil
	}
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
