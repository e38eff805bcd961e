package domain

import (
	"cmp"
	"slices"
	"time"
)

// Quality is a quality annotation attached to a value.
type Quality struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ObservationRecord is one stored or consolidated observation.
type ObservationRecord struct {
	// ID is the stable storage identifier.
	ID string
	// ObservationID is assigned per response by MergeSequential.
	ObservationID string

	Constellation  Constellation
	PhenomenonTime Period
	ResultTime     time.Time
	ValidTime      *Period
	Value          Value
	Unit           string
	Quality        []Quality
	Parameters     ParameterHolder

	// AdditionalMergeIndicator is an extra equality dimension for merging.
	// Empty means absent.
	AdditionalMergeIndicator string
	SeriesType               string
}

// Clone returns a deep copy.
func (r ObservationRecord) Clone() ObservationRecord {
	out := r
	out.Constellation = r.Constellation.clone()
	if r.ValidTime != nil {
		vt := *r.ValidTime
		out.ValidTime = &vt
	}
	out.Value = cloneValue(r.Value)
	out.Quality = slices.Clone(r.Quality)
	out.Parameters = r.Parameters.Clone()
	return out
}

func (r ObservationRecord) SeriesID() string { return r.Constellation.SeriesID() }

// NumericValue returns the number carried by a single-valued numeric record.
func (r ObservationRecord) NumericValue() (float64, bool) {
	p, ok := firstPayload(r.Value)
	if !ok {
		return 0, false
	}
	return NumericValue(p)
}

// EffectiveUnit is the payload's unit if it carries one, else the record unit.
func (r ObservationRecord) EffectiveUnit() string {
	switch v := r.Value.(type) {
	case *Single:
		if u := UnitOf(v.Payload); u != "" {
			return u
		}
	case *Multi:
		if v.Unit != "" {
			return v.Unit
		}
	}
	return r.Unit
}

func (r ObservationRecord) SamplingGeometry() (Geometry, bool) {
	return r.Parameters.GetSamplingGeometry()
}

// Filter selects records by constellation fields and phenomenon time.
// Empty lists and zero times do not restrict.
type Filter struct {
	Procedures           []string
	ObservableProperties []string
	FeaturesOfInterest   []string
	Offerings            []string
	Start                time.Time
	End                  time.Time
}

// Matches reports whether rec passes every restriction of f.
func (f Filter) Matches(rec ObservationRecord) bool {
	c := rec.Constellation
	if !allowed(f.Procedures, c.Procedure) ||
		!allowed(f.ObservableProperties, c.ObservableProperty) ||
		!allowed(f.FeaturesOfInterest, c.FeatureOfInterest) {
		return false
	}
	if len(f.Offerings) > 0 && !slices.ContainsFunc(f.Offerings, c.HasOffering) {
		return false
	}
	return rec.PhenomenonTime.Overlaps(f.Start, f.End)
}

func allowed(list []string, v string) bool {
	return len(list) == 0 || slices.Contains(list, v)
}

// CompareRecords is the storage order: phenomenon start, then ID.
func CompareRecords(a, b ObservationRecord) int {
	return cmp.Or(a.PhenomenonTime.Start.Compare(b.PhenomenonTime.Start), cmp.Compare(a.ID, b.ID))
}
