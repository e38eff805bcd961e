package domain

import (
	"strconv"
	"time"
)

// MergeIndicatorConfig selects which record properties must match for two
// observations to be consolidated.
type MergeIndicatorConfig struct {
	Procedure          bool
	ObservableProperty bool
	FeatureOfInterest  bool
	Offerings          bool
	PhenomenonTime     bool
	SamplingGeometry   bool

	// Custom lists parameter names whose first values must be equal.
	Custom []string
}

// DefaultMergeIndicatorConfig compares the four constellation identity fields.
func DefaultMergeIndicatorConfig() MergeIndicatorConfig {
	return MergeIndicatorConfig{
		Procedure:          true,
		ObservableProperty: true,
		FeatureOfInterest:  true,
		Offerings:          true,
	}
}

// SameConstellation reports whether all four identity switches are on, in
// which case merging reduces to constellation equality.
func (c MergeIndicatorConfig) SameConstellation() bool {
	return c.Procedure && c.ObservableProperty && c.FeatureOfInterest && c.Offerings
}

// CanMerge reports whether b may join the series represented by a.
// A false result is ordinary control flow: b starts a new series.
func CanMerge(a, b ObservationRecord, cfg MergeIndicatorConfig) bool {
	ai, bi := a.AdditionalMergeIndicator, b.AdditionalMergeIndicator
	if (ai == "") != (bi == "") || ai != bi {
		return false
	}
	if !a.Constellation.ObservationType.Mergeable() {
		return false
	}
	if cfg.SameConstellation() {
		return a.Constellation.Equal(b.Constellation)
	}

	ca, cb := a.Constellation, b.Constellation
	if cfg.Procedure && ca.Procedure != cb.Procedure {
		return false
	}
	if cfg.ObservableProperty && ca.ObservableProperty != cb.ObservableProperty {
		return false
	}
	if cfg.FeatureOfInterest && ca.FeatureOfInterest != cb.FeatureOfInterest {
		return false
	}
	if cfg.Offerings && !sameSet(ca.Offerings, cb.Offerings) {
		return false
	}
	if cfg.PhenomenonTime && !a.PhenomenonTime.Equal(b.PhenomenonTime) {
		return false
	}
	if cfg.SamplingGeometry {
		ga, okA := a.SamplingGeometry()
		gb, okB := b.SamplingGeometry()
		if okA != okB || ga != gb {
			return false
		}
	}
	for _, name := range cfg.Custom {
		if !sameParameter(a.Parameters, b.Parameters, name) {
			return false
		}
	}
	return true
}

func sameParameter(a, b ParameterHolder, name string) bool {
	na, okA := a.Get(name)
	nb, okB := b.Get(name)
	if okA != okB {
		return false
	}
	return !okA || CompareNamedValue(na, nb) == 0
}

type mergeOptions struct {
	observer      func(total int) error
	chronological bool
}

// MergeOption configures MergeSequential.
type MergeOption func(*mergeOptions)

// WithValueObserver calls fn with the running number of consolidated values
// after each record is placed. A non-nil error aborts the merge and is
// returned unchanged.
func WithValueObserver(fn func(total int) error) MergeOption {
	return func(o *mergeOptions) { o.observer = fn }
}

// WithChronologicalOrder sorts the points of every merged series by time
// once all records are placed.
func WithChronologicalOrder() MergeOption {
	return func(o *mergeOptions) { o.chronological = true }
}

// MergeSequential consolidates records in input order. Each record joins the
// first existing series it can merge with, or starts a new one. Series are
// numbered "1", "2", ... in creation order. The input is not modified.
func MergeSequential(records []ObservationRecord, cfg MergeIndicatorConfig, opts ...MergeOption) ([]ObservationRecord, error) {
	var o mergeOptions
	for _, opt := range opts {
		opt(&o)
	}

	var buckets []ObservationRecord
	total := 0
	for _, rec := range records {
		placed := false
		for i := range buckets {
			if !CanMerge(buckets[i], rec, cfg) {
				continue
			}
			m := buckets[i].multiValue()
			appendValue(m, rec.Value, rec.PhenomenonTime)
			buckets[i].Value = m
			buckets[i].PhenomenonTime = buckets[i].PhenomenonTime.Union(rec.PhenomenonTime)
			buckets[i].ResultTime = time.Time{}
			placed = true
			break
		}
		if !placed {
			b := rec.Clone()
			b.ObservationID = strconv.Itoa(len(buckets) + 1)
			buckets = append(buckets, b)
		}

		total += rec.valueCount()
		if o.observer != nil {
			if err := o.observer(total); err != nil {
				return nil, err
			}
		}
	}

	if o.chronological {
		for i := range buckets {
			if m, ok := buckets[i].Value.(*Multi); ok {
				m.SortChronologically()
			}
		}
	}
	return buckets, nil
}

// MergeInto appends source's value to target. When both carry a result time
// the earlier one is kept.
func MergeInto(target *ObservationRecord, source ObservationRecord) {
	target.Value = cloneValue(target.Value)
	m := target.multiValue()
	appendValue(m, source.Value, source.PhenomenonTime)
	target.Value = m
	target.PhenomenonTime = target.PhenomenonTime.Union(source.PhenomenonTime)

	switch {
	case target.ResultTime.IsZero():
		target.ResultTime = source.ResultTime
	case !source.ResultTime.IsZero() && source.ResultTime.Before(target.ResultTime):
		target.ResultTime = source.ResultTime
	}
}

// multiValue promotes r's value in place. A single value without its own
// time takes the record's phenomenon time.
func (r *ObservationRecord) multiValue() *Multi {
	if s, ok := r.Value.(*Single); ok && s.Time.IsZero() {
		s.Time = r.PhenomenonTime
	}
	return AsMulti(r.Value, r.Unit)
}

func (r ObservationRecord) valueCount() int {
	if r.Value == nil {
		return 0
	}
	return r.Value.Len()
}
