package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allConfigs enumerates every combination of the six switches, with and
// without a custom indicator.
func allConfigs() []MergeIndicatorConfig {
	var out []MergeIndicatorConfig
	for mask := range 1 << 6 {
		cfg := MergeIndicatorConfig{
			Procedure:          mask&1 != 0,
			ObservableProperty: mask&2 != 0,
			FeatureOfInterest:  mask&4 != 0,
			Offerings:          mask&8 != 0,
			PhenomenonTime:     mask&16 != 0,
			SamplingGeometry:   mask&32 != 0,
		}
		out = append(out, cfg)
		cfg.Custom = []string{"depth"}
		out = append(out, cfg)
	}
	return out
}

func TestCanMergeExcludedTypes(t *testing.T) {
	for _, typ := range excludedTypes {
		a := quantityRecord("a", 0, 1)
		a.Constellation.ObservationType = typ
		b := quantityRecord("b", 0, 1)
		b.Constellation.ObservationType = typ

		for _, cfg := range allConfigs() {
			assert.False(t, CanMerge(a, b, cfg), "type %s cfg %+v", typ, cfg)
			assert.False(t, CanMerge(a, a, cfg), "self merge type %s cfg %+v", typ, cfg)
		}
	}
}

func TestCanMergeAsymmetricIndicator(t *testing.T) {
	withIndicator := quantityRecord("a", 0, 1)
	withIndicator.AdditionalMergeIndicator = "stream-7"
	without := quantityRecord("b", 0, 1)

	for _, cfg := range allConfigs() {
		assert.False(t, CanMerge(withIndicator, without, cfg), "cfg %+v", cfg)
		assert.False(t, CanMerge(without, withIndicator, cfg), "cfg %+v", cfg)
	}
}

func TestCanMergeIndicatorEquality(t *testing.T) {
	a := quantityRecord("a", 0, 1)
	a.AdditionalMergeIndicator = "stream-7"
	b := quantityRecord("b", 1, 2)
	b.AdditionalMergeIndicator = "stream-7"
	c := quantityRecord("c", 2, 3)
	c.AdditionalMergeIndicator = "stream-8"

	cfg := DefaultMergeIndicatorConfig()
	assert.True(t, CanMerge(a, b, cfg))
	assert.False(t, CanMerge(a, c, cfg))
}

func TestCanMergeUsesFirstRecordType(t *testing.T) {
	a := quantityRecord("a", 0, 1)
	b := quantityRecord("b", 1, 2)
	b.Constellation.ObservationType = ObservationTypeSWEArray

	cfg := DefaultMergeIndicatorConfig()
	assert.True(t, CanMerge(a, b, cfg))
	assert.False(t, CanMerge(b, a, cfg))
}

func TestCanMergeSwitches(t *testing.T) {
	geometry := Geometry{SRID: 4326, WKT: "POINT(7.65 51.93)"}

	tests := []struct {
		name   string
		cfg    MergeIndicatorConfig
		modify func(b *ObservationRecord)
		want   bool
	}{
		{
			name:   "fast path ignores phenomenon time",
			cfg:    DefaultMergeIndicatorConfig(),
			modify: func(b *ObservationRecord) { b.PhenomenonTime = Instant(at(30)) },
			want:   true,
		},
		{
			name:   "fast path compares offerings as sets",
			cfg:    DefaultMergeIndicatorConfig(),
			modify: func(b *ObservationRecord) { b.Constellation.Offerings = []string{"offering-all", "offering-air"} },
			want:   true,
		},
		{
			name:   "disabled feature switch ignores feature",
			cfg:    MergeIndicatorConfig{Procedure: true, ObservableProperty: true},
			modify: func(b *ObservationRecord) { b.Constellation.FeatureOfInterest = "elsewhere" },
			want:   true,
		},
		{
			name:   "enabled procedure switch",
			cfg:    MergeIndicatorConfig{Procedure: true},
			modify: func(b *ObservationRecord) { b.Constellation.Procedure = "other" },
			want:   false,
		},
		{
			name:   "enabled offerings switch",
			cfg:    MergeIndicatorConfig{Offerings: true},
			modify: func(b *ObservationRecord) { b.Constellation.Offerings = nil },
			want:   false,
		},
		{
			name:   "phenomenon time must match",
			cfg:    MergeIndicatorConfig{Procedure: true, PhenomenonTime: true},
			modify: func(b *ObservationRecord) { b.PhenomenonTime = Instant(at(30)) },
			want:   false,
		},
		{
			name:   "equal phenomenon time",
			cfg:    MergeIndicatorConfig{Procedure: true, PhenomenonTime: true},
			modify: func(*ObservationRecord) {},
			want:   true,
		},
		{
			name:   "sampling geometry present on one side",
			cfg:    MergeIndicatorConfig{SamplingGeometry: true},
			modify: func(b *ObservationRecord) { b.Parameters.AddSamplingGeometry(geometry) },
			want:   false,
		},
		{
			name:   "no switches merges anything",
			cfg:    MergeIndicatorConfig{},
			modify: func(b *ObservationRecord) { b.Constellation = Constellation{Procedure: "x"} },
			want:   true,
		},
		{
			name: "custom indicator differs",
			cfg:  MergeIndicatorConfig{Procedure: true, Custom: []string{"depth"}},
			modify: func(b *ObservationRecord) {
				b.Parameters.Add(NamedValue{Name: "depth", Value: Quantity{Value: 5, Unit: "m"}})
			},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := quantityRecord("a", 0, 1)
			b := quantityRecord("b", 0, 2)
			tt.modify(&b)
			assert.Equal(t, tt.want, CanMerge(a, b, tt.cfg))
		})
	}
}

func TestCanMergeCustomIndicatorMatches(t *testing.T) {
	depth := NamedValue{Name: "depth", Value: Quantity{Value: 5, Unit: "m"}}
	a := quantityRecord("a", 0, 1)
	a.Parameters.Add(depth)
	b := quantityRecord("b", 1, 2)
	b.Parameters.Add(depth)

	assert.True(t, CanMerge(a, b, MergeIndicatorConfig{Procedure: true, Custom: []string{"depth"}}))
}

func TestMergeSequentialSameConstellation(t *testing.T) {
	records := []ObservationRecord{
		quantityRecord("r1", 10, 1.5),
		quantityRecord("r2", 0, 2.5),
	}
	merged, err := MergeSequential(records, DefaultMergeIndicatorConfig())
	require.NoError(t, err)
	require.Len(t, merged, 1)

	got := merged[0]
	assert.Equal(t, "1", got.ObservationID)
	assert.True(t, got.ResultTime.IsZero(), "merged series has no result time")
	m, ok := got.Value.(*Multi)
	require.True(t, ok)
	assert.Equal(t, []Point{
		{Time: Instant(at(10)), Payload: Quantity{Value: 1.5, Unit: "degC"}},
		{Time: Instant(at(0)), Payload: Quantity{Value: 2.5, Unit: "degC"}},
	}, m.Points)
	assert.Equal(t, "degC", m.Unit)
	assert.Equal(t, NewPeriod(at(0), at(10)), got.PhenomenonTime)

	_, stillSingle := records[0].Value.(*Single)
	assert.True(t, stillSingle, "input records are not modified")
	assert.False(t, records[0].ResultTime.IsZero())
}

func TestMergeSequentialDifferentFeature(t *testing.T) {
	a := quantityRecord("r1", 0, 1)
	b := quantityRecord("r2", 1, 2)
	b.Constellation.FeatureOfInterest = "urn:ogc:object:feature:station-berlin"

	merged, err := MergeSequential([]ObservationRecord{a, b}, DefaultMergeIndicatorConfig())
	require.NoError(t, err)
	require.Len(t, merged, 2)
	assert.Equal(t, "1", merged[0].ObservationID)
	assert.Equal(t, "2", merged[1].ObservationID)
	assert.IsType(t, &Single{}, merged[0].Value)
	assert.IsType(t, &Single{}, merged[1].Value)
	assert.False(t, merged[0].ResultTime.IsZero(), "unmerged records keep their result time")
}

func TestMergeSequentialSWEArrayNeverMerges(t *testing.T) {
	a := quantityRecord("r1", 0, 1)
	a.Constellation.ObservationType = ObservationTypeSWEArray
	b := quantityRecord("r2", 1, 2)
	b.Constellation.ObservationType = ObservationTypeSWEArray

	merged, err := MergeSequential([]ObservationRecord{a, b}, DefaultMergeIndicatorConfig())
	require.NoError(t, err)
	assert.Len(t, merged, 2)
}

func TestMergeSequentialFirstFit(t *testing.T) {
	elsewhere := func(rec ObservationRecord) ObservationRecord {
		rec.Constellation.FeatureOfInterest = "urn:ogc:object:feature:station-berlin"
		return rec
	}
	records := []ObservationRecord{
		quantityRecord("r1", 0, 10),
		elsewhere(quantityRecord("r2", 1, 20)),
		quantityRecord("r3", 2, 11),
		elsewhere(quantityRecord("r4", 3, 21)),
	}

	merged, err := MergeSequential(records, DefaultMergeIndicatorConfig())
	require.NoError(t, err)
	require.Len(t, merged, 2)
	assert.Equal(t, "r1", merged[0].ID)
	assert.Equal(t, "r2", merged[1].ID)
	assert.Equal(t, 2, merged[0].Value.Len())
	assert.Equal(t, 2, merged[1].Value.Len())

	// Without the feature switch every record fits the first bucket.
	merged, err = MergeSequential(records, MergeIndicatorConfig{Procedure: true, ObservableProperty: true})
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, 4, merged[0].Value.Len())
}

func TestMergeSequentialValueObserver(t *testing.T) {
	records := []ObservationRecord{
		quantityRecord("r1", 0, 1),
		quantityRecord("r2", 1, 2),
		quantityRecord("r3", 2, 3),
	}
	errLimit := errors.New("limit")

	var seen []int
	_, err := MergeSequential(records, DefaultMergeIndicatorConfig(), WithValueObserver(func(total int) error {
		seen = append(seen, total)
		if total > 2 {
			return errLimit
		}
		return nil
	}))
	require.ErrorIs(t, err, errLimit)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestMergeSequentialTemplateIsDropped(t *testing.T) {
	tmpl := quantityRecord("r2", 1, 0)
	tmpl.Value = &Single{Time: Instant(at(1)), Payload: Template{}}

	merged, err := MergeSequential([]ObservationRecord{quantityRecord("r1", 0, 1), tmpl}, DefaultMergeIndicatorConfig())
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, 1, merged[0].Value.Len())
}

func TestMergeSequentialChronologicalOrder(t *testing.T) {
	records := []ObservationRecord{
		quantityRecord("r1", 10, 1),
		quantityRecord("r2", 0, 2),
		quantityRecord("r3", 5, 3),
	}
	merged, err := MergeSequential(records, DefaultMergeIndicatorConfig(), WithChronologicalOrder())
	require.NoError(t, err)
	require.Len(t, merged, 1)

	m := merged[0].Value.(*Multi)
	var values []float64
	for _, p := range m.Points {
		values = append(values, p.Payload.(Quantity).Value)
	}
	assert.Equal(t, []float64{2, 3, 1}, values)
}

func TestMergeSequentialSingleTimeFallback(t *testing.T) {
	a := quantityRecord("r1", 0, 1)
	a.Value.(*Single).Time = Period{}
	b := quantityRecord("r2", 3, 2)
	b.Value.(*Single).Time = Period{}

	merged, err := MergeSequential([]ObservationRecord{a, b}, DefaultMergeIndicatorConfig())
	require.NoError(t, err)
	m := merged[0].Value.(*Multi)
	assert.Equal(t, Instant(at(0)), m.Points[0].Time)
	assert.Equal(t, Instant(at(3)), m.Points[1].Time)
	assert.True(t, a.Value.(*Single).Time.IsZero(), "input value untouched")
}

func TestMergeInto(t *testing.T) {
	tests := []struct {
		name         string
		targetResult time.Time
		sourceResult time.Time
		want         time.Time
	}{
		{name: "earlier source result time wins", targetResult: at(10), sourceResult: at(2), want: at(2)},
		{name: "earlier target result time kept", targetResult: at(2), sourceResult: at(10), want: at(2)},
		{name: "only source set", sourceResult: at(4), want: at(4)},
		{name: "only target set", targetResult: at(4), want: at(4)},
		{name: "neither set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := quantityRecord("t", 0, 1)
			target.ResultTime = tt.targetResult
			source := quantityRecord("s", 5, 2)
			source.ResultTime = tt.sourceResult
			original := target.Value

			MergeInto(&target, source)

			assert.True(t, target.ResultTime.Equal(tt.want), "got %s want %s", target.ResultTime, tt.want)
			require.IsType(t, &Multi{}, target.Value)
			assert.Equal(t, 2, target.Value.Len())
			assert.Equal(t, NewPeriod(at(0), at(5)), target.PhenomenonTime)
			assert.IsType(t, &Single{}, original, "previous value is not mutated")
		})
	}
}
