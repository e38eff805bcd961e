package domain

import "slices"

// Value is either a *Single or a *Multi.
type Value interface {
	// Len is the number of (time, payload) pairs the value carries.
	Len() int
	isValue()
}

// Single is one timestamped value.
type Single struct {
	Time    Period
	Payload Payload
	Quality []Quality
}

// Point is one element of a multi-valued series.
type Point struct {
	Time    Period
	Payload Payload
}

// PointMetadata is applied to every point that carries none of its own.
type PointMetadata struct {
	Quality []Quality
}

// Multi is an ordered sequence of points. Order reflects append order.
type Multi struct {
	Points          []Point
	Unit            string
	DefaultMetadata *PointMetadata
}

func (*Single) isValue() {}
func (*Multi) isValue()  {}

func (s *Single) Len() int {
	if s == nil || isTemplate(s.Payload) {
		return 0
	}
	return 1
}

func (m *Multi) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Points)
}

// Promote converts a Single into a one-element Multi. The payload's own unit
// takes precedence over recordUnit. Quality becomes the default point
// metadata. A template payload produces an empty Multi.
func Promote(s *Single, recordUnit string) *Multi {
	m := &Multi{Unit: recordUnit}
	if s == nil {
		return m
	}
	if u := UnitOf(s.Payload); u != "" {
		m.Unit = u
	}
	if len(s.Quality) > 0 {
		m.DefaultMetadata = &PointMetadata{Quality: slices.Clone(s.Quality)}
	}
	m.Append(s.Time, s.Payload)
	return m
}

// AsMulti promotes v if it is a Single. A Multi is returned unchanged.
func AsMulti(v Value, recordUnit string) *Multi {
	switch t := v.(type) {
	case *Multi:
		return t
	case *Single:
		return Promote(t, recordUnit)
	default:
		return &Multi{Unit: recordUnit}
	}
}

// Append adds a point at the end. Template payloads are dropped.
func (m *Multi) Append(t Period, p Payload) {
	if isTemplate(p) {
		return
	}
	m.Points = append(m.Points, Point{Time: t, Payload: p})
	if m.Unit == "" {
		m.Unit = UnitOf(p)
	}
}

// AppendAll concatenates other's points after m's. Unit and default metadata
// are taken from other only when m has none; otherwise m's win.
func (m *Multi) AppendAll(other *Multi) {
	if other == nil {
		return
	}
	m.Points = append(m.Points, other.Points...)
	if m.Unit == "" {
		m.Unit = other.Unit
	}
	if m.DefaultMetadata == nil && other.DefaultMetadata != nil {
		m.DefaultMetadata = &PointMetadata{Quality: slices.Clone(other.DefaultMetadata.Quality)}
	}
}

// SortChronologically orders points by start time, keeping append order for ties.
func (m *Multi) SortChronologically() {
	slices.SortStableFunc(m.Points, func(a, b Point) int {
		return a.Time.Start.Compare(b.Time.Start)
	})
}

// Extent is the envelope of all point times.
func (m *Multi) Extent() Period {
	var out Period
	for _, p := range m.Points {
		out = out.Union(p.Time)
	}
	return out
}

// appendValue appends v to m. A Single whose time is unset falls back to fallback.
func appendValue(m *Multi, v Value, fallback Period) {
	switch t := v.(type) {
	case *Single:
		when := t.Time
		if when.IsZero() {
			when = fallback
		}
		m.Append(when, t.Payload)
	case *Multi:
		m.AppendAll(t)
	}
}

func cloneValue(v Value) Value {
	switch t := v.(type) {
	case *Single:
		c := *t
		c.Quality = slices.Clone(t.Quality)
		return &c
	case *Multi:
		c := *t
		c.Points = slices.Clone(t.Points)
		if t.DefaultMetadata != nil {
			md := PointMetadata{Quality: slices.Clone(t.DefaultMetadata.Quality)}
			c.DefaultMetadata = &md
		}
		return &c
	default:
		return nil
	}
}

// firstPayload returns the payload of a Single, or of a Multi's only point.
func firstPayload(v Value) (Payload, bool) {
	switch t := v.(type) {
	case *Single:
		return t.Payload, t.Payload != nil
	case *Multi:
		if len(t.Points) == 1 {
			return t.Points[0].Payload, true
		}
	}
	return nil, false
}
