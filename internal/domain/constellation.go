package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
)

// ObservationType identifies the O&M observation type of a constellation.
type ObservationType string

const (
	ObservationTypeMeasurement ObservationType = "http://www.opengis.net/def/observationType/OGC-OM/2.0/OM_Measurement"
	ObservationTypeCount       ObservationType = "http://www.opengis.net/def/observationType/OGC-OM/2.0/OM_CountObservation"
	ObservationTypeTruth       ObservationType = "http://www.opengis.net/def/observationType/OGC-OM/2.0/OM_TruthObservation"
	ObservationTypeCategory    ObservationType = "http://www.opengis.net/def/observationType/OGC-OM/2.0/OM_CategoryObservation"
	ObservationTypeText        ObservationType = "http://www.opengis.net/def/observationType/OGC-OM/2.0/OM_TextObservation"
	ObservationTypeGeometry    ObservationType = "http://www.opengis.net/def/observationType/OGC-OM/2.0/OM_GeometryObservation"
	ObservationTypeSWEArray    ObservationType = "http://www.opengis.net/def/observationType/OGC-OM/2.0/OM_SWEArrayObservation"
	ObservationTypeComplex     ObservationType = "http://www.opengis.net/def/observationType/OGC-OM/2.0/OM_ComplexObservation"
	ObservationTypeGeneric     ObservationType = "http://www.opengis.net/def/observationType/OGC-OM/2.0/OM_Observation"
	ObservationTypeUnknown     ObservationType = "http://www.opengis.net/def/nil/OGC/0/unknown"
)

// Mergeable reports whether observations of this type may be consolidated
// into a multi-valued series. An unset type is not checked.
func (t ObservationType) Mergeable() bool {
	switch t {
	case ObservationTypeSWEArray, ObservationTypeComplex, ObservationTypeGeneric, ObservationTypeUnknown:
		return false
	default:
		return true
	}
}

// Constellation is the identity of a series.
type Constellation struct {
	Procedure          string          `json:"procedure"`
	ObservableProperty string          `json:"observable_property"`
	FeatureOfInterest  string          `json:"feature_of_interest"`
	Offerings          []string        `json:"offerings,omitempty"`
	ObservationType    ObservationType `json:"observation_type,omitempty"`
}

// Equal compares the four identity fields. Offerings are compared as sets and
// the observation type is ignored.
func (c Constellation) Equal(o Constellation) bool {
	return c.Procedure == o.Procedure &&
		c.ObservableProperty == o.ObservableProperty &&
		c.FeatureOfInterest == o.FeatureOfInterest &&
		sameSet(c.Offerings, o.Offerings)
}

// SeriesID returns a deterministic identifier for the constellation's series.
// Equal constellations always produce the same ID.
func (c Constellation) SeriesID() string {
	input := strings.Join([]string{
		c.Procedure,
		c.ObservableProperty,
		c.FeatureOfInterest,
		strings.Join(normalizedSet(c.Offerings), ","),
	}, "|")
	hash := sha256.Sum256([]byte(input))
	return "series-" + hex.EncodeToString(hash[:8])
}

// HasOffering reports whether the constellation lists the offering.
func (c Constellation) HasOffering(offering string) bool {
	return slices.Contains(c.Offerings, offering)
}

func (c Constellation) clone() Constellation {
	c.Offerings = slices.Clone(c.Offerings)
	return c
}

// sameSet compares two string slices as sets.
func sameSet(a, b []string) bool {
	return slices.Equal(normalizedSet(a), normalizedSet(b))
}

func normalizedSet(values []string) []string {
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}
