package domain

import "time"

var baseTime = time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return baseTime.Add(time.Duration(minutes) * time.Minute)
}

func testConstellation() Constellation {
	return Constellation{
		Procedure:          "urn:ogc:object:sensor:thermometer-1",
		ObservableProperty: "urn:ogc:def:property:air_temperature",
		FeatureOfInterest:  "urn:ogc:object:feature:station-muenster",
		Offerings:          []string{"offering-air", "offering-all"},
		ObservationType:    ObservationTypeMeasurement,
	}
}

// quantityRecord builds an instant measurement at the given minute offset.
func quantityRecord(id string, minute int, value float64) ObservationRecord {
	return ObservationRecord{
		ID:             id,
		Constellation:  testConstellation(),
		PhenomenonTime: Instant(at(minute)),
		ResultTime:     at(minute + 1),
		Value:          &Single{Time: Instant(at(minute)), Payload: Quantity{Value: value, Unit: "degC"}},
	}
}

func periodRecord(id string, start, end int) ObservationRecord {
	rec := quantityRecord(id, start, float64(start))
	rec.PhenomenonTime = NewPeriod(at(start), at(end))
	rec.Value.(*Single).Time = rec.PhenomenonTime
	return rec
}
