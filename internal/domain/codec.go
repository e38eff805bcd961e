package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// recordJSON is the wire and storage shape of an ObservationRecord. The
// constellation fields are inlined at the top level.
type recordJSON struct {
	ID            string `json:"id,omitempty"`
	ObservationID string `json:"observation_id,omitempty"`
	Constellation
	PhenomenonTime Period           `json:"phenomenon_time"`
	ResultTime     time.Time        `json:"result_time,omitzero"`
	ValidTime      *Period          `json:"valid_time,omitempty"`
	Value          *valueJSON       `json:"value,omitempty"`
	Unit           string           `json:"unit,omitempty"`
	Quality        []Quality        `json:"quality,omitempty"`
	Parameters     []namedValueJSON `json:"parameters,omitempty"`
	MergeIndicator string           `json:"merge_indicator,omitempty"`
	SeriesType     string           `json:"series_type,omitempty"`
}

const (
	valueKindSingle = "single"
	valueKindMulti  = "multi"
)

type valueJSON struct {
	Kind           string       `json:"kind"`
	Time           *Period      `json:"time,omitempty"`
	Payload        *payloadJSON `json:"payload,omitempty"`
	Quality        []Quality    `json:"quality,omitempty"`
	Points         []pointJSON  `json:"points,omitempty"`
	Unit           string       `json:"unit,omitempty"`
	DefaultQuality []Quality    `json:"default_quality,omitempty"`
}

type pointJSON struct {
	Time    Period       `json:"time"`
	Payload *payloadJSON `json:"payload"`
}

func (r ObservationRecord) MarshalJSON() ([]byte, error) {
	v, err := encodeValue(r.Value)
	if err != nil {
		return nil, fmt.Errorf("marshal observation %s: %w", r.ID, err)
	}
	params, err := encodeParameters(r.Parameters)
	if err != nil {
		return nil, fmt.Errorf("marshal observation %s: %w", r.ID, err)
	}
	return json.Marshal(recordJSON{
		ID:             r.ID,
		ObservationID:  r.ObservationID,
		Constellation:  r.Constellation,
		PhenomenonTime: r.PhenomenonTime,
		ResultTime:     r.ResultTime,
		ValidTime:      r.ValidTime,
		Value:          v,
		Unit:           r.Unit,
		Quality:        r.Quality,
		Parameters:     params,
		MergeIndicator: r.AdditionalMergeIndicator,
		SeriesType:     r.SeriesType,
	})
}

func (r *ObservationRecord) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	v, err := decodeValue(in.Value)
	if err != nil {
		return err
	}
	params, err := decodeParameters(in.Parameters)
	if err != nil {
		return err
	}
	*r = ObservationRecord{
		ID:                       in.ID,
		ObservationID:            in.ObservationID,
		Constellation:            in.Constellation,
		PhenomenonTime:           in.PhenomenonTime,
		ResultTime:               in.ResultTime,
		ValidTime:                in.ValidTime,
		Value:                    v,
		Unit:                     in.Unit,
		Quality:                  in.Quality,
		Parameters:               params,
		AdditionalMergeIndicator: in.MergeIndicator,
		SeriesType:               in.SeriesType,
	}
	return nil
}

func encodeValue(v Value) (*valueJSON, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case *Single:
		p, err := encodePayload(t.Payload)
		if err != nil {
			return nil, err
		}
		out := &valueJSON{Kind: valueKindSingle, Payload: p, Quality: t.Quality}
		if !t.Time.IsZero() {
			when := t.Time
			out.Time = &when
		}
		return out, nil
	case *Multi:
		out := &valueJSON{Kind: valueKindMulti, Unit: t.Unit, Points: make([]pointJSON, 0, len(t.Points))}
		if t.DefaultMetadata != nil {
			out.DefaultQuality = t.DefaultMetadata.Quality
		}
		for _, pt := range t.Points {
			p, err := encodePayload(pt.Payload)
			if err != nil {
				return nil, err
			}
			out.Points = append(out.Points, pointJSON{Time: pt.Time, Payload: p})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("encode value: unsupported type %T", v)
	}
}

func decodeValue(in *valueJSON) (Value, error) {
	if in == nil {
		return nil, nil
	}
	switch in.Kind {
	case valueKindSingle, "":
		p, err := decodePayload(in.Payload)
		if err != nil {
			return nil, err
		}
		s := &Single{Payload: p, Quality: in.Quality}
		if in.Time != nil {
			s.Time = *in.Time
		}
		return s, nil
	case valueKindMulti:
		m := &Multi{Unit: in.Unit, Points: make([]Point, 0, len(in.Points))}
		if len(in.DefaultQuality) > 0 {
			m.DefaultMetadata = &PointMetadata{Quality: in.DefaultQuality}
		}
		for _, pt := range in.Points {
			p, err := decodePayload(pt.Payload)
			if err != nil {
				return nil, err
			}
			m.Points = append(m.Points, Point{Time: pt.Time, Payload: p})
		}
		return m, nil
	default:
		return nil, fmt.Errorf("decode value: unknown kind %q", in.Kind)
	}
}

// ParseObservation decodes and validates an ingest document. A missing end
// time makes the phenomenon time an instant, a single value without its own
// time inherits the phenomenon time, and a missing id is derived from the
// record content so replays produce the same id.
func ParseObservation(data []byte) (ObservationRecord, error) {
	var rec ObservationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return ObservationRecord{}, fmt.Errorf("%w: %w", ErrInvalidObservation, err)
	}
	if err := normalizeObservation(&rec); err != nil {
		return ObservationRecord{}, err
	}
	return rec, nil
}

// ValidateObservation applies the ingest normalization and validation to a
// record built in code.
func ValidateObservation(rec ObservationRecord) (ObservationRecord, error) {
	out := rec.Clone()
	if err := normalizeObservation(&out); err != nil {
		return ObservationRecord{}, err
	}
	return out, nil
}

func normalizeObservation(rec *ObservationRecord) error {
	c := rec.Constellation
	switch {
	case c.Procedure == "":
		return fmt.Errorf("%w: procedure is required", ErrInvalidObservation)
	case c.ObservableProperty == "":
		return fmt.Errorf("%w: observable_property is required", ErrInvalidObservation)
	case c.FeatureOfInterest == "":
		return fmt.Errorf("%w: feature_of_interest is required", ErrInvalidObservation)
	case rec.PhenomenonTime.Start.IsZero():
		return fmt.Errorf("%w: phenomenon_time.start is required", ErrInvalidObservation)
	case rec.Value == nil:
		return fmt.Errorf("%w: value is required", ErrInvalidObservation)
	}
	if rec.PhenomenonTime.End.IsZero() {
		rec.PhenomenonTime.End = rec.PhenomenonTime.Start
	}
	if rec.PhenomenonTime.End.Before(rec.PhenomenonTime.Start) {
		return fmt.Errorf("%w: phenomenon_time.end before start", ErrInvalidObservation)
	}
	if s, ok := rec.Value.(*Single); ok && s.Time.IsZero() {
		s.Time = rec.PhenomenonTime
	}
	if rec.ID == "" {
		id, err := generateID(*rec)
		if err != nil {
			return err
		}
		rec.ID = id
	}
	return nil
}

// generateID hashes the series identity, phenomenon time, merge indicator
// and encoded value.
func generateID(rec ObservationRecord) (string, error) {
	v, err := encodeValue(rec.Value)
	if err != nil {
		return "", fmt.Errorf("generate observation id: %w", err)
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("generate observation id: %w", err)
	}
	input := fmt.Sprintf("%s|%s|%s|%s|%s",
		rec.SeriesID(),
		rec.PhenomenonTime.Start.UTC().Format(time.RFC3339Nano),
		rec.PhenomenonTime.End.UTC().Format(time.RFC3339Nano),
		rec.AdditionalMergeIndicator,
		encoded,
	)
	hash := sha256.Sum256([]byte(input))
	return "obs-" + hex.EncodeToString(hash[:12]), nil
}
