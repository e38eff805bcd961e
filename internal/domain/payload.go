package domain

import (
	"cmp"
	"encoding/json"
	"fmt"
)

// PayloadKind discriminates the Payload union.
type PayloadKind string

const (
	KindQuantity PayloadKind = "quantity"
	KindCount    PayloadKind = "count"
	KindBoolean  PayloadKind = "boolean"
	KindCategory PayloadKind = "category"
	KindText     PayloadKind = "text"
	KindGeometry PayloadKind = "geometry"
	KindRange    PayloadKind = "range"
	KindTemplate PayloadKind = "template"
)

// kindOrder fixes the cross-kind ordering used by ComparePayload.
var kindOrder = map[PayloadKind]int{
	KindQuantity: 1,
	KindCount:    2,
	KindBoolean:  3,
	KindCategory: 4,
	KindText:     5,
	KindGeometry: 6,
	KindRange:    7,
	KindTemplate: 8,
}

// Payload is the typed content of an observation value or a named parameter.
// All implementations are comparable value types.
type Payload interface {
	Kind() PayloadKind
}

// Quantity is a numeric measurement with a unit of measure.
type Quantity struct {
	Value float64
	Unit  string
}

// Count is an integer observation.
type Count int64

// Boolean is a truth observation.
type Boolean bool

// Category is a term from a code space.
type Category struct {
	Value     string
	Codespace string
}

// Text is free-form text.
type Text string

// Geometry is a WKT geometry with its spatial reference ID.
type Geometry struct {
	SRID int
	WKT  string
}

// Range is a numeric interval, e.g. a sampled depth range.
type Range struct {
	Min  float64
	Max  float64
	Unit string
}

// Template is the nil placeholder of a result template. It never becomes a
// point of a multi-valued series.
type Template struct{}

func (Quantity) Kind() PayloadKind { return KindQuantity }
func (Count) Kind() PayloadKind    { return KindCount }
func (Boolean) Kind() PayloadKind  { return KindBoolean }
func (Category) Kind() PayloadKind { return KindCategory }
func (Text) Kind() PayloadKind     { return KindText }
func (Geometry) Kind() PayloadKind { return KindGeometry }
func (Range) Kind() PayloadKind    { return KindRange }
func (Template) Kind() PayloadKind { return KindTemplate }

// IsNumeric reports whether p carries a single number (quantity or count).
func IsNumeric(p Payload) bool {
	_, ok := NumericValue(p)
	return ok
}

// NumericValue extracts the number of a quantity or count payload.
func NumericValue(p Payload) (float64, bool) {
	switch v := p.(type) {
	case Quantity:
		return v.Value, true
	case Count:
		return float64(v), true
	default:
		return 0, false
	}
}

// UnitOf returns the unit carried by the payload itself, if any.
func UnitOf(p Payload) string {
	switch v := p.(type) {
	case Quantity:
		return v.Unit
	case Range:
		return v.Unit
	default:
		return ""
	}
}

func isTemplate(p Payload) bool {
	if p == nil {
		return true
	}
	_, ok := p.(Template)
	return ok
}

// ComparePayload orders payloads by kind, then by value. A nil payload sorts first.
func ComparePayload(a, b Payload) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if c := cmp.Compare(kindOrder[a.Kind()], kindOrder[b.Kind()]); c != 0 {
		return c
	}
	switch x := a.(type) {
	case Quantity:
		y := b.(Quantity)
		return cmp.Or(cmp.Compare(x.Value, y.Value), cmp.Compare(x.Unit, y.Unit))
	case Count:
		return cmp.Compare(x, b.(Count))
	case Boolean:
		return compareBool(bool(x), bool(b.(Boolean)))
	case Category:
		y := b.(Category)
		return cmp.Or(cmp.Compare(x.Value, y.Value), cmp.Compare(x.Codespace, y.Codespace))
	case Text:
		return cmp.Compare(x, b.(Text))
	case Geometry:
		y := b.(Geometry)
		return cmp.Or(cmp.Compare(x.SRID, y.SRID), cmp.Compare(x.WKT, y.WKT))
	case Range:
		y := b.(Range)
		return cmp.Or(cmp.Compare(x.Min, y.Min), cmp.Compare(x.Max, y.Max), cmp.Compare(x.Unit, y.Unit))
	default:
		return 0
	}
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

// payloadJSON is the wire shape of a Payload:
//
//	{"type":"quantity","value":12.5,"unit":"degC"}
//	{"type":"geometry","value":"POINT(7.65 51.93)","srid":4326}
//	{"type":"range","min":0,"max":10,"unit":"m"}
type payloadJSON struct {
	Type      PayloadKind     `json:"type"`
	Value     json.RawMessage `json:"value,omitempty"`
	Unit      string          `json:"unit,omitempty"`
	Codespace string          `json:"codespace,omitempty"`
	SRID      int             `json:"srid,omitempty"`
	Min       *float64        `json:"min,omitempty"`
	Max       *float64        `json:"max,omitempty"`
}

func encodePayload(p Payload) (*payloadJSON, error) {
	if p == nil {
		return nil, nil
	}
	out := &payloadJSON{Type: p.Kind()}
	var raw any
	switch v := p.(type) {
	case Quantity:
		raw, out.Unit = v.Value, v.Unit
	case Count:
		raw = int64(v)
	case Boolean:
		raw = bool(v)
	case Category:
		raw, out.Codespace = v.Value, v.Codespace
	case Text:
		raw = string(v)
	case Geometry:
		raw, out.SRID = v.WKT, v.SRID
	case Range:
		out.Min, out.Max, out.Unit = &v.Min, &v.Max, v.Unit
	case Template:
	default:
		return nil, fmt.Errorf("encode payload: unsupported kind %q", p.Kind())
	}
	if raw != nil {
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		out.Value = data
	}
	return out, nil
}

func decodePayload(in *payloadJSON) (Payload, error) {
	if in == nil {
		return nil, nil
	}
	switch in.Type {
	case KindQuantity:
		var v float64
		if err := decodeRaw(in, &v); err != nil {
			return nil, err
		}
		return Quantity{Value: v, Unit: in.Unit}, nil
	case KindCount:
		var v int64
		if err := decodeRaw(in, &v); err != nil {
			return nil, err
		}
		return Count(v), nil
	case KindBoolean:
		var v bool
		if err := decodeRaw(in, &v); err != nil {
			return nil, err
		}
		return Boolean(v), nil
	case KindCategory:
		var v string
		if err := decodeRaw(in, &v); err != nil {
			return nil, err
		}
		return Category{Value: v, Codespace: in.Codespace}, nil
	case KindText:
		var v string
		if err := decodeRaw(in, &v); err != nil {
			return nil, err
		}
		return Text(v), nil
	case KindGeometry:
		var v string
		if err := decodeRaw(in, &v); err != nil {
			return nil, err
		}
		return Geometry{SRID: in.SRID, WKT: v}, nil
	case KindRange:
		if in.Min == nil || in.Max == nil {
			return nil, fmt.Errorf("decode payload: range requires min and max")
		}
		return Range{Min: *in.Min, Max: *in.Max, Unit: in.Unit}, nil
	case KindTemplate:
		return Template{}, nil
	default:
		return nil, fmt.Errorf("decode payload: unknown type %q", in.Type)
	}
}

func decodeRaw(in *payloadJSON, dst any) error {
	if len(in.Value) == 0 {
		return fmt.Errorf("decode payload: %s requires a value", in.Type)
	}
	if err := json.Unmarshal(in.Value, dst); err != nil {
		return fmt.Errorf("decode payload: %s value: %w", in.Type, err)
	}
	return nil
}
