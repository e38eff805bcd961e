package domain

import (
	"cmp"
	"slices"
)

// Well-known parameter names.
const (
	paramNamespace = "http://www.opengis.net/def/param-name/OGC-OM/2.0/"

	HeightURL           = paramNamespace + "height"
	DepthURL            = paramNamespace + "depth"
	CategoryURL         = paramNamespace + "category"
	SamplingGeometryURL = paramNamespace + "samplingGeometry"
)

var (
	// "fromDepth" is recognized as a height name as well as a from name.
	heightNames = []string{HeightURL, "height", "elevation", "fromDepth"}
	depthNames  = []string{DepthURL, "depth"}
	fromNames   = []string{"fromDepth", "fromHeight", "from"}
	toNames     = []string{"toDepth", "toHeight", "to"}
)

// NamedValue is an auxiliary (name, payload) attached to an observation.
type NamedValue struct {
	Name  string  `json:"name"`
	Value Payload `json:"-"`
}

// CompareNamedValue orders by name, then by payload.
func CompareNamedValue(a, b NamedValue) int {
	return cmp.Or(cmp.Compare(a.Name, b.Name), ComparePayload(a.Value, b.Value))
}

// ParameterHolder is a sorted collection of named values. Several values may
// share a name; lookups by name return the first one in sort order.
//
// The zero value is an empty holder ready to use.
type ParameterHolder struct {
	values []NamedValue
}

// NewParameterHolder returns a holder containing values.
func NewParameterHolder(values ...NamedValue) ParameterHolder {
	var h ParameterHolder
	for _, nv := range values {
		h.Add(nv)
	}
	return h
}

// Add inserts nv at its sorted position, after any equal entries.
func (h *ParameterHolder) Add(nv NamedValue) {
	i := len(h.values)
	for j, cur := range h.values {
		if CompareNamedValue(nv, cur) < 0 {
			i = j
			break
		}
	}
	h.values = slices.Insert(h.values, i, nv)
}

// Remove deletes the first entry equal to nv.
func (h *ParameterHolder) Remove(nv NamedValue) bool {
	for i, cur := range h.values {
		if CompareNamedValue(nv, cur) == 0 {
			h.values = slices.Delete(h.values, i, i+1)
			return true
		}
	}
	return false
}

// Get returns the first entry named name.
func (h ParameterHolder) Get(name string) (NamedValue, bool) {
	for _, nv := range h.values {
		if nv.Name == name {
			return nv, true
		}
	}
	return NamedValue{}, false
}

func (h ParameterHolder) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// All returns a copy of the entries in sort order.
func (h ParameterHolder) All() []NamedValue { return slices.Clone(h.values) }

func (h ParameterHolder) Len() int { return len(h.values) }

func (h ParameterHolder) Clone() ParameterHolder {
	return ParameterHolder{values: slices.Clone(h.values)}
}

// firstNumeric returns the first numeric entry whose name is in names.
func (h ParameterHolder) firstNumeric(names []string) (NamedValue, bool) {
	for _, nv := range h.values {
		if slices.Contains(names, nv.Name) && IsNumeric(nv.Value) {
			return nv, true
		}
	}
	return NamedValue{}, false
}

func (h ParameterHolder) IsHeight() bool { _, ok := h.GetHeight(); return ok }

func (h ParameterHolder) GetHeight() (NamedValue, bool) { return h.firstNumeric(heightNames) }

func (h ParameterHolder) IsDepth() bool { _, ok := h.GetDepth(); return ok }

func (h ParameterHolder) GetDepth() (NamedValue, bool) { return h.firstNumeric(depthNames) }

// GetHeightOrDepth prefers depth when both are present.
func (h ParameterHolder) GetHeightOrDepth() (NamedValue, bool) {
	if nv, ok := h.GetDepth(); ok {
		return nv, true
	}
	return h.GetHeight()
}

func (h ParameterHolder) IsFrom() bool { _, ok := h.GetFrom(); return ok }

func (h ParameterHolder) GetFrom() (NamedValue, bool) { return h.firstNumeric(fromNames) }

func (h ParameterHolder) IsTo() bool { _, ok := h.GetTo(); return ok }

func (h ParameterHolder) GetTo() (NamedValue, bool) { return h.firstNumeric(toNames) }

func (h ParameterHolder) IsCategory() bool { _, ok := h.GetCategory(); return ok }

// GetCategory returns the first text-valued category parameter.
func (h ParameterHolder) GetCategory() (string, bool) {
	for _, nv := range h.values {
		if nv.Name != CategoryURL {
			continue
		}
		if t, ok := nv.Value.(Text); ok {
			return string(t), true
		}
	}
	return "", false
}

func (h *ParameterHolder) AddCategory(text string) {
	h.Add(NamedValue{Name: CategoryURL, Value: Text(text)})
}

func (h ParameterHolder) IsSamplingGeometry() bool { _, ok := h.GetSamplingGeometry(); return ok }

// GetSamplingGeometry returns the first geometry-valued sampling geometry parameter.
func (h ParameterHolder) GetSamplingGeometry() (Geometry, bool) {
	for _, nv := range h.values {
		if nv.Name != SamplingGeometryURL {
			continue
		}
		if g, ok := nv.Value.(Geometry); ok {
			return g, true
		}
	}
	return Geometry{}, false
}

func (h *ParameterHolder) AddSamplingGeometry(g Geometry) {
	h.Add(NamedValue{Name: SamplingGeometryURL, Value: g})
}

// RemoveSamplingGeometry removes the geometry GetSamplingGeometry would return.
func (h *ParameterHolder) RemoveSamplingGeometry() bool {
	g, ok := h.GetSamplingGeometry()
	if !ok {
		return false
	}
	return h.Remove(NamedValue{Name: SamplingGeometryURL, Value: g})
}

type namedValueJSON struct {
	Name  string       `json:"name"`
	Value *payloadJSON `json:"value"`
}

func encodeParameters(h ParameterHolder) ([]namedValueJSON, error) {
	if h.Len() == 0 {
		return nil, nil
	}
	out := make([]namedValueJSON, 0, h.Len())
	for _, nv := range h.values {
		p, err := encodePayload(nv.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, namedValueJSON{Name: nv.Name, Value: p})
	}
	return out, nil
}

func decodeParameters(in []namedValueJSON) (ParameterHolder, error) {
	var h ParameterHolder
	for _, nv := range in {
		p, err := decodePayload(nv.Value)
		if err != nil {
			return ParameterHolder{}, err
		}
		h.Add(NamedValue{Name: nv.Name, Value: p})
	}
	return h, nil
}
