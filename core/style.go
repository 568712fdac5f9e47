package core

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrUnknownStyleProperty is returned when a property name is not one of the
// recognized fill layer properties.
var ErrUnknownStyleProperty = errors.New("unknown style property")

// StyleProperty identifies a fill layer paint or layout property.
type StyleProperty int

const (
	FillColor StyleProperty = iota
	FillOpacity
	FillOutlineColor
	FillPattern
	FillSortKey
	FillZOffset
	FillAntialias
	FillEmissiveStrength
	FillTranslate
	FillTranslateAnchor
	Slot
)

// ValueDomain describes the values a StyleProperty accepts.
type ValueDomain int

const (
	DomainColor ValueDomain = iota
	DomainNumber
	DomainUnitInterval
	DomainNonNegative
	DomainBool
	DomainOffset
	DomainAnchor
	DomainImage
	DomainString
)

// TranslateAnchor is the frame of reference for fill-translate.
type TranslateAnchor string

const (
	TranslateAnchorMap      TranslateAnchor = "map"
	TranslateAnchorViewport TranslateAnchor = "viewport"
)

type propertySpec struct {
	name       string
	domain     ValueDomain
	dataDriven bool
	// def is the renderer's documented default; nil means the property is unset by default.
	def any
}

var propertySpecs = [...]propertySpec{
	FillColor:            {name: "fill-color", domain: DomainColor, dataDriven: true, def: "#000000"},
	FillOpacity:          {name: "fill-opacity", domain: DomainUnitInterval, dataDriven: true, def: 1.0},
	FillOutlineColor:     {name: "fill-outline-color", domain: DomainColor, dataDriven: true},
	FillPattern:          {name: "fill-pattern", domain: DomainImage, dataDriven: true},
	FillSortKey:          {name: "fill-sort-key", domain: DomainNumber, dataDriven: true},
	FillZOffset:          {name: "fill-z-offset", domain: DomainNumber, dataDriven: true, def: 0.0},
	FillAntialias:        {name: "fill-antialias", domain: DomainBool, def: true},
	FillEmissiveStrength: {name: "fill-emissive-strength", domain: DomainNonNegative, def: 0.0},
	FillTranslate:        {name: "fill-translate", domain: DomainOffset, def: []float64{0, 0}},
	FillTranslateAnchor:  {name: "fill-translate-anchor", domain: DomainAnchor, def: string(TranslateAnchorMap)},
	Slot:                 {name: "slot", domain: DomainString},
}

var propertiesByName = func() map[string]StyleProperty {
	m := make(map[string]StyleProperty, len(propertySpecs))
	for i, spec := range propertySpecs {
		m[spec.name] = StyleProperty(i)
	}
	return m
}()

// StyleProperties returns every recognized property in declaration order.
func StyleProperties() []StyleProperty {
	props := make([]StyleProperty, len(propertySpecs))
	for i := range propertySpecs {
		props[i] = StyleProperty(i)
	}
	return props
}

// ParseStyleProperty resolves a wire name such as "fill-color".
func ParseStyleProperty(name string) (StyleProperty, error) {
	p, ok := propertiesByName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownStyleProperty, name)
	}
	return p, nil
}

func (p StyleProperty) valid() bool {
	return p >= 0 && int(p) < len(propertySpecs)
}

// String returns the wire name of the property.
func (p StyleProperty) String() string {
	if !p.valid() {
		return fmt.Sprintf("StyleProperty(%d)", int(p))
	}
	return propertySpecs[p].name
}

func (p StyleProperty) Domain() ValueDomain {
	return propertySpecs[p].domain
}

// DataDriven reports whether the property can vary per annotation.
func (p StyleProperty) DataDriven() bool {
	return propertySpecs[p].dataDriven
}

// Default returns the renderer's default value, or nil when the property
// has none. Slice defaults are copied on every call.
func (p StyleProperty) Default() any {
	switch v := propertySpecs[p].def.(type) {
	case []float64:
		return append([]float64(nil), v...)
	default:
		return v
	}
}

// Validate checks that v belongs to the property's value domain.
func (p StyleProperty) Validate(v any) error {
	if !p.valid() {
		return fmt.Errorf("%w: %d", ErrUnknownStyleProperty, int(p))
	}
	bad := func() error {
		return fmt.Errorf("invalid value %v for %s", v, p)
	}
	switch p.Domain() {
	case DomainColor, DomainImage:
		s, ok := v.(string)
		if !ok || s == "" {
			return bad()
		}
	case DomainString:
		if _, ok := v.(string); !ok {
			return bad()
		}
	case DomainAnchor:
		s, ok := v.(string)
		if !ok || (TranslateAnchor(s) != TranslateAnchorMap && TranslateAnchor(s) != TranslateAnchorViewport) {
			return bad()
		}
	case DomainBool:
		if _, ok := v.(bool); !ok {
			return bad()
		}
	case DomainNumber, DomainUnitInterval, DomainNonNegative:
		f, ok := toFloat(v)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return bad()
		}
		if p.Domain() == DomainUnitInterval && (f < 0 || f > 1) {
			return bad()
		}
		if p.Domain() == DomainNonNegative && f < 0 {
			return bad()
		}
	case DomainOffset:
		offset, ok := toOffset(v)
		if !ok || len(offset) != 2 {
			return bad()
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toOffset(v any) ([]float64, bool) {
	switch o := v.(type) {
	case []float64:
		return o, true
	case []any:
		out := make([]float64, 0, len(o))
		for _, e := range o {
			f, ok := toFloat(e)
			if !ok {
				return nil, false
			}
			out = append(out, f)
		}
		return out, true
	}
	return nil, false
}

// AnnotationStyle holds the data-driven properties of a single annotation.
// Nil fields are not set and fall back to the layer.
type AnnotationStyle struct {
	FillColor        *string  `json:"fill-color,omitempty"`
	FillOpacity      *float64 `json:"fill-opacity,omitempty"`
	FillOutlineColor *string  `json:"fill-outline-color,omitempty"`
	FillPattern      *string  `json:"fill-pattern,omitempty"`
	FillSortKey      *float64 `json:"fill-sort-key,omitempty"`
	FillZOffset      *float64 `json:"fill-z-offset,omitempty"`
}

// Values returns the set fields keyed by property.
func (s AnnotationStyle) Values() map[StyleProperty]any {
	values := make(map[StyleProperty]any)
	putString(values, FillColor, s.FillColor)
	putFloat(values, FillOpacity, s.FillOpacity)
	putString(values, FillOutlineColor, s.FillOutlineColor)
	putString(values, FillPattern, s.FillPattern)
	putFloat(values, FillSortKey, s.FillSortKey)
	putFloat(values, FillZOffset, s.FillZOffset)
	return values
}

// Validate checks every set field against its domain.
func (s AnnotationStyle) Validate() error {
	return validateValues(s.Values())
}

// ParseAnnotationStyle builds an AnnotationStyle from a wire-level
// name → value mapping, as found in a feature's layerProperties.
func ParseAnnotationStyle(values map[string]any) (AnnotationStyle, error) {
	var s AnnotationStyle
	for name, v := range values {
		p, err := ParseStyleProperty(name)
		if err != nil {
			return AnnotationStyle{}, err
		}
		if !p.DataDriven() {
			return AnnotationStyle{}, fmt.Errorf("%s cannot be set per annotation", p)
		}
		if err := p.Validate(v); err != nil {
			return AnnotationStyle{}, err
		}
		switch p {
		case FillColor:
			s.FillColor = String(v.(string))
		case FillOutlineColor:
			s.FillOutlineColor = String(v.(string))
		case FillPattern:
			s.FillPattern = String(v.(string))
		case FillOpacity, FillSortKey, FillZOffset:
			f, _ := toFloat(v)
			switch p {
			case FillOpacity:
				s.FillOpacity = Float(f)
			case FillSortKey:
				s.FillSortKey = Float(f)
			default:
				s.FillZOffset = Float(f)
			}
		}
	}
	return s, nil
}

// LayerStyle holds manager-level constant properties. They apply to every
// annotation of the manager and take precedence over per-annotation values.
type LayerStyle struct {
	FillAntialias        *bool            `json:"fill-antialias,omitempty" yaml:"fill_antialias,omitempty"`
	FillEmissiveStrength *float64         `json:"fill-emissive-strength,omitempty" yaml:"fill_emissive_strength,omitempty"`
	FillTranslate        []float64        `json:"fill-translate,omitempty" yaml:"fill_translate,omitempty"`
	FillTranslateAnchor  *TranslateAnchor `json:"fill-translate-anchor,omitempty" yaml:"fill_translate_anchor,omitempty"`
	Slot                 *string          `json:"slot,omitempty" yaml:"slot,omitempty"`
}

// Values returns the set fields keyed by property.
func (s LayerStyle) Values() map[StyleProperty]any {
	values := make(map[StyleProperty]any)
	if s.FillAntialias != nil {
		values[FillAntialias] = *s.FillAntialias
	}
	putFloat(values, FillEmissiveStrength, s.FillEmissiveStrength)
	if s.FillTranslate != nil {
		values[FillTranslate] = append([]float64(nil), s.FillTranslate...)
	}
	if s.FillTranslateAnchor != nil {
		values[FillTranslateAnchor] = string(*s.FillTranslateAnchor)
	}
	putString(values, Slot, s.Slot)
	return values
}

func (s LayerStyle) Validate() error {
	return validateValues(s.Values())
}

func validateValues(values map[StyleProperty]any) error {
	keys := make([]StyleProperty, 0, len(values))
	for p := range values {
		keys = append(keys, p)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, p := range keys {
		if err := p.Validate(values[p]); err != nil {
			return err
		}
	}
	return nil
}

func putString(m map[StyleProperty]any, p StyleProperty, v *string) {
	if v != nil {
		m[p] = *v
	}
}

func putFloat(m map[StyleProperty]any, p StyleProperty, v *float64) {
	if v != nil {
		m[p] = *v
	}
}

// String returns a pointer to v.
func String(v string) *string { return &v }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// Anchor returns a pointer to v.
func Anchor(v TranslateAnchor) *TranslateAnchor { return &v }
