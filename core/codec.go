package core

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/oklog/ulid/v2"
	"github.com/paulmach/orb/geojson"
)

const (
	featureDraggableKey = "is_draggable"
	featureSelectedKey  = "is_selected"
	featureKeyKey       = "key"
)

// KeyedAnnotation pairs an annotation with the stable key a declarative
// caller uses to identify it across successive updates.
type KeyedAnnotation struct {
	Key        string
	Annotation Annotation
}

// EncodeAnnotations serializes annotations as a GeoJSON FeatureCollection.
// Handlers are not serialized.
func EncodeAnnotations(as []Annotation) ([]byte, error) {
	pairs := make([]KeyedAnnotation, len(as))
	for i, a := range as {
		pairs[i] = KeyedAnnotation{Annotation: a}
	}
	return EncodeKeyedAnnotations(pairs)
}

// EncodeKeyedAnnotations is EncodeAnnotations that also writes each
// non-empty key as the feature's "key" property.
func EncodeKeyedAnnotations(pairs []KeyedAnnotation) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, pair := range pairs {
		a := pair.Annotation
		f := a.Feature()
		f.Properties[featureDraggableKey] = a.IsDraggable
		f.Properties[featureSelectedKey] = a.IsSelected
		if pair.Key != "" {
			f.Properties[featureKeyKey] = pair.Key
		}
		fc.Append(f)
	}
	return json.Marshal(fc)
}

// DecodeAnnotations parses a GeoJSON FeatureCollection into annotations.
func DecodeAnnotations(data []byte) ([]Annotation, error) {
	keyed, err := DecodeKeyedAnnotations(data)
	if err != nil {
		return nil, err
	}
	as := make([]Annotation, len(keyed))
	for i, k := range keyed {
		as[i] = k.Annotation
	}
	return as, nil
}

// DecodeKeyedAnnotations parses a GeoJSON FeatureCollection, reading each
// feature's "key" property. Features without a key use their id as key.
func DecodeKeyedAnnotations(data []byte) ([]KeyedAnnotation, error) {
	return decodeFeatures(data, true)
}

// DecodeSavedAnnotations reads what EncodeKeyedAnnotations wrote. Features
// without a "key" property get an empty key.
func DecodeSavedAnnotations(data []byte) ([]KeyedAnnotation, error) {
	return decodeFeatures(data, false)
}

func decodeFeatures(data []byte, keyFromID bool) ([]KeyedAnnotation, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode feature collection: %w", err)
	}

	out := make([]KeyedAnnotation, 0, len(fc.Features))
	for i, f := range fc.Features {
		a, err := annotationFromFeature(f)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		var key string
		if keyFromID {
			key = a.ID
		}
		if k, ok := f.Properties[featureKeyKey]; ok {
			key = fmt.Sprint(k)
		}
		out = append(out, KeyedAnnotation{Key: key, Annotation: a})
	}
	return out, nil
}

func annotationFromFeature(f *geojson.Feature) (Annotation, error) {
	if f.Geometry == nil {
		return Annotation{}, fmt.Errorf("missing geometry")
	}

	a := Annotation{Geometry: f.Geometry}
	switch id := f.ID.(type) {
	case nil:
		a.ID = ulid.Make().String()
	case string:
		a.ID = id
	case float64:
		a.ID = strconv.FormatFloat(id, 'f', -1, 64)
	default:
		a.ID = fmt.Sprint(id)
	}
	if a.ID == "" {
		a.ID = ulid.Make().String()
	}

	if raw, ok := f.Properties[FeatureLayerPropertiesKey]; ok && raw != nil {
		values, ok := raw.(map[string]any)
		if !ok {
			return Annotation{}, fmt.Errorf("%s must be an object", FeatureLayerPropertiesKey)
		}
		style, err := ParseAnnotationStyle(values)
		if err != nil {
			return Annotation{}, err
		}
		a.Style = style
	}
	if raw, ok := f.Properties[FeatureCustomDataKey].(map[string]any); ok {
		a.CustomData = raw
	}
	a.IsDraggable, _ = f.Properties[featureDraggableKey].(bool)
	a.IsSelected, _ = f.Properties[featureSelectedKey].(bool)
	return a, nil
}
