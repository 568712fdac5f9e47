package core

import (
	"github.com/oklog/ulid/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const (
	// FeatureLayerPropertiesKey is the feature property holding an
	// annotation's data-driven style values.
	FeatureLayerPropertiesKey = "layerProperties"
	// FeatureCustomDataKey is the feature property holding CustomData.
	FeatureCustomDataKey = "custom_data"
)

type (
	// GestureContext accompanies every gesture delivered to a manager.
	GestureContext struct {
		// Point is the gesture location in screen pixels.
		Point orb.Point `json:"point"`
		// Coordinate is the gesture location as longitude/latitude.
		Coordinate orb.Point `json:"coordinate"`
	}

	// GestureHandler reports whether it consumed the gesture.
	GestureHandler func(ctx GestureContext) bool

	// DragBeginHandler receives a copy of the annotation about to be dragged
	// and returns the updated copy plus whether the drag may start.
	DragBeginHandler func(a Annotation, ctx GestureContext) (Annotation, bool)

	// DragHandler receives a copy of the dragged annotation and returns the
	// updated copy.
	DragHandler func(a Annotation, ctx GestureContext) Annotation

	// Annotation is a single polygon, line or point shown by a manager.
	// It is a value: managers store copies and handlers return copies.
	Annotation struct {
		ID          string
		Geometry    orb.Geometry
		Style       AnnotationStyle
		CustomData  map[string]any
		IsDraggable bool
		IsSelected  bool

		TapHandler        GestureHandler
		LongPressHandler  GestureHandler
		DragBeginHandler  DragBeginHandler
		DragChangeHandler DragHandler
		DragEndHandler    DragHandler
	}
)

// NewAnnotation returns an annotation with a fresh unique id.
func NewAnnotation(geometry orb.Geometry) Annotation {
	return Annotation{
		ID:       ulid.Make().String(),
		Geometry: geometry,
	}
}

// Feature returns the payload pushed to a renderer source for this annotation.
func (a Annotation) Feature() *geojson.Feature {
	f := geojson.NewFeature(a.Geometry)
	f.ID = a.ID

	layerProperties := make(map[string]any)
	for p, v := range a.Style.Values() {
		layerProperties[p.String()] = v
	}
	f.Properties[FeatureLayerPropertiesKey] = layerProperties
	if a.CustomData != nil {
		f.Properties[FeatureCustomDataKey] = a.CustomData
	}
	return f
}

// FeatureCollection wraps the features of as in order.
func FeatureCollection(as []Annotation) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, a := range as {
		fc.Append(a.Feature())
	}
	return fc
}
