package core

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type (
	// Layer describes a style layer reading from a source.
	Layer struct {
		ID     string `json:"id"`
		Type   string `json:"type"`
		Source string `json:"source"`
	}

	// LayerPosition places a layer in the stack. The zero value puts the
	// layer on top. At most one field should be set.
	LayerPosition struct {
		Above string `json:"above,omitempty" yaml:"above,omitempty"`
		Below string `json:"below,omitempty" yaml:"below,omitempty"`
		Index *int   `json:"index,omitempty" yaml:"index,omitempty"`
	}

	// SourceDiff is a set-semantics change to a source's features.
	SourceDiff struct {
		Add    []*geojson.Feature `json:"add,omitempty"`
		Update []*geojson.Feature `json:"update,omitempty"`
		Remove []string           `json:"remove,omitempty"`
	}

	// Renderer is the scene graph annotations are synchronized into.
	Renderer interface {
		AddSource(id string) error
		RemoveSource(id string) error
		AddPersistentLayer(layer Layer, position LayerPosition) error
		RemoveLayer(id string) error
		MoveLayer(id string, position LayerPosition) error
		// SetLayerProperties sets paint and layout properties by wire name.
		// A nil value resets the property.
		SetLayerProperties(id string, properties map[string]any) error
		ApplyDiff(sourceID string, diff SourceDiff) error
		ReplaceSourceData(id string, data *geojson.FeatureCollection) error
	}

	// Cancelable ends a subscription. Cancel may be called more than once.
	Cancelable interface {
		Cancel()
	}

	// Signal delivers periodic ticks, typically once per rendered frame.
	Signal interface {
		Observe(fn func()) Cancelable
	}

	// OffsetCalculator moves a geometry by a screen-space translation.
	// It returns false when no valid geometry can be produced.
	OffsetCalculator interface {
		Geometry(translation orb.Point, from orb.Geometry) (orb.Geometry, bool)
	}
)

// IsEmpty reports whether the diff carries no changes.
func (d SourceDiff) IsEmpty() bool {
	return len(d.Add) == 0 && len(d.Update) == 0 && len(d.Remove) == 0
}
