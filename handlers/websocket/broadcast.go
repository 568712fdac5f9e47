package websocket

import (
	"annotation-server/core"
	"sync"

	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
)

// Scene events emitted to every client after the wrapped renderer accepted
// the call.
const (
	EventSourceAdd       = "source-add"
	EventSourceRemove    = "source-remove"
	EventSourceDiff      = "source-diff"
	EventSourceData      = "source-data"
	EventLayerAdd        = "layer-add"
	EventLayerRemove     = "layer-remove"
	EventLayerMove       = "layer-move"
	EventLayerProperties = "layer-properties"
	EventAnnotationTap   = "annotation-tap"
)

type (
	// Emitter sends an event to all connected clients.
	Emitter interface {
		Emit(event string, args ...any) error
	}

	SourceDiffEvent struct {
		Source string          `json:"source"`
		Diff   core.SourceDiff `json:"diff"`
	}

	SourceDataEvent struct {
		Source string                     `json:"source"`
		Data   *geojson.FeatureCollection `json:"data"`
	}

	LayerEvent struct {
		Layer    core.Layer         `json:"layer"`
		Position core.LayerPosition `json:"position"`
	}

	LayerMoveEvent struct {
		ID       string             `json:"id"`
		Position core.LayerPosition `json:"position"`
	}

	LayerPropertiesEvent struct {
		ID         string         `json:"id"`
		Properties map[string]any `json:"properties"`
	}

	IDEvent struct {
		ID string `json:"id"`
	}

	TapEvent struct {
		Manager  string                     `json:"manager"`
		Features *geojson.FeatureCollection `json:"features"`
	}
)

// Broadcaster is a core.Renderer that mirrors every successful call to the
// socket clients. Events are dropped until an Emitter is attached.
type Broadcaster struct {
	next core.Renderer

	mu      sync.RWMutex
	emitter Emitter
}

func NewBroadcaster(next core.Renderer) *Broadcaster {
	return &Broadcaster{next: next}
}

// Attach sets the emitter events are sent through.
func (b *Broadcaster) Attach(e Emitter) {
	b.mu.Lock()
	b.emitter = e
	b.mu.Unlock()
}

func (b *Broadcaster) emit(err error, event string, payload any) error {
	if err != nil {
		return err
	}
	b.mu.RLock()
	e := b.emitter
	b.mu.RUnlock()
	if e == nil {
		return nil
	}
	if emitErr := e.Emit(event, payload); emitErr != nil {
		logrus.WithError(emitErr).WithField("event", event).Warn("Failed to broadcast scene event")
	}
	return nil
}

func (b *Broadcaster) AddSource(id string) error {
	return b.emit(b.next.AddSource(id), EventSourceAdd, IDEvent{ID: id})
}

func (b *Broadcaster) RemoveSource(id string) error {
	return b.emit(b.next.RemoveSource(id), EventSourceRemove, IDEvent{ID: id})
}

func (b *Broadcaster) AddPersistentLayer(layer core.Layer, position core.LayerPosition) error {
	return b.emit(b.next.AddPersistentLayer(layer, position), EventLayerAdd, LayerEvent{Layer: layer, Position: position})
}

func (b *Broadcaster) RemoveLayer(id string) error {
	return b.emit(b.next.RemoveLayer(id), EventLayerRemove, IDEvent{ID: id})
}

func (b *Broadcaster) MoveLayer(id string, position core.LayerPosition) error {
	return b.emit(b.next.MoveLayer(id, position), EventLayerMove, LayerMoveEvent{ID: id, Position: position})
}

func (b *Broadcaster) SetLayerProperties(id string, properties map[string]any) error {
	return b.emit(b.next.SetLayerProperties(id, properties), EventLayerProperties, LayerPropertiesEvent{ID: id, Properties: properties})
}

func (b *Broadcaster) ApplyDiff(sourceID string, diff core.SourceDiff) error {
	return b.emit(b.next.ApplyDiff(sourceID, diff), EventSourceDiff, SourceDiffEvent{Source: sourceID, Diff: diff})
}

func (b *Broadcaster) ReplaceSourceData(id string, data *geojson.FeatureCollection) error {
	return b.emit(b.next.ReplaceSourceData(id, data), EventSourceData, SourceDataEvent{Source: id, Data: data})
}

// Tap tells clients which annotations of a manager were tapped. It has the
// shape of a hub.TapListener.
func (b *Broadcaster) Tap(managerID string, tapped []core.Annotation) {
	_ = b.emit(nil, EventAnnotationTap, TapEvent{Manager: managerID, Features: core.FeatureCollection(tapped)})
}
