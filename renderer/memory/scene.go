// Package memory provides an in-memory scene graph implementing core.Renderer.
package memory

import (
	"annotation-server/core"
	"errors"
	"fmt"
	"sync"

	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
)

var (
	ErrSourceExists   = errors.New("source already exists")
	ErrSourceNotFound = errors.New("source not found")
	ErrSourceInUse    = errors.New("source is used by a layer")
	ErrLayerExists    = errors.New("layer already exists")
	ErrLayerNotFound  = errors.New("layer not found")
)

type (
	source struct {
		features map[string]*geojson.Feature
		order    []string
	}

	layer struct {
		core.Layer
		properties map[string]any
	}

	// LayerState is the serializable state of one layer.
	LayerState struct {
		core.Layer
		Properties map[string]any `json:"properties"`
	}

	// State is the serializable state of a whole scene. Layers are ordered
	// bottom to top.
	State struct {
		Sources map[string]*geojson.FeatureCollection `json:"sources"`
		Layers  []LayerState                          `json:"layers"`
	}
)

// Scene holds sources and an ordered layer stack.
type Scene struct {
	mu      sync.RWMutex
	sources map[string]*source
	layers  []*layer
}

func NewScene() *Scene {
	return &Scene{
		sources: make(map[string]*source),
	}
}

func (s *Scene) AddSource(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sources[id]; ok {
		return fmt.Errorf("%w: %s", ErrSourceExists, id)
	}
	s.sources[id] = &source{features: make(map[string]*geojson.Feature)}
	logrus.WithField("source_id", id).Debug("Source added")
	return nil
}

func (s *Scene) RemoveSource(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sources[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}
	for _, l := range s.layers {
		if l.Source == id {
			return fmt.Errorf("%w: %s is read by %s", ErrSourceInUse, id, l.ID)
		}
	}
	delete(s.sources, id)
	logrus.WithField("source_id", id).Debug("Source removed")
	return nil
}

func (s *Scene) AddPersistentLayer(l core.Layer, position core.LayerPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.layerIndex(l.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrLayerExists, l.ID)
	}
	if _, ok := s.sources[l.Source]; !ok {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, l.Source)
	}
	idx, err := s.resolvePosition(position)
	if err != nil {
		return err
	}
	s.insertLayer(idx, &layer{Layer: l, properties: make(map[string]any)})
	logrus.WithFields(logrus.Fields{"layer_id": l.ID, "index": idx}).Debug("Layer added")
	return nil
}

func (s *Scene) RemoveLayer(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.layerIndex(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrLayerNotFound, id)
	}
	s.layers = append(s.layers[:idx], s.layers[idx+1:]...)
	logrus.WithField("layer_id", id).Debug("Layer removed")
	return nil
}

func (s *Scene) MoveLayer(id string, position core.LayerPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.layerIndex(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrLayerNotFound, id)
	}
	if position.Above == id || position.Below == id {
		return nil
	}
	l := s.layers[idx]
	s.layers = append(s.layers[:idx], s.layers[idx+1:]...)

	target, err := s.resolvePosition(position)
	if err != nil {
		s.insertLayer(idx, l)
		return err
	}
	s.insertLayer(target, l)
	return nil
}

func (s *Scene) SetLayerProperties(id string, properties map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.layerIndex(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrLayerNotFound, id)
	}
	l := s.layers[idx]
	for name, value := range properties {
		if value == nil {
			delete(l.properties, name)
			continue
		}
		l.properties[name] = value
	}
	return nil
}

func (s *Scene) ApplyDiff(sourceID string, diff core.SourceDiff) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.sources[sourceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, sourceID)
	}
	for _, id := range diff.Remove {
		src.remove(id)
	}
	for _, f := range diff.Add {
		src.put(f)
	}
	for _, f := range diff.Update {
		src.put(f)
	}
	logrus.WithFields(logrus.Fields{
		"source_id": sourceID,
		"added":     len(diff.Add),
		"updated":   len(diff.Update),
		"removed":   len(diff.Remove),
	}).Debug("Source diff applied")
	return nil
}

func (s *Scene) ReplaceSourceData(id string, data *geojson.FeatureCollection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sources[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}
	src := &source{features: make(map[string]*geojson.Feature)}
	if data != nil {
		for _, f := range data.Features {
			src.put(f)
		}
	}
	s.sources[id] = src
	return nil
}

// SourceData returns a copy of the features held by a source, in insertion order.
func (s *Scene) SourceData(id string) (*geojson.FeatureCollection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src, ok := s.sources[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}
	return src.collection(), nil
}

// LayerIDs returns the layer stack from bottom to top.
func (s *Scene) LayerIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, len(s.layers))
	for i, l := range s.layers {
		ids[i] = l.ID
	}
	return ids
}

// LayerProperties returns a copy of a layer's properties.
func (s *Scene) LayerProperties(id string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.layerIndex(id)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrLayerNotFound, id)
	}
	return copyProperties(s.layers[idx].properties), nil
}

// State returns a copy of the whole scene.
func (s *Scene) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := State{
		Sources: make(map[string]*geojson.FeatureCollection, len(s.sources)),
		Layers:  make([]LayerState, 0, len(s.layers)),
	}
	for id, src := range s.sources {
		state.Sources[id] = src.collection()
	}
	for _, l := range s.layers {
		state.Layers = append(state.Layers, LayerState{Layer: l.Layer, Properties: copyProperties(l.properties)})
	}
	return state
}

func (s *Scene) layerIndex(id string) int {
	for i, l := range s.layers {
		if l.ID == id {
			return i
		}
	}
	return -1
}

// resolvePosition returns the insertion index for position. The zero
// position means the top of the stack.
func (s *Scene) resolvePosition(position core.LayerPosition) (int, error) {
	switch {
	case position.Above != "":
		idx := s.layerIndex(position.Above)
		if idx < 0 {
			return 0, fmt.Errorf("%w: %s", ErrLayerNotFound, position.Above)
		}
		return idx + 1, nil
	case position.Below != "":
		idx := s.layerIndex(position.Below)
		if idx < 0 {
			return 0, fmt.Errorf("%w: %s", ErrLayerNotFound, position.Below)
		}
		return idx, nil
	case position.Index != nil:
		idx := *position.Index
		if idx < 0 {
			idx = 0
		}
		if idx > len(s.layers) {
			idx = len(s.layers)
		}
		return idx, nil
	}
	return len(s.layers), nil
}

func (s *Scene) insertLayer(idx int, l *layer) {
	s.layers = append(s.layers, nil)
	copy(s.layers[idx+1:], s.layers[idx:])
	s.layers[idx] = l
}

func (src *source) put(f *geojson.Feature) {
	id := fmt.Sprint(f.ID)
	if _, ok := src.features[id]; !ok {
		src.order = append(src.order, id)
	}
	src.features[id] = f
}

func (src *source) remove(id string) {
	if _, ok := src.features[id]; !ok {
		return
	}
	delete(src.features, id)
	for i, existing := range src.order {
		if existing == id {
			src.order = append(src.order[:i], src.order[i+1:]...)
			break
		}
	}
}

func (src *source) collection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, id := range src.order {
		fc.Append(src.features[id])
	}
	return fc
}

func copyProperties(properties map[string]any) map[string]any {
	out := make(map[string]any, len(properties))
	for k, v := range properties {
		out[k] = v
	}
	return out
}
