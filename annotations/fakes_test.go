package annotations

import (
	"annotation-server/core"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type call struct {
	method string
	id     string
	arg    any
}

// recordingRenderer records every call and can be told to fail a method.
type recordingRenderer struct {
	calls []call
	fail  map[string]error
}

func newRecordingRenderer() *recordingRenderer {
	return &recordingRenderer{fail: make(map[string]error)}
}

func (r *recordingRenderer) record(method, id string, arg any) error {
	r.calls = append(r.calls, call{method: method, id: id, arg: arg})
	if err, ok := r.fail[method]; ok {
		return err
	}
	if err, ok := r.fail[method+":"+id]; ok {
		return err
	}
	return nil
}

func (r *recordingRenderer) AddSource(id string) error {
	return r.record("AddSource", id, nil)
}

func (r *recordingRenderer) RemoveSource(id string) error {
	return r.record("RemoveSource", id, nil)
}

func (r *recordingRenderer) AddPersistentLayer(layer core.Layer, position core.LayerPosition) error {
	return r.record("AddPersistentLayer", layer.ID, position)
}

func (r *recordingRenderer) RemoveLayer(id string) error {
	return r.record("RemoveLayer", id, nil)
}

func (r *recordingRenderer) MoveLayer(id string, position core.LayerPosition) error {
	return r.record("MoveLayer", id, position)
}

func (r *recordingRenderer) SetLayerProperties(id string, properties map[string]any) error {
	return r.record("SetLayerProperties", id, properties)
}

func (r *recordingRenderer) ApplyDiff(sourceID string, diff core.SourceDiff) error {
	return r.record("ApplyDiff", sourceID, diff)
}

func (r *recordingRenderer) ReplaceSourceData(id string, data *geojson.FeatureCollection) error {
	return r.record("ReplaceSourceData", id, data)
}

func (r *recordingRenderer) reset() {
	r.calls = nil
}

func (r *recordingRenderer) methods() []string {
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = fmt.Sprintf("%s(%s)", c.method, c.id)
	}
	return out
}

func (r *recordingRenderer) last(method, id string) (call, bool) {
	for i := len(r.calls) - 1; i >= 0; i-- {
		if r.calls[i].method == method && r.calls[i].id == id {
			return r.calls[i], true
		}
	}
	return call{}, false
}

type manualSignal struct {
	observers []func()
	cancelled int
}

type cancelFunc func()

func (f cancelFunc) Cancel() { f() }

func (s *manualSignal) Observe(fn func()) core.Cancelable {
	s.observers = append(s.observers, fn)
	return cancelFunc(func() { s.cancelled++ })
}

func (s *manualSignal) fire() {
	for _, fn := range s.observers {
		fn()
	}
}

// shiftOffsets adds the translation to every vertex.
type shiftOffsets struct {
	reject bool
}

func (o shiftOffsets) Geometry(translation orb.Point, from orb.Geometry) (orb.Geometry, bool) {
	if o.reject {
		return nil, false
	}
	switch g := from.(type) {
	case orb.Point:
		return orb.Point{g[0] + translation[0], g[1] + translation[1]}, true
	case orb.Polygon:
		out := make(orb.Polygon, len(g))
		for i, ring := range g {
			out[i] = make(orb.Ring, len(ring))
			for j, p := range ring {
				out[i][j] = orb.Point{p[0] + translation[0], p[1] + translation[1]}
			}
		}
		return out, true
	}
	return nil, false
}

func square(x, y float64) orb.Polygon {
	return orb.Polygon{{{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y}}}
}

func annotation(id string, draggable bool) core.Annotation {
	return core.Annotation{ID: id, Geometry: square(0, 0), IsDraggable: draggable}
}

func ids(as []core.Annotation) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.ID
	}
	return out
}
